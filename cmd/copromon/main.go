package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/robotalks/copro.go/pkg/bridge/mqtt"
	"github.com/robotalks/copro.go/pkg/cli/sh"
)

var (
	mqttURL      = "mqtt://localhost:1883/copro/"
	linkName     string
	discoverOnly bool
)

func init() {
	if val := os.Getenv("COPRO_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&linkName, "link", linkName, "Only show traffic of this link.")
	flag.BoolVar(&discoverOnly, "discover", discoverOnly, "List announced links and exit.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := q.ConnectWait(ctx); err != nil {
		log.Fatalln(err)
	}
	defer q.Close()

	links, err := mqtt.Discover(ctx, q, mqtt.DefaultDiscoverTimeout)
	if err != nil {
		log.Fatalln(err)
	}
	for _, info := range links {
		log.Printf("link %s: phy=%s device=%s endpoints=%v %s",
			info.Name, info.Meta.Phy, info.Meta.Device, info.Meta.Endpoints, info.Meta.Description)
	}
	if discoverOnly {
		return
	}

	sub := mqtt.Watch(q, func(t mqtt.Traffic) {
		if linkName != "" && t.Link != linkName {
			return
		}
		switch t.Kind {
		case mqtt.KindMeta:
			log.Printf("%s meta: %s", t.Link, string(t.Payload))
		case mqtt.KindState:
			log.Printf("%s state: %s", t.Link, string(t.Payload))
		default:
			log.Printf("%s ep %d %s: %s", t.Link, t.Endpoint, t.Dir, sh.FormatPayload(t.Payload))
		}
	})
	defer sub.Close()
	<-ctx.Done()
}
