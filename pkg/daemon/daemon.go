// Package daemon runs a link with the bridges attached to its endpoints.
package daemon

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/copro.go/pkg/bridge/mqtt"
	"github.com/robotalks/copro.go/pkg/bridge/stream"
	"github.com/robotalks/copro.go/pkg/bridge/websocket"
	"github.com/robotalks/copro.go/pkg/config"
	fx "github.com/robotalks/copro.go/pkg/framework"
	"github.com/robotalks/copro.go/pkg/link"
	"github.com/robotalks/copro.go/pkg/sim"
)

// DefaultSuperviseInterval is the default interval of link health checks.
const DefaultSuperviseInterval = time.Second

// Daemon owns a link, the simulated peer of a loopback phy and the bridges.
type Daemon struct {
	Config *config.Config
	Link   *link.Link
	Phy    *config.Phy
	// Queue is the MQTT connection, nil when MQTT is not used.
	Queue *mqtt.Queue
	// SuperviseInterval is how often the link is checked. A link degraded
	// for a whole interval is reset, and bridged endpoints which failed or
	// were closed by the peer are opened again.
	SuperviseInterval time.Duration

	runnables []fx.Runnable
	streams   []*stream.Server
	bridged   []*link.Endpoint
	degraded  bool
}

// New opens the phy and sets up all bridges from conf.
func New(conf *config.Config) (*Daemon, error) {
	l, p, err := conf.NewLink()
	if err != nil {
		return nil, err
	}
	d := &Daemon{
		Config:            conf,
		Link:              l,
		Phy:               p,
		SuperviseInterval: DefaultSuperviseInterval,
	}
	if err := d.setup(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) setup() error {
	conf := d.Config
	d.runnables = append(d.runnables, fx.NamedRun("link", d.Link))
	if d.Phy.Peer != nil {
		copro, err := sim.New(d.Phy.Peer, conf.Link)
		if err != nil {
			return err
		}
		d.runnables = append(d.runnables, copro)
	}

	if conf.UsesMQTT() {
		q, err := mqtt.NewLinkQueue(conf.MQTTURL, conf.Name)
		if err != nil {
			return err
		}
		d.Queue = q
		announcer := mqtt.NewAnnouncer(q, mqtt.LinkInfo{
			Name: conf.Name,
			Meta: mqtt.LinkMeta{
				Description: conf.Description,
				Phy:         conf.Phy,
				Device:      conf.Device(),
				Endpoints:   conf.Endpoints(),
			},
		})
		d.Link.OnStateChange(announcer)
		d.runnables = append(d.runnables, announcer)
	}

	websockets := make(map[string]*websocket.Server)
	for _, b := range conf.Bridges {
		ep, err := d.Link.OpenEndpoint(b.Endpoint)
		if err != nil {
			return err
		}
		d.bridged = append(d.bridged, ep)
		switch b.Kind {
		case config.BridgeStream:
			srv, err := stream.Listen(b.Address, ep, conf.Retry)
			if err != nil {
				return err
			}
			srv.MaxSize = conf.Link.Limits.MaxPayload
			d.streams = append(d.streams, srv)
			d.runnables = append(d.runnables, srv)
		case config.BridgeWebsocket:
			srv := websockets[b.Address]
			if srv == nil {
				srv = websocket.NewServer(b.Address)
				websockets[b.Address] = srv
				d.runnables = append(d.runnables, srv)
			}
			srv.Handle(websocket.EndpointPath(b.Endpoint), ep, conf.Retry)
		case config.BridgeMQTT:
			d.runnables = append(d.runnables, &mqtt.EndpointBridge{
				Queue:    d.Queue,
				Link:     conf.Name,
				Endpoint: ep,
				Retry:    conf.Retry,
			})
		}
		glog.Infof("bridge %s", b)
	}
	d.runnables = append(d.runnables, fx.NamedRun("supervisor", fx.RunFunc(d.supervise)))
	return nil
}

// Name implements Named.
func (d *Daemon) Name() string {
	return "daemon:" + d.Config.Name
}

// Run implements Runnable. Everything stops once any part stops.
func (d *Daemon) Run(ctx context.Context) error {
	glog.Infof("link %s on %s %s", d.Config.Name, d.Config.Phy, d.Config.Device())
	err := fx.NewRunnerWith(ctx).StopOnExit().Go(d.runnables...).Wait()
	d.Close()
	return err
}

// Close stops the link and releases listeners not yet running.
func (d *Daemon) Close() error {
	for _, srv := range d.streams {
		srv.Listener.Close()
	}
	if d.Phy.Peer != nil {
		d.Phy.Peer.Close()
	}
	return d.Link.Close()
}

func (d *Daemon) supervise(ctx context.Context) error {
	ticker := time.NewTicker(d.SuperviseInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.check()
		}
	}
}

func (d *Daemon) check() {
	switch d.Link.State() {
	case link.StateDegraded:
		if d.degraded {
			glog.Warningf("link %s degraded, reset", d.Config.Name)
			d.Link.Reset()
			d.degraded = false
			return
		}
		d.degraded = true
	case link.StateEstablished:
		d.degraded = false
		for _, ep := range d.bridged {
			switch ep.State() {
			case link.EndpointClosed, link.EndpointError:
				glog.Infof("reopen endpoint %d: %v", ep.ID(), ep.Err())
				d.Link.OpenEndpoint(ep.ID())
			}
		}
	default:
		d.degraded = false
	}
}
