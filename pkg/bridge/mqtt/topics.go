package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// Direction of endpoint traffic on MQTT.
const (
	// DirIn carries packets to the co-processor.
	DirIn = "in"
	// DirOut carries payloads from the co-processor.
	DirOut = "out"
)

// MetaTopic is the retained topic describing a link.
func MetaTopic(link string) string {
	return link + "/meta"
}

// StateTopic is the retained topic with the current link state.
func StateTopic(link string) string {
	return link + "/state"
}

// EndpointTopic is the topic of endpoint traffic in one direction.
func EndpointTopic(link string, id uint8, dir string) string {
	return fmt.Sprintf("%s/ep/%d/%s", link, id, dir)
}

// TopicRef identifies what a topic is about.
type TopicRef struct {
	Link     string
	Kind     string
	Endpoint uint8
	Dir      string
}

// Topic kinds.
const (
	KindMeta     = "meta"
	KindState    = "state"
	KindEndpoint = "ep"
)

// ParseTopic parses a topic (without prefix) created by MetaTopic,
// StateTopic or EndpointTopic.
func ParseTopic(topic string) (ref TopicRef, err error) {
	items := strings.Split(topic, "/")
	switch {
	case len(items) == 2 && (items[1] == KindMeta || items[1] == KindState):
		ref.Link, ref.Kind = items[0], items[1]
	case len(items) == 4 && items[1] == KindEndpoint && (items[3] == DirIn || items[3] == DirOut):
		id, perr := strconv.ParseUint(items[2], 10, 8)
		if perr != nil {
			return ref, fmt.Errorf("invalid endpoint in topic %q", topic)
		}
		ref.Link, ref.Kind, ref.Endpoint, ref.Dir = items[0], KindEndpoint, uint8(id), items[3]
	default:
		return ref, fmt.Errorf("unknown topic %q", topic)
	}
	if ref.Link == "" {
		return ref, fmt.Errorf("empty link name in topic %q", topic)
	}
	return ref, nil
}
