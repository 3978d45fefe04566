package mqtt

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/golang/glog"
)

// DefaultDiscoverTimeout defines the default timeout value of discovery.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// Discover collects the retained meta of links until timeout.
func Discover(ctx context.Context, q *Queue, timeout time.Duration) (res []LinkInfo, err error) {
	resCh := make(chan LinkInfo, 1)
	sub := q.Sub("+/"+KindMeta, Handler(func(topic string, payload []byte) {
		info, ok := parseMeta(topic, payload)
		if !ok {
			return
		}
		select {
		case resCh <- info:
		case <-time.After(time.Second):
		}
	}))
	defer sub.Close()

	if timeout <= 0 {
		timeout = DefaultDiscoverTimeout
	}
	deadline := time.After(timeout)
	found := make(map[string]LinkInfo)
	for {
		select {
		case info := <-resCh:
			found[info.Name] = info
		case <-deadline:
			for _, info := range found {
				res = append(res, info)
			}
			sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
			return
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
	}
}

// Traffic is a message observed on a link topic.
type Traffic struct {
	TopicRef
	Payload []byte
}

// Watch calls fn with every message on link topics.
func Watch(q *Queue, fn func(Traffic)) *Subscription {
	return q.Sub("#", Handler(func(topic string, payload []byte) {
		ref, err := ParseTopic(topic)
		if err != nil {
			glog.V(4).Infof("skip %q: %v", topic, err)
			return
		}
		fn(Traffic{TopicRef: ref, Payload: payload})
	}))
}

func parseMeta(topic string, payload []byte) (info LinkInfo, ok bool) {
	ref, err := ParseTopic(topic)
	if err != nil || ref.Kind != KindMeta || len(payload) == 0 {
		return info, false
	}
	if err = json.Unmarshal(payload, &info); err != nil {
		glog.Warningf("invalid meta on %q: %v", topic, err)
		return info, false
	}
	if info.Name == "" {
		info.Name = ref.Link
	}
	return info, true
}
