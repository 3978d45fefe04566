package mqtt

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/copro.go/pkg/link"
)

// LinkMeta describes a link.
type LinkMeta struct {
	Description string `json:"description,omitempty"`
	Phy         string `json:"phy"`
	Device      string `json:"device,omitempty"`
	Endpoints   []int  `json:"endpoints,omitempty"`
}

// LinkInfo is the announced information of a link.
type LinkInfo struct {
	Name string   `json:"name"`
	Meta LinkMeta `json:"meta"`
}

// NewLinkQueue creates the Queue for a link. The retained meta of the link is
// cleared by the broker when the connection is lost.
func NewLinkQueue(brokerURL, name string) (*Queue, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+MetaTopic(name), nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("copro:" + name)
	}
	return NewQueue(opts, topicPrefix), nil
}

// Announcer publishes the meta and the state of a link as retained messages.
type Announcer struct {
	Queue *Queue
	Info  LinkInfo

	metaJSON []byte
	lock     sync.Mutex
	state    string
}

// NewAnnouncer creates an Announcer.
func NewAnnouncer(q *Queue, info LinkInfo) *Announcer {
	meta, err := json.Marshal(&info)
	if err != nil {
		panic(err)
	}
	a := &Announcer{Queue: q, Info: info, metaJSON: meta, state: link.StateReset.String()}
	q.OnConnect = func(*Queue) { a.onConnected() }
	return a
}

// Name implements Named.
func (a *Announcer) Name() string {
	return "announcer:" + a.Info.Name
}

// StateChanged implements link.StateNotifier.
func (a *Announcer) StateChanged(_ context.Context, state link.State) {
	a.lock.Lock()
	a.state = state.String()
	a.lock.Unlock()
	a.Queue.PubWith(StateTopic(a.Info.Name), []byte(state.String()), 1, true)
}

// Run implements Runnable. It owns the connection of the Queue.
func (a *Announcer) Run(ctx context.Context) error {
	a.Queue.Connect()
	<-ctx.Done()
	token := a.Queue.PubWith(MetaTopic(a.Info.Name), nil, 1, true)
	token.Wait()
	a.Queue.Close()
	return nil
}

func (a *Announcer) onConnected() {
	a.lock.Lock()
	state := a.state
	a.lock.Unlock()
	glog.V(2).Infof("announce %s: %s", a.Info.Name, state)
	a.Queue.PubWith(MetaTopic(a.Info.Name), a.metaJSON, 1, true)
	a.Queue.PubWith(StateTopic(a.Info.Name), []byte(state), 1, true)
}
