package mqtt

import (
	"context"
	"io"
	"sync"

	"github.com/robotalks/copro.go/pkg/bridge"
)

// ReadWriter implements PacketReadWriter.
type ReadWriter struct {
	Queue    *Queue
	SubTopic string
	PubTopic string

	packetCh  chan []byte
	sub       *Subscription
	closeCh   chan struct{}
	closeOnce sync.Once
}

// DefaultPacketQueueSize is the number of received packets buffered.
const DefaultPacketQueueSize = 16

// NewPacketReadWriter creates the ReadWriter.
func NewPacketReadWriter(q *Queue) *ReadWriter {
	return &ReadWriter{
		Queue:    q,
		packetCh: make(chan []byte, DefaultPacketQueueSize),
		closeCh:  make(chan struct{}),
	}
}

// WithTopics specifies the topics.
func (p *ReadWriter) WithTopics(sub, pub string) *ReadWriter {
	p.SubTopic, p.PubTopic = sub, pub
	return p
}

// ForEndpoint sets topics using the endpoint convention:
// SubTopic = link/ep/id/in
// PubTopic = link/ep/id/out
func (p *ReadWriter) ForEndpoint(link string, id uint8) *ReadWriter {
	return p.WithTopics(EndpointTopic(link, id, DirIn), EndpointTopic(link, id, DirOut))
}

// Open subscribes SubTopic.
func (p *ReadWriter) Open() *ReadWriter {
	p.sub = p.Queue.Sub(p.SubTopic, Handler(p.handleMsg))
	return p
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-p.packetCh:
		return pkt, nil
	case <-p.closeCh:
		return nil, io.EOF
	}
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	token := p.Queue.Pub(p.PubTopic, pkt)
	token.Wait()
	return token.Error()
}

// Close implements io.Closer.
func (p *ReadWriter) Close() (err error) {
	p.closeOnce.Do(func() {
		close(p.closeCh)
		if p.sub != nil {
			err = p.sub.Close()
		}
	})
	return
}

func (p *ReadWriter) handleMsg(_ string, payload []byte) {
	pkt := append([]byte(nil), payload...)
	select {
	case p.packetCh <- pkt:
	case <-p.closeCh:
	}
}

// EndpointBridge bridges an endpoint with its MQTT topics.
type EndpointBridge struct {
	Queue    *Queue
	Link     string
	Endpoint bridge.Endpoint
	Retry    bridge.Retry
}

// Name implements Named.
func (b *EndpointBridge) Name() string {
	return "mqtt:" + EndpointTopic(b.Link, b.Endpoint.ID(), "*")
}

// Run implements Runnable.
func (b *EndpointBridge) Run(ctx context.Context) error {
	rw := NewPacketReadWriter(b.Queue).ForEndpoint(b.Link, b.Endpoint.ID()).Open()
	return bridge.New(b.Endpoint, rw).WithRetry(b.Retry).Run(ctx)
}
