package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	fx "github.com/robotalks/copro.go/pkg/framework"
	"github.com/robotalks/copro.go/pkg/link"
)

// Retry bounds how long a packet waits for the endpoint to accept it.
type Retry struct {
	// Interval is the delay between two attempts.
	Interval time.Duration
	// Attempts is the total number of attempts per packet.
	Attempts int
}

// DefaultRetry is used when Retry is not configured.
var DefaultRetry = Retry{
	Interval: 10 * time.Millisecond,
	Attempts: 50,
}

// Bridge moves packets between an endpoint and a PacketReadWriter.
// Packets read from the ReadWriter are sent on the endpoint and payloads
// received on the endpoint are written to the ReadWriter.
type Bridge struct {
	Endpoint   Endpoint
	ReadWriter PacketReadWriter
	Retry      Retry

	forwarded uint64
	delivered uint64
	dropped   uint64

	writeLock sync.Mutex
}

// Counters are the packet counters of a Bridge.
type Counters struct {
	// Forwarded counts packets accepted by the endpoint.
	Forwarded uint64
	// Delivered counts payloads written to the ReadWriter.
	Delivered uint64
	// Dropped counts packets the endpoint didn't accept.
	Dropped uint64
}

// New creates a Bridge.
func New(ep Endpoint, rw PacketReadWriter) *Bridge {
	return &Bridge{Endpoint: ep, ReadWriter: rw, Retry: DefaultRetry}
}

// WithRetry sets the retry policy.
func (b *Bridge) WithRetry(r Retry) *Bridge {
	b.Retry = r
	return b
}

// Name implements Named.
func (b *Bridge) Name() string {
	return fmt.Sprintf("bridge[%d]", b.Endpoint.ID())
}

// Counters returns a snapshot of the packet counters.
func (b *Bridge) Counters() Counters {
	return Counters{
		Forwarded: atomic.LoadUint64(&b.forwarded),
		Delivered: atomic.LoadUint64(&b.delivered),
		Dropped:   atomic.LoadUint64(&b.dropped),
	}
}

// Run implements Runnable.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	deliverErr := make(chan error, 1)
	go func() {
		deliverErr <- b.deliver(ctx)
		cancel()
	}()
	err := fx.RunWithContextCloser(ctx, b, func() error {
		return b.forward(ctx)
	})
	cancel()
	if derr := <-deliverErr; err == context.Canceled && derr != nil && derr != context.Canceled {
		err = derr
	}
	return err
}

// Close implements io.Closer.
func (b *Bridge) Close() error {
	if closer, ok := b.ReadWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// WritePacket writes a packet to the ReadWriter, serialized with delivery.
func (b *Bridge) WritePacket(pkt []byte) error {
	b.writeLock.Lock()
	defer b.writeLock.Unlock()
	return b.ReadWriter.WritePacket(pkt)
}

func (b *Bridge) forward(ctx context.Context) error {
	for {
		pkt, err := b.ReadWriter.ReadPacket()
		if err != nil {
			return err
		}
		err = b.send(ctx, pkt)
		switch {
		case err == nil:
			atomic.AddUint64(&b.forwarded, 1)
		case errors.Is(err, link.ErrQueueFull),
			errors.Is(err, link.ErrEndpointNotOpen),
			errors.Is(err, link.ErrPayloadTooLarge):
			atomic.AddUint64(&b.dropped, 1)
			glog.Warningf("%s: drop packet of %d bytes: %v", b.Name(), len(pkt), err)
		default:
			return err
		}
	}
}

func (b *Bridge) send(ctx context.Context, pkt []byte) error {
	retry := b.Retry
	if retry.Attempts <= 0 {
		retry = DefaultRetry
	}
	for attempt := 1; ; attempt++ {
		err := b.Endpoint.Send(pkt)
		if err == nil {
			return nil
		}
		if !errors.Is(err, link.ErrQueueFull) && !errors.Is(err, link.ErrEndpointNotOpen) {
			return err
		}
		if attempt >= retry.Attempts {
			return fmt.Errorf("%w after %d attempts", err, attempt)
		}
		timer := time.NewTimer(retry.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (b *Bridge) deliver(ctx context.Context) error {
	for {
		payload, err := b.Endpoint.Recv(ctx)
		if err != nil {
			return err
		}
		if err = b.WritePacket(payload); err != nil {
			return err
		}
		atomic.AddUint64(&b.delivered, 1)
	}
}

// Session runs one Bridge at a time for an endpoint. Serving a new
// ReadWriter stops the Bridge serving the previous one.
type Session struct {
	Endpoint Endpoint
	Retry    Retry

	lock   sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession creates a Session.
func NewSession(ep Endpoint, retry Retry) *Session {
	return &Session{Endpoint: ep, Retry: retry}
}

// Serve bridges rw with the endpoint until rw fails or ctx is done.
func (s *Session) Serve(ctx context.Context, rw PacketReadWriter) error {
	s.lock.Lock()
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	s.lock.Unlock()

	defer func() {
		cancel()
		close(done)
		s.lock.Lock()
		if s.done == done {
			s.cancel, s.done = nil, nil
		}
		s.lock.Unlock()
	}()
	return New(s.Endpoint, rw).WithRetry(s.Retry).Run(ctx)
}
