package link

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robotalks/copro.go/pkg/link/arq"
)

// Endpoint is a logical channel multiplexed on a link. Id 0 is the system
// endpoint reserved for link management.
type Endpoint struct {
	link *Link
	id   uint8

	// fields below are guarded by link.lock
	state        EndpointState
	err          error
	sender       *arq.Sender
	receiver     *arq.Receiver
	requested    bool
	openDeadline time.Time
	stateCh      chan struct{}
	onFailure    func(*DeliveryError)
	// rxBusy marks the next acknowledgment with BUSY.
	rxBusy bool

	rxCh        chan []byte
	receiveOnce sync.Once
}

func newEndpoint(l *Link, id uint8) *Endpoint {
	return &Endpoint{
		link:     l,
		id:       id,
		sender:   arq.NewSender(l.config.TxQueueSize, l.config.MaxRetries, l.config.RetryTimeout, 0),
		receiver: arq.NewReceiver(l.receiveWindow(), 0),
		stateCh:  make(chan struct{}),
		rxCh:     make(chan []byte, l.config.RxQueueSize),
	}
}

// ID returns the endpoint id.
func (e *Endpoint) ID() uint8 {
	return e.id
}

// State returns the endpoint state.
func (e *Endpoint) State() EndpointState {
	e.link.lock.Lock()
	defer e.link.lock.Unlock()
	return e.state
}

// Err returns why the endpoint last left Opening or Open.
func (e *Endpoint) Err() error {
	e.link.lock.Lock()
	defer e.link.lock.Unlock()
	return e.err
}

// Pending returns the number of payloads not acknowledged yet.
func (e *Endpoint) Pending() int {
	e.link.lock.Lock()
	defer e.link.lock.Unlock()
	return e.sender.Len()
}

// Send enqueues a payload without blocking. It returns ErrQueueFull when the
// transmit queue is full and ErrEndpointNotOpen unless the endpoint is open.
// Sending on a closed endpoint starts opening it.
func (e *Endpoint) Send(payload []byte) error {
	if len(payload) > e.link.config.Limits.MaxPayload {
		return ErrPayloadTooLarge
	}
	var err error
	e.link.locked(func() {
		switch e.state {
		case EndpointOpen:
			if _, err = e.sender.Push(append([]byte(nil), payload...)); err != nil {
				err = ErrQueueFull
			}
		case EndpointClosed:
			e.link.startOpenLocked(e)
			err = ErrEndpointNotOpen
		default:
			err = ErrEndpointNotOpen
		}
	})
	if err == nil {
		e.link.kick.Notify()
	}
	return err
}

// OnReceive registers the callback invoked with every in-order payload. The
// callback runs on a delivery goroutine of the endpoint. It can be registered
// once, Recv must not be used afterwards.
func (e *Endpoint) OnReceive(fn func([]byte)) {
	e.receiveOnce.Do(func() {
		go func() {
			for {
				select {
				case payload := <-e.rxCh:
					fn(payload)
				case <-e.link.done:
					return
				}
			}
		}()
	})
}

// OnFailure registers the callback invoked with payloads which failed.
func (e *Endpoint) OnFailure(fn func(*DeliveryError)) {
	e.link.lock.Lock()
	e.onFailure = fn
	e.link.lock.Unlock()
}

// Recv waits for the next payload.
func (e *Endpoint) Recv(ctx context.Context) ([]byte, error) {
	select {
	case payload := <-e.rxCh:
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.link.done:
		return nil, ErrLinkClosed
	}
}

// WaitOpen waits until the endpoint is open. It fails if opening failed or
// nothing is opening the endpoint.
func (e *Endpoint) WaitOpen(ctx context.Context) error {
	for {
		e.link.lock.Lock()
		state, err, ch := e.state, e.err, e.stateCh
		e.link.lock.Unlock()
		switch state {
		case EndpointOpen:
			return nil
		case EndpointClosed, EndpointError:
			if err == nil {
				err = ErrEndpointNotOpen
			}
			return fmt.Errorf("endpoint %d: %w", e.id, err)
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		case <-e.link.done:
			return ErrLinkClosed
		}
	}
}

// Close closes the endpoint and notifies the peer. Queued and outstanding
// payloads of this endpoint are discarded.
func (e *Endpoint) Close() error {
	if e.id == 0 {
		return ErrInvalidEndpoint
	}
	e.link.locked(func() {
		if e.state == EndpointClosed {
			return
		}
		notify := e.state == EndpointOpen || e.requested
		e.sender.Drain()
		e.setStateLocked(EndpointClosed, nil)
		if notify && e.link.state == StateEstablished {
			e.link.sendCloseLocked(e.id)
		}
	})
	e.link.kick.Notify()
	return nil
}

func (e *Endpoint) setStateLocked(state EndpointState, err error) {
	if state != EndpointOpening {
		e.requested = false
	}
	if e.state == state && err == nil {
		return
	}
	e.state, e.err = state, err
	close(e.stateCh)
	e.stateCh = make(chan struct{})
}

// failLocked discards outstanding payloads and reports them.
func (e *Endpoint) failLocked(cause error) {
	fn := e.onFailure
	for _, r := range e.sender.Drain() {
		if fn == nil {
			continue
		}
		de := &DeliveryError{Endpoint: e.id, Seq: r.Seq, Payload: r.Payload, Err: cause}
		e.link.later(func() { fn(de) })
	}
}

func (e *Endpoint) String() string {
	return fmt.Sprintf("endpoint %d", e.id)
}
