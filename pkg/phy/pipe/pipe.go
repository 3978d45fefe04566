// Package pipe connects two links in memory with optional fault injection.
package pipe

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/copro.go/pkg/link/frame"
	"github.com/robotalks/copro.go/pkg/phy"
)

// Fault transforms an outgoing transmission. Returning nil drops it.
type Fault func(data []byte) []byte

// Options configures a pipe.
type Options struct {
	// RxQueueSize is the capacity of the receive channel of each end.
	RxQueueSize int
	// Chunk splits every transmission into pieces of at most Chunk bytes,
	// zero keeps transmissions whole.
	Chunk int
}

// DefaultOptions are used for zero Options fields.
var DefaultOptions = Options{RxQueueSize: 16}

// End is one side of a pipe.
type End struct {
	name    string
	framing frame.Framing
	opts    Options
	peer    *End

	txCh  chan []byte
	rxCh  chan []byte
	ready phy.Signal
	done  chan struct{}

	lock   sync.Mutex
	fault  Fault
	sent   int
	closed bool
}

// New creates two connected ends using framing.
func New(framing frame.Framing, opts Options) (*End, *End) {
	if opts.RxQueueSize <= 0 {
		opts.RxQueueSize = DefaultOptions.RxQueueSize
	}
	a, b := newEnd("a", framing, opts), newEnd("b", framing, opts)
	a.peer, b.peer = b, a
	return a, b
}

func newEnd(name string, framing frame.Framing, opts Options) *End {
	return &End{
		name:    name,
		framing: framing,
		opts:    opts,
		txCh:    make(chan []byte, 1),
		rxCh:    make(chan []byte, opts.RxQueueSize),
		ready:   phy.NewSignal(),
		done:    make(chan struct{}),
	}
}

// SetFault installs a fault applied to every following transmission.
func (e *End) SetFault(f Fault) {
	e.lock.Lock()
	e.fault = f
	e.lock.Unlock()
}

// Sent returns the number of transmissions accepted so far.
func (e *End) Sent() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.sent
}

// Framing implements phy.Adapter.
func (e *End) Framing() frame.Framing {
	return e.framing
}

// TrySend implements phy.Adapter.
func (e *End) TrySend(encoded []byte) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.closed {
		return phy.ErrClosed
	}
	data := append([]byte(nil), encoded...)
	select {
	case e.txCh <- data:
		e.sent++
		return nil
	default:
		return phy.ErrBusy
	}
}

// Received implements phy.Adapter.
func (e *End) Received() <-chan []byte {
	return e.rxCh
}

// Ready implements phy.Adapter.
func (e *End) Ready() <-chan struct{} {
	return e.ready
}

// Run implements phy.Adapter.
func (e *End) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.done:
			return phy.ErrClosed
		case data := <-e.txCh:
			e.lock.Lock()
			fault := e.fault
			e.lock.Unlock()
			if fault != nil {
				data = fault(data)
			}
			if data == nil {
				glog.V(4).Infof("pipe %s: transmission dropped", e.name)
			} else if err := e.transmit(ctx, data); err != nil {
				return err
			}
			e.ready.Notify()
		}
	}
}

func (e *End) transmit(ctx context.Context, data []byte) error {
	for len(data) > 0 {
		n := len(data)
		if e.opts.Chunk > 0 && n > e.opts.Chunk {
			n = e.opts.Chunk
		}
		select {
		case e.peer.rxCh <- data[:n]:
		case <-e.peer.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
		data = data[n:]
	}
	return nil
}

// Close implements phy.Adapter.
func (e *End) Close() error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if !e.closed {
		e.closed = true
		close(e.done)
	}
	return nil
}
