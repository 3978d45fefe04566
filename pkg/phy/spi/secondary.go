package spi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/copro.go/pkg/link/frame"
	"github.com/robotalks/copro.go/pkg/phy"
)

// Event is an input trigger edge reported by a Peripheral.
type Event struct {
	Trigger Trigger
	// Count is the number of bytes transferred, reported with TransferComplete.
	Count int
}

// Peripheral is the SPI controller in secondary mode.
type Peripheral interface {
	// Arm prepares the buffers of the next transaction.
	Arm(tx, rx []byte) error
	// Load replaces the transmit buffer of the prepared transaction. It fails
	// with phy.ErrBusy once the host started clocking that transaction.
	Load(tx []byte) error
	// Signal drives an output trigger.
	Signal(t Trigger, level bool) error
	// Events delivers input trigger edges in order.
	Events() <-chan Event
}

// Secondary implements phy.Adapter in SPI secondary mode. A receive buffer
// stays armed at all times and every transaction ends on chip select
// deassertion.
type Secondary struct {
	periph   Peripheral
	triggers Triggers
	framing  *frame.Transaction

	idle   []byte
	rxBuf  []byte
	txCh   chan []byte
	rxCh   chan []byte
	ready  phy.Signal
	done   chan struct{}
	busy   int32
	loaded bool
	held   []byte

	closeOnce sync.Once
}

// NewSecondary creates a secondary adapter. The triggers must be valid.
func NewSecondary(periph Peripheral, triggers Triggers, limits frame.Limits, rxQueueSize int) (*Secondary, error) {
	if err := triggers.Validate(); err != nil {
		return nil, err
	}
	if rxQueueSize <= 0 {
		rxQueueSize = 1
	}
	framing := frame.NewTransaction(limits)
	return &Secondary{
		periph:   periph,
		triggers: triggers,
		framing:  framing,
		idle:     make([]byte, framing.Size()),
		rxBuf:    make([]byte, framing.Size()),
		txCh:     make(chan []byte, 1),
		rxCh:     make(chan []byte, rxQueueSize),
		ready:    phy.NewSignal(),
		done:     make(chan struct{}),
	}, nil
}

// Framing implements phy.Adapter.
func (s *Secondary) Framing() frame.Framing {
	return s.framing
}

// TrySend implements phy.Adapter. It is busy while a loaded frame has not
// been clocked out.
func (s *Secondary) TrySend(encoded []byte) error {
	select {
	case <-s.done:
		return phy.ErrClosed
	default:
	}
	if len(encoded) > s.framing.Size() {
		return fmt.Errorf("%d bytes exceed transaction size %d", len(encoded), s.framing.Size())
	}
	if !atomic.CompareAndSwapInt32(&s.busy, 0, 1) {
		return phy.ErrBusy
	}
	buf := make([]byte, s.framing.Size())
	copy(buf, encoded)
	s.txCh <- buf
	return nil
}

// Received implements phy.Adapter.
func (s *Secondary) Received() <-chan []byte {
	return s.rxCh
}

// Ready implements phy.Adapter.
func (s *Secondary) Ready() <-chan struct{} {
	return s.ready
}

// Run implements phy.Adapter.
func (s *Secondary) Run(ctx context.Context) error {
	if err := s.periph.Arm(s.idle, s.rxBuf); err != nil {
		return fmt.Errorf("arm: %w", err)
	}
	events := s.periph.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return phy.ErrClosed
		case buf := <-s.txCh:
			if err := s.load(buf); err != nil {
				return err
			}
		case ev, ok := <-events:
			if !ok {
				return phy.ErrClosed
			}
			if err := s.handleEvent(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (s *Secondary) load(buf []byte) error {
	err := s.periph.Load(buf)
	if errors.Is(err, phy.ErrBusy) {
		glog.V(4).Info("spi: transaction in progress, frame held")
		s.held = buf
		return nil
	}
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	s.loaded = true
	return s.periph.Signal(s.triggers.TxAvailability, true)
}

func (s *Secondary) handleEvent(ctx context.Context, ev Event) error {
	switch ev.Trigger {
	case s.triggers.ChipSelect:
		glog.V(4).Info("spi: chip select asserted")
	case s.triggers.TransferComplete:
		glog.V(4).Infof("spi: transfer complete, %d bytes", ev.Count)
	case s.triggers.ChipSelectInverted:
		return s.finish(ctx)
	default:
		glog.Warningf("spi: unexpected trigger %d", ev.Trigger)
	}
	return nil
}

// finish hands the received transaction over and arms the next one.
func (s *Secondary) finish(ctx context.Context) error {
	data := append([]byte(nil), s.rxBuf...)
	sent := s.loaded
	next := s.idle
	s.loaded = false
	if s.held != nil {
		next, s.held, s.loaded = s.held, nil, true
	}
	if err := s.periph.Arm(next, s.rxBuf); err != nil {
		return fmt.Errorf("arm: %w", err)
	}
	if err := s.periph.Signal(s.triggers.TxAvailability, s.loaded); err != nil {
		return fmt.Errorf("signal: %w", err)
	}
	if sent {
		atomic.StoreInt32(&s.busy, 0)
		s.ready.Notify()
	}
	if frame.IsIdle(data) {
		return nil
	}
	return phy.Deliver(ctx, s.rxCh, data)
}

// Close implements phy.Adapter.
func (s *Secondary) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}
