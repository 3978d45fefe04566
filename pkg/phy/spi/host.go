package spi

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/robotalks/copro.go/pkg/link/frame"
	"github.com/robotalks/copro.go/pkg/phy"
)

// Conn performs full-duplex transactions, spi.Conn satisfies it.
type Conn interface {
	Tx(w, r []byte) error
}

// IRQ is the line the secondary pulls low while it has a frame loaded,
// gpio.PinIn satisfies it.
type IRQ interface {
	WaitForEdge(timeout time.Duration) bool
	Read() gpio.Level
}

// HostConfig is the host side setup.
type HostConfig struct {
	// Port is the spireg port name, empty for the first one.
	Port string
	// Speed is the clock frequency.
	Speed physic.Frequency
	// IRQ is the gpioreg pin name, empty to poll.
	IRQ string
	// PollInterval is the idle time between transactions without IRQ edges.
	PollInterval time.Duration
	// RxQueueSize is the capacity of the receive channel.
	RxQueueSize int
}

// DefaultHostConfig is the default host setup.
var DefaultHostConfig = HostConfig{
	Speed:        physic.MegaHertz,
	PollInterval: 10 * time.Millisecond,
	RxQueueSize:  16,
}

// Host implements phy.Adapter in SPI controller mode. Every transaction has
// the fixed transaction size, carrying a queued frame or zeros.
type Host struct {
	conn    Conn
	irq     IRQ
	closer  io.Closer
	config  HostConfig
	framing *frame.Transaction

	txCh  chan []byte
	rxCh  chan []byte
	irqCh phy.Signal
	ready phy.Signal
	done  chan struct{}
	busy  int32

	closeOnce sync.Once
}

// OpenHost opens the SPI port and the IRQ pin through periph.io.
func OpenHost(config HostConfig, limits frame.Limits) (*Host, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph init: %w", err)
	}
	port, err := spireg.Open(config.Port)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", config.Port, err)
	}
	conn, err := port.Connect(config.Speed, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connect spi %q: %w", config.Port, err)
	}
	var irq IRQ
	if config.IRQ != "" {
		pin := gpioreg.ByName(config.IRQ)
		if pin == nil {
			port.Close()
			return nil, fmt.Errorf("unknown gpio %q", config.IRQ)
		}
		if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
			port.Close()
			return nil, fmt.Errorf("setup gpio %q: %w", config.IRQ, err)
		}
		irq = pin
	}
	glog.Infof("spi %s opened at %s, irq %q", port, config.Speed, config.IRQ)
	return NewHost(conn, irq, port, config, limits), nil
}

// NewHost creates a host adapter. irq and closer are optional.
func NewHost(conn Conn, irq IRQ, closer io.Closer, config HostConfig, limits frame.Limits) *Host {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultHostConfig.PollInterval
	}
	if config.RxQueueSize <= 0 {
		config.RxQueueSize = DefaultHostConfig.RxQueueSize
	}
	return &Host{
		conn:    conn,
		irq:     irq,
		closer:  closer,
		config:  config,
		framing: frame.NewTransaction(limits),
		txCh:    make(chan []byte, 1),
		rxCh:    make(chan []byte, config.RxQueueSize),
		irqCh:   phy.NewSignal(),
		ready:   phy.NewSignal(),
		done:    make(chan struct{}),
	}
}

// Framing implements phy.Adapter.
func (h *Host) Framing() frame.Framing {
	return h.framing
}

// TrySend implements phy.Adapter.
func (h *Host) TrySend(encoded []byte) error {
	select {
	case <-h.done:
		return phy.ErrClosed
	default:
	}
	if len(encoded) > h.framing.Size() {
		return fmt.Errorf("%d bytes exceed transaction size %d", len(encoded), h.framing.Size())
	}
	if !atomic.CompareAndSwapInt32(&h.busy, 0, 1) {
		return phy.ErrBusy
	}
	h.txCh <- encoded
	return nil
}

// Received implements phy.Adapter.
func (h *Host) Received() <-chan []byte {
	return h.rxCh
}

// Ready implements phy.Adapter.
func (h *Host) Ready() <-chan struct{} {
	return h.ready
}

// Run implements phy.Adapter.
func (h *Host) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if h.irq != nil {
		go h.watchIRQ(ctx)
	}
	ticker := time.NewTicker(h.config.PollInterval)
	defer ticker.Stop()
	for {
		var w []byte
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.done:
			return phy.ErrClosed
		case w = <-h.txCh:
		case <-h.irqCh:
		case <-ticker.C:
		}
		for {
			if err := h.transact(ctx, w); err != nil {
				return err
			}
			if !h.pending() {
				break
			}
			w = nil
			select {
			case w = <-h.txCh:
			default:
			}
		}
	}
}

func (h *Host) transact(ctx context.Context, w []byte) error {
	size := h.framing.Size()
	tx, rx := make([]byte, size), make([]byte, size)
	copy(tx, w)
	if err := h.conn.Tx(tx, rx); err != nil {
		return fmt.Errorf("spi transaction: %w", err)
	}
	if w != nil {
		atomic.StoreInt32(&h.busy, 0)
		h.ready.Notify()
	}
	if frame.IsIdle(rx) {
		return nil
	}
	return phy.Deliver(ctx, h.rxCh, rx)
}

// pending checks if the secondary holds the IRQ line low.
func (h *Host) pending() bool {
	return h.irq != nil && h.irq.Read() == gpio.Low
}

func (h *Host) watchIRQ(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		default:
		}
		if h.irq.WaitForEdge(h.config.PollInterval) {
			h.irqCh.Notify()
		}
	}
}

// Close implements phy.Adapter.
func (h *Host) Close() (err error) {
	h.closeOnce.Do(func() {
		close(h.done)
		if h.closer != nil {
			err = h.closer.Close()
		}
	})
	return
}
