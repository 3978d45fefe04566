// Package uart carries byte-stream framed links over a serial port.
package uart

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"

	fx "github.com/robotalks/copro.go/pkg/framework"
	"github.com/robotalks/copro.go/pkg/link/frame"
	"github.com/robotalks/copro.go/pkg/phy"
)

// FlowControl selects hardware flow control.
type FlowControl int

// Flow control modes.
const (
	FlowNone FlowControl = iota
	FlowRTSCTS
)

func (f FlowControl) String() string {
	if f == FlowRTSCTS {
		return "rtscts"
	}
	return "none"
}

// ParseFlowControl parses "none" or "rtscts".
func ParseFlowControl(s string) (FlowControl, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return FlowNone, nil
	case "rtscts":
		return FlowRTSCTS, nil
	}
	return FlowNone, fmt.Errorf("unknown flow control %q", s)
}

// Config is the serial port setup.
type Config struct {
	Device      string
	Baud        int
	FlowControl FlowControl
	// ReadTimeout bounds a single read so the reader notices cancellation.
	ReadTimeout time.Duration
	// RxQueueSize is the capacity of the receive channel.
	RxQueueSize int
}

// DefaultConfig is the default serial port setup.
var DefaultConfig = Config{
	Baud:        115200,
	ReadTimeout: 100 * time.Millisecond,
	RxQueueSize: 16,
}

// Port is the part of serial.Port the adapter uses.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
	SetRTS(rts bool) error
	GetModemStatusBits() (*serial.ModemStatusBits, error)
}

const ctsPollInterval = time.Millisecond

// Adapter implements phy.Adapter on a serial port.
type Adapter struct {
	port    Port
	config  Config
	framing *frame.Stream

	txCh  chan []byte
	rxCh  chan []byte
	ready phy.Signal
	done  chan struct{}

	busy      int32
	closeOnce sync.Once
}

// Open opens the serial device in 8N1 mode.
func Open(config Config, limits frame.Limits) (*Adapter, error) {
	mode := &serial.Mode{
		BaudRate: config.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(config.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", config.Device, err)
	}
	a, err := New(port, config, limits)
	if err != nil {
		port.Close()
		return nil, err
	}
	glog.Infof("uart %s opened at %d baud, flow control %s", config.Device, config.Baud, config.FlowControl)
	return a, nil
}

// New creates an adapter on an opened port.
func New(port Port, config Config, limits frame.Limits) (*Adapter, error) {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = DefaultConfig.ReadTimeout
	}
	if config.RxQueueSize <= 0 {
		config.RxQueueSize = DefaultConfig.RxQueueSize
	}
	if err := port.SetReadTimeout(config.ReadTimeout); err != nil {
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	if config.FlowControl == FlowRTSCTS {
		if err := port.SetRTS(true); err != nil {
			return nil, fmt.Errorf("assert RTS: %w", err)
		}
	}
	return &Adapter{
		port:    port,
		config:  config,
		framing: frame.NewStream(limits),
		txCh:    make(chan []byte, 1),
		rxCh:    make(chan []byte, config.RxQueueSize),
		ready:   phy.NewSignal(),
		done:    make(chan struct{}),
	}, nil
}

// Framing implements phy.Adapter.
func (a *Adapter) Framing() frame.Framing {
	return a.framing
}

// TrySend implements phy.Adapter. Only one frame is in flight at a time.
func (a *Adapter) TrySend(encoded []byte) error {
	select {
	case <-a.done:
		return phy.ErrClosed
	default:
	}
	if !atomic.CompareAndSwapInt32(&a.busy, 0, 1) {
		return phy.ErrBusy
	}
	a.txCh <- encoded
	return nil
}

// Received implements phy.Adapter.
func (a *Adapter) Received() <-chan []byte {
	return a.rxCh
}

// Ready implements phy.Adapter.
func (a *Adapter) Ready() <-chan struct{} {
	return a.ready
}

// Run implements phy.Adapter. The port is closed when Run returns.
func (a *Adapter) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 2)
	go func() {
		errCh <- a.writeLoop(ctx)
	}()
	go func() {
		errCh <- a.readLoop(ctx)
	}()
	return fx.RunWithContextCloser(ctx, a, func() error {
		return <-errCh
	})
}

func (a *Adapter) readLoop(ctx context.Context) error {
	buf := make([]byte, a.framing.Limits().MaxFrameSize())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.done:
			return phy.ErrClosed
		default:
		}
		n, err := a.port.Read(buf)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if n == 0 {
			continue
		}
		chunk := append([]byte(nil), buf[:n]...)
		select {
		case a.rxCh <- chunk:
			continue
		default:
		}
		if err := a.throttle(ctx, chunk); err != nil {
			return err
		}
	}
}

// throttle deasserts RTS while the receive channel is full.
func (a *Adapter) throttle(ctx context.Context, chunk []byte) error {
	flow := a.config.FlowControl == FlowRTSCTS
	if flow {
		glog.V(4).Info("uart: receive queue full, deassert RTS")
		if err := a.port.SetRTS(false); err != nil {
			return fmt.Errorf("deassert RTS: %w", err)
		}
	}
	if err := phy.Deliver(ctx, a.rxCh, chunk); err != nil {
		return err
	}
	if flow {
		if err := a.port.SetRTS(true); err != nil {
			return fmt.Errorf("assert RTS: %w", err)
		}
	}
	return nil
}

func (a *Adapter) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.done:
			return phy.ErrClosed
		case data := <-a.txCh:
			if err := a.waitCTS(ctx); err != nil {
				return err
			}
			if _, err := a.port.Write(data); err != nil {
				return fmt.Errorf("write: %w", err)
			}
			atomic.StoreInt32(&a.busy, 0)
			a.ready.Notify()
		}
	}
}

func (a *Adapter) waitCTS(ctx context.Context) error {
	if a.config.FlowControl != FlowRTSCTS {
		return nil
	}
	var ticker *time.Ticker
	for {
		bits, err := a.port.GetModemStatusBits()
		if err != nil {
			return fmt.Errorf("modem status: %w", err)
		}
		if bits.CTS {
			break
		}
		if ticker == nil {
			glog.V(4).Info("uart: CTS deasserted, holding transmission")
			ticker = time.NewTicker(ctsPollInterval)
			defer ticker.Stop()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close implements phy.Adapter.
func (a *Adapter) Close() (err error) {
	a.closeOnce.Do(func() {
		close(a.done)
		err = a.port.Close()
	})
	return
}
