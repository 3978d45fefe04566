package spi

import (
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/robotalks/copro.go/pkg/phy"
)

// Loopback is an in-memory SPI bus. It is the Conn and IRQ of a Host and the
// Peripheral of a Secondary.
type Loopback struct {
	triggers Triggers

	lock    sync.Mutex
	cond    *sync.Cond
	tx, rx  []byte
	armed   bool
	clocked bool
	irq     bool
	closed  bool

	events chan Event
	edges  phy.Signal
}

// NewLoopback creates a bus signaling the secondary with triggers.
func NewLoopback(triggers Triggers) *Loopback {
	l := &Loopback{
		triggers: triggers,
		events:   make(chan Event, 16),
		edges:    phy.NewSignal(),
	}
	l.cond = sync.NewCond(&l.lock)
	return l
}

// Tx implements Conn. It waits until the secondary armed a transaction.
func (l *Loopback) Tx(w, r []byte) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	for !l.armed && !l.closed {
		l.cond.Wait()
	}
	if l.closed {
		return phy.ErrClosed
	}
	l.clocked = true
	l.events <- Event{Trigger: l.triggers.ChipSelect}
	n := copy(r, l.tx)
	for i := n; i < len(r); i++ {
		r[i] = 0
	}
	count := copy(l.rx, w)
	l.armed = false
	l.events <- Event{Trigger: l.triggers.TransferComplete, Count: count}
	l.events <- Event{Trigger: l.triggers.ChipSelectInverted}
	return nil
}

// WaitForEdge implements IRQ.
func (l *Loopback) WaitForEdge(timeout time.Duration) bool {
	select {
	case <-l.edges:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Read implements IRQ, the line is active low.
func (l *Loopback) Read() gpio.Level {
	l.lock.Lock()
	defer l.lock.Unlock()
	return gpio.Level(!l.irq)
}

// Arm implements Peripheral.
func (l *Loopback) Arm(tx, rx []byte) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.tx, l.rx, l.armed, l.clocked = tx, rx, true, false
	l.cond.Broadcast()
	return nil
}

// Load implements Peripheral.
func (l *Loopback) Load(tx []byte) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.clocked || !l.armed {
		return phy.ErrBusy
	}
	l.tx = tx
	return nil
}

// Signal implements Peripheral.
func (l *Loopback) Signal(t Trigger, level bool) error {
	if t != l.triggers.TxAvailability {
		return nil
	}
	l.lock.Lock()
	rising := level && !l.irq
	l.irq = level
	l.lock.Unlock()
	if rising {
		l.edges.Notify()
	}
	return nil
}

// Events implements Peripheral.
func (l *Loopback) Events() <-chan Event {
	return l.events
}

// Close fails pending and future transactions.
func (l *Loopback) Close() error {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.closed = true
	l.cond.Broadcast()
	return nil
}
