// Package phy defines the contract between a link and the physical transport
// carrying its frames.
package phy

import (
	"context"
	"errors"

	"github.com/robotalks/copro.go/pkg/link/frame"
)

var (
	// ErrBusy indicates the adapter cannot take a frame now. The caller keeps
	// the frame and retries after Ready fires.
	ErrBusy = errors.New("adapter busy")
	// ErrClosed indicates the adapter was closed.
	ErrClosed = errors.New("adapter closed")
)

// Adapter moves encoded frames over a physical link.
type Adapter interface {
	// Framing is the wire representation this adapter expects.
	Framing() frame.Framing
	// TrySend hands over an encoded frame without blocking. It returns nil
	// once the adapter owns the data or ErrBusy.
	TrySend(encoded []byte) error
	// Received delivers raw input to be fed into a decoder of Framing.
	Received() <-chan []byte
	// Ready fires after ErrBusy when the adapter may accept again.
	Ready() <-chan struct{}
	// Run drives the adapter until ctx is done or the transport fails.
	Run(ctx context.Context) error
	// Close releases the transport.
	Close() error
}

// Signal is a level-triggered wakeup which never blocks the notifier.
type Signal chan struct{}

// NewSignal creates a Signal.
func NewSignal() Signal {
	return make(Signal, 1)
}

// Notify wakes up one waiter, or the next one if nobody waits.
func (s Signal) Notify() {
	select {
	case s <- struct{}{}:
	default:
	}
}

// Deliver sends data to ch unless ctx is done first.
func Deliver(ctx context.Context, ch chan<- []byte, data []byte) error {
	select {
	case ch <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
