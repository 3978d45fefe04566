package link

import (
	"errors"
	"fmt"

	"github.com/robotalks/copro.go/pkg/link/arq"
)

var (
	// ErrQueueFull indicates the endpoint transmit queue is full.
	ErrQueueFull = errors.New("queue full")
	// ErrEndpointNotOpen indicates the endpoint is not open.
	ErrEndpointNotOpen = errors.New("endpoint not open")
	// ErrInvalidEndpoint indicates an endpoint id outside the usable range.
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	// ErrEndpointRefused indicates the peer refused to open the endpoint.
	ErrEndpointRefused = errors.New("endpoint refused")
	// ErrOpenTimeout indicates the peer did not answer an open request.
	ErrOpenTimeout = errors.New("open timeout")
	// ErrRetryExhausted indicates a frame was never acknowledged.
	ErrRetryExhausted = errors.New("retry exhausted")
	// ErrSequenceViolation indicates a frame outside the receive window.
	ErrSequenceViolation = errors.New("sequence violation")
	// ErrLinkDesynchronized indicates the link lost synchronization and
	// needs a reset.
	ErrLinkDesynchronized = errors.New("link desynchronized")
	// ErrLinkClosed indicates the link was closed.
	ErrLinkClosed = errors.New("link closed")
	// ErrPayloadTooLarge indicates a payload above the maximum size.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// DeliveryError reports a payload which was not delivered.
type DeliveryError struct {
	Endpoint uint8
	Seq      arq.Seq
	Payload  []byte
	Err      error
}

// Error implements error.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("endpoint %d seq %d: %v", e.Endpoint, e.Seq, e.Err)
}

// Unwrap returns the cause.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

var (
	// ErrLinkReset indicates the endpoint was closed by a link reset.
	ErrLinkReset = errors.New("link reset")
	// ErrClosedByPeer indicates the peer closed the endpoint.
	ErrClosedByPeer = errors.New("closed by peer")
)
