package link

import "context"

// State is the link state.
type State int

// Link states.
const (
	StateReset State = iota
	StateHandshake
	StateEstablished
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateReset:
		return "reset"
	case StateHandshake:
		return "handshake"
	case StateEstablished:
		return "established"
	case StateDegraded:
		return "degraded"
	}
	return "unknown"
}

// EndpointState is the state of an endpoint.
type EndpointState int

// Endpoint states.
const (
	EndpointClosed EndpointState = iota
	EndpointOpening
	EndpointOpen
	EndpointError
)

func (s EndpointState) String() string {
	switch s {
	case EndpointClosed:
		return "closed"
	case EndpointOpening:
		return "opening"
	case EndpointOpen:
		return "open"
	case EndpointError:
		return "error"
	}
	return "unknown"
}

// StateNotifier is called when the link state changed.
type StateNotifier interface {
	StateChanged(context.Context, State)
}

// StateChangedFunc is func type of StateNotifier.
type StateChangedFunc func(context.Context, State)

// StateChanged implements StateNotifier.
func (f StateChangedFunc) StateChanged(ctx context.Context, state State) {
	f(ctx, state)
}

// Stats are link counters.
type Stats struct {
	FramesIn           uint64
	FramesOut          uint64
	BytesIn            uint64
	BytesOut           uint64
	Retransmits        uint64
	Corrupt            uint64
	SequenceViolations uint64
	RxDropped          uint64
	AcksSent           uint64
	Resets             uint64
}
