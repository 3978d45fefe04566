package arq

import "time"

// Verdict classifies a received sequence number.
type Verdict int

// Verdicts.
const (
	// InOrder is the next expected sequence number.
	InOrder Verdict = iota
	// Duplicate was already received.
	Duplicate
	// Ahead is within the window but not next, it is discarded and the
	// repeated acknowledgment makes the peer resend what is missing.
	Ahead
	// OutOfWindow is neither recently received nor within the window.
	OutOfWindow
)

func (v Verdict) String() string {
	switch v {
	case InOrder:
		return "in-order"
	case Duplicate:
		return "duplicate"
	case Ahead:
		return "ahead"
	case OutOfWindow:
		return "out-of-window"
	}
	return "unknown"
}

// Receiver is the receive side of a sliding window with strict in-order
// delivery.
type Receiver struct {
	expected Seq
	window   int

	ackDue bool
	ackAt  time.Time
}

// NewReceiver creates a Receiver expecting initial first.
func NewReceiver(window int, initial Seq) *Receiver {
	if window < 1 {
		window = 1
	} else if window > MaxWindow {
		window = MaxWindow
	}
	return &Receiver{expected: initial, window: window}
}

// Check classifies seq without changing state.
func (r *Receiver) Check(seq Seq) Verdict {
	d := r.expected.Distance(seq)
	switch {
	case d == 0:
		return InOrder
	case d < r.window:
		return Ahead
	case SeqSpace-d <= r.window:
		return Duplicate
	}
	return OutOfWindow
}

// Advance moves past the expected sequence number after its payload was
// delivered.
func (r *Receiver) Advance() {
	r.expected = r.expected.Next()
}

// AckNumber returns the next expected sequence number, which acknowledges
// everything before it.
func (r *Receiver) AckNumber() Seq {
	return r.expected
}

// ScheduleAck requests an acknowledgment to be sent no later than at.
func (r *Receiver) ScheduleAck(at time.Time) {
	if !r.ackDue || at.Before(r.ackAt) {
		r.ackDue, r.ackAt = true, at
	}
}

// AckPending checks if an acknowledgment is scheduled.
func (r *Receiver) AckPending() bool {
	return r.ackDue
}

// AckDue checks if a scheduled acknowledgment is due at now.
func (r *Receiver) AckDue(now time.Time) bool {
	return r.ackDue && !now.Before(r.ackAt)
}

// AckSent clears the scheduled acknowledgment.
func (r *Receiver) AckSent() {
	r.ackDue = false
}

// Reset restarts the receiver expecting initial.
func (r *Receiver) Reset(initial Seq) {
	r.expected, r.ackDue = initial, false
}

// Accept classifies seq and advances past it when it is in order.
func (r *Receiver) Accept(seq Seq) Verdict {
	v := r.Check(seq)
	if v == InOrder {
		r.Advance()
	}
	return v
}
