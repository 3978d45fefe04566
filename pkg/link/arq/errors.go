package arq

import "errors"

var (
	// ErrWindowFull indicates the sender window has no free slot.
	ErrWindowFull = errors.New("window full")
	// ErrAckOutOfWindow indicates an acknowledgment for a sequence number never sent.
	ErrAckOutOfWindow = errors.New("acknowledgment out of window")
)
