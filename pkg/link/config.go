package link

import (
	"fmt"
	"time"

	fx "github.com/robotalks/copro.go/pkg/framework"
	"github.com/robotalks/copro.go/pkg/link/arq"
	"github.com/robotalks/copro.go/pkg/link/frame"
)

// Config defines the link parameters. Both peers must agree on Limits.
type Config struct {
	Limits frame.Limits
	// RxQueueSize is the receive queue depth per endpoint.
	RxQueueSize int
	// TxQueueSize is the transmit queue depth per endpoint, also the window.
	TxQueueSize int
	// RetryTimeout is the time before an unacknowledged frame is resent.
	RetryTimeout time.Duration
	// MaxRetries is the number of retransmissions before a frame fails.
	MaxRetries int
	// AckDelay is how long an acknowledgment waits for a frame to ride on.
	AckDelay time.Duration
	// HandshakeInterval is the time between RESET attempts.
	HandshakeInterval time.Duration
	// MaxHandshakeAttempts degrades the link after that many unanswered
	// RESETs, zero retries forever.
	MaxHandshakeAttempts int
	// OpenTimeout fails an endpoint open request not answered in time.
	OpenTimeout time.Duration
	// SequenceViolationThreshold is the number of consecutive out of window
	// frames tolerated before the link degrades.
	SequenceViolationThreshold int
	// CorruptThreshold is the number of consecutive corrupt frames tolerated
	// before the link degrades, zero never degrades.
	CorruptThreshold int
	// TickInterval is the timer resolution for retries and acknowledgments.
	TickInterval time.Duration
}

// DefaultConfig returns the default link parameters.
func DefaultConfig() Config {
	return Config{
		Limits:                     frame.DefaultLimits,
		RxQueueSize:                10,
		TxQueueSize:                10,
		RetryTimeout:               100 * time.Millisecond,
		MaxRetries:                 5,
		AckDelay:                   5 * time.Millisecond,
		HandshakeInterval:          200 * time.Millisecond,
		OpenTimeout:                time.Second,
		SequenceViolationThreshold: 8,
		CorruptThreshold:           64,
		TickInterval:               5 * time.Millisecond,
	}
}

// ConfigError reports an invalid parameter.
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements error.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func positive(errs *fx.AggregatedError, field string, v int64) {
	if v <= 0 {
		errs.Add(&ConfigError{Field: field, Reason: fmt.Sprintf("%d is not positive", v)})
	}
}

// Validate checks all parameters and reports every problem found.
func (c Config) Validate() error {
	var errs fx.AggregatedError
	positive(&errs, "max payload", int64(c.Limits.MaxPayload))
	if c.Limits.MaxPayload > 0xffff {
		errs.Add(&ConfigError{Field: "max payload", Reason: "exceeds the 16-bit length field"})
	}
	positive(&errs, "max endpoints", int64(c.Limits.MaxEndpoints))
	if c.Limits.MaxEndpoints > 256 {
		errs.Add(&ConfigError{Field: "max endpoints", Reason: "exceeds the 8-bit endpoint id"})
	}
	positive(&errs, "rx queue size", int64(c.RxQueueSize))
	positive(&errs, "tx queue size", int64(c.TxQueueSize))
	if c.TxQueueSize > arq.MaxWindow || c.RxQueueSize > arq.MaxWindow {
		errs.Add(&ConfigError{Field: "queue size", Reason: fmt.Sprintf("exceeds %d", arq.MaxWindow)})
	}
	positive(&errs, "retry timeout", int64(c.RetryTimeout))
	if c.MaxRetries < 0 {
		errs.Add(&ConfigError{Field: "max retries", Reason: "negative"})
	}
	if c.AckDelay < 0 {
		errs.Add(&ConfigError{Field: "ack delay", Reason: "negative"})
	} else if c.AckDelay >= c.RetryTimeout && c.RetryTimeout > 0 {
		errs.Add(&ConfigError{Field: "ack delay", Reason: "not shorter than retry timeout"})
	}
	positive(&errs, "handshake interval", int64(c.HandshakeInterval))
	if c.MaxHandshakeAttempts < 0 {
		errs.Add(&ConfigError{Field: "max handshake attempts", Reason: "negative"})
	}
	positive(&errs, "open timeout", int64(c.OpenTimeout))
	if c.SequenceViolationThreshold < 0 {
		errs.Add(&ConfigError{Field: "sequence violation threshold", Reason: "negative"})
	}
	if c.CorruptThreshold < 0 {
		errs.Add(&ConfigError{Field: "corrupt threshold", Reason: "negative"})
	}
	positive(&errs, "tick interval", int64(c.TickInterval))
	return errs.Aggregate()
}
