package config

import (
	"fmt"
	"time"

	"github.com/pelletier/go-toml"
	"periph.io/x/conn/v3/physic"

	fx "github.com/robotalks/copro.go/pkg/framework"
	"github.com/robotalks/copro.go/pkg/phy/spi"
	"github.com/robotalks/copro.go/pkg/phy/uart"
)

// LoadFile loads a TOML configuration file over c. Keys not present keep
// their current values.
func (c *Config) LoadFile(file string) error {
	tree, err := toml.LoadFile(file)
	if err != nil {
		return fmt.Errorf("load config %s: %w", file, err)
	}
	return c.Load(tree)
}

// LoadString loads TOML content over c.
func (c *Config) LoadString(content string) error {
	tree, err := toml.Load(content)
	if err != nil {
		return err
	}
	return c.Load(tree)
}

// Load loads a parsed TOML tree over c.
func (c *Config) Load(tree *toml.Tree) error {
	r := &reader{tree: tree}
	r.String("name", &c.Name)
	r.String("description", &c.Description)
	r.String("phy", &c.Phy)

	r.String("uart.device", &c.UART.Device)
	r.Int("uart.baud", &c.UART.Baud)
	var fc string
	if r.String("uart.flow_control", &fc) {
		parsed, err := uart.ParseFlowControl(fc)
		if err != nil {
			r.errs.Add(fmt.Errorf("uart.flow_control: %w", err))
		}
		c.UART.FlowControl = parsed
	}
	r.Duration("uart.read_timeout", &c.UART.ReadTimeout)
	r.Int("uart.rx_queue_size", &c.UART.RxQueueSize)

	r.String("spi.port", &c.SPI.Port)
	r.Frequency("spi.speed", &c.SPI.Speed)
	r.String("spi.irq", &c.SPI.IRQ)
	r.Duration("spi.poll_interval", &c.SPI.PollInterval)
	r.Int("spi.rx_queue_size", &c.SPI.RxQueueSize)
	r.Trigger("spi.triggers.tx_availability", &c.Triggers.TxAvailability)
	r.Trigger("spi.triggers.chip_select", &c.Triggers.ChipSelect)
	r.Trigger("spi.triggers.chip_select_inverted", &c.Triggers.ChipSelectInverted)
	r.Trigger("spi.triggers.transfer_complete", &c.Triggers.TransferComplete)

	r.Int("link.max_payload", &c.Link.Limits.MaxPayload)
	r.Int("link.max_endpoints", &c.Link.Limits.MaxEndpoints)
	r.Int("link.rx_queue_size", &c.Link.RxQueueSize)
	r.Int("link.tx_queue_size", &c.Link.TxQueueSize)
	r.Duration("link.retry_timeout", &c.Link.RetryTimeout)
	r.Int("link.max_retries", &c.Link.MaxRetries)
	r.Duration("link.ack_delay", &c.Link.AckDelay)
	r.Duration("link.handshake_interval", &c.Link.HandshakeInterval)
	r.Int("link.max_handshake_attempts", &c.Link.MaxHandshakeAttempts)
	r.Duration("link.open_timeout", &c.Link.OpenTimeout)
	r.Int("link.sequence_violation_threshold", &c.Link.SequenceViolationThreshold)
	r.Int("link.corrupt_threshold", &c.Link.CorruptThreshold)
	r.Duration("link.tick_interval", &c.Link.TickInterval)

	r.String("mqtt.url", &c.MQTTURL)
	r.Bool("mqtt.announce", &c.Announce)
	r.Duration("retry.interval", &c.Retry.Interval)
	r.Int("retry.attempts", &c.Retry.Attempts)

	if raw := tree.Get("bridges"); raw != nil {
		tables, ok := raw.([]*toml.Tree)
		if !ok {
			r.errs.Add(fmt.Errorf("bridges: expect array of tables"))
		}
		for n, table := range tables {
			br := &reader{tree: table, prefix: fmt.Sprintf("bridges[%d].", n)}
			var b Bridge
			var id int
			br.String("kind", &b.Kind)
			br.String("address", &b.Address)
			if br.Int("endpoint", &id) {
				if id < 0 || id > 0xff {
					br.errs.Add(fmt.Errorf("%sendpoint: %d out of range", br.prefix, id))
				}
				b.Endpoint = uint8(id)
			}
			r.errs.Add(br.errs.Errors...)
			c.Bridges = append(c.Bridges, b)
		}
	}
	return r.errs.Aggregate()
}

// reader fetches typed values from a TOML tree, only overwriting a
// destination when the key is present.
type reader struct {
	tree   *toml.Tree
	prefix string
	errs   fx.AggregatedError
}

func (r *reader) get(key string) interface{} {
	return r.tree.Get(key)
}

func (r *reader) typeErr(key string, val interface{}, expect string) {
	r.errs.Add(fmt.Errorf("%s%s: expect %s, got %T", r.prefix, key, expect, val))
}

func (r *reader) String(key string, dst *string) bool {
	val := r.get(key)
	if val == nil {
		return false
	}
	s, ok := val.(string)
	if !ok {
		r.typeErr(key, val, "string")
		return false
	}
	*dst = s
	return true
}

func (r *reader) Int(key string, dst *int) bool {
	val := r.get(key)
	if val == nil {
		return false
	}
	n, ok := val.(int64)
	if !ok {
		r.typeErr(key, val, "integer")
		return false
	}
	*dst = int(n)
	return true
}

func (r *reader) Bool(key string, dst *bool) bool {
	val := r.get(key)
	if val == nil {
		return false
	}
	b, ok := val.(bool)
	if !ok {
		r.typeErr(key, val, "boolean")
		return false
	}
	*dst = b
	return true
}

// Duration accepts a duration string like "100ms" or an integer of
// milliseconds.
func (r *reader) Duration(key string, dst *time.Duration) bool {
	val := r.get(key)
	switch v := val.(type) {
	case nil:
		return false
	case int64:
		*dst = time.Duration(v) * time.Millisecond
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			r.errs.Add(fmt.Errorf("%s%s: %w", r.prefix, key, err))
			return false
		}
		*dst = d
	default:
		r.typeErr(key, val, "duration")
		return false
	}
	return true
}

// Frequency accepts a string like "1MHz" or an integer of Hz.
func (r *reader) Frequency(key string, dst *physic.Frequency) bool {
	val := r.get(key)
	switch v := val.(type) {
	case nil:
		return false
	case int64:
		*dst = physic.Frequency(v) * physic.Hertz
	case string:
		var f physic.Frequency
		if err := f.Set(v); err != nil {
			r.errs.Add(fmt.Errorf("%s%s: %w", r.prefix, key, err))
			return false
		}
		*dst = f
	default:
		r.typeErr(key, val, "frequency")
		return false
	}
	return true
}

func (r *reader) Trigger(key string, dst *spi.Trigger) bool {
	var n int
	if !r.Int(key, &n) {
		return false
	}
	if n < 0 || n > 0xff {
		r.errs.Add(fmt.Errorf("%s%s: %d out of range", r.prefix, key, n))
		return false
	}
	*dst = spi.Trigger(n)
	return true
}
