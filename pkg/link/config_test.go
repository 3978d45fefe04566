package link

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/copro.go/pkg/framework"
)

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	testCases := []struct {
		name   string
		modify func(*Config)
		fields []string
	}{
		{"zero queues", func(c *Config) { c.RxQueueSize, c.TxQueueSize = 0, 0 }, []string{"rx queue size", "tx queue size"}},
		{"window too large", func(c *Config) { c.TxQueueSize = 200 }, []string{"queue size"}},
		{"ack delay", func(c *Config) { c.AckDelay = c.RetryTimeout }, []string{"ack delay"}},
		{"endpoints", func(c *Config) { c.Limits.MaxEndpoints = 300 }, []string{"max endpoints"}},
		{"payload", func(c *Config) { c.Limits.MaxPayload = 0 }, []string{"max payload"}},
		{"negatives", func(c *Config) {
			c.MaxRetries = -1
			c.CorruptThreshold = -1
			c.TickInterval = -time.Second
		}, []string{"max retries", "corrupt threshold", "tick interval"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := DefaultConfig()
			tc.modify(&c)
			err := c.Validate()
			require.Error(t, err)
			agg, ok := err.(*fx.AggregatedError)
			require.True(t, ok)
			var fields []string
			for _, e := range agg.Errors {
				fields = append(fields, e.(*ConfigError).Field)
			}
			require.Equal(t, tc.fields, fields)
		})
	}
}
