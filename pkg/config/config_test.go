package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/robotalks/copro.go/pkg/link"
	"github.com/robotalks/copro.go/pkg/phy/spi"
	"github.com/robotalks/copro.go/pkg/phy/uart"
)

func testConfig() *Config {
	conf := *Default()
	conf.Name = "uno"
	conf.Phy = PhyUART
	conf.UART.Device = "/dev/ttyACM0"
	conf.MQTTURL = "mqtt://localhost:1883/copro/"
	conf.Bridges = nil
	return &conf
}

func TestParseBridge(t *testing.T) {
	b, err := ParseBridge("stream:1@127.0.0.1:7001")
	require.NoError(t, err)
	require.Equal(t, Bridge{Kind: BridgeStream, Endpoint: 1, Address: "127.0.0.1:7001"}, b)
	require.Equal(t, "stream:1@127.0.0.1:7001", b.String())

	b, err = ParseBridge("stream:2@unix:/run/copro.sock")
	require.NoError(t, err)
	require.Equal(t, Bridge{Kind: BridgeStream, Endpoint: 2, Address: "unix:/run/copro.sock"}, b)

	b, err = ParseBridge("mqtt:3")
	require.NoError(t, err)
	require.Equal(t, Bridge{Kind: BridgeMQTT, Endpoint: 3}, b)

	for _, s := range []string{"mqtt", "mqtt:x", "stream:256@:1"} {
		_, err = ParseBridge(s)
		require.Error(t, err, s)
	}
}

const sample = `
name = "arm"
description = "arm controller"
phy = "spi-host"

[uart]
device = "/dev/ttyUSB0"
baud = 921600
flow_control = "rtscts"
read_timeout = "50ms"

[spi]
port = "/dev/spidev0.0"
speed = "4MHz"
irq = "GPIO25"
poll_interval = 20

[spi.triggers]
tx_availability = 0
chip_select = 1
chip_select_inverted = 2
transfer_complete = 3

[link]
max_payload = 128
rx_queue_size = 16
tx_queue_size = 12
retry_timeout = "250ms"
max_retries = 8
open_timeout = "2s"

[mqtt]
url = "mqtt://broker:1883/lab/"
announce = true

[retry]
interval = "5ms"
attempts = 20

[[bridges]]
kind = "stream"
endpoint = 1
address = ":7001"

[[bridges]]
kind = "mqtt"
endpoint = 2
`

func TestLoadString(t *testing.T) {
	conf := testConfig()
	require.NoError(t, conf.LoadString(sample))
	require.Equal(t, "arm", conf.Name)
	require.Equal(t, "arm controller", conf.Description)
	require.Equal(t, PhySPIHost, conf.Phy)
	require.Equal(t, uart.Config{
		Device:      "/dev/ttyUSB0",
		Baud:        921600,
		FlowControl: uart.FlowRTSCTS,
		ReadTimeout: 50 * time.Millisecond,
		RxQueueSize: uart.DefaultConfig.RxQueueSize,
	}, conf.UART)
	require.Equal(t, "/dev/spidev0.0", conf.SPI.Port)
	require.Equal(t, 4*physic.MegaHertz, conf.SPI.Speed)
	require.Equal(t, "GPIO25", conf.SPI.IRQ)
	require.Equal(t, 20*time.Millisecond, conf.SPI.PollInterval)
	require.Equal(t, spi.Triggers{TxAvailability: 0, ChipSelect: 1, ChipSelectInverted: 2, TransferComplete: 3}, conf.Triggers)
	require.Equal(t, 128, conf.Link.Limits.MaxPayload)
	require.Equal(t, link.DefaultConfig().Limits.MaxEndpoints, conf.Link.Limits.MaxEndpoints)
	require.Equal(t, 16, conf.Link.RxQueueSize)
	require.Equal(t, 12, conf.Link.TxQueueSize)
	require.Equal(t, 250*time.Millisecond, conf.Link.RetryTimeout)
	require.Equal(t, 8, conf.Link.MaxRetries)
	require.Equal(t, 2*time.Second, conf.Link.OpenTimeout)
	require.Equal(t, link.DefaultConfig().AckDelay, conf.Link.AckDelay)
	require.Equal(t, "mqtt://broker:1883/lab/", conf.MQTTURL)
	require.True(t, conf.Announce)
	require.True(t, conf.UsesMQTT())
	require.Equal(t, 5*time.Millisecond, conf.Retry.Interval)
	require.Equal(t, 20, conf.Retry.Attempts)
	require.Equal(t, []Bridge{
		{Kind: BridgeStream, Endpoint: 1, Address: ":7001"},
		{Kind: BridgeMQTT, Endpoint: 2},
	}, conf.Bridges)
	require.NoError(t, conf.Validate())
	require.Equal(t, []int{1, 2}, conf.Endpoints())
	require.Equal(t, "/dev/spidev0.0", conf.Device())
}

func TestLoadFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "copro.toml")
	require.NoError(t, os.WriteFile(file, []byte(sample), 0644))
	conf := testConfig()
	require.NoError(t, conf.LoadFile(file))
	require.Equal(t, "arm", conf.Name)
	require.Error(t, conf.LoadFile(filepath.Join(t.TempDir(), "missing.toml")))
}

func TestLoadTypeErrors(t *testing.T) {
	conf := testConfig()
	err := conf.LoadString(`
name = 1
[uart]
baud = "fast"
flow_control = "xonxoff"
[link]
retry_timeout = "soon"
[[bridges]]
kind = "stream"
endpoint = 300
`)
	require.Error(t, err)
	for _, key := range []string{"name", "uart.baud", "uart.flow_control", "link.retry_timeout", "bridges[0].endpoint"} {
		require.Contains(t, err.Error(), key)
	}
	require.Equal(t, "uno", conf.Name)
	require.Equal(t, uart.DefaultConfig.Baud, conf.UART.Baud)
}

func TestValidate(t *testing.T) {
	require.NoError(t, testConfig().Validate())

	conf := testConfig()
	conf.Triggers.ChipSelect = conf.Triggers.TxAvailability
	require.True(t, errors.Is(conf.Validate(), spi.ErrTriggerConflict))

	conf = testConfig()
	conf.Bridges = []Bridge{{Kind: BridgeMQTT, Endpoint: 0}}
	require.True(t, errors.Is(conf.Validate(), link.ErrInvalidEndpoint))

	conf = testConfig()
	conf.Link.RxQueueSize = 0
	err := conf.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "rx queue size")

	cases := []func(c *Config){
		func(c *Config) { c.Name = "a/b" },
		func(c *Config) { c.Phy = "i2c" },
		func(c *Config) { c.UART.Device = "" },
		func(c *Config) { c.Phy, c.SPI.Speed = PhySPIHost, 0 },
		func(c *Config) { c.Retry.Attempts = 0 },
		func(c *Config) { c.Bridges = []Bridge{{Kind: BridgeStream, Endpoint: 1}} },
		func(c *Config) { c.Bridges = []Bridge{{Kind: "udp", Endpoint: 1, Address: ":1"}} },
		func(c *Config) {
			c.Bridges = []Bridge{{Kind: BridgeMQTT, Endpoint: 1}, {Kind: BridgeStream, Endpoint: 1, Address: ":1"}}
		},
		func(c *Config) { c.MQTTURL, c.Bridges = "", []Bridge{{Kind: BridgeMQTT, Endpoint: 1}} },
		func(c *Config) { c.MQTTURL, c.Announce = "", true },
	}
	for n, modify := range cases {
		conf = testConfig()
		modify(conf)
		require.Error(t, conf.Validate(), "case %d", n)
	}

	conf = testConfig()
	conf.Phy = PhyLoopback
	conf.UART.Device = ""
	require.NoError(t, conf.Validate())
	require.False(t, conf.UsesMQTT())
}

func TestApplyFlags(t *testing.T) {
	fromFile := testConfig()
	fromFile.Bridges = []Bridge{{Kind: BridgeMQTT, Endpoint: 2}}
	fromFlags := testConfig()
	fromFlags.Name = "cli"
	fromFlags.UART.Baud = 9600
	fromFlags.Phy = PhyLoopback
	fromFlags.Bridges = []Bridge{{Kind: BridgeStream, Endpoint: 1, Address: ":1"}}
	fromFile.applyFlags(fromFlags, map[string]bool{"name": true, "baud": true, "bridge": true})
	require.Equal(t, "cli", fromFile.Name)
	require.Equal(t, 9600, fromFile.UART.Baud)
	require.Equal(t, PhyUART, fromFile.Phy)
	require.Equal(t, []Bridge{{Kind: BridgeMQTT, Endpoint: 2}, {Kind: BridgeStream, Endpoint: 1, Address: ":1"}}, fromFile.Bridges)
}

func TestOpenLoopbackPhy(t *testing.T) {
	conf := testConfig()
	conf.Phy = PhyLoopback
	l, p, err := conf.NewLink()
	require.NoError(t, err)
	require.NotNil(t, l)
	require.NotNil(t, p.Peer)
	require.Equal(t, p.Adapter.Framing().Limits(), p.Peer.Framing().Limits())
	require.NoError(t, l.Close())
	require.NoError(t, p.Peer.Close())
}
