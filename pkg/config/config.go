package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/robotalks/copro.go/pkg/bridge"
	"github.com/robotalks/copro.go/pkg/env"
	fx "github.com/robotalks/copro.go/pkg/framework"
	"github.com/robotalks/copro.go/pkg/link"
	"github.com/robotalks/copro.go/pkg/phy/spi"
	"github.com/robotalks/copro.go/pkg/phy/uart"
)

// Physical adapters.
const (
	PhyUART     = "uart"
	PhySPIHost  = "spi-host"
	PhyLoopback = "loopback"
)

// Bridge kinds.
const (
	BridgeStream    = "stream"
	BridgeWebsocket = "websocket"
	BridgeMQTT      = "mqtt"
)

// Bridge attaches an endpoint to an external packet transport.
type Bridge struct {
	Kind     string
	Endpoint uint8
	// Address is the listen address of stream and websocket bridges.
	// A stream address prefixed by "unix:" is a unix socket path.
	Address string
}

// ParseBridge parses KIND:ENDPOINT[@ADDRESS].
func ParseBridge(s string) (b Bridge, err error) {
	rest := s
	if pos := strings.Index(rest, "@"); pos >= 0 {
		b.Address, rest = rest[pos+1:], rest[:pos]
	}
	pos := strings.Index(rest, ":")
	if pos < 0 {
		return b, fmt.Errorf("invalid bridge %q, expect KIND:ENDPOINT[@ADDRESS]", s)
	}
	b.Kind = rest[:pos]
	id, err := strconv.ParseUint(rest[pos+1:], 10, 8)
	if err != nil {
		return b, fmt.Errorf("invalid bridge endpoint in %q: %v", s, err)
	}
	b.Endpoint = uint8(id)
	return b, nil
}

func (b Bridge) String() string {
	s := fmt.Sprintf("%s:%d", b.Kind, b.Endpoint)
	if b.Address != "" {
		s += "@" + b.Address
	}
	return s
}

// Config is the setup of a link and its bridges.
type Config struct {
	// Name identifies the link on MQTT.
	Name        string
	Description string

	// Phy is one of PhyUART, PhySPIHost or PhyLoopback.
	Phy      string
	UART     uart.Config
	SPI      spi.HostConfig
	Triggers spi.Triggers

	Link link.Config

	// MQTTURL specifies the MQTT broker for mqtt bridges and the
	// link announcement, e.g. mqtt://host:port/topic-prefix
	MQTTURL string

	// Announce publishes the link meta and state on MQTT even without
	// mqtt bridges.
	Announce bool

	Retry   bridge.Retry
	Bridges []Bridge
}

var defaultConfig = Config{
	Phy:      PhyUART,
	UART:     uart.DefaultConfig,
	SPI:      spi.DefaultHostConfig,
	Triggers: spi.DefaultTriggers,
	Link:     link.DefaultConfig(),
	MQTTURL:  "mqtt://localhost:1883/copro/",
	Retry:    bridge.DefaultRetry,
}

var configFile string

func init() {
	defaultConfig.Name = os.Getenv("COPRO_NAME")
	if defaultConfig.Name == "" {
		defaultConfig.Name = env.DefaultLinkName()
	}
	if val := os.Getenv("COPRO_PHY"); val != "" {
		defaultConfig.Phy = val
	}
	if val := os.Getenv("COPRO_DEVICE"); val != "" {
		defaultConfig.UART.Device = val
	}
	if val := os.Getenv("COPRO_BAUD"); val != "" {
		if baud, err := strconv.Atoi(val); err == nil {
			defaultConfig.UART.Baud = baud
		}
	}
	if val := os.Getenv("COPRO_FLOW_CONTROL"); val != "" {
		if fc, err := uart.ParseFlowControl(val); err == nil {
			defaultConfig.UART.FlowControl = fc
		}
	}
	if val := os.Getenv("COPRO_SPI_PORT"); val != "" {
		defaultConfig.SPI.Port = val
	}
	if val := os.Getenv("COPRO_SPI_IRQ"); val != "" {
		defaultConfig.SPI.IRQ = val
	}
	if val := os.Getenv("COPRO_MQTT_URL"); val != "" {
		defaultConfig.MQTTURL = val
	}
	configFile = os.Getenv("COPRO_CONFIG")
}

type flowControlFlag struct {
	fc *uart.FlowControl
}

func (f flowControlFlag) String() string {
	if f.fc == nil {
		return ""
	}
	return f.fc.String()
}

func (f flowControlFlag) Set(s string) (err error) {
	*f.fc, err = uart.ParseFlowControl(s)
	return
}

type bridgesFlag struct {
	bridges *[]Bridge
}

func (f bridgesFlag) String() string {
	if f.bridges == nil {
		return ""
	}
	items := make([]string, len(*f.bridges))
	for n, b := range *f.bridges {
		items[n] = b.String()
	}
	return strings.Join(items, ",")
}

func (f bridgesFlag) Set(s string) error {
	b, err := ParseBridge(s)
	if err != nil {
		return err
	}
	*f.bridges = append(*f.bridges, b)
	return nil
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&configFile, "config", configFile, "Configuration file (TOML), loaded before other flags apply.")
	flag.StringVar(&defaultConfig.Name, "name", defaultConfig.Name, "Link name.")
	flag.StringVar(&defaultConfig.Phy, "phy", defaultConfig.Phy, "Physical adapter: uart, spi-host or loopback.")
	flag.StringVar(&defaultConfig.UART.Device, "device", defaultConfig.UART.Device, "Serial device.")
	flag.IntVar(&defaultConfig.UART.Baud, "baud", defaultConfig.UART.Baud, "Serial baud rate.")
	flag.Var(flowControlFlag{&defaultConfig.UART.FlowControl}, "flow-control", "Serial flow control: none or rtscts.")
	flag.StringVar(&defaultConfig.SPI.Port, "spi-port", defaultConfig.SPI.Port, "SPI port name.")
	flag.Var(&defaultConfig.SPI.Speed, "spi-speed", "SPI clock frequency.")
	flag.StringVar(&defaultConfig.SPI.IRQ, "spi-irq", defaultConfig.SPI.IRQ, "GPIO pin of the co-processor IRQ line.")
	flag.IntVar(&defaultConfig.Link.RxQueueSize, "rx-queue", defaultConfig.Link.RxQueueSize, "Receive queue depth per endpoint.")
	flag.IntVar(&defaultConfig.Link.TxQueueSize, "tx-queue", defaultConfig.Link.TxQueueSize, "Transmit queue depth per endpoint.")
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL.")
	flag.BoolVar(&defaultConfig.Announce, "announce", defaultConfig.Announce, "Announce the link on MQTT.")
	flag.Var(bridgesFlag{&defaultConfig.Bridges}, "bridge", "Bridge KIND:ENDPOINT[@ADDRESS], KIND is stream, websocket or mqtt. Repeatable.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations. The file given by
// -config is loaded and the explicitly set flags are applied over it.
func NewConfig() (*Config, error) {
	conf := defaultConfig
	conf.Bridges = append([]Bridge(nil), defaultConfig.Bridges...)
	if configFile == "" {
		return &conf, nil
	}
	fromFile := defaultConfig
	fromFile.Bridges = nil
	if err := fromFile.LoadFile(configFile); err != nil {
		return nil, err
	}
	if !flag.Parsed() {
		return &fromFile, nil
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	fromFile.applyFlags(&conf, set)
	return &fromFile, nil
}

// applyFlags copies the fields of explicitly set flags from src.
func (c *Config) applyFlags(src *Config, set map[string]bool) {
	for name, apply := range map[string]func(){
		"name":         func() { c.Name = src.Name },
		"phy":          func() { c.Phy = src.Phy },
		"device":       func() { c.UART.Device = src.UART.Device },
		"baud":         func() { c.UART.Baud = src.UART.Baud },
		"flow-control": func() { c.UART.FlowControl = src.UART.FlowControl },
		"spi-port":     func() { c.SPI.Port = src.SPI.Port },
		"spi-speed":    func() { c.SPI.Speed = src.SPI.Speed },
		"spi-irq":      func() { c.SPI.IRQ = src.SPI.IRQ },
		"rx-queue":     func() { c.Link.RxQueueSize = src.Link.RxQueueSize },
		"tx-queue":     func() { c.Link.TxQueueSize = src.Link.TxQueueSize },
		"mqtt":         func() { c.MQTTURL = src.MQTTURL },
		"announce":     func() { c.Announce = src.Announce },
		"bridge":       func() { c.Bridges = append(c.Bridges, src.Bridges...) },
	} {
		if set[name] {
			apply()
		}
	}
}

// Validate checks the whole setup and reports every problem found.
func (c *Config) Validate() error {
	var errs fx.AggregatedError
	if c.Name == "" || strings.ContainsAny(c.Name, "/+#") {
		errs.Add(fmt.Errorf("invalid link name %q", c.Name))
	}
	switch c.Phy {
	case PhyUART:
		if c.UART.Device == "" {
			errs.Add(fmt.Errorf("uart: device required"))
		}
		if c.UART.Baud <= 0 {
			errs.Add(fmt.Errorf("uart: invalid baud rate %d", c.UART.Baud))
		}
	case PhySPIHost:
		if c.SPI.Speed <= 0 {
			errs.Add(fmt.Errorf("spi: invalid speed %s", c.SPI.Speed))
		}
	case PhyLoopback:
	default:
		errs.Add(fmt.Errorf("unknown phy %q", c.Phy))
	}
	if err := c.Triggers.Validate(); err != nil {
		errs.Add(fmt.Errorf("spi triggers: %w", err))
	}
	if err := c.Link.Validate(); err != nil {
		errs.Add(fmt.Errorf("link: %w", err))
	}
	if c.Retry.Attempts <= 0 || c.Retry.Interval <= 0 {
		errs.Add(fmt.Errorf("invalid bridge retry %d x %s", c.Retry.Attempts, c.Retry.Interval))
	}
	seen := make(map[uint8]bool)
	for _, b := range c.Bridges {
		if b.Endpoint == 0 || int(b.Endpoint) >= c.Link.Limits.MaxEndpoints {
			errs.Add(fmt.Errorf("bridge %s: %w", b, link.ErrInvalidEndpoint))
		}
		if seen[b.Endpoint] {
			errs.Add(fmt.Errorf("bridge %s: endpoint bridged twice", b))
		}
		seen[b.Endpoint] = true
		switch b.Kind {
		case BridgeStream, BridgeWebsocket:
			if b.Address == "" {
				errs.Add(fmt.Errorf("bridge %s: address required", b))
			}
		case BridgeMQTT:
			if c.MQTTURL == "" {
				errs.Add(fmt.Errorf("bridge %s: MQTT URL required", b))
			}
		default:
			errs.Add(fmt.Errorf("bridge %s: unknown kind %q", b, b.Kind))
		}
	}
	if c.Announce && c.MQTTURL == "" {
		errs.Add(fmt.Errorf("announce: MQTT URL required"))
	}
	return errs.Aggregate()
}

// UsesMQTT tells whether the link connects to the MQTT broker.
func (c *Config) UsesMQTT() bool {
	if c.Announce {
		return true
	}
	for _, b := range c.Bridges {
		if b.Kind == BridgeMQTT {
			return true
		}
	}
	return false
}

// Endpoints lists the bridged endpoints.
func (c *Config) Endpoints() []int {
	ids := make([]int, 0, len(c.Bridges))
	for _, b := range c.Bridges {
		ids = append(ids, int(b.Endpoint))
	}
	return ids
}

// Device describes the device used by the phy.
func (c *Config) Device() string {
	switch c.Phy {
	case PhyUART:
		return c.UART.Device
	case PhySPIHost:
		if c.SPI.Port == "" {
			return "spi"
		}
		return c.SPI.Port
	}
	return ""
}
