package config

import (
	"fmt"

	"github.com/robotalks/copro.go/pkg/link"
	"github.com/robotalks/copro.go/pkg/phy"
	"github.com/robotalks/copro.go/pkg/phy/spi"
	"github.com/robotalks/copro.go/pkg/phy/uart"
)

// Phy is an opened physical adapter.
type Phy struct {
	Adapter phy.Adapter
	// Peer is the co-processor side of the loopback phy, nil otherwise.
	Peer phy.Adapter
}

// OpenPhy opens the configured physical adapter.
func (c *Config) OpenPhy() (*Phy, error) {
	limits := c.Link.Limits
	switch c.Phy {
	case PhyUART:
		a, err := uart.Open(c.UART, limits)
		if err != nil {
			return nil, err
		}
		return &Phy{Adapter: a}, nil
	case PhySPIHost:
		h, err := spi.OpenHost(c.SPI, limits)
		if err != nil {
			return nil, err
		}
		return &Phy{Adapter: h}, nil
	case PhyLoopback:
		lb := spi.NewLoopback(c.Triggers)
		secondary, err := spi.NewSecondary(lb, c.Triggers, limits, c.SPI.RxQueueSize)
		if err != nil {
			return nil, err
		}
		config := c.SPI
		if config.PollInterval <= 0 {
			config.PollInterval = spi.DefaultHostConfig.PollInterval
		}
		return &Phy{Adapter: spi.NewHost(lb, lb, lb, config, limits), Peer: secondary}, nil
	}
	return nil, fmt.Errorf("unknown phy %q", c.Phy)
}

// NewLink validates the config, opens the phy and creates the link on it.
func (c *Config) NewLink() (*link.Link, *Phy, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	p, err := c.OpenPhy()
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", c.Phy, err)
	}
	l, err := link.New(p.Adapter, c.Link)
	if err != nil {
		p.Adapter.Close()
		return nil, nil, err
	}
	return l, p, nil
}
