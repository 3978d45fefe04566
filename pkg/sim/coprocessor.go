// Package sim simulates a co-processor on the far side of a link.
package sim

import (
	"context"
	"errors"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/copro.go/pkg/link"
	"github.com/robotalks/copro.go/pkg/phy"
)

// Service serves one endpoint of the co-processor until ctx is done.
type Service interface {
	Serve(ctx context.Context, ep *link.Endpoint) error
}

// ServiceFunc is the func form of Service.
type ServiceFunc func(ctx context.Context, ep *link.Endpoint) error

// Serve implements Service.
func (f ServiceFunc) Serve(ctx context.Context, ep *link.Endpoint) error {
	return f(ctx, ep)
}

// Reply sends a payload back once the endpoint can take it. The payload is
// dropped when the endpoint is not open.
func Reply(ctx context.Context, ep *link.Endpoint, payload []byte) error {
	for {
		if ep.State() != link.EndpointOpen {
			glog.V(2).Infof("sim: endpoint %d %s, drop reply", ep.ID(), ep.State())
			return nil
		}
		err := ep.Send(payload)
		if !errors.Is(err, link.ErrQueueFull) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

// Echo replies every payload unchanged.
var Echo = ServiceFunc(func(ctx context.Context, ep *link.Endpoint) error {
	for {
		payload, err := ep.Recv(ctx)
		if err != nil {
			return err
		}
		if err = Reply(ctx, ep, payload); err != nil && !errors.Is(err, link.ErrEndpointNotOpen) {
			return err
		}
	}
})

// Coprocessor runs a link with a Service on each payload endpoint.
type Coprocessor struct {
	Link *link.Link
	// Default serves endpoints without a dedicated service.
	Default  Service
	services map[uint8]Service
}

// New creates a Coprocessor on adapter. Every endpoint echoes by default.
func New(adapter phy.Adapter, config link.Config) (*Coprocessor, error) {
	l, err := link.New(adapter, config)
	if err != nil {
		return nil, err
	}
	return &Coprocessor{Link: l, Default: Echo, services: make(map[uint8]Service)}, nil
}

// Handle assigns a Service to an endpoint.
func (c *Coprocessor) Handle(id uint8, svc Service) *Coprocessor {
	c.services[id] = svc
	return c
}

// Name implements Named.
func (c *Coprocessor) Name() string {
	return "sim"
}

// Run implements Runnable.
func (c *Coprocessor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for id := 1; id < c.Link.Config().Limits.MaxEndpoints; id++ {
		ep, err := c.Link.Endpoint(uint8(id))
		if err != nil {
			return err
		}
		svc := c.services[uint8(id)]
		if svc == nil {
			svc = c.Default
		}
		if svc == nil {
			continue
		}
		go func(ep *link.Endpoint, svc Service) {
			if err := svc.Serve(ctx, ep); err != nil && ctx.Err() == nil {
				glog.Errorf("sim: endpoint %d: %v", ep.ID(), err)
			}
		}(ep, svc)
	}
	err := c.Link.Run(ctx)
	c.Link.Close()
	return err
}
