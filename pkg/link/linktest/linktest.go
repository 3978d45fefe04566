// Package linktest provides links connected in memory for tests.
package linktest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/copro.go/pkg/link"
	"github.com/robotalks/copro.go/pkg/link/frame"
	"github.com/robotalks/copro.go/pkg/phy/pipe"
)

// WaitTimeout bounds every wait in tests.
const WaitTimeout = 3 * time.Second

// Config returns a link config with short timings.
func Config() link.Config {
	c := link.DefaultConfig()
	c.RetryTimeout = 20 * time.Millisecond
	c.MaxRetries = 10
	c.AckDelay = time.Millisecond
	c.HandshakeInterval = 20 * time.Millisecond
	c.OpenTimeout = 500 * time.Millisecond
	c.TickInterval = 2 * time.Millisecond
	return c
}

// Pair is two running links connected by a pipe.
type Pair struct {
	A, B *link.Link

	cancel context.CancelFunc
}

// NewPair starts two links connected with stream framing.
func NewPair(t testing.TB) *Pair {
	config := Config()
	pa, pb := pipe.New(frame.NewStream(config.Limits), pipe.Options{})
	a, err := link.New(pa, config)
	require.NoError(t, err)
	b, err := link.New(pb, config)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)
	go b.Run(ctx)
	p := &Pair{A: a, B: b, cancel: cancel}
	t.Cleanup(p.Close)
	return p
}

// Close stops both links.
func (p *Pair) Close() {
	p.cancel()
	p.A.Close()
	p.B.Close()
}

// Open opens endpoint id from A and waits until both sides are open.
func (p *Pair) Open(t testing.TB, id uint8) (*link.Endpoint, *link.Endpoint) {
	ea, err := p.A.OpenEndpoint(id)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), WaitTimeout)
	defer cancel()
	require.NoError(t, ea.WaitOpen(ctx))
	eb, err := p.B.Endpoint(id)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return eb.State() == link.EndpointOpen
	}, WaitTimeout, time.Millisecond)
	return ea, eb
}

// Recv receives a payload from ep within WaitTimeout.
func Recv(t testing.TB, ep *link.Endpoint) []byte {
	ctx, cancel := context.WithTimeout(context.Background(), WaitTimeout)
	defer cancel()
	payload, err := ep.Recv(ctx)
	require.NoError(t, err)
	return payload
}
