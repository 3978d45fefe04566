package pipe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/copro.go/pkg/link/frame"
	"github.com/robotalks/copro.go/pkg/phy"
)

func recv(t *testing.T, e *End) []byte {
	select {
	case data := <-e.Received():
		return data
	case <-time.After(time.Second):
		require.FailNow(t, "receive timeout")
	}
	return nil
}

func TestPipeTransfer(t *testing.T) {
	a, b := New(frame.NewStream(frame.DefaultLimits), Options{Chunk: 2})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)
	go b.Run(ctx)

	require.NoError(t, a.TrySend([]byte{1, 2, 3}))
	require.Equal(t, []byte{1, 2}, recv(t, b))
	require.Equal(t, []byte{3}, recv(t, b))

	select {
	case <-a.Ready():
	case <-time.After(time.Second):
		require.FailNow(t, "ready not signaled")
	}
	require.Equal(t, 1, a.Sent())
}

func TestPipeBusy(t *testing.T) {
	a, _ := New(frame.NewStream(frame.DefaultLimits), Options{})
	require.NoError(t, a.TrySend([]byte{1}))
	require.Equal(t, phy.ErrBusy, a.TrySend([]byte{2}))
	require.NoError(t, a.Close())
	require.Equal(t, phy.ErrClosed, a.TrySend([]byte{3}))
}

func TestPipeFaults(t *testing.T) {
	a, b := New(frame.NewStream(frame.DefaultLimits), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)

	a.SetFault(Nth(func(n int) bool { return n == 0 }, Drop))
	require.NoError(t, a.TrySend([]byte{1}))
	<-a.Ready()
	a.SetFault(Nth(func(n int) bool { return n == 0 }, func(data []byte) []byte { return FlipBit(data, 9) }))
	require.NoError(t, a.TrySend([]byte{1, 0}))
	require.Equal(t, []byte{1, 2}, recv(t, b))
}
