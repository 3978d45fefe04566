package spi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fx "github.com/robotalks/copro.go/pkg/framework"
	"github.com/robotalks/copro.go/pkg/link/frame"
	"github.com/robotalks/copro.go/pkg/phy"
)

func TestTriggersValidate(t *testing.T) {
	require.NoError(t, DefaultTriggers.Validate())

	testCases := []struct {
		name     string
		triggers Triggers
		errs     []error
	}{
		{"out of range", Triggers{8, 4, 5, 6}, []error{ErrTriggerRange}},
		{"shared", Triggers{7, 4, 4, 6}, []error{ErrTriggerConflict}},
		{"both", Triggers{9, 1, 1, 1}, []error{ErrTriggerRange, ErrTriggerConflict, ErrTriggerConflict}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.triggers.Validate()
			require.Error(t, err)
			agg, ok := err.(*fx.AggregatedError)
			require.True(t, ok)
			require.Len(t, agg.Errors, len(tc.errs))
			for i, expected := range tc.errs {
				require.True(t, errors.Is(agg.Errors[i], expected), agg.Errors[i].Error())
			}
		})
	}

	_, err := NewSecondary(NewLoopback(DefaultTriggers), Triggers{1, 1, 2, 3}, frame.DefaultLimits, 1)
	require.True(t, errors.Is(err, ErrTriggerConflict))
}

type testBus struct {
	host      *Host
	secondary *Secondary
	cancel    func()
}

func newTestBus(t *testing.T, limits frame.Limits) *testBus {
	lb := NewLoopback(DefaultTriggers)
	secondary, err := NewSecondary(lb, DefaultTriggers, limits, 4)
	require.NoError(t, err)
	host := NewHost(lb, lb, lb, HostConfig{PollInterval: time.Millisecond, RxQueueSize: 4}, limits)
	ctx, cancel := context.WithCancel(context.Background())
	go secondary.Run(ctx)
	go host.Run(ctx)
	return &testBus{host: host, secondary: secondary, cancel: func() {
		cancel()
		host.Close()
		secondary.Close()
	}}
}

func receiveFrame(t *testing.T, a phy.Adapter) *frame.Frame {
	dec := a.Framing().NewDecoder()
	timeout := time.After(time.Second)
	for {
		var got *frame.Frame
		select {
		case data := <-a.Received():
			dec.Feed(data, func(f *frame.Frame, err error) {
				require.NoError(t, err)
				got = f
			})
		case <-timeout:
			require.FailNow(t, "receive timeout")
		}
		if got != nil {
			return got
		}
	}
}

func TestHostToSecondary(t *testing.T) {
	bus := newTestBus(t, frame.DefaultLimits)
	defer bus.cancel()

	f := frame.NewData(2, 1, 0, []byte("from host"))
	encoded, err := bus.host.Framing().Encode(f)
	require.NoError(t, err)
	require.NoError(t, bus.host.TrySend(encoded))
	require.Equal(t, f, receiveFrame(t, bus.secondary))
}

func TestSecondaryToHost(t *testing.T) {
	bus := newTestBus(t, frame.DefaultLimits)
	defer bus.cancel()

	for i := 0; i < 3; i++ {
		f := frame.NewData(1, uint8(i), 0, []byte{byte(i), 0x7e})
		encoded, err := bus.secondary.Framing().Encode(f)
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			return bus.secondary.TrySend(encoded) == nil
		}, time.Second, time.Millisecond)
		require.Equal(t, f, receiveFrame(t, bus.host))
	}
}

func TestSecondaryBusyUntilClocked(t *testing.T) {
	lb := NewLoopback(DefaultTriggers)
	secondary, err := NewSecondary(lb, DefaultTriggers, frame.DefaultLimits, 4)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go secondary.Run(ctx)

	encoded, err := secondary.Framing().Encode(frame.NewAck(1, 1))
	require.NoError(t, err)
	require.NoError(t, secondary.TrySend(encoded))
	require.Equal(t, phy.ErrBusy, secondary.TrySend(encoded))
	require.Eventually(t, func() bool { return !bool(lb.Read()) }, time.Second, time.Millisecond)

	rx := make([]byte, frame.TransactionSize(frame.DefaultLimits))
	require.NoError(t, lb.Tx(make([]byte, len(rx)), rx))
	f, err := frame.DecodeTransaction(rx, frame.DefaultLimits)
	require.NoError(t, err)
	require.Equal(t, frame.FlagAck, f.Control)

	select {
	case <-secondary.Ready():
	case <-time.After(time.Second):
		require.FailNow(t, "ready not signaled")
	}
	require.NoError(t, secondary.TrySend(encoded))
}
