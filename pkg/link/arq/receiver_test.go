package arq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReceiverVerdicts(t *testing.T) {
	testCases := []struct {
		expected Seq
		seq      Seq
		verdict  Verdict
	}{
		{0, 0, InOrder},
		{0, 1, Ahead},
		{0, 9, Ahead},
		{0, 10, OutOfWindow},
		{0, 255, Duplicate},
		{0, 246, Duplicate},
		{0, 245, OutOfWindow},
		{250, 3, Ahead},
		{3, 250, Duplicate},
		{128, 0, OutOfWindow},
	}
	for _, tc := range testCases {
		r := NewReceiver(10, tc.expected)
		require.Equal(t, tc.verdict, r.Check(tc.seq), "expected=%d seq=%d", tc.expected, tc.seq)
		require.Equal(t, tc.expected, r.AckNumber())
	}
}

func TestReceiverAccept(t *testing.T) {
	r := NewReceiver(10, 254)
	require.Equal(t, InOrder, r.Accept(254))
	require.Equal(t, InOrder, r.Accept(255))
	require.Equal(t, Duplicate, r.Accept(255))
	require.Equal(t, Ahead, r.Accept(1))
	require.Equal(t, InOrder, r.Accept(0))
	require.Equal(t, Seq(1), r.AckNumber())
	require.Equal(t, "duplicate", Duplicate.String())
}

func TestReceiverAckSchedule(t *testing.T) {
	r := NewReceiver(4, 0)
	now := time.Now()
	require.False(t, r.AckPending())
	require.False(t, r.AckDue(now))

	r.ScheduleAck(now.Add(10 * time.Millisecond))
	require.True(t, r.AckPending())
	require.False(t, r.AckDue(now))
	require.True(t, r.AckDue(now.Add(10*time.Millisecond)))

	// an earlier deadline wins, a later one does not postpone
	r.ScheduleAck(now)
	require.True(t, r.AckDue(now))
	r.ScheduleAck(now.Add(time.Hour))
	require.True(t, r.AckDue(now))

	r.AckSent()
	require.False(t, r.AckPending())
	r.ScheduleAck(now)
	r.Reset(5)
	require.False(t, r.AckPending())
	require.Equal(t, Seq(5), r.AckNumber())
}
