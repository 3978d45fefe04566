package link

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundRobin(t *testing.T) {
	var rr roundRobin
	ready := map[int]bool{1: true, 3: true, 4: true}
	isReady := func(i int) bool { return ready[i] }

	var picks []int
	for i := 0; i < 6; i++ {
		id, ok := rr.pick(5, isReady)
		require.True(t, ok)
		picks = append(picks, id)
	}
	require.Equal(t, []int{1, 3, 4, 1, 3, 4}, picks)

	ready = map[int]bool{0: true}
	_, ok := rr.pick(5, isReady)
	require.False(t, ok)
	_, ok = rr.pick(1, isReady)
	require.False(t, ok)
}
