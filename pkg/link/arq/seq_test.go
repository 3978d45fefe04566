package arq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeqArithmetic(t *testing.T) {
	require.Equal(t, Seq(0), Seq(255).Next())
	require.Equal(t, Seq(4), Seq(250).Add(10))
	require.Equal(t, 10, Seq(250).Distance(4))
	require.Equal(t, 246, Seq(4).Distance(250))
	require.Equal(t, 0, Seq(7).Distance(7))
	require.True(t, Seq(2).InWindow(250, 10))
	require.False(t, Seq(4).InWindow(250, 10))
	require.False(t, Seq(249).InWindow(250, 10))
}
