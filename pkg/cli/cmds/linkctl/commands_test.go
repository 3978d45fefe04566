package linkctl

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/copro.go/pkg/cli/sh"
	"github.com/robotalks/copro.go/pkg/link"
)

func TestFormatStatus(t *testing.T) {
	st := sh.Status{
		Name:   "uno",
		Phy:    "uart",
		Device: "/dev/ttyACM0",
		State:  "established",
		Endpoints: []sh.EndpointStatus{
			{ID: 1, State: "open", Pending: 2},
			{ID: 4, State: "error", Err: "retry exhausted"},
		},
	}
	require.Equal(t, "uno: established\nphy: uart /dev/ttyACM0\nendpoint 1: open pending=2\nendpoint 4: error pending=0 error=retry exhausted", FormatStatus(st))
}

func TestFormatStats(t *testing.T) {
	out := FormatStats(link.Stats{FramesIn: 3, FramesOut: 4, Retransmits: 1, Resets: 2})
	require.Contains(t, out, "frames in=3 out=4")
	require.Contains(t, out, "retransmits=1 corrupt=0")
	require.Contains(t, out, "resets=2")
}
