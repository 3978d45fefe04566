package sh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/copro.go/pkg/config"
	"github.com/robotalks/copro.go/pkg/link"
	"github.com/robotalks/copro.go/pkg/link/linktest"
)

func TestParsePayload(t *testing.T) {
	payload, err := ParsePayload([]string{"hello", "world"}, false)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), payload)

	payload, err = ParsePayload([]string{"0102", "ff"}, true)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 0xff}, payload)

	_, err = ParsePayload([]string{"0g"}, true)
	require.Error(t, err)
}

func TestFormatPayload(t *testing.T) {
	require.Equal(t, `"ping"`, FormatPayload([]byte("ping")))
	require.Equal(t, "hex:00ff", FormatPayload([]byte{0, 0xff}))
	require.Equal(t, `""`, FormatPayload(nil))
}

func TestSessionOverLoopback(t *testing.T) {
	conf := *config.Default()
	conf.Name = "bench"
	conf.Phy = config.PhyLoopback
	conf.Link = linktest.Config()
	conf.SPI.PollInterval = time.Millisecond

	s, err := OpenSession(&conf)
	require.NoError(t, err)
	require.NotNil(t, s.Phy.Peer)
	require.Eventually(t, func() bool {
		return s.Link.State() == link.StateEstablished
	}, linktest.WaitTimeout, time.Millisecond)

	_, err = s.Endpoint("x")
	require.Error(t, err)
	_, err = s.Endpoint("0")
	require.ErrorIs(t, err, link.ErrInvalidEndpoint)

	ep, err := s.Endpoint("3")
	require.NoError(t, err)
	require.NoError(t, s.Send(ep, []byte("ping")))
	payload, err := s.Recv(ep, linktest.WaitTimeout)
	require.NoError(t, err)
	require.Equal(t, []byte("ping"), payload)

	var st Status
	require.Eventually(t, func() bool {
		st = s.Status()
		return len(st.Endpoints) == 1 && st.Endpoints[0].Pending == 0
	}, linktest.WaitTimeout, time.Millisecond)
	require.Equal(t, "bench", st.Name)
	require.Equal(t, config.PhyLoopback, st.Phy)
	require.Equal(t, "established", st.State)
	require.Equal(t, []EndpointStatus{{ID: 3, State: "open"}}, st.Endpoints)
	require.NotZero(t, st.Stats.FramesOut)

	_, err = s.Recv(ep, 10*time.Millisecond)
	require.Error(t, err)

	require.NoError(t, ep.Close())
	require.NoError(t, s.Close())
}
