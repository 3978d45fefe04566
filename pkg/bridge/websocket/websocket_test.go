package websocket

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/robotalks/copro.go/pkg/bridge"
	"github.com/robotalks/copro.go/pkg/link/linktest"
)

func TestServerBridgesEndpoint(t *testing.T) {
	ea, eb := linktest.NewPair(t).Open(t, 2)

	srv := NewServer("127.0.0.1:0")
	srv.Handle("/ep/2", ea, bridge.Retry{Interval: time.Millisecond, Attempts: 100})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, err := websocket.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ep/2", "", "http://localhost/")
	require.NoError(t, err)
	defer conn.Close()
	client := New(conn)

	require.NoError(t, client.WritePacket([]byte{0x01, 0x02}))
	require.Equal(t, []byte{0x01, 0x02}, linktest.Recv(t, eb))

	require.NoError(t, eb.Send([]byte("pong")))
	conn.SetReadDeadline(time.Now().Add(linktest.WaitTimeout))
	pkt, err := client.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, []byte("pong"), pkt)
}
