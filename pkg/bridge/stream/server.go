package stream

import (
	"context"
	"net"
	"strings"

	"github.com/golang/glog"

	"github.com/robotalks/copro.go/pkg/bridge"
	fx "github.com/robotalks/copro.go/pkg/framework"
)

// Server accepts stream connections and bridges the latest one with an
// endpoint.
type Server struct {
	Listener net.Listener
	Session  *bridge.Session
	MaxSize  int
}

// Listen creates a Server listening on address. An address starting with
// "unix:" is a unix socket path, otherwise it's a TCP address.
func Listen(address string, ep bridge.Endpoint, retry bridge.Retry) (*Server, error) {
	network := "tcp"
	if strings.HasPrefix(address, "unix:") {
		network, address = "unix", address[5:]
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	return &Server{Listener: ln, Session: bridge.NewSession(ep, retry)}, nil
}

// Name implements Named.
func (s *Server) Name() string {
	return "stream:" + s.Listener.Addr().String()
}

// Run implements Runnable.
func (s *Server) Run(ctx context.Context) error {
	return fx.RunWithContextCloser(ctx, s.Listener, func() error {
		for {
			conn, err := s.Listener.Accept()
			if err != nil {
				return err
			}
			glog.Infof("%s: accepted %s", s.Name(), conn.RemoteAddr())
			go s.serve(ctx, conn)
		}
	})
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	rw := New(conn).WithMaxSize(s.MaxSize)
	err := s.Session.Serve(ctx, rw)
	glog.Infof("%s: %s closed: %v", s.Name(), conn.RemoteAddr(), err)
}
