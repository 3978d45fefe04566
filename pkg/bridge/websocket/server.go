package websocket

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/copro.go/pkg/bridge"
)

// Server serves websocket connections on HTTP paths, each path bridged with
// one endpoint.
type Server struct {
	Address string

	mux *http.ServeMux
	ctx context.Context
}

// NewServer creates a Server listening on address once running.
func NewServer(address string) *Server {
	return &Server{Address: address, mux: http.NewServeMux(), ctx: context.Background()}
}

// EndpointPath is the default HTTP path of an endpoint.
func EndpointPath(id uint8) string {
	return "/ep/" + strconv.Itoa(int(id))
}

// Handle bridges websocket connections on path with ep. A new connection
// replaces the current one.
func (s *Server) Handle(path string, ep bridge.Endpoint, retry bridge.Retry) {
	session := bridge.NewSession(ep, retry)
	s.mux.Handle(path, websocket.Handler(func(conn *websocket.Conn) {
		conn.PayloadType = websocket.BinaryFrame
		ctx := s.ctx
		if req := conn.Request(); req != nil {
			ctx = mergeDone(ctx, req.Context())
		}
		err := session.Serve(ctx, New(conn))
		glog.Infof("websocket %s: %s closed: %v", path, conn.Request().RemoteAddr, err)
	}))
}

// Handler returns the http.Handler serving all paths.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Name implements Named.
func (s *Server) Name() string {
	return "websocket:" + s.Address
}

// Run implements Runnable.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Address)
	if err != nil {
		return err
	}
	s.ctx = ctx
	srv := &http.Server{Handler: s.mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	select {
	case <-ctx.Done():
		srv.Close()
		<-errCh
		return ctx.Err()
	case err = <-errCh:
		return err
	}
}

func mergeDone(ctx, other context.Context) context.Context {
	merged, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		select {
		case <-other.Done():
		case <-merged.Done():
		}
	}()
	return merged
}
