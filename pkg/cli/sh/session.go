package sh

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/robotalks/copro.go/pkg/config"
	fx "github.com/robotalks/copro.go/pkg/framework"
	"github.com/robotalks/copro.go/pkg/link"
	"github.com/robotalks/copro.go/pkg/sim"
)

// Session is a link run by the shell.
type Session struct {
	Config *config.Config
	Link   *link.Link
	Phy    *config.Phy

	cancel context.CancelFunc
	runner *fx.Runner
}

// Status summarizes a Session.
type Status struct {
	Name      string           `json:"name"`
	Phy       string           `json:"phy"`
	Device    string           `json:"device,omitempty"`
	State     string           `json:"state"`
	Endpoints []EndpointStatus `json:"endpoints,omitempty"`
	Stats     link.Stats       `json:"stats"`
}

// EndpointStatus summarizes an endpoint which is not closed.
type EndpointStatus struct {
	ID      uint8  `json:"id"`
	State   string `json:"state"`
	Pending int    `json:"pending"`
	Err     string `json:"error,omitempty"`
}

// OpenSession opens the phy and runs the link. The loopback phy also runs a
// simulated co-processor echoing on every endpoint.
func OpenSession(conf *config.Config) (*Session, error) {
	l, p, err := conf.NewLink()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		Config: conf,
		Link:   l,
		Phy:    p,
		cancel: cancel,
		runner: fx.NewRunnerWith(ctx),
	}
	s.runner.Go(fx.NamedRun("link", l))
	if p.Peer != nil {
		copro, err := sim.New(p.Peer, conf.Link)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.runner.Go(copro)
	}
	return s, nil
}

// Close stops the link.
func (s *Session) Close() error {
	s.cancel()
	s.Link.Close()
	err := s.runner.Wait()
	if errors.Is(err, link.ErrLinkClosed) {
		return nil
	}
	return err
}

// Status returns the current status.
func (s *Session) Status() Status {
	st := Status{
		Name:   s.Config.Name,
		Phy:    s.Config.Phy,
		Device: s.Config.Device(),
		State:  s.Link.State().String(),
		Stats:  s.Link.Stats(),
	}
	for _, info := range s.Link.Endpoints() {
		if info.State == link.EndpointClosed && info.Pending == 0 {
			continue
		}
		es := EndpointStatus{ID: info.ID, State: info.State.String(), Pending: info.Pending}
		if info.Err != nil {
			es.Err = info.Err.Error()
		}
		st.Endpoints = append(st.Endpoints, es)
	}
	return st
}

// Endpoint parses an endpoint id and returns the endpoint.
func (s *Session) Endpoint(arg string) (*link.Endpoint, error) {
	id, err := strconv.ParseUint(arg, 0, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q", arg)
	}
	return s.Link.Endpoint(uint8(id))
}

func (s *Session) waitOpen(ep *link.Endpoint) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.Config.Link.OpenTimeout+time.Second)
	defer cancel()
	return ep.WaitOpen(ctx)
}

// Open opens an endpoint and waits for the peer.
func (s *Session) Open(ep *link.Endpoint) error {
	if _, err := s.Link.OpenEndpoint(ep.ID()); err != nil {
		return err
	}
	return s.waitOpen(ep)
}

// Send sends a payload, opening the endpoint first if needed.
func (s *Session) Send(ep *link.Endpoint, payload []byte) error {
	err := ep.Send(payload)
	if !errors.Is(err, link.ErrEndpointNotOpen) {
		return err
	}
	if ep.State() == link.EndpointError {
		if err = s.Open(ep); err != nil {
			return err
		}
	} else if err = s.waitOpen(ep); err != nil {
		return err
	}
	return ep.Send(payload)
}

// Recv waits for a payload until timeout.
func (s *Session) Recv(ep *link.Endpoint, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return ep.Recv(ctx)
}

// ParsePayload joins args into a payload. In hex mode args are hex digits,
// otherwise they are text joined by spaces.
func ParsePayload(args []string, hexMode bool) ([]byte, error) {
	if hexMode {
		payload, err := hex.DecodeString(strings.Join(args, ""))
		if err != nil {
			return nil, fmt.Errorf("invalid hex payload: %v", err)
		}
		return payload, nil
	}
	return []byte(strings.Join(args, " ")), nil
}

// FormatPayload shows printable payloads quoted and others in hex.
func FormatPayload(payload []byte) string {
	for _, r := range string(payload) {
		if r == unicode.ReplacementChar || !unicode.IsPrint(r) {
			return "hex:" + hex.EncodeToString(payload)
		}
	}
	return strconv.Quote(string(payload))
}
