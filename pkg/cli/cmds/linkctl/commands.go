package linkctl

import (
	"bytes"
	"fmt"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/copro.go/pkg/cli/sh"
	"github.com/robotalks/copro.go/pkg/link"
)

// DefaultRecvTimeout is used by recv without TIMEOUT.
const DefaultRecvTimeout = time.Second

func endpointArg(c *ishell.Context) (*sh.Session, *link.Endpoint, bool) {
	if len(c.Args) < 1 {
		c.Err(fmt.Errorf("ENDPOINT required"))
		return nil, nil, false
	}
	s := sh.ShellFrom(c).Session
	ep, err := s.Endpoint(c.Args[0])
	if err != nil {
		c.Err(err)
		return nil, nil, false
	}
	return s, ep, true
}

// FormatStatus prints a session status for display.
func FormatStatus(st sh.Status) string {
	var w bytes.Buffer
	fmt.Fprintf(&w, "%s: %s", st.Name, st.State)
	fmt.Fprintf(&w, "\nphy: %s", st.Phy)
	if st.Device != "" {
		fmt.Fprintf(&w, " %s", st.Device)
	}
	for _, ep := range st.Endpoints {
		fmt.Fprintf(&w, "\nendpoint %d: %s pending=%d", ep.ID, ep.State, ep.Pending)
		if ep.Err != "" {
			fmt.Fprintf(&w, " error=%s", ep.Err)
		}
	}
	return w.String()
}

// FormatStats prints link statistics for display.
func FormatStats(s link.Stats) string {
	return fmt.Sprintf("frames in=%d out=%d\nbytes in=%d out=%d\nretransmits=%d corrupt=%d sequence-violations=%d\nrx-dropped=%d acks=%d resets=%d",
		s.FramesIn, s.FramesOut, s.BytesIn, s.BytesOut,
		s.Retransmits, s.Corrupt, s.SequenceViolations,
		s.RxDropped, s.AcksSent, s.Resets)
}

var (
	// StatusCmd shows the link and endpoint states.
	StatusCmd = ishell.Cmd{
		Name:    "status",
		Aliases: []string{"st"},
		Help:    "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			st := sh.ShellFrom(c).Session.Status()
			sh.Print(c, st, FormatStatus(st))
		}),
	}

	// OpenCmd opens an endpoint.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "ENDPOINT",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			s, ep, ok := endpointArg(c)
			if !ok {
				return
			}
			if err := s.Open(ep); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// CloseCmd closes an endpoint.
	CloseCmd = ishell.Cmd{
		Name: "close",
		Help: "ENDPOINT",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			_, ep, ok := endpointArg(c)
			if !ok {
				return
			}
			if err := ep.Close(); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// SendCmd sends a payload.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "ENDPOINT [-x] DATA...",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			s, ep, ok := endpointArg(c)
			if !ok {
				return
			}
			args := c.Args[1:]
			hexMode := len(args) > 0 && args[0] == "-x"
			if hexMode {
				args = args[1:]
			}
			payload, err := sh.ParsePayload(args, hexMode)
			if err != nil {
				c.Err(err)
				return
			}
			if err = s.Send(ep, payload); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// RecvCmd waits for a payload.
	RecvCmd = ishell.Cmd{
		Name:    "recv",
		Aliases: []string{"r"},
		Help:    "ENDPOINT [TIMEOUT]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			s, ep, ok := endpointArg(c)
			if !ok {
				return
			}
			timeout := DefaultRecvTimeout
			if len(c.Args) > 1 {
				d, err := time.ParseDuration(c.Args[1])
				if err != nil {
					c.Err(fmt.Errorf("Invalid TIMEOUT: %v", err))
					return
				}
				timeout = d
			}
			payload, err := s.Recv(ep, timeout)
			if err != nil {
				c.Err(err)
				return
			}
			sh.Print(c, payload, sh.FormatPayload(payload))
		}),
	}

	// ResetCmd restarts the link handshake.
	ResetCmd = ishell.Cmd{
		Name: "reset",
		Help: "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			sh.ShellFrom(c).Session.Link.Reset()
			c.Println("OK")
		}),
	}

	// StatsCmd shows link statistics.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			stats := sh.ShellFrom(c).Session.Link.Stats()
			sh.Print(c, stats, FormatStats(stats))
		}),
	}
)

func init() {
	sh.AddCmds(
		&StatusCmd,
		&OpenCmd,
		&CloseCmd,
		&SendCmd,
		&RecvCmd,
		&ResetCmd,
		&StatsCmd,
	)
}
