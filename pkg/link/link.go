package link

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/copro.go/pkg/link/arq"
	"github.com/robotalks/copro.go/pkg/link/frame"
	"github.com/robotalks/copro.go/pkg/link/sysmsg"
	"github.com/robotalks/copro.go/pkg/phy"
)

// Link is a reliable multiplexed connection to a peer over an adapter. It
// exclusively owns the adapter.
type Link struct {
	config  Config
	adapter phy.Adapter
	framing frame.Framing

	lock           sync.Mutex
	ctx            context.Context
	state          State
	endpoints      []*Endpoint
	rr             roundRobin
	nonce          uint32
	peerNonce      uint32
	peerNonceValid bool
	resetAckDue    bool
	resetAckNonce  uint32
	handshakeAt    time.Time
	attempts       int
	violations     int
	corrupt        int
	control        [][]byte
	epoch          uint64
	stats          Stats
	notifiers      []StateNotifier
	callbacks      []func()

	kick      phy.Signal
	done      chan struct{}
	closeOnce sync.Once
	running   int32

	// owned by the Run goroutine
	decoder   frame.Decoder
	held      []byte
	heldEpoch uint64
}

// New creates a link on adapter. The link starts the handshake when Run is
// called.
func New(adapter phy.Adapter, config Config) (*Link, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	framing := adapter.Framing()
	if framing.Limits() != config.Limits {
		return nil, fmt.Errorf("adapter limits %+v differ from %+v", framing.Limits(), config.Limits)
	}
	l := &Link{
		config:  config,
		adapter: adapter,
		framing: framing,
		ctx:     context.Background(),
		kick:    phy.NewSignal(),
		done:    make(chan struct{}),
		decoder: framing.NewDecoder(),
	}
	l.endpoints = make([]*Endpoint, config.Limits.MaxEndpoints)
	for i := range l.endpoints {
		l.endpoints[i] = newEndpoint(l, uint8(i))
	}
	return l, nil
}

func (l *Link) receiveWindow() int {
	if l.config.RxQueueSize > l.config.TxQueueSize {
		return l.config.RxQueueSize
	}
	return l.config.TxQueueSize
}

// Config returns the link parameters.
func (l *Link) Config() Config {
	return l.config
}

// State returns the link state.
func (l *Link) State() State {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.state
}

// Stats returns a snapshot of the counters.
func (l *Link) Stats() Stats {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.stats
}

// OnStateChange registers a notifier for link state changes. Notifiers run on
// the goroutine which caused the change, outside of the link lock.
func (l *Link) OnStateChange(n StateNotifier) {
	l.lock.Lock()
	l.notifiers = append(l.notifiers, n)
	l.lock.Unlock()
}

// EndpointInfo summarizes an endpoint.
type EndpointInfo struct {
	ID      uint8
	State   EndpointState
	Pending int
	Err     error
}

// Endpoints lists the payload endpoints which are not closed.
func (l *Link) Endpoints() []EndpointInfo {
	l.lock.Lock()
	defer l.lock.Unlock()
	var infos []EndpointInfo
	for _, ep := range l.endpoints[1:] {
		if ep.state != EndpointClosed {
			infos = append(infos, EndpointInfo{ID: ep.id, State: ep.state, Pending: ep.sender.Len(), Err: ep.err})
		}
	}
	return infos
}

// Endpoint returns the handle of a payload endpoint without opening it.
func (l *Link) Endpoint(id uint8) (*Endpoint, error) {
	if id == frame.SystemEndpoint || int(id) >= len(l.endpoints) {
		return nil, ErrInvalidEndpoint
	}
	return l.endpoints[id], nil
}

// OpenEndpoint starts opening a payload endpoint and returns its handle. The
// open request is sent once the link is established.
func (l *Link) OpenEndpoint(id uint8) (*Endpoint, error) {
	ep, err := l.Endpoint(id)
	if err != nil {
		return nil, err
	}
	l.locked(func() {
		if ep.state == EndpointClosed || ep.state == EndpointError {
			l.startOpenLocked(ep)
		}
	})
	l.kick.Notify()
	return ep, nil
}

// Reset discards all link state and starts a new handshake. It is the only
// way out of StateDegraded.
func (l *Link) Reset() {
	l.locked(func() {
		l.startHandshakeLocked(time.Now())
	})
	l.kick.Notify()
}

// Close stops the link and closes the adapter.
func (l *Link) Close() (err error) {
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.adapter.Close()
	})
	return
}

// Run drives the adapter and the link until ctx is done, the link is closed
// or the adapter fails.
func (l *Link) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&l.running, 0, 1) {
		return errors.New("link already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	l.lock.Lock()
	l.ctx = ctx
	l.lock.Unlock()

	adapterErr := make(chan error, 1)
	go func() {
		adapterErr <- l.adapter.Run(ctx)
	}()

	l.Reset()
	ticker := time.NewTicker(l.config.TickInterval)
	defer ticker.Stop()
	for {
		if err := l.pump(); err != nil {
			if stopErr := l.stopped(ctx); stopErr != nil {
				return stopErr
			}
			return fmt.Errorf("send: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return ErrLinkClosed
		case err := <-adapterErr:
			if stopErr := l.stopped(ctx); stopErr != nil {
				return stopErr
			}
			if err == nil {
				err = phy.ErrClosed
			}
			return fmt.Errorf("adapter: %w", err)
		case data := <-l.adapter.Received():
			l.receive(data)
		case <-l.kick:
		case <-l.adapter.Ready():
		case now := <-ticker.C:
			l.tick(now)
		}
	}
}

// stopped returns the reason of a Close or cancellation. The adapter fails
// under a held frame once either happened.
func (l *Link) stopped(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-l.done:
		return ErrLinkClosed
	default:
		return nil
	}
}

// locked runs fn under the lock and the callbacks it scheduled after
// unlocking.
func (l *Link) locked(fn func()) {
	l.lock.Lock()
	fn()
	callbacks := l.callbacks
	l.callbacks = nil
	l.lock.Unlock()
	for _, cb := range callbacks {
		cb()
	}
}

func (l *Link) later(fn func()) {
	l.callbacks = append(l.callbacks, fn)
}

func (l *Link) setStateLocked(state State) {
	if l.state == state {
		return
	}
	glog.V(2).Infof("link: %s -> %s", l.state, state)
	l.state = state
	ctx, notifiers := l.ctx, append([]StateNotifier(nil), l.notifiers...)
	l.later(func() {
		for _, n := range notifiers {
			n.StateChanged(ctx, state)
		}
	})
}

// resetLocked discards all sequencing state. Endpoints which were opened or
// requested to open are closed, opens not yet requested are kept.
func (l *Link) resetLocked() {
	l.epoch++
	l.stats.Resets++
	l.control = nil
	l.violations, l.corrupt = 0, 0
	l.resetAckDue = false
	for _, ep := range l.endpoints {
		ep.sender.Reset(0)
		ep.receiver.Reset(0)
		ep.rxBusy = false
		if ep.id == frame.SystemEndpoint {
			ep.setStateLocked(EndpointClosed, nil)
			continue
		}
		switch {
		case ep.state == EndpointOpening && !ep.requested:
		case ep.state != EndpointClosed:
			ep.setStateLocked(EndpointClosed, ErrLinkReset)
		}
	}
	l.setStateLocked(StateReset)
}

func (l *Link) startHandshakeLocked(now time.Time) {
	l.resetLocked()
	l.nonce = newNonce()
	l.handshakeAt = now
	l.attempts = 0
	l.setStateLocked(StateHandshake)
}

func (l *Link) establishLocked() {
	l.endpoints[frame.SystemEndpoint].setStateLocked(EndpointOpen, nil)
	l.setStateLocked(StateEstablished)
}

// degradeLocked stops all transmission until the application resets the link.
func (l *Link) degradeLocked(cause error) {
	if l.state == StateDegraded {
		return
	}
	glog.Errorf("link degraded: %v", cause)
	l.epoch++
	l.control = nil
	l.resetAckDue = false
	for _, ep := range l.endpoints {
		ep.failLocked(ErrLinkDesynchronized)
		ep.receiver.AckSent()
		if ep.state != EndpointClosed {
			ep.setStateLocked(EndpointError, cause)
		}
	}
	l.setStateLocked(StateDegraded)
}

func (l *Link) startOpenLocked(ep *Endpoint) {
	ep.setStateLocked(EndpointOpening, nil)
	ep.requested = false
}

func (l *Link) queueControlLocked(msg sysmsg.Message) {
	data, err := sysmsg.Encode(msg)
	if err != nil {
		glog.Errorf("link: encode %T: %v", msg, err)
		return
	}
	glog.V(2).Infof("link: control %T %v", msg, msg)
	l.control = append(l.control, data)
}

func (l *Link) sendCloseLocked(id uint8) {
	l.queueControlLocked(&sysmsg.CloseNotice{Endpoint: uint32(id)})
}

// flushControlLocked issues pending open requests and moves control messages
// into the system endpoint window.
func (l *Link) flushControlLocked(now time.Time) {
	for _, ep := range l.endpoints[1:] {
		if ep.state == EndpointOpening && !ep.requested {
			l.queueControlLocked(&sysmsg.OpenRequest{
				Endpoint:   uint32(ep.id),
				InitialSeq: uint32(ep.sender.NextSeq()),
			})
			ep.requested = true
			ep.openDeadline = now.Add(l.config.OpenTimeout)
		}
	}
	sys := l.endpoints[frame.SystemEndpoint]
	for len(l.control) > 0 {
		if _, err := sys.sender.Push(l.control[0]); err != nil {
			break
		}
		l.control = l.control[1:]
	}
}

func (l *Link) handleControlLocked(payload []byte) {
	msg, err := sysmsg.Decode(payload)
	if err != nil {
		glog.Warningf("link: invalid control message: %v", err)
		return
	}
	glog.V(2).Infof("link: control received %T %v", msg, msg)
	switch m := msg.(type) {
	case *sysmsg.OpenRequest:
		l.handleOpenRequestLocked(m)
	case *sysmsg.OpenReply:
		l.handleOpenReplyLocked(m)
	case *sysmsg.CloseNotice:
		if ep := l.payloadEndpoint(m.Endpoint); ep != nil && (ep.state == EndpointOpen || ep.state == EndpointOpening) {
			ep.sender.Drain()
			ep.setStateLocked(EndpointClosed, ErrClosedByPeer)
		}
	}
}

func (l *Link) payloadEndpoint(id uint32) *Endpoint {
	if id == uint32(frame.SystemEndpoint) || id >= uint32(len(l.endpoints)) {
		return nil
	}
	return l.endpoints[id]
}

func (l *Link) handleOpenRequestLocked(m *sysmsg.OpenRequest) {
	reply := &sysmsg.OpenReply{Endpoint: m.Endpoint}
	ep := l.payloadEndpoint(m.Endpoint)
	switch {
	case ep == nil || m.InitialSeq >= arq.SeqSpace:
		reply.Status = sysmsg.StatusInvalid
	case ep.state == EndpointError:
		reply.Status = sysmsg.StatusRefused
	default:
		ep.receiver.Reset(arq.Seq(m.InitialSeq))
		reply.InitialSeq = uint32(ep.sender.Base())
		ep.setStateLocked(EndpointOpen, nil)
	}
	l.queueControlLocked(reply)
}

func (l *Link) handleOpenReplyLocked(m *sysmsg.OpenReply) {
	ep := l.payloadEndpoint(m.Endpoint)
	if ep == nil || ep.state != EndpointOpening || !ep.requested {
		return
	}
	switch m.Status {
	case sysmsg.StatusOK:
		ep.receiver.Reset(arq.Seq(m.InitialSeq))
		ep.setStateLocked(EndpointOpen, nil)
	case sysmsg.StatusRefused:
		ep.setStateLocked(EndpointError, ErrEndpointRefused)
	default:
		ep.setStateLocked(EndpointClosed, ErrInvalidEndpoint)
	}
}

type rxItem struct {
	f   *frame.Frame
	err error
}

func (l *Link) receive(data []byte) {
	var items []rxItem
	l.decoder.Feed(data, func(f *frame.Frame, err error) {
		items = append(items, rxItem{f: f, err: err})
	})
	now := time.Now()
	l.locked(func() {
		l.stats.BytesIn += uint64(len(data))
		for _, item := range items {
			if item.err != nil {
				l.corruptLocked(item.err)
				continue
			}
			glog.V(4).Infof("link: recv %s", item.f)
			l.processFrameLocked(item.f, now)
		}
	})
}

func (l *Link) corruptLocked(err error) {
	l.stats.Corrupt++
	l.corrupt++
	glog.V(2).Infof("link: %v", err)
	if l.config.CorruptThreshold > 0 && l.corrupt > l.config.CorruptThreshold && l.state != StateDegraded {
		l.degradeLocked(fmt.Errorf("%w: %d consecutive corrupt frames", ErrLinkDesynchronized, l.corrupt))
	}
}

func (l *Link) violationLocked(ep *Endpoint, detail string) {
	l.stats.SequenceViolations++
	l.violations++
	glog.Warningf("link: %s: %v: %s", ep, ErrSequenceViolation, detail)
	if l.violations > l.config.SequenceViolationThreshold {
		l.degradeLocked(fmt.Errorf("%w: %d consecutive sequence violations", ErrLinkDesynchronized, l.violations))
	}
}

func (l *Link) processFrameLocked(f *frame.Frame, now time.Time) {
	l.corrupt = 0
	l.stats.FramesIn++
	switch {
	case f.Control.Has(frame.FlagReset):
		l.handleResetLocked(f.Nonce())
		return
	case f.Control.Has(frame.FlagResetAck):
		if l.state == StateHandshake && f.Nonce() == l.nonce {
			l.establishLocked()
		} else {
			glog.V(2).Infof("link: stale RESET-ACK %08x ignored", f.Nonce())
		}
		return
	}
	if l.state != StateEstablished {
		return
	}
	ep := l.endpoints[f.Endpoint]
	if ep.id != frame.SystemEndpoint && ep.state != EndpointOpen {
		glog.V(4).Infof("link: %s is %s, frame dropped", ep, ep.state)
		return
	}
	if f.Control.Has(frame.FlagAck) {
		if _, err := ep.sender.Ack(arq.Seq(f.Ack)); err != nil {
			l.violationLocked(ep, fmt.Sprintf("ack %d outside [%d, %d]", f.Ack, ep.sender.Base(), ep.sender.NextSeq()))
			if l.state != StateEstablished {
				return
			}
		}
		if f.Control.Has(frame.FlagBusy) {
			glog.V(4).Infof("link: %s peer busy at %d", ep, f.Ack)
			ep.sender.Hold(now)
		}
	}
	if f.Control.Has(frame.FlagData) {
		l.receiveDataLocked(ep, f, now)
	}
	if f.Control.Has(frame.FlagPoll) {
		ep.receiver.ScheduleAck(now)
	}
}

func (l *Link) handleResetLocked(nonce uint32) {
	switch {
	case l.state == StateDegraded:
		glog.Warningf("link: degraded, peer RESET %08x ignored", nonce)
		return
	case l.state == StateEstablished && l.peerNonceValid && nonce == l.peerNonce:
		glog.V(2).Infof("link: repeated RESET %08x", nonce)
	default:
		if l.state == StateEstablished {
			glog.Warning("link: peer reset the link")
		}
		l.resetLocked()
		l.peerNonce, l.peerNonceValid = nonce, true
		l.establishLocked()
	}
	l.resetAckDue, l.resetAckNonce = true, nonce
}

func (l *Link) receiveDataLocked(ep *Endpoint, f *frame.Frame, now time.Time) {
	seq := arq.Seq(f.Seq)
	switch v := ep.receiver.Check(seq); v {
	case arq.InOrder:
		if ep.id == frame.SystemEndpoint {
			ep.receiver.Advance()
			l.handleControlLocked(f.Payload)
		} else {
			select {
			case ep.rxCh <- f.Payload:
				ep.receiver.Advance()
			default:
				l.stats.RxDropped++
				glog.V(4).Infof("link: %s receive queue full, seq %d dropped", ep, seq)
				ep.rxBusy = true
				ep.receiver.ScheduleAck(now)
				return
			}
		}
		l.violations = 0
		ep.receiver.ScheduleAck(now.Add(l.config.AckDelay))
	case arq.Duplicate, arq.Ahead:
		glog.V(4).Infof("link: %s seq %d %s, expect %d", ep, seq, v, ep.receiver.AckNumber())
		if ep.id != frame.SystemEndpoint && len(ep.rxCh) == cap(ep.rxCh) {
			ep.rxBusy = true
		}
		ep.receiver.ScheduleAck(now)
	default:
		l.violationLocked(ep, fmt.Sprintf("seq %d, expect %d", seq, ep.receiver.AckNumber()))
	}
}

func (l *Link) tick(now time.Time) {
	l.locked(func() {
		if l.state != StateEstablished {
			return
		}
		for _, ep := range l.endpoints {
			if ep.id != frame.SystemEndpoint && ep.state != EndpointOpen {
				if ep.state == EndpointOpening && ep.requested && now.After(ep.openDeadline) {
					glog.Warningf("link: %s open timeout", ep)
					ep.setStateLocked(EndpointError, ErrOpenTimeout)
					l.sendCloseLocked(ep.id)
				}
				continue
			}
			if _, exhausted := ep.sender.Expire(now); exhausted != nil {
				glog.Errorf("link: %s seq %d not acknowledged after %d retries", ep, exhausted.Seq, exhausted.Retries)
				ep.failLocked(ErrRetryExhausted)
				l.degradeLocked(fmt.Errorf("%s: %w", ep, ErrRetryExhausted))
				return
			}
		}
	})
}

// nextFrameLocked selects the next frame to transmit: handshake frames, then
// the system endpoint, then acknowledgments which are due, then payload
// endpoints in round robin. A due acknowledgment rides on a DATA frame of the
// same endpoint when there is one.
func (l *Link) nextFrameLocked(now time.Time) *frame.Frame {
	if l.resetAckDue {
		l.resetAckDue = false
		return frame.NewResetAck(l.resetAckNonce)
	}
	switch l.state {
	case StateHandshake:
		if now.Before(l.handshakeAt) {
			return nil
		}
		if l.config.MaxHandshakeAttempts > 0 && l.attempts >= l.config.MaxHandshakeAttempts {
			l.degradeLocked(fmt.Errorf("%w: no answer to %d RESETs", ErrLinkDesynchronized, l.attempts))
			return nil
		}
		l.attempts++
		l.handshakeAt = now.Add(l.config.HandshakeInterval)
		return frame.NewReset(l.nonce)
	case StateEstablished:
	default:
		return nil
	}
	l.flushControlLocked(now)
	if f := l.dataFrameLocked(l.endpoints[frame.SystemEndpoint], now); f != nil {
		return f
	}
	for _, ep := range l.endpoints {
		if (ep.id != frame.SystemEndpoint && ep.state != EndpointOpen) || !ep.receiver.AckDue(now) {
			continue
		}
		if ep.id != frame.SystemEndpoint {
			if f := l.dataFrameLocked(ep, now); f != nil {
				return f
			}
		}
		return l.ackFrameLocked(ep)
	}
	id, ok := l.rr.pick(len(l.endpoints), func(i int) bool {
		ep := l.endpoints[i]
		return ep.state == EndpointOpen && ep.sender.HasPending()
	})
	if ok {
		return l.dataFrameLocked(l.endpoints[id], now)
	}
	return nil
}

func (l *Link) ackFrameLocked(ep *Endpoint) *frame.Frame {
	f := frame.NewAck(ep.id, uint8(ep.receiver.AckNumber()))
	l.ackSentLocked(ep, f)
	l.stats.AcksSent++
	return f
}

// ackSentLocked completes f carrying the acknowledgment of ep.
func (l *Link) ackSentLocked(ep *Endpoint, f *frame.Frame) {
	if ep.rxBusy {
		f.Control |= frame.FlagBusy
		ep.rxBusy = false
	}
	ep.receiver.AckSent()
}

func (l *Link) dataFrameLocked(ep *Endpoint, now time.Time) *frame.Frame {
	r, ok := ep.sender.Next()
	if !ok {
		return nil
	}
	f := frame.NewData(ep.id, uint8(r.Seq), uint8(ep.receiver.AckNumber()), r.Payload)
	if r.Retries > 0 {
		f.Control |= frame.FlagPoll
		l.stats.Retransmits++
	}
	ep.sender.MarkSent(r.Seq, now)
	l.ackSentLocked(ep, f)
	return f
}

// pump hands frames to the adapter until it is busy or nothing is left. A
// frame selected before a reset or degradation is discarded.
func (l *Link) pump() error {
	for {
		if l.held == nil {
			var f *frame.Frame
			l.locked(func() {
				f = l.nextFrameLocked(time.Now())
				l.heldEpoch = l.epoch
			})
			if f == nil {
				return nil
			}
			encoded, err := l.framing.Encode(f)
			if err != nil {
				glog.Errorf("link: encode %s: %v", f, err)
				continue
			}
			glog.V(4).Infof("link: send %s", f)
			l.held = encoded
		}
		l.lock.Lock()
		stale := l.heldEpoch != l.epoch
		l.lock.Unlock()
		if stale {
			l.held = nil
			continue
		}
		switch err := l.adapter.TrySend(l.held); err {
		case nil:
			l.lock.Lock()
			l.stats.FramesOut++
			l.stats.BytesOut += uint64(len(l.held))
			l.lock.Unlock()
			l.held = nil
		case phy.ErrBusy:
			return nil
		default:
			return err
		}
	}
}

func newNonce() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint32(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint32(b[:])
}
