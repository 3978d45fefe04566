package bridge

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/copro.go/pkg/link"
)

const waitTimeout = 3 * time.Second

type fakeEndpoint struct {
	lock    sync.Mutex
	rejects int
	err     error
	sent    [][]byte
	rxCh    chan []byte
}

func newFakeEndpoint() *fakeEndpoint {
	return &fakeEndpoint{rxCh: make(chan []byte, 4)}
}

func (e *fakeEndpoint) ID() uint8 { return 3 }

func (e *fakeEndpoint) Send(payload []byte) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.rejects > 0 {
		e.rejects--
		return link.ErrQueueFull
	}
	if e.err != nil {
		return e.err
	}
	e.sent = append(e.sent, append([]byte(nil), payload...))
	return nil
}

func (e *fakeEndpoint) Recv(ctx context.Context) ([]byte, error) {
	select {
	case payload := <-e.rxCh:
		return payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *fakeEndpoint) Sent() [][]byte {
	e.lock.Lock()
	defer e.lock.Unlock()
	return append([][]byte(nil), e.sent...)
}

type chanRW struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newChanRW() *chanRW {
	return &chanRW{
		in:     make(chan []byte, 4),
		out:    make(chan []byte, 4),
		closed: make(chan struct{}),
	}
}

func (rw *chanRW) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-rw.in:
		return pkt, nil
	case <-rw.closed:
		return nil, io.EOF
	}
}

func (rw *chanRW) WritePacket(pkt []byte) error {
	select {
	case rw.out <- pkt:
		return nil
	case <-rw.closed:
		return io.ErrClosedPipe
	}
}

func (rw *chanRW) Close() error {
	rw.once.Do(func() { close(rw.closed) })
	return nil
}

func runBridge(b *Bridge) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Run(ctx)
	}()
	return cancel, errCh
}

func waitErr(t *testing.T, errCh <-chan error) error {
	select {
	case err := <-errCh:
		return err
	case <-time.After(waitTimeout):
		require.FailNow(t, "bridge not stopped")
	}
	return nil
}

func TestBridgeForwardAndDeliver(t *testing.T) {
	ep, rw := newFakeEndpoint(), newChanRW()
	b := New(ep, rw)
	cancel, errCh := runBridge(b)

	rw.in <- []byte("to-copro")
	require.Eventually(t, func() bool { return len(ep.Sent()) == 1 }, waitTimeout, time.Millisecond)
	require.Equal(t, []byte("to-copro"), ep.Sent()[0])

	ep.rxCh <- []byte("from-copro")
	select {
	case pkt := <-rw.out:
		require.Equal(t, []byte("from-copro"), pkt)
	case <-time.After(waitTimeout):
		require.FailNow(t, "payload not delivered")
	}

	cancel()
	require.Equal(t, context.Canceled, waitErr(t, errCh))
	select {
	case <-rw.closed:
	default:
		require.Fail(t, "ReadWriter not closed")
	}
	require.Equal(t, Counters{Forwarded: 1, Delivered: 1}, b.Counters())
}

func TestBridgeRetriesQueueFull(t *testing.T) {
	ep, rw := newFakeEndpoint(), newChanRW()
	ep.rejects = 3
	b := New(ep, rw).WithRetry(Retry{Interval: time.Millisecond, Attempts: 5})
	cancel, errCh := runBridge(b)
	defer cancel()

	rw.in <- []byte{1}
	require.Eventually(t, func() bool { return len(ep.Sent()) == 1 }, waitTimeout, time.Millisecond)
	require.Equal(t, Counters{Forwarded: 1}, b.Counters())
	cancel()
	waitErr(t, errCh)
}

func TestBridgeDropsAfterRetries(t *testing.T) {
	ep, rw := newFakeEndpoint(), newChanRW()
	ep.rejects = 3
	b := New(ep, rw).WithRetry(Retry{Interval: time.Millisecond, Attempts: 3})
	cancel, errCh := runBridge(b)
	defer cancel()

	rw.in <- []byte{1}
	rw.in <- []byte{2}
	require.Eventually(t, func() bool { return len(ep.Sent()) == 1 }, waitTimeout, time.Millisecond)
	require.Equal(t, []byte{2}, ep.Sent()[0])
	require.Equal(t, Counters{Forwarded: 1, Dropped: 1}, b.Counters())
	cancel()
	waitErr(t, errCh)
}

func TestBridgeStopsOnLinkError(t *testing.T) {
	ep, rw := newFakeEndpoint(), newChanRW()
	ep.err = link.ErrLinkClosed
	_, errCh := runBridge(New(ep, rw))
	rw.in <- []byte{1}
	err := waitErr(t, errCh)
	require.True(t, errors.Is(err, link.ErrLinkClosed), "got %v", err)
}

func TestBridgeStopsOnEOF(t *testing.T) {
	ep, rw := newFakeEndpoint(), newChanRW()
	_, errCh := runBridge(New(ep, rw))
	rw.Close()
	require.Equal(t, io.EOF, waitErr(t, errCh))
}

func TestSessionReplacesBridge(t *testing.T) {
	ep := newFakeEndpoint()
	s := NewSession(ep, Retry{Interval: time.Millisecond, Attempts: 1})
	rw1, rw2 := newChanRW(), newChanRW()

	err1 := make(chan error, 1)
	go func() { err1 <- s.Serve(context.Background(), rw1) }()
	rw1.in <- []byte{1}
	require.Eventually(t, func() bool { return len(ep.Sent()) == 1 }, waitTimeout, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err2 := make(chan error, 1)
	go func() { err2 <- s.Serve(ctx, rw2) }()
	require.Equal(t, context.Canceled, waitErr(t, err1))

	rw2.in <- []byte{2}
	require.Eventually(t, func() bool { return len(ep.Sent()) == 2 }, waitTimeout, time.Millisecond)
	ep.rxCh <- []byte{3}
	select {
	case pkt := <-rw2.out:
		require.Equal(t, []byte{3}, pkt)
	case <-time.After(waitTimeout):
		require.FailNow(t, "payload not delivered")
	}
	cancel()
	require.Equal(t, context.Canceled, waitErr(t, err2))
}
