package ws_test

import (
	"context"
	"io"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tokmz/realtime/pkg/errors"
	"github.com/tokmz/realtime/pkg/ws"
	"github.com/tokmz/realtime/pkg/ws/wstest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const endpoint = "ws://test.local/ws/chat"

type harness struct {
	core      *ws.Core
	clock     *wstest.FakeClock
	transport *wstest.FakeTransport
	events    *recorder
}

func newHarness(t *testing.T, opts ...ws.Option) *harness {
	t.Helper()
	clock := wstest.NewFakeClock(time.Unix(1700000000, 0))
	transport := wstest.NewFakeTransport()

	base := []ws.Option{
		ws.WithEndpoint(endpoint),
		ws.WithConnectionTimeout(500 * time.Millisecond),
		ws.WithReconnect(time.Second, 5),
		ws.WithHeartbeat(0),
		ws.WithLogging(false),
		ws.WithClock(clock),
		ws.WithTransport(transport),
		ws.WithRand(func() float64 { return 0.5 }),
	}
	core, err := ws.New(append(base, opts...)...)
	require.NoError(t, err)

	h := &harness{core: core, clock: clock, transport: transport, events: newRecorder(core)}
	t.Cleanup(core.Disconnect)
	return h
}

func (h *harness) connect(t *testing.T) *wstest.FakeConn {
	t.Helper()
	require.NoError(t, h.core.Connect(context.Background(), "", nil))
	require.Equal(t, ws.StateOpen, h.core.Status())
	return h.transport.LastConn()
}

// connectAsync 在后台调用 Connect，返回结果通道
func (h *harness) connectAsync(ctx context.Context) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- h.core.Connect(ctx, "", nil) }()
	return ch
}

func (h *harness) waitTimers(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.clock.Pending() == n }, time.Second, time.Millisecond)
}

func (h *harness) waitDials(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.transport.DialCount() == n }, time.Second, time.Millisecond)
}

func (h *harness) waitState(t *testing.T, s ws.State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.core.Status() == s }, time.Second, time.Millisecond)
}

type recorder struct {
	mu     sync.Mutex
	events []ws.Event
}

func newRecorder(c *ws.Core) *recorder {
	r := &recorder{}
	for _, typ := range []ws.EventType{
		ws.EventOpen, ws.EventMessage, ws.EventError, ws.EventClosed,
		ws.EventReconnecting, ws.EventReconnectFailed, ws.EventQueueOverflow,
	} {
		c.On(typ, func(ev ws.Event) {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		})
	}
	return r
}

func (r *recorder) count(typ ws.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type() == typ {
			n++
		}
	}
	return n
}

func (r *recorder) last(typ ws.EventType) ws.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type() == typ {
			return r.events[i]
		}
	}
	return nil
}

func msg(typ string) ws.Envelope {
	env, err := ws.NewEnvelope(typ, map[string]string{"k": typ})
	if err != nil {
		panic(err)
	}
	return env
}

func TestConnectFlushesQueueInOrder(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.core.Send(msg("a")))
	require.NoError(t, h.core.Send(msg("b")))
	require.NoError(t, h.core.Send(msg("c")))
	assert.Equal(t, 3, h.core.QueueLen())
	assert.Equal(t, ws.StateIdle, h.core.Status())

	conn := h.connect(t)
	assert.Equal(t, []string{"a", "b", "c"}, conn.WrittenTypes())
	assert.Equal(t, 0, h.core.QueueLen())

	require.NoError(t, h.core.Send(msg("d")))
	assert.Equal(t, []string{"a", "b", "c", "d"}, conn.WrittenTypes())
	require.Eventually(t, func() bool { return h.events.count(ws.EventOpen) == 1 }, time.Second, time.Millisecond)
}

func TestConnectionTimeoutSchedulesReconnect(t *testing.T) {
	h := newHarness(t)
	h.transport.SetHandler(wstest.Hang)

	result := h.connectAsync(context.Background())
	h.waitTimers(t, 1)

	h.clock.Advance(499 * time.Millisecond)
	assert.Equal(t, ws.StateConnecting, h.core.Status())

	h.clock.Advance(time.Millisecond)
	err := <-result
	assert.True(t, errors.Is(err, ws.ErrConnectionTimeout), "got %v", err)

	rs := h.core.ReconnectState()
	assert.Equal(t, 1, rs.Attempt)
	assert.Equal(t, time.Second, rs.NextDelay)
	assert.Equal(t, ws.StateReconnecting, h.core.Status())

	wait, ok := h.clock.UntilNext()
	require.True(t, ok)
	assert.Equal(t, time.Second, wait)

	ev, ok := h.events.last(ws.EventReconnecting).(ws.ReconnectingEvent)
	require.True(t, ok)
	assert.Equal(t, 1, ev.Attempt)
	assert.Equal(t, time.Second, ev.Delay)

	h.clock.Advance(time.Second)
	h.waitDials(t, 2)
	assert.Equal(t, ws.StateConnecting, h.core.Status())
}

func TestReconnectExhaustion(t *testing.T) {
	h := newHarness(t, ws.WithReconnect(time.Second, 2))
	h.transport.SetHandler(wstest.Fail(ws.ErrRefused))

	err := h.core.Connect(context.Background(), "", nil)
	assert.True(t, errors.Is(err, ws.ErrRefused))
	assert.Equal(t, 1, h.core.ReconnectState().Attempt)

	h.clock.Advance(time.Second)
	h.waitDials(t, 2)
	require.Eventually(t, func() bool { return h.core.ReconnectState().Attempt == 2 }, time.Second, time.Millisecond)

	wait, ok := h.clock.UntilNext()
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, wait)

	h.clock.Advance(2 * time.Second)
	h.waitDials(t, 3)
	h.waitState(t, ws.StateFailed)

	require.Eventually(t, func() bool { return h.events.count(ws.EventReconnectFailed) == 1 }, time.Second, time.Millisecond)
	ev := h.events.last(ws.EventReconnectFailed).(ws.ReconnectFailedEvent)
	assert.Equal(t, 2, ev.Attempts)
	assert.True(t, errors.Is(ev.LastError, ws.ErrRefused))
	assert.Equal(t, 0, h.clock.Pending())

	h.clock.Advance(time.Hour)
	assert.Equal(t, 3, h.transport.DialCount())
	assert.Equal(t, 1, h.events.count(ws.EventReconnectFailed))
}

func TestUnauthorizedIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.transport.SetHandler(wstest.Fail(ws.ErrUnauthorized))

	err := h.core.Connect(context.Background(), "bad", nil)
	assert.True(t, errors.Is(err, ws.ErrUnauthorized))
	h.waitState(t, ws.StateFailed)
	assert.Equal(t, 0, h.clock.Pending())

	h.clock.Advance(time.Minute)
	assert.Equal(t, 1, h.transport.DialCount())
	assert.Equal(t, 0, h.events.count(ws.EventReconnectFailed))
	require.Eventually(t, func() bool { return h.events.count(ws.EventError) == 1 }, time.Second, time.Millisecond)
}

func TestHeartbeatTimeoutAfterTwoIntervals(t *testing.T) {
	h := newHarness(t, ws.WithHeartbeat(10*time.Second))
	conn := h.connect(t)

	h.clock.Advance(10 * time.Second)
	assert.Equal(t, []string{ws.TypePing}, conn.WrittenTypes())
	assert.Equal(t, ws.StateOpen, h.core.Status())

	h.clock.Advance(10 * time.Second)
	assert.Equal(t, ws.StateReconnecting, h.core.Status())
	assert.True(t, conn.IsClosed())
	assert.True(t, errors.Is(h.core.ReconnectState().LastError, ws.ErrHeartbeatTimeout))
}

func TestInboundTrafficKeepsConnectionAlive(t *testing.T) {
	h := newHarness(t, ws.WithHeartbeat(10*time.Second))
	conn := h.connect(t)

	for i := 0; i < 3; i++ {
		h.clock.Advance(10 * time.Second)
		require.True(t, conn.Inject(ws.Envelope{Type: ws.TypePong}))
	}
	assert.Equal(t, ws.StateOpen, h.core.Status())
	assert.Equal(t, []string{ws.TypePing, ws.TypePing, ws.TypePing}, conn.WrittenTypes())
	assert.Equal(t, 0, h.events.count(ws.EventMessage))
}

func TestDisconnectCancelsEverything(t *testing.T) {
	h := newHarness(t, ws.WithHeartbeat(10*time.Second))
	conn := h.connect(t)
	require.Equal(t, 1, h.clock.Pending())

	h.core.Disconnect()
	h.core.Disconnect()

	assert.Equal(t, ws.StateClosed, h.core.Status())
	assert.Equal(t, 0, h.clock.Pending())
	assert.True(t, conn.IsClosed())
	assert.Equal(t, 1, h.events.count(ws.EventClosed))

	h.clock.Advance(time.Hour)
	assert.Equal(t, 1, h.transport.DialCount())
	assert.Equal(t, ws.StateClosed, h.core.Status())
}

func TestDisconnectDiscardsQueue(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.core.Send(msg("a")))
	h.core.Disconnect()
	assert.Equal(t, 0, h.core.QueueLen())

	conn := h.connect(t)
	assert.Empty(t, conn.Written())
}

func TestDisconnectDuringConnect(t *testing.T) {
	h := newHarness(t)
	h.transport.SetHandler(wstest.Hang)

	result := h.connectAsync(context.Background())
	h.waitTimers(t, 1)

	h.core.Disconnect()
	err := <-result
	assert.True(t, errors.Is(err, ws.ErrClosed), "got %v", err)
	assert.Equal(t, 0, h.clock.Pending())
	assert.Equal(t, 0, h.events.count(ws.EventReconnecting))
}

func TestConcurrentConnectDialsOnce(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.transport.SetHandler(wstest.Gate(release))

	results := make([]<-chan error, 5)
	for i := range results {
		results[i] = h.connectAsync(context.Background())
	}
	h.waitDials(t, 1)
	close(release)

	for _, ch := range results {
		assert.NoError(t, <-ch)
	}
	assert.Equal(t, 1, h.transport.DialCount())

	require.NoError(t, h.core.Connect(context.Background(), "", nil))
	assert.Equal(t, 1, h.transport.DialCount())
}

func TestDebounceCollapsesRapidConnects(t *testing.T) {
	h := newHarness(t, ws.WithDebounce(100*time.Millisecond))

	results := make([]<-chan error, 3)
	for i := range results {
		results[i] = h.connectAsync(context.Background())
	}
	h.waitTimers(t, 1)
	assert.Equal(t, 0, h.transport.DialCount())

	h.clock.Advance(100 * time.Millisecond)
	for _, ch := range results {
		assert.NoError(t, <-ch)
	}
	assert.Equal(t, 1, h.transport.DialCount())
}

func TestConnectContextCanceled(t *testing.T) {
	h := newHarness(t)
	h.transport.SetHandler(wstest.Hang)

	ctx, cancel := context.WithCancel(context.Background())
	result := h.connectAsync(ctx)
	h.waitTimers(t, 1)
	cancel()

	assert.ErrorIs(t, <-result, context.Canceled)
	// 后台建连不受调用方 ctx 影响
	assert.Equal(t, ws.StateConnecting, h.core.Status())
}

func TestOfflineOnline(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(t)

	h.core.SetOnline(false)
	assert.Equal(t, ws.StateReconnecting, h.core.Status())
	assert.True(t, conn.IsClosed())
	assert.Equal(t, 0, h.clock.Pending())

	err := h.core.Connect(context.Background(), "", nil)
	assert.True(t, errors.Is(err, ws.ErrOffline))
	assert.Equal(t, 1, h.transport.DialCount())

	require.NoError(t, h.core.Send(msg("queued")))

	h.core.SetOnline(true)
	h.waitDials(t, 2)
	h.waitState(t, ws.StateOpen)
	require.Eventually(t, func() bool {
		c := h.transport.LastConn()
		return c != conn && len(c.WrittenTypes()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"queued"}, h.transport.LastConn().WrittenTypes())
}

func TestOfflineDuringBackoffWaitsForOnline(t *testing.T) {
	h := newHarness(t)
	h.transport.SetHandler(wstest.Fail(ws.ErrRefused))
	_ = h.core.Connect(context.Background(), "", nil)
	h.waitTimers(t, 1)

	h.core.SetOnline(false)
	h.clock.Advance(time.Minute)
	assert.Equal(t, 1, h.transport.DialCount())

	h.transport.SetHandler(nil)
	h.core.SetOnline(true)
	h.waitState(t, ws.StateOpen)
	assert.Equal(t, 2, h.transport.DialCount())
}

func TestVisibilityPausesHeartbeat(t *testing.T) {
	h := newHarness(t, ws.WithHeartbeat(10*time.Second))
	conn := h.connect(t)

	h.core.SetVisible(false)
	assert.Equal(t, 0, h.clock.Pending())
	h.clock.Advance(time.Minute)
	assert.Empty(t, conn.Written())
	assert.Equal(t, ws.StateOpen, h.core.Status())

	h.core.SetVisible(true)
	assert.Equal(t, []string{ws.TypePing}, conn.WrittenTypes())
	assert.Equal(t, 1, h.clock.Pending())

	// 恢复可见后的首次 ping 没有回应，下一个周期判定超时
	h.clock.Advance(10 * time.Second)
	assert.Equal(t, ws.StateReconnecting, h.core.Status())
}

func TestUnexpectedCloseReconnects(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(t)

	conn.Fail(io.ErrUnexpectedEOF)
	h.waitState(t, ws.StateReconnecting)
	require.Eventually(t, func() bool { return h.events.count(ws.EventError) == 1 }, time.Second, time.Millisecond)
	assert.True(t, errors.Is(h.events.last(ws.EventError).(ws.ErrorEvent).Err, ws.ErrTransport))
	h.waitTimers(t, 1)

	h.clock.Advance(time.Second)
	h.waitDials(t, 2)
	h.waitState(t, ws.StateOpen)
	assert.Equal(t, 0, h.core.ReconnectState().Attempt)
}

func TestWriteFailureRequeues(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(t)
	conn.SetWriteError(io.ErrClosedPipe)

	require.NoError(t, h.core.Send(msg("lost")))
	assert.Equal(t, ws.StateReconnecting, h.core.Status())
	assert.Equal(t, 1, h.core.QueueLen())

	h.clock.Advance(time.Second)
	h.waitDials(t, 2)
	require.Eventually(t, func() bool {
		c := h.transport.LastConn()
		return c != conn && len(c.WrittenTypes()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"lost"}, h.transport.LastConn().WrittenTypes())
}

func TestQueueOverflowDropsOldest(t *testing.T) {
	h := newHarness(t, ws.WithQueueSize(2))

	first := msg("a")
	require.NoError(t, h.core.Send(first))
	require.NoError(t, h.core.Send(msg("b")))
	require.NoError(t, h.core.Send(msg("c")))

	assert.Equal(t, 2, h.core.QueueLen())
	require.Equal(t, 1, h.events.count(ws.EventQueueOverflow))
	ev := h.events.last(ws.EventQueueOverflow).(ws.QueueOverflowEvent)
	assert.Equal(t, first.ID, ev.Dropped.ID)
	assert.Equal(t, 2, ev.Capacity)
	assert.True(t, errors.Is(ev.Err, ws.ErrQueueOverflow))

	conn := h.connect(t)
	assert.Equal(t, []string{"b", "c"}, conn.WrittenTypes())
}

func TestClearQueue(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.core.Send(msg("a")))
	require.NoError(t, h.core.Send(msg("b")))
	assert.Equal(t, 2, h.core.ClearQueue())
	assert.Equal(t, 0, h.core.QueueLen())
	assert.Equal(t, 0, h.core.ClearQueue())

	conn := h.connect(t)
	assert.Empty(t, conn.WrittenTypes())
}

func TestInboundFiltering(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(t)

	var got []ws.Envelope
	h.core.On(ws.EventMessage, func(ev ws.Event) {
		got = append(got, ev.(ws.MessageEvent).Envelope)
	})

	require.True(t, conn.Inject(ws.Envelope{Type: ws.TypePong}))
	require.True(t, conn.InjectRaw([]byte("not json")))
	require.True(t, conn.InjectRaw([]byte(`{"payload":{}}`)))
	require.True(t, conn.Inject(msg("chat_message")))

	require.Len(t, got, 1)
	assert.Equal(t, "chat_message", got[0].Type)
	var payload map[string]string
	require.NoError(t, got[0].Decode(&payload))
	assert.Equal(t, "chat_message", payload["k"])
	assert.Equal(t, ws.StateOpen, h.core.Status())
}

func TestHandlerPanicIsContained(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(t)

	var calls int
	h.core.On(ws.EventMessage, func(ws.Event) { panic("boom") })
	sub := h.core.On(ws.EventMessage, func(ws.Event) { calls++ })

	require.True(t, conn.Inject(msg("x")))
	assert.Equal(t, 1, calls)
	assert.Equal(t, ws.StateOpen, h.core.Status())

	sub.Dispose()
	sub.Dispose()
	require.True(t, conn.Inject(msg("y")))
	assert.Equal(t, 1, calls)
}

func TestQueryParamsAndTargetChange(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.core.Connect(context.Background(), "tok", url.Values{"bot_id": {"b1"}}))
	first := h.transport.LastConn()
	require.NoError(t, h.core.Connect(context.Background(), "tok", url.Values{"bot_id": {"b2"}, "session_id": {"s9"}}))

	assert.True(t, first.IsClosed())
	assert.Equal(t, ws.StateOpen, h.core.Status())
	assert.Equal(t, []string{
		endpoint + "?bot_id=b1&token=tok",
		endpoint + "?bot_id=b2&session_id=s9&token=tok",
	}, h.transport.URLs())
}

func TestReconnectAfterDisconnect(t *testing.T) {
	h := newHarness(t)
	h.connect(t)
	h.core.Disconnect()

	h.connect(t)
	assert.Equal(t, 2, h.transport.DialCount())
	assert.Equal(t, 1, h.events.count(ws.EventClosed))
}
