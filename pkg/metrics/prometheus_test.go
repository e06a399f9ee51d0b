package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/realtime/pkg/ws"
	"github.com/tokmz/realtime/pkg/ws/wstest"
)

const endpoint = "ws://test/ws/chat"

func TestPrometheusCounters(t *testing.T) {
	m := New(prometheus.NewRegistry(), "")

	m.IncrementConnects(endpoint)
	m.IncrementConnectErrors(endpoint, ws.CodeTimeout)
	m.IncrementConnectErrors(endpoint, ws.CodeTimeout)
	m.IncrementMessagesSent(endpoint, "chat_message")
	m.SetState(endpoint, ws.StateReconnecting)
	m.SetQueueLength(endpoint, 7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connects.WithLabelValues(endpoint)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConnectErrors.WithLabelValues(endpoint, "5001")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesSent.WithLabelValues(endpoint, "chat_message")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.State.WithLabelValues(endpoint)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.QueueLength.WithLabelValues(endpoint)))
}

func TestPrometheusRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "app")
	m.IncrementDroppedMessages(endpoint)

	n, err := testutil.GatherAndCount(reg, "app_ws_dropped_messages_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Panics(t, func() { New(reg, "app") }, "duplicate registration")
}

func TestPrometheusWithCore(t *testing.T) {
	m := New(prometheus.NewRegistry(), "")
	clock := wstest.NewFakeClock(time.Unix(0, 0))
	transport := wstest.NewFakeTransport()

	core, err := ws.New(
		ws.WithEndpoint(endpoint),
		ws.WithHeartbeat(10*time.Second),
		ws.WithQueueSize(1),
		ws.WithLogging(false),
		ws.WithMetrics(m),
		ws.WithClock(clock),
		ws.WithTransport(transport),
		ws.WithRand(func() float64 { return 0.5 }),
	)
	require.NoError(t, err)
	defer core.Disconnect()

	require.NoError(t, core.SendJSON("a", nil))
	require.NoError(t, core.SendJSON("b", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DroppedMessages.WithLabelValues(endpoint)))

	require.NoError(t, core.Connect(context.Background(), "", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connects.WithLabelValues(endpoint)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesSent.WithLabelValues(endpoint, "b")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.QueueLength.WithLabelValues(endpoint)))
	assert.Equal(t, float64(ws.StateOpen), testutil.ToFloat64(m.State.WithLabelValues(endpoint)))

	conn := transport.LastConn()
	require.True(t, conn.InjectRaw([]byte("garbage")))
	require.True(t, conn.Inject(ws.Envelope{Type: "notification"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvalidMessages.WithLabelValues(endpoint)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesReceived.WithLabelValues(endpoint, "notification")))

	clock.Advance(20 * time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HeartbeatTimeouts.WithLabelValues(endpoint)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconnectAttempts.WithLabelValues(endpoint)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectErrors.WithLabelValues(endpoint, "5005")))
}
