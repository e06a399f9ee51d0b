package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/realtime/pkg/errors"
)

// echoServer 回显业务消息，对 ping 回复 pong；token 不为 secret 时拒绝握手
func echoServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}
			if env.Type == TypePing {
				env = Envelope{Type: TypePong, ID: env.ID, Timestamp: env.Timestamp}
			}
			out, _ := json.Marshal(env)
			if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestGorillaTransportUnauthorized(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	_, err := NewGorillaTransport().Dial(context.Background(), wsURL(srv)+"?token=wrong")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized), "got %v", err)
}

func TestGorillaTransportRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewGorillaTransport().Dial(context.Background(), wsURL(srv))
	assert.True(t, errors.Is(err, ErrRefused), "got %v", err)
}

func TestClassifyDialError(t *testing.T) {
	assert.True(t, errors.Is(classifyDialError(nil, context.DeadlineExceeded), ErrConnectionTimeout))
	assert.True(t, errors.Is(classifyDialError(nil, fmt.Errorf("dial: %w", context.DeadlineExceeded)), ErrConnectionTimeout))
	assert.True(t, errors.Is(classifyDialError(&http.Response{StatusCode: http.StatusForbidden}, assert.AnError), ErrUnauthorized))
	assert.True(t, errors.Is(classifyDialError(nil, assert.AnError), ErrTransport))
}

func TestCoreOverGorilla(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	core, err := New(
		WithEndpoint(wsURL(srv)),
		WithConnectionTimeout(2*time.Second),
		WithHeartbeat(0),
		WithLogging(false),
	)
	require.NoError(t, err)
	defer core.Disconnect()

	received := make(chan Envelope, 1)
	core.On(EventMessage, func(ev Event) {
		received <- ev.(MessageEvent).Envelope
	})

	require.NoError(t, core.Connect(context.Background(), "secret", nil))
	require.Equal(t, StateOpen, core.Status())

	require.NoError(t, core.SendJSON("chat_message", map[string]string{"content": "hi"}))

	select {
	case env := <-received:
		assert.Equal(t, "chat_message", env.Type)
		var payload map[string]string
		require.NoError(t, env.Decode(&payload))
		assert.Equal(t, "hi", payload["content"])
	case <-time.After(2 * time.Second):
		t.Fatal("echo not received")
	}

	err = core.Connect(context.Background(), "wrong", nil)
	assert.True(t, errors.Is(err, ErrUnauthorized), "got %v", err)
	assert.Equal(t, StateFailed, waitStatus(core, StateFailed))
}

func waitStatus(c *Core, s State) State {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && c.Status() != s {
		time.Sleep(time.Millisecond)
	}
	return c.Status()
}
