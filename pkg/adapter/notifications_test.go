package adapter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/realtime/pkg/adapter"
	"github.com/tokmz/realtime/pkg/errors"
	"github.com/tokmz/realtime/pkg/ws"
)

const notificationsEndpoint = "wss://api.test/ws/notifications"

func newNotifications(t *testing.T) (*adapter.Notifications, *fixture) {
	t.Helper()
	f := newFixture(t, notificationsEndpoint)
	n, err := adapter.NewNotifications(f.cfg)
	require.NoError(t, err)
	t.Cleanup(n.Disconnect)
	return n, f
}

func TestNotificationsInitialize(t *testing.T) {
	n, f := newNotifications(t)

	require.NoError(t, n.Initialize(context.Background(), "tok"))
	require.NoError(t, n.Initialize(context.Background(), "tok"))
	assert.True(t, n.IsConnected())
	assert.Equal(t, []string{notificationsEndpoint + "?token=tok"}, f.transport.URLs())
}

func TestNotificationsInboundMapping(t *testing.T) {
	n, f := newNotifications(t)
	require.NoError(t, n.Initialize(context.Background(), "tok"))

	var notes []adapter.Notification
	var bots []adapter.BotUpdate
	var perms []adapter.PermissionChange
	var names []string
	n.OnNotification(func(v adapter.Notification) { notes = append(notes, v) })
	n.OnBotUpdated(func(v adapter.BotUpdate) { bots = append(bots, v) })
	n.OnPermissionChanged(func(v adapter.PermissionChange) { perms = append(perms, v) })
	n.OnEvent(func(e adapter.NotificationEvent) { names = append(names, e.EventName()) })

	conn := f.conn(t)
	require.True(t, conn.Inject(envelope(t, "notification", map[string]any{
		"id":         "n-1",
		"type":       "bot_shared",
		"title":      "Bot shared with you",
		"content":    "alice shared support-bot",
		"link":       "/bots/b-1",
		"created_at": 1700000003000,
	})))
	require.True(t, conn.Inject(envelope(t, "bot_updated", map[string]any{
		"bot_id": "b-1", "name": "support-bot", "status": "published", "updated_at": 1700000004000,
	})))
	require.True(t, conn.Inject(envelope(t, "permission_changed", map[string]any{
		"resource_type": "bot", "resource_id": "b-1", "user_id": "u-1", "permission": "edit", "granted": true,
	})))
	require.True(t, conn.Inject(envelope(t, "chat_message", map[string]string{"content": "wrong channel"})))

	require.Len(t, notes, 1)
	assert.Equal(t, adapter.Notification{
		ID:        "n-1",
		Kind:      "bot_shared",
		Title:     "Bot shared with you",
		Content:   "alice shared support-bot",
		Link:      "/bots/b-1",
		CreatedAt: time.UnixMilli(1700000003000),
	}, notes[0])

	require.Len(t, bots, 1)
	assert.Equal(t, "published", bots[0].Status)
	assert.Equal(t, time.UnixMilli(1700000004000), bots[0].UpdatedAt)

	require.Len(t, perms, 1)
	assert.Equal(t, adapter.PermissionChange{
		ResourceType: "bot", ResourceID: "b-1", UserID: "u-1", Permission: "edit", Granted: true,
	}, perms[0])

	assert.Equal(t, []string{"notification", "bot_updated", "permission_changed"}, names)
}

func TestNotificationsRejectIncomplete(t *testing.T) {
	n, f := newNotifications(t)
	require.NoError(t, n.Initialize(context.Background(), "tok"))

	var count int
	n.OnEvent(func(adapter.NotificationEvent) { count++ })

	conn := f.conn(t)
	require.True(t, conn.Inject(envelope(t, "notification", map[string]string{"title": "no id"})))
	require.True(t, conn.Inject(envelope(t, "bot_updated", map[string]string{"name": "no id"})))
	require.True(t, conn.Inject(ws.Envelope{Type: "permission_changed", ID: "x", Payload: []byte(`[1,2]`)}))

	assert.Zero(t, count)
	assert.Equal(t, 3, f.logs.FilterMessage("discard malformed envelope").Len())
}

func TestNotificationsMarkAsRead(t *testing.T) {
	n, f := newNotifications(t)

	assert.True(t, errors.Is(n.MarkAsRead(""), adapter.ErrInvalidArgument))

	// 未连接时进入队列，连接后按序发出
	require.NoError(t, n.MarkAsRead("n-1"))
	require.NoError(t, n.MarkAllAsRead())
	assert.Equal(t, 2, n.QueueLen())

	require.NoError(t, n.Initialize(context.Background(), "tok"))
	written := f.conn(t).Written()
	require.Len(t, written, 2)
	assert.Equal(t, "mark_read", written[0].Type)
	assert.JSONEq(t, `{"id":"n-1"}`, string(written[0].Payload))
	assert.Equal(t, "mark_all_read", written[1].Type)
	assert.Empty(t, written[1].Payload)
}

func TestNotificationsVisibilityAndOnline(t *testing.T) {
	f := newFixture(t, notificationsEndpoint, ws.WithHeartbeat(20*time.Second))
	n, err := adapter.NewNotifications(f.cfg)
	require.NoError(t, err)
	t.Cleanup(n.Disconnect)
	require.NoError(t, n.Initialize(context.Background(), "tok"))

	n.SetVisible(false)
	f.clock.Advance(time.Minute)
	assert.True(t, n.IsConnected())
	assert.Empty(t, f.conn(t).Written())

	n.SetOnline(false)
	assert.Equal(t, ws.StateReconnecting, n.Status())
	n.SetOnline(true)
	require.Eventually(t, n.IsConnected, time.Second, time.Millisecond)
	assert.Equal(t, 2, f.transport.DialCount())
}
