package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/tokmz/realtime/pkg/adapter"
	"github.com/tokmz/realtime/pkg/ws"
)

// WebsocketService 旧版通知服务，转发到通知适配器
type WebsocketService struct {
	svc *Service
}

// Connect 建立通知连接
func (w *WebsocketService) Connect(token string) error {
	return w.svc.Initialize(context.Background(), token)
}

// Disconnect 断开通知连接
func (w *WebsocketService) Disconnect() {
	w.svc.notifications.Disconnect()
}

// IsConnected 通知连接是否可用
func (w *WebsocketService) IsConnected() bool {
	return w.svc.notifications.IsConnected()
}

// On 按事件名订阅；fn 收到的是对应的领域对象
// （adapter.Notification、adapter.BotUpdate 或 adapter.PermissionChange）
func (w *WebsocketService) On(event string, fn func(any)) *ws.Subscription {
	switch event {
	case adapter.TypeNotification, adapter.TypeBotUpdated, adapter.TypePermissionChanged:
	default:
		w.svc.log.Warn("legacy subscribe to unknown event", zap.String("event", event))
		return nil
	}
	return w.svc.notifications.OnEvent(func(e adapter.NotificationEvent) {
		if e.EventName() != event {
			return
		}
		switch v := e.(type) {
		case adapter.NotificationReceived:
			fn(v.Notification)
		case adapter.BotUpdated:
			fn(v.Update)
		case adapter.PermissionChanged:
			fn(v.Change)
		}
	})
}

// ChatWebSocketService 旧版聊天服务，转发到聊天适配器
type ChatWebSocketService struct {
	svc *Service
}

// Connect 连接到机器人会话
func (c *ChatWebSocketService) Connect(botID, token, sessionID string) error {
	return c.svc.ConnectToChat(context.Background(), botID, token, sessionID)
}

// SendMessage 发送消息
func (c *ChatWebSocketService) SendMessage(content string) error {
	return c.svc.chat.SendMessage(content)
}

// SendTyping 发送输入状态
func (c *ChatWebSocketService) SendTyping(isTyping bool) error {
	return c.svc.chat.SendTyping(isTyping)
}

// OnMessage 订阅聊天消息
func (c *ChatWebSocketService) OnMessage(fn func(adapter.ChatMessage)) *ws.Subscription {
	return c.svc.chat.OnChatMessage(fn)
}

// OnTyping 订阅输入状态
func (c *ChatWebSocketService) OnTyping(fn func(adapter.TypingIndicator)) *ws.Subscription {
	return c.svc.chat.OnTyping(fn)
}

// Disconnect 断开聊天连接
func (c *ChatWebSocketService) Disconnect() {
	c.svc.chat.Disconnect()
}

// IsConnected 聊天连接是否可用
func (c *ChatWebSocketService) IsConnected() bool {
	return c.svc.chat.IsConnected()
}
