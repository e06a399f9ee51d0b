package adapter

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/realtime/pkg/ws"
)

// 聊天通道的线上消息类型
const (
	TypeChatMessage = "chat_message"
	TypeTyping      = "typing"
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage 聊天消息
type ChatMessage struct {
	ID        string
	SessionID string
	BotID     string
	Role      string
	Content   string
	CreatedAt time.Time
}

// TypingIndicator 输入状态
type TypingIndicator struct {
	SessionID string
	BotID     string
	IsTyping  bool
}

// ChatEvent 聊天通道事件，取值为 MessageReceived 或 TypingChanged
type ChatEvent interface {
	EventName() string
	isChatEvent()
}

// MessageReceived 收到聊天消息
type MessageReceived struct {
	Message ChatMessage
}

// TypingChanged 对端输入状态变化
type TypingChanged struct {
	Indicator TypingIndicator
}

func (MessageReceived) EventName() string { return TypeChatMessage }
func (TypingChanged) EventName() string   { return TypeTyping }

func (MessageReceived) isChatEvent() {}
func (TypingChanged) isChatEvent()   {}

type chatMessagePayload struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	BotID     string `json:"bot_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

type typingPayload struct {
	SessionID string `json:"session_id"`
	BotID     string `json:"bot_id"`
	IsTyping  bool   `json:"is_typing"`
}

var chatDecoders = map[string]decodeFunc[ChatEvent]{
	TypeChatMessage: func(env ws.Envelope) (ChatEvent, error) {
		p, err := decodePayload[chatMessagePayload](env)
		if err != nil {
			return nil, err
		}
		if p.Content == "" && p.ID == "" {
			return nil, ErrInvalidArgument.WithMessage("adapter: empty chat message")
		}
		msg := ChatMessage{
			ID:        p.ID,
			SessionID: p.SessionID,
			BotID:     p.BotID,
			Role:      p.Role,
			Content:   p.Content,
		}
		if msg.ID == "" {
			msg.ID = env.ID
		}
		if p.CreatedAt > 0 {
			msg.CreatedAt = time.UnixMilli(p.CreatedAt)
		} else if env.Timestamp > 0 {
			msg.CreatedAt = time.UnixMilli(env.Timestamp)
		}
		return MessageReceived{Message: msg}, nil
	},
	TypeTyping: func(env ws.Envelope) (ChatEvent, error) {
		p, err := decodePayload[typingPayload](env)
		if err != nil {
			return nil, err
		}
		return TypingChanged{Indicator: TypingIndicator(p)}, nil
	},
}

// chatScope 当前聊天会话
type chatScope struct {
	botID     string
	sessionID string
}

// Chat 聊天通道适配器
type Chat struct {
	*channel[ChatEvent]

	mu    sync.RWMutex
	scope chatScope
	// 每次切换会话或断开时递增，过期的 ConnectToChat 不再写回 scope
	switches uint64
}

// NewChat 创建聊天适配器，cfg.Endpoint 通常指向 /ws/chat
func NewChat(cfg *ws.Config) (*Chat, error) {
	ch, err := newChannel("chat", cfg, chatDecoders)
	if err != nil {
		return nil, err
	}
	return &Chat{channel: ch}, nil
}

// ConnectToChat 连接到指定机器人会话；会话相同时复用现有连接，不同时丢弃旧会话的发送队列后重连。
// 连接成功后才记录新会话，失败时 Session 为空，SendMessage 返回 ErrNoSession。
func (c *Chat) ConnectToChat(ctx context.Context, botID, token, sessionID string) error {
	botID = strings.TrimSpace(botID)
	if botID == "" {
		return ErrInvalidArgument.WithMessage("adapter: bot id is required")
	}

	next := chatScope{botID: botID, sessionID: sessionID}
	c.mu.Lock()
	if c.scope != next {
		// 切换期间拒绝发送，旧会话积压的消息不会发到新会话
		c.switches++
		c.scope = chatScope{}
		if n := c.core.ClearQueue(); n > 0 {
			c.log.Info("dropped messages queued for previous session", zap.Int("count", n))
		}
	}
	switches := c.switches
	c.mu.Unlock()

	c.log.Debug("connect to chat", zap.String("bot_id", botID), zap.String("session_id", sessionID))
	if err := c.connect(ctx, token, url.Values{
		"bot_id":     {botID},
		"session_id": {sessionID},
	}); err != nil {
		return err
	}

	c.mu.Lock()
	if c.switches == switches {
		c.scope = next
	}
	c.mu.Unlock()
	return nil
}

// Session 当前会话的机器人与会话 ID
func (c *Chat) Session() (botID, sessionID string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scope.botID, c.scope.sessionID
}

// SendMessage 以用户身份发送一条消息；未连接时进入发送队列
func (c *Chat) SendMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrInvalidArgument.WithMessage("adapter: message content is empty")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.scope.botID == "" {
		return ErrNoSession
	}
	return c.send(TypeChatMessage, chatMessagePayload{
		SessionID: c.scope.sessionID,
		BotID:     c.scope.botID,
		Role:      RoleUser,
		Content:   content,
	})
}

// SendTyping 发送本端输入状态
func (c *Chat) SendTyping(isTyping bool) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.scope.botID == "" {
		return ErrNoSession
	}
	return c.send(TypeTyping, typingPayload{SessionID: c.scope.sessionID, BotID: c.scope.botID, IsTyping: isTyping})
}

// OnChatMessage 订阅聊天消息
func (c *Chat) OnChatMessage(fn func(ChatMessage)) *ws.Subscription {
	return c.subscribe(TypeChatMessage, func(e ChatEvent) {
		fn(e.(MessageReceived).Message)
	})
}

// OnTyping 订阅输入状态
func (c *Chat) OnTyping(fn func(TypingIndicator)) *ws.Subscription {
	return c.subscribe(TypeTyping, func(e ChatEvent) {
		fn(e.(TypingChanged).Indicator)
	})
}

// OnEvent 订阅全部聊天事件
func (c *Chat) OnEvent(fn func(ChatEvent)) *ws.Subscription {
	return c.subscribe(anyEvent, fn)
}

// Disconnect 断开连接并清除会话
func (c *Chat) Disconnect() {
	c.mu.Lock()
	c.switches++
	c.scope = chatScope{}
	c.mu.Unlock()
	c.core.Disconnect()
}
