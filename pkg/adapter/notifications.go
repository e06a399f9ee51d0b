package adapter

import (
	"context"
	"strings"
	"time"

	"github.com/tokmz/realtime/pkg/ws"
)

// 通知通道的线上消息类型
const (
	TypeNotification      = "notification"
	TypeBotUpdated        = "bot_updated"
	TypePermissionChanged = "permission_changed"

	TypeMarkRead    = "mark_read"
	TypeMarkAllRead = "mark_all_read"
)

// Notification 应用通知
type Notification struct {
	ID        string
	Kind      string
	Title     string
	Content   string
	Link      string
	Read      bool
	CreatedAt time.Time
}

// BotUpdate 机器人信息变更
type BotUpdate struct {
	BotID     string
	Name      string
	Status    string
	UpdatedAt time.Time
}

// PermissionChange 资源权限变更
type PermissionChange struct {
	ResourceType string
	ResourceID   string
	UserID       string
	Permission   string
	Granted      bool
}

// NotificationEvent 通知通道事件，取值为 NotificationReceived、BotUpdated 或 PermissionChanged
type NotificationEvent interface {
	EventName() string
	isNotificationEvent()
}

// NotificationReceived 收到通知
type NotificationReceived struct {
	Notification Notification
}

// BotUpdated 机器人变更
type BotUpdated struct {
	Update BotUpdate
}

// PermissionChanged 权限变更
type PermissionChanged struct {
	Change PermissionChange
}

func (NotificationReceived) EventName() string { return TypeNotification }
func (BotUpdated) EventName() string           { return TypeBotUpdated }
func (PermissionChanged) EventName() string    { return TypePermissionChanged }

func (NotificationReceived) isNotificationEvent() {}
func (BotUpdated) isNotificationEvent()           {}
func (PermissionChanged) isNotificationEvent()    {}

type notificationPayload struct {
	ID        string `json:"id"`
	Kind      string `json:"type"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Link      string `json:"link"`
	Read      bool   `json:"read"`
	CreatedAt int64  `json:"created_at"`
}

type botUpdatePayload struct {
	BotID     string `json:"bot_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	UpdatedAt int64  `json:"updated_at"`
}

type permissionPayload struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	UserID       string `json:"user_id"`
	Permission   string `json:"permission"`
	Granted      bool   `json:"granted"`
}

type markReadPayload struct {
	ID string `json:"id"`
}

func millis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

var notificationDecoders = map[string]decodeFunc[NotificationEvent]{
	TypeNotification: func(env ws.Envelope) (NotificationEvent, error) {
		p, err := decodePayload[notificationPayload](env)
		if err != nil {
			return nil, err
		}
		if p.ID == "" {
			return nil, ErrInvalidArgument.WithMessage("adapter: notification without id")
		}
		return NotificationReceived{Notification: Notification{
			ID:        p.ID,
			Kind:      p.Kind,
			Title:     p.Title,
			Content:   p.Content,
			Link:      p.Link,
			Read:      p.Read,
			CreatedAt: millis(p.CreatedAt),
		}}, nil
	},
	TypeBotUpdated: func(env ws.Envelope) (NotificationEvent, error) {
		p, err := decodePayload[botUpdatePayload](env)
		if err != nil {
			return nil, err
		}
		if p.BotID == "" {
			return nil, ErrInvalidArgument.WithMessage("adapter: bot update without bot id")
		}
		return BotUpdated{Update: BotUpdate{
			BotID:     p.BotID,
			Name:      p.Name,
			Status:    p.Status,
			UpdatedAt: millis(p.UpdatedAt),
		}}, nil
	},
	TypePermissionChanged: func(env ws.Envelope) (NotificationEvent, error) {
		p, err := decodePayload[permissionPayload](env)
		if err != nil {
			return nil, err
		}
		return PermissionChanged{Change: PermissionChange(p)}, nil
	},
}

// Notifications 通知通道适配器
type Notifications struct {
	*channel[NotificationEvent]
}

// NewNotifications 创建通知适配器，cfg.Endpoint 通常指向 /ws/notifications
func NewNotifications(cfg *ws.Config) (*Notifications, error) {
	ch, err := newChannel("notifications", cfg, notificationDecoders)
	if err != nil {
		return nil, err
	}
	return &Notifications{channel: ch}, nil
}

// Initialize 建立通知连接
func (n *Notifications) Initialize(ctx context.Context, token string) error {
	return n.connect(ctx, token, nil)
}

// MarkAsRead 标记单条通知已读
func (n *Notifications) MarkAsRead(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidArgument.WithMessage("adapter: notification id is required")
	}
	return n.send(TypeMarkRead, markReadPayload{ID: id})
}

// MarkAllAsRead 标记全部通知已读
func (n *Notifications) MarkAllAsRead() error {
	return n.send(TypeMarkAllRead, nil)
}

// OnNotification 订阅通知
func (n *Notifications) OnNotification(fn func(Notification)) *ws.Subscription {
	return n.subscribe(TypeNotification, func(e NotificationEvent) {
		fn(e.(NotificationReceived).Notification)
	})
}

// OnBotUpdated 订阅机器人变更
func (n *Notifications) OnBotUpdated(fn func(BotUpdate)) *ws.Subscription {
	return n.subscribe(TypeBotUpdated, func(e NotificationEvent) {
		fn(e.(BotUpdated).Update)
	})
}

// OnPermissionChanged 订阅权限变更
func (n *Notifications) OnPermissionChanged(fn func(PermissionChange)) *ws.Subscription {
	return n.subscribe(TypePermissionChanged, func(e NotificationEvent) {
		fn(e.(PermissionChanged).Change)
	})
}

// OnEvent 订阅全部通知事件
func (n *Notifications) OnEvent(fn func(NotificationEvent)) *ws.Subscription {
	return n.subscribe(anyEvent, fn)
}
