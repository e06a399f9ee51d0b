// Package service 组合聊天与通知适配器，提供统一的初始化、状态与断开入口，
// 并保留旧版 websocketService / chatWebSocketService 的调用方式。
package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tokmz/realtime/pkg/adapter"
	"github.com/tokmz/realtime/pkg/logger"
	"github.com/tokmz/realtime/pkg/tracing"
	"github.com/tokmz/realtime/pkg/ws"
)

// Status 两个通道的连接状态
type Status struct {
	Chat          ws.State
	Notifications ws.State
}

// Connected 两个通道是否都已连接
func (s Status) Connected() bool {
	return s.Chat == ws.StateOpen && s.Notifications == ws.StateOpen
}

type options struct {
	logger    logger.Logger
	metrics   ws.Metrics
	clock     ws.Clock
	transport ws.Transport
}

// Option 服务选项
type Option func(*options)

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics 设置监控，两个通道共用，按 endpoint 区分
func WithMetrics(m ws.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock 设置时钟
func WithClock(c ws.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithTransport 设置传输层
func WithTransport(t ws.Transport) Option {
	return func(o *options) { o.transport = t }
}

// Service 实时连接服务
type Service struct {
	log           logger.Logger
	chat          *adapter.Chat
	notifications *adapter.Notifications

	legacy     *WebsocketService
	legacyChat *ChatWebSocketService
}

// New 创建服务；每个通道独占一个连接核心
func New(cfg Config, opts ...Option) (*Service, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.Nop()
	}

	chatCfg, err := cfg.wsConfig(cfg.Chat)
	if err != nil {
		return nil, err
	}
	notifyCfg, err := cfg.wsConfig(cfg.Notifications)
	if err != nil {
		return nil, err
	}
	for _, c := range []*ws.Config{chatCfg, notifyCfg} {
		c.Logger = o.logger
		c.Metrics = o.metrics
		c.Clock = o.clock
		c.Transport = o.transport
	}

	chat, err := adapter.NewChat(chatCfg)
	if err != nil {
		return nil, err
	}
	notifications, err := adapter.NewNotifications(notifyCfg)
	if err != nil {
		return nil, err
	}

	s := &Service{
		log:           o.logger.Named("realtime"),
		chat:          chat,
		notifications: notifications,
	}
	s.legacy = &WebsocketService{svc: s}
	s.legacyChat = &ChatWebSocketService{svc: s}
	return s, nil
}

// Initialize 建立通知连接
func (s *Service) Initialize(ctx context.Context, token string) error {
	ctx, span := tracing.StartSpan(ctx, "realtime.initialize")
	defer span.End()

	if err := s.notifications.Initialize(ctx, token); err != nil {
		tracing.RecordError(span, err)
		s.log.WarnContext(ctx, "notifications connect failed", zap.Error(err))
		return err
	}
	s.log.InfoContext(ctx, "notifications connected")
	return nil
}

// ConnectToChat 连接到指定机器人会话，已连接到同一会话时直接返回
func (s *Service) ConnectToChat(ctx context.Context, botID, token, sessionID string) error {
	ctx, span := tracing.StartSpan(ctx, "realtime.connect_to_chat", trace.WithAttributes(
		attribute.String("chat.bot_id", botID),
		attribute.String("chat.session_id", sessionID),
	))
	defer span.End()

	if err := s.chat.ConnectToChat(ctx, botID, token, sessionID); err != nil {
		tracing.RecordError(span, err)
		s.log.WarnContext(ctx, "chat connect failed", zap.String("bot_id", botID), zap.Error(err))
		return err
	}
	s.log.InfoContext(ctx, "chat connected", zap.String("bot_id", botID), zap.String("session_id", sessionID))
	return nil
}

// Disconnect 断开全部通道
func (s *Service) Disconnect() {
	s.chat.Disconnect()
	s.notifications.Disconnect()
	s.log.Info("all channels disconnected")
}

// Status 各通道连接状态
func (s *Service) Status() Status {
	return Status{Chat: s.chat.Status(), Notifications: s.notifications.Status()}
}

// SetVisible 宿主可见性变化
func (s *Service) SetVisible(visible bool) {
	s.chat.SetVisible(visible)
	s.notifications.SetVisible(visible)
}

// SetOnline 网络状态变化
func (s *Service) SetOnline(online bool) {
	s.chat.SetOnline(online)
	s.notifications.SetOnline(online)
}

// Chat 聊天适配器
func (s *Service) Chat() *adapter.Chat { return s.chat }

// Notifications 通知适配器
func (s *Service) Notifications() *adapter.Notifications { return s.notifications }

// WebsocketService 旧版通知服务接口
func (s *Service) WebsocketService() *WebsocketService { return s.legacy }

// ChatWebSocketService 旧版聊天服务接口
func (s *Service) ChatWebSocketService() *ChatWebSocketService { return s.legacyChat }
