// Package adapter 在连接核心之上提供聊天与通知两类领域通道。
//
// 适配器负责把线上信封映射为领域事件，调用方只接触领域类型。
// 每个适配器独占一个 ws.Core。
package adapter

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/tokmz/realtime/pkg/logger"
	"github.com/tokmz/realtime/pkg/ws"
)

// domainEvent 领域事件的公共约束
type domainEvent interface {
	EventName() string
}

// decodeFunc 将信封解析为领域事件
type decodeFunc[E domainEvent] func(ws.Envelope) (E, error)

// anyEvent 订阅全部领域事件的 key
const anyEvent = "*"

// channel 适配器公共部分：持有连接核心，解析入站信封并分发领域事件
type channel[E domainEvent] struct {
	name     string
	core     *ws.Core
	log      logger.Logger
	subs     *ws.Registry[string, func(E)]
	decoders map[string]decodeFunc[E]
}

func newChannel[E domainEvent](name string, cfg *ws.Config, decoders map[string]decodeFunc[E]) (*channel[E], error) {
	if cfg == nil {
		return nil, ws.ErrInvalidConfig.WithMessage("adapter: config is nil")
	}
	core, err := ws.NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil || !cfg.EnableLogging {
		log = logger.Nop()
	}
	ch := &channel[E]{
		name:     name,
		core:     core,
		log:      log.Named(name),
		subs:     ws.NewRegistry[string, func(E)](),
		decoders: decoders,
	}
	core.On(ws.EventMessage, ch.handle)
	return ch, nil
}

func (ch *channel[E]) handle(ev ws.Event) {
	msg, ok := ev.(ws.MessageEvent)
	if !ok {
		return
	}
	env := msg.Envelope

	decode, ok := ch.decoders[env.Type]
	if !ok {
		ch.log.Debug("discard unknown envelope", zap.String("type", env.Type), zap.String("id", env.ID))
		return
	}
	event, err := decode(env)
	if err != nil {
		ch.log.Warn("discard malformed envelope",
			zap.String("type", env.Type),
			zap.String("id", env.ID),
			zap.Error(err),
		)
		return
	}
	ch.publish(event)
}

func (ch *channel[E]) publish(event E) {
	for _, h := range ch.subs.Handlers(event.EventName()) {
		h(event)
	}
	for _, h := range ch.subs.Handlers(anyEvent) {
		h(event)
	}
}

func (ch *channel[E]) subscribe(name string, fn func(E)) *ws.Subscription {
	return ch.subs.Subscribe(name, fn)
}

func (ch *channel[E]) connect(ctx context.Context, token string, params url.Values) error {
	return ch.core.Connect(ctx, token, params)
}

func (ch *channel[E]) send(typ string, payload any) error {
	return ch.core.SendJSON(typ, payload)
}

// OnConnectionState 订阅连接状态变化
func (ch *channel[E]) OnConnectionState(fn func(ws.State)) *ws.Subscription {
	return ch.core.On(ws.EventStateChanged, func(ev ws.Event) {
		if sc, ok := ev.(ws.StateChangedEvent); ok {
			fn(sc.To)
		}
	})
}

// OnReconnectFailed 订阅重连耗尽
func (ch *channel[E]) OnReconnectFailed(fn func()) *ws.Subscription {
	return ch.core.On(ws.EventReconnectFailed, func(ws.Event) { fn() })
}

// Status 连接状态
func (ch *channel[E]) Status() ws.State { return ch.core.Status() }

// IsConnected 连接是否处于 Open
func (ch *channel[E]) IsConnected() bool { return ch.core.Status() == ws.StateOpen }

// QueueLen 待发送消息数
func (ch *channel[E]) QueueLen() int { return ch.core.QueueLen() }

// SetVisible 转发宿主可见性
func (ch *channel[E]) SetVisible(visible bool) { ch.core.SetVisible(visible) }

// SetOnline 转发网络状态
func (ch *channel[E]) SetOnline(online bool) { ch.core.SetOnline(online) }

// Disconnect 断开连接
func (ch *channel[E]) Disconnect() { ch.core.Disconnect() }

// decodePayload 解析信封负载，失败时附带类型信息
func decodePayload[T any](env ws.Envelope) (T, error) {
	var v T
	if err := env.Decode(&v); err != nil {
		return v, fmt.Errorf("adapter: decode %s: %w", env.Type, err)
	}
	return v, nil
}
