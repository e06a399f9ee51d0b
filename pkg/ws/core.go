package ws

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tokmz/realtime/pkg/errors"
	"github.com/tokmz/realtime/pkg/logger"
	"github.com/tokmz/realtime/pkg/tracing"
)

// ReconnectState 重连状态快照
type ReconnectState struct {
	Attempt   int
	NextDelay time.Duration
	LastError error
}

// Core 管理单条 WebSocket 连接：建连、心跳、重连、发送队列与事件分发
//
// 所有状态迁移都在 mu 内完成；定时器与读协程在动作前比对 gen，过期回调直接返回。
// 事件在释放锁之后分发，并携带 epoch，Disconnect 之后产生于旧会话的事件会被丢弃。
type Core struct {
	cfg       Config
	log       logger.Logger
	metrics   Metrics
	clock     Clock
	transport Transport
	backoff   Backoff
	group     singleflight.Group
	subs      *Registry[EventType, EventHandler]

	status   atomic.Int32
	epoch    atomic.Uint64
	stateSeq atomic.Uint64

	mu      sync.Mutex
	state   State
	gen     uint64
	target  string
	conn    Conn
	queue   *OutboundQueue
	pending *flight
	outbox  []outEvent
	spawns  []func()
	closing []Conn
	online  bool
	visible bool

	attempt   int
	nextDelay time.Duration
	lastErr   error

	dialCancel      context.CancelFunc
	connectTimer    Timer
	reconnectTimer  Timer
	debounceTimer   Timer
	heartbeatTimer  Timer
	pingOutstanding bool
}

// outEvent 待分发的事件；seq 为状态事件对应的迁移序号，其余事件为 0
type outEvent struct {
	ev  Event
	seq uint64
}

// flight 一次进行中的建连，等待者共享其结果
type flight struct {
	done chan struct{}
	err  error
}

func newFlight() *flight {
	return &flight{done: make(chan struct{})}
}

func (f *flight) resolve(err error) {
	f.err = err
	close(f.done)
}

// New 使用 Options 创建连接核心
func New(opts ...Option) (*Core, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig 使用配置创建连接核心，配置会被复制
func NewWithConfig(cfg *Config) (*Core, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig.WithMessage("ws: config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := *cfg
	c.applyDefaults()
	if gt, ok := c.Transport.(*GorillaTransport); ok && gt.ReadLimit == 0 {
		cp := *gt
		cp.ReadLimit = c.ReadLimit
		c.Transport = &cp
	}

	core := &Core{
		cfg:       c,
		log:       c.Logger.Named("ws").With(zap.String("endpoint", c.Endpoint)),
		metrics:   c.Metrics,
		clock:     c.Clock,
		transport: c.Transport,
		backoff: Backoff{
			Base:   c.ReconnectInterval,
			Max:    c.MaxReconnectDelay,
			Jitter: c.ReconnectJitter,
			Rand:   c.Rand,
		},
		subs:    NewRegistry[EventType, EventHandler](),
		queue:   NewOutboundQueue(c.QueueSize),
		online:  true,
		visible: true,
	}
	core.metrics.SetState(c.Endpoint, StateIdle)
	return core, nil
}

// Endpoint 连接地址（不含查询参数）
func (c *Core) Endpoint() string {
	return c.cfg.Endpoint
}

// Status 当前状态，不会阻塞
func (c *Core) Status() State {
	return State(c.status.Load())
}

// ReconnectState 重连状态快照
func (c *Core) ReconnectState() ReconnectState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ReconnectState{Attempt: c.attempt, NextDelay: c.nextDelay, LastError: c.lastErr}
}

// QueueLen 发送队列中的消息数
func (c *Core) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// On 订阅事件，同一类型的处理器按订阅顺序调用
func (c *Core) On(typ EventType, handler EventHandler) *Subscription {
	return c.subs.Subscribe(typ, handler)
}

// Connect 建立连接并阻塞到 Open 或失败
//
// token 与 params 以查询参数形式附加到 Endpoint。连接中或已连接时复用当前连接；
// 目标地址变化时先拆除旧连接。ctx 只控制本次等待，取消后后台建连继续进行。
func (c *Core) Connect(ctx context.Context, token string, params url.Values) error {
	target, err := buildTarget(c.cfg.Endpoint, token, params)
	if err != nil {
		return ErrInvalidConfig.WithError(err)
	}

	spanCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(target, func() (any, error) {
		return nil, c.connect(spanCtx, target)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Core) connect(ctx context.Context, target string) error {
	c.mu.Lock()
	if c.target != target && c.state.active() {
		c.log.Info("connection target changed, resetting")
		c.teardownLocked()
		c.resolvePendingLocked(ErrClosed.WithMessage("ws: connection superseded"))
		c.setStateLocked(StateIdle)
	}
	c.target = target

	switch c.state {
	case StateOpen:
		c.unlockAndEmit()
		return nil
	case StateConnecting:
		f := c.pending
		c.unlockAndEmit()
		<-f.done
		return f.err
	}

	if c.state != StateReconnecting {
		c.attempt = 0
		c.lastErr = nil
	}
	if !c.online {
		c.setStateLocked(StateReconnecting)
		c.unlockAndEmit()
		return ErrOffline
	}

	stopTimer(&c.reconnectTimer)
	f := c.beginConnectLocked(ctx, c.cfg.EnableDebounce)
	c.unlockAndEmit()

	<-f.done
	return f.err
}

// beginConnectLocked 进入 Connecting 并发起拨号（或等待防抖窗口结束）
func (c *Core) beginConnectLocked(ctx context.Context, debounce bool) *flight {
	c.gen++
	gen := c.gen
	c.setStateLocked(StateConnecting)
	if c.pending == nil {
		c.pending = newFlight()
	}

	if debounce {
		c.debounceTimer = c.clock.AfterFunc(c.cfg.Debounce, func() {
			c.mu.Lock()
			if c.gen != gen || c.state != StateConnecting {
				c.mu.Unlock()
				return
			}
			c.debounceTimer = nil
			c.dialLocked(ctx, gen)
			c.unlockAndEmit()
		})
		return c.pending
	}
	c.dialLocked(ctx, gen)
	return c.pending
}

func (c *Core) dialLocked(ctx context.Context, gen uint64) {
	ctx, cancel := context.WithCancel(ctx)
	c.dialCancel = cancel
	c.connectTimer = c.clock.AfterFunc(c.cfg.ConnectionTimeout, func() {
		c.mu.Lock()
		if c.gen != gen || c.state != StateConnecting {
			c.mu.Unlock()
			return
		}
		c.connectTimer = nil
		c.log.Warn("connection timeout", zap.Duration("timeout", c.cfg.ConnectionTimeout))
		c.failLocked(ErrConnectionTimeout)
		c.unlockAndEmit()
	})
	go c.dial(ctx, gen, c.target, c.attempt)
}

func (c *Core) dial(ctx context.Context, gen uint64, target string, attempt int) {
	ctx, span := tracing.StartSpan(ctx, "ws.connect", trace.WithAttributes(
		attribute.String("ws.endpoint", c.cfg.Endpoint),
		attribute.Int("ws.attempt", attempt),
	))
	defer span.End()

	conn, err := c.transport.Dial(ctx, target)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		tracing.AddEvent(span, "superseded")
		return
	}
	if err != nil {
		if errors.CodeOf(err) == 0 {
			err = ErrTransport.WithError(err)
		}
		tracing.RecordError(span, err)
		c.failLocked(err)
		c.unlockAndEmit()
		return
	}
	c.openLocked(conn)
	c.unlockAndEmit()
}

func (c *Core) openLocked(conn Conn) {
	stopTimer(&c.connectTimer)
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	c.conn = conn
	c.attempt = 0
	c.nextDelay = 0
	c.lastErr = nil
	c.pingOutstanding = false

	c.setStateLocked(StateOpen)
	c.metrics.IncrementConnects(c.cfg.Endpoint)
	c.log.Info("connected", zap.Int("queued", c.queue.Len()))
	c.emitLocked(OpenEvent{Endpoint: c.cfg.Endpoint})

	// 读协程在 open 事件分发之后启动，入站消息不会先于 open 到达订阅者
	gen := c.gen
	c.spawns = append(c.spawns, func() { c.readLoop(gen, conn) })

	// 积压消息先于 Open 之后的任何新消息发出
	c.flushLocked()
	if c.state == StateOpen {
		c.startHeartbeatLocked()
		// 等待者被唤醒时积压已发出、心跳已就绪
		c.resolvePendingLocked(nil)
	}
}

// readLoop 读取入站消息，任何入站帧都视为存活信号
func (c *Core) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.Read()
		if err != nil {
			c.mu.Lock()
			if c.gen == gen && c.state == StateOpen {
				c.log.Warn("connection lost", zap.Error(err))
				c.failLocked(ErrTransport.WithError(err))
			}
			c.unlockAndEmit()
			return
		}

		var env Envelope
		decodeErr := json.Unmarshal(data, &env)
		if decodeErr == nil && env.Type == "" {
			decodeErr = ErrTransport.WithMessage("ws: envelope without type")
		}

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.pingOutstanding = false
		switch {
		case decodeErr != nil:
			c.metrics.IncrementInvalidMessages(c.cfg.Endpoint)
			c.log.Debug("invalid inbound frame", zap.Error(decodeErr), zap.Int("size", len(data)))
		case env.Type == TypePong:
		default:
			c.metrics.IncrementMessagesReceived(c.cfg.Endpoint, env.Type)
			c.emitLocked(MessageEvent{Envelope: env})
		}
		c.unlockAndEmit()
	}
}

// Send 连接打开时立即发送，否则进入发送队列
// 仅在信封无法编码时返回错误
func (c *Core) Send(env Envelope) error {
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	if env.Timestamp == 0 {
		env.Timestamp = c.clock.Now().UnixMilli()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateOpen || c.queue.Len() > 0 {
		c.enqueueLocked(env)
		c.unlockAndEmit()
		return nil
	}
	if err := c.conn.Write(data, c.clock.Now().Add(c.cfg.WriteTimeout)); err != nil {
		c.enqueueLocked(env)
		c.failLocked(ErrTransport.WithError(err))
		c.unlockAndEmit()
		return nil
	}
	c.metrics.IncrementMessagesSent(c.cfg.Endpoint, env.Type)
	c.mu.Unlock()
	return nil
}

// SendJSON 编码 payload 后发送
func (c *Core) SendJSON(typ string, payload any) error {
	env, err := NewEnvelope(typ, payload)
	if err != nil {
		return err
	}
	env.Timestamp = c.clock.Now().UnixMilli()
	return c.Send(env)
}

func (c *Core) enqueueLocked(env Envelope) {
	dropped, overflow := c.queue.Push(env)
	c.metrics.SetQueueLength(c.cfg.Endpoint, c.queue.Len())
	if !overflow {
		return
	}
	c.metrics.IncrementDroppedMessages(c.cfg.Endpoint)
	c.log.Warn("outbound queue overflow, dropped oldest",
		zap.String("dropped_id", dropped.ID),
		zap.String("dropped_type", dropped.Type),
		zap.Int("capacity", c.queue.Cap()),
	)
	c.emitLocked(QueueOverflowEvent{Dropped: dropped, Capacity: c.queue.Cap(), Err: ErrQueueOverflow})
}

func (c *Core) flushLocked() {
	for c.state == StateOpen {
		env, ok := c.queue.Peek()
		if !ok {
			break
		}
		data, err := json.Marshal(env)
		if err != nil {
			c.queue.Pop()
			c.log.Error("drop unencodable envelope", zap.String("id", env.ID), zap.Error(err))
			continue
		}
		if err := c.conn.Write(data, c.clock.Now().Add(c.cfg.WriteTimeout)); err != nil {
			c.failLocked(ErrTransport.WithError(err))
			break
		}
		c.queue.Pop()
		c.metrics.IncrementMessagesSent(c.cfg.Endpoint, env.Type)
	}
	c.metrics.SetQueueLength(c.cfg.Endpoint, c.queue.Len())
}

// failLocked 处理一次连接失败：拆除资源、通知等待者，再决定重连或终止
func (c *Core) failLocked(err error) {
	c.teardownLocked()
	c.lastErr = err
	c.metrics.IncrementConnectErrors(c.cfg.Endpoint, errors.CodeOf(err))
	c.resolvePendingLocked(err)
	c.emitLocked(ErrorEvent{Err: err})

	switch {
	case !Retryable(err):
		c.log.Error("connection rejected, not retrying", zap.Error(err))
		c.setStateLocked(StateFailed)
	case !c.online:
		c.setStateLocked(StateReconnecting)
	default:
		c.scheduleReconnectLocked()
	}
}

func (c *Core) scheduleReconnectLocked() {
	if c.attempt >= c.cfg.MaxReconnectAttempts {
		c.log.Error("reconnect attempts exhausted", zap.Int("attempts", c.attempt), zap.Error(c.lastErr))
		c.setStateLocked(StateFailed)
		c.emitLocked(ReconnectFailedEvent{Attempts: c.attempt, LastError: c.lastErr})
		return
	}

	delay := c.backoff.Next(c.attempt)
	c.attempt++
	c.nextDelay = delay
	c.setStateLocked(StateReconnecting)
	c.metrics.IncrementReconnectAttempts(c.cfg.Endpoint)
	c.log.Info("reconnect scheduled", zap.Int("attempt", c.attempt), zap.Duration("delay", delay))

	gen := c.gen
	c.reconnectTimer = c.clock.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.gen != gen || c.state != StateReconnecting || !c.online {
			c.mu.Unlock()
			return
		}
		c.reconnectTimer = nil
		c.beginConnectLocked(context.Background(), false)
		c.unlockAndEmit()
	})
	c.emitLocked(ReconnectingEvent{Attempt: c.attempt, Delay: delay})
}

// SetVisible 宿主可见性变化：不可见时暂停心跳，恢复可见时立即发送一次心跳校验存活
func (c *Core) SetVisible(visible bool) {
	c.mu.Lock()
	if c.visible == visible {
		c.mu.Unlock()
		return
	}
	c.visible = visible
	if !visible {
		stopTimer(&c.heartbeatTimer)
		c.pingOutstanding = false
		c.log.Debug("heartbeat paused")
	} else if c.state == StateOpen && c.cfg.EnableHeartbeat {
		c.pingLocked()
		if c.state == StateOpen {
			c.startHeartbeatLocked()
		}
	}
	c.unlockAndEmit()
}

// SetOnline 网络状态变化：离线时立即断开并停在 Reconnecting，恢复在线时跳过一次退避直接拨号
func (c *Core) SetOnline(online bool) {
	c.mu.Lock()
	if c.online == online {
		c.mu.Unlock()
		return
	}
	c.online = online
	if !online {
		if c.state.active() {
			c.log.Info("network offline")
			c.teardownLocked()
			c.resolvePendingLocked(ErrOffline)
			c.setStateLocked(StateReconnecting)
		}
	} else if c.state == StateReconnecting {
		c.log.Info("network online, reconnecting now")
		stopTimer(&c.reconnectTimer)
		c.beginConnectLocked(context.Background(), false)
	}
	c.unlockAndEmit()
}

// Disconnect 主动关闭：停止全部定时器、关闭连接、丢弃发送队列并发出一次 closed
func (c *Core) Disconnect() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.epoch.Add(1)
	c.teardownLocked()
	c.resolvePendingLocked(ErrClosed)
	c.clearQueueLocked("disconnect")
	c.attempt = 0
	c.nextDelay = 0
	c.setStateLocked(StateClosed)
	c.log.Info("disconnected")
	c.emitLocked(ClosedEvent{Reason: "disconnect"})
	c.unlockAndEmit()
}

// ClearQueue 丢弃发送队列中尚未发出的消息，返回丢弃条数
func (c *Core) ClearQueue() int {
	c.mu.Lock()
	n := c.clearQueueLocked("cleared")
	c.unlockAndEmit()
	return n
}

func (c *Core) clearQueueLocked(reason string) int {
	n := c.queue.Clear()
	c.metrics.SetQueueLength(c.cfg.Endpoint, 0)
	if n > 0 {
		c.log.Info("discarded queued messages", zap.String("reason", reason), zap.Int("count", n))
	}
	return n
}

// teardownLocked 使当前会话失效并释放其全部资源
func (c *Core) teardownLocked() {
	c.gen++
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	stopTimer(&c.connectTimer)
	stopTimer(&c.reconnectTimer)
	stopTimer(&c.debounceTimer)
	stopTimer(&c.heartbeatTimer)
	if c.conn != nil {
		// 关闭握手可能阻塞，留到释放锁之后
		c.closing = append(c.closing, c.conn)
		c.conn = nil
	}
	c.pingOutstanding = false
}

func (c *Core) resolvePendingLocked(err error) {
	if c.pending == nil {
		return
	}
	c.pending.resolve(err)
	c.pending = nil
	if err != nil {
		// 之后的 Connect 不再加入这次失败的调用
		c.group.Forget(c.target)
	}
}

func (c *Core) setStateLocked(to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.status.Store(int32(to))
	c.metrics.SetState(c.cfg.Endpoint, to)
	c.log.Debug("state changed", zap.Stringer("from", from), zap.Stringer("to", to))
	c.outbox = append(c.outbox, outEvent{
		ev:  StateChangedEvent{From: from, To: to},
		seq: c.stateSeq.Add(1),
	})
}

func (c *Core) emitLocked(ev Event) {
	c.outbox = append(c.outbox, outEvent{ev: ev})
}

// unlockAndEmit 释放锁后关闭被拆除的连接、分发本次持锁期间产生的事件，再启动挂起的协程
func (c *Core) unlockAndEmit() {
	events, spawns, closing := c.outbox, c.spawns, c.closing
	c.outbox, c.spawns, c.closing = nil, nil, nil
	epoch := c.epoch.Load()
	c.mu.Unlock()

	for _, conn := range closing {
		_ = conn.Close()
	}
	c.dispatch(epoch, events)
	for _, fn := range spawns {
		go fn()
	}
}

func (c *Core) dispatch(epoch uint64, events []outEvent) {
	for _, o := range events {
		for _, h := range c.subs.Handlers(o.ev.Type()) {
			if c.epoch.Load() != epoch {
				return
			}
			// 状态事件可能由不同协程分发，每次调用前确认仍是最新一次迁移
			if o.seq != 0 && o.seq != c.stateSeq.Load() {
				break
			}
			c.invoke(h, o.ev)
		}
	}
}

func (c *Core) invoke(h EventHandler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("event handler panic", zap.String("event", string(ev.Type())), zap.Any("panic", r))
		}
	}()
	h(ev)
}

func stopTimer(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func buildTarget(endpoint, token string, params url.Values) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			if v != "" {
				q.Add(k, v)
			}
		}
	}
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
