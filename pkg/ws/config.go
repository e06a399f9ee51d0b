package ws

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/tokmz/realtime/pkg/logger"
)

// Config 连接核心配置，构造后不可变
type Config struct {
	// 连接配置
	Endpoint          string        // 完整 WebSocket 地址，如 wss://host/ws/chat
	ConnectionTimeout time.Duration // 建连超时
	WriteTimeout      time.Duration // 单次写超时
	ReadLimit         int64         // 单条消息最大字节数

	// 重连配置
	ReconnectInterval    time.Duration // 退避基准间隔
	MaxReconnectDelay    time.Duration // 退避上限
	MaxReconnectAttempts int           // 最大重连次数
	ReconnectJitter      float64       // 抖动比例（0.2 即 ±20%）

	// 心跳配置
	EnableHeartbeat   bool
	HeartbeatInterval time.Duration

	// 防抖配置
	EnableDebounce bool
	Debounce       time.Duration

	// 发送队列容量，满时丢弃最旧的消息
	QueueSize int

	EnableLogging bool

	// 依赖
	Logger    logger.Logger
	Metrics   Metrics
	Clock     Clock
	Transport Transport
	Rand      func() float64 // [0,1) 随机数，用于抖动
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		ConnectionTimeout:    10 * time.Second,
		WriteTimeout:         10 * time.Second,
		ReadLimit:            1 << 20, // 1MB
		ReconnectInterval:    time.Second,
		MaxReconnectDelay:    30 * time.Second,
		MaxReconnectAttempts: 5,
		ReconnectJitter:      0.2,
		EnableHeartbeat:      true,
		HeartbeatInterval:    30 * time.Second,
		EnableDebounce:       false,
		Debounce:             300 * time.Millisecond,
		QueueSize:            256,
		EnableLogging:        true,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return ErrInvalidConfig.WithMessage("ws: endpoint is required")
	}
	if c.ConnectionTimeout <= 0 {
		return ErrInvalidConfig.WithMessage(fmt.Sprintf("ws: ConnectionTimeout must be positive, got %v", c.ConnectionTimeout))
	}
	if c.ReconnectInterval <= 0 {
		return ErrInvalidConfig.WithMessage(fmt.Sprintf("ws: ReconnectInterval must be positive, got %v", c.ReconnectInterval))
	}
	if c.MaxReconnectDelay < c.ReconnectInterval {
		return ErrInvalidConfig.WithMessage(fmt.Sprintf("ws: MaxReconnectDelay (%v) must not be less than ReconnectInterval (%v)",
			c.MaxReconnectDelay, c.ReconnectInterval))
	}
	if c.MaxReconnectAttempts < 0 {
		return ErrInvalidConfig.WithMessage(fmt.Sprintf("ws: MaxReconnectAttempts must not be negative, got %d", c.MaxReconnectAttempts))
	}
	if c.ReconnectJitter < 0 || c.ReconnectJitter >= 1 {
		return ErrInvalidConfig.WithMessage(fmt.Sprintf("ws: ReconnectJitter must be in [0,1), got %v", c.ReconnectJitter))
	}
	if c.EnableHeartbeat && c.HeartbeatInterval <= 0 {
		return ErrInvalidConfig.WithMessage(fmt.Sprintf("ws: HeartbeatInterval must be positive, got %v", c.HeartbeatInterval))
	}
	if c.EnableDebounce && c.Debounce <= 0 {
		return ErrInvalidConfig.WithMessage(fmt.Sprintf("ws: Debounce must be positive, got %v", c.Debounce))
	}
	if c.QueueSize <= 0 {
		return ErrInvalidConfig.WithMessage(fmt.Sprintf("ws: QueueSize must be positive, got %d", c.QueueSize))
	}
	return nil
}

// applyDefaults 补全未设置的依赖
func (c *Config) applyDefaults() {
	if c.Logger == nil || !c.EnableLogging {
		c.Logger = logger.Nop()
	}
	if c.Metrics == nil {
		c.Metrics = &NoopMetrics{}
	}
	if c.Clock == nil {
		c.Clock = RealClock()
	}
	if c.Transport == nil {
		c.Transport = NewGorillaTransport()
	}
	if c.Rand == nil {
		c.Rand = rand.Float64
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
}

// Option 配置选项
type Option func(*Config)

// WithEndpoint 设置连接地址
func WithEndpoint(endpoint string) Option {
	return func(c *Config) {
		c.Endpoint = endpoint
	}
}

// WithConnectionTimeout 设置建连超时
func WithConnectionTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ConnectionTimeout = d
	}
}

// WithWriteTimeout 设置写超时
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.WriteTimeout = d
	}
}

// WithReadLimit 设置单条消息大小上限
func WithReadLimit(n int64) Option {
	return func(c *Config) {
		c.ReadLimit = n
	}
}

// WithReconnect 设置重连基准间隔与最大次数
func WithReconnect(interval time.Duration, maxAttempts int) Option {
	return func(c *Config) {
		c.ReconnectInterval = interval
		c.MaxReconnectAttempts = maxAttempts
	}
}

// WithMaxReconnectDelay 设置退避上限
func WithMaxReconnectDelay(d time.Duration) Option {
	return func(c *Config) {
		c.MaxReconnectDelay = d
	}
}

// WithReconnectJitter 设置抖动比例
func WithReconnectJitter(j float64) Option {
	return func(c *Config) {
		c.ReconnectJitter = j
	}
}

// WithHeartbeat 设置心跳；interval 为 0 时关闭心跳
func WithHeartbeat(interval time.Duration) Option {
	return func(c *Config) {
		c.EnableHeartbeat = interval > 0
		if interval > 0 {
			c.HeartbeatInterval = interval
		}
	}
}

// WithDebounce 设置建连防抖窗口；d 为 0 时关闭
func WithDebounce(d time.Duration) Option {
	return func(c *Config) {
		c.EnableDebounce = d > 0
		if d > 0 {
			c.Debounce = d
		}
	}
}

// WithQueueSize 设置发送队列容量
func WithQueueSize(size int) Option {
	return func(c *Config) {
		c.QueueSize = size
	}
}

// WithLogging 开关日志
func WithLogging(enable bool) Option {
	return func(c *Config) {
		c.EnableLogging = enable
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMetrics 设置监控
func WithMetrics(m Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithClock 设置时钟（测试中注入假时钟）
func WithClock(clock Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithTransport 设置传输层
func WithTransport(t Transport) Option {
	return func(c *Config) {
		c.Transport = t
	}
}

// WithRand 设置抖动随机源
func WithRand(fn func() float64) Option {
	return func(c *Config) {
		c.Rand = fn
	}
}
