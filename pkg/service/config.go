package service

import (
	"net/url"
	"strings"
	"time"

	"github.com/tokmz/realtime/pkg/config"
	"github.com/tokmz/realtime/pkg/errors"
	"github.com/tokmz/realtime/pkg/ws"
)

// ConfigKey 配置文件中的节点名
const ConfigKey = "realtime"

// ErrInvalidConfig 配置错误
var ErrInvalidConfig = errors.New(5201, "service: invalid config")

// ChannelConfig 单个通道的连接配置，时间字段单位为毫秒
type ChannelConfig struct {
	Endpoint             string  `mapstructure:"endpoint"` // 绝对地址，或相对 BaseURL 的路径
	ReconnectInterval    int     `mapstructure:"reconnect_interval"`
	MaxReconnectDelay    int     `mapstructure:"max_reconnect_delay"`
	MaxReconnectAttempts int     `mapstructure:"max_reconnect_attempts"`
	ReconnectJitter      float64 `mapstructure:"reconnect_jitter"`
	HeartbeatInterval    int     `mapstructure:"heartbeat_interval"`
	ConnectionTimeout    int     `mapstructure:"connection_timeout"`
	EnableHeartbeat      bool    `mapstructure:"enable_heartbeat"`
	EnableLogging        bool    `mapstructure:"enable_logging"`
	EnableDebounce       bool    `mapstructure:"enable_debounce"`
	DebounceMs           int     `mapstructure:"debounce_ms"`
	QueueSize            int     `mapstructure:"queue_size"`
}

// Config 实时连接服务配置
type Config struct {
	BaseURL       string        `mapstructure:"base_url"` // 如 wss://api.example.com
	Chat          ChannelConfig `mapstructure:"chat"`
	Notifications ChannelConfig `mapstructure:"notifications"`
}

// DefaultChannelConfig 通道默认配置
func DefaultChannelConfig(endpoint string) ChannelConfig {
	return ChannelConfig{
		Endpoint:             endpoint,
		ReconnectInterval:    1000,
		MaxReconnectDelay:    30000,
		MaxReconnectAttempts: 5,
		ReconnectJitter:      0.2,
		HeartbeatInterval:    30000,
		ConnectionTimeout:    10000,
		EnableHeartbeat:      true,
		EnableLogging:        true,
		EnableDebounce:       false,
		DebounceMs:           300,
		QueueSize:            256,
	}
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Chat:          DefaultChannelConfig("/ws/chat"),
		Notifications: DefaultChannelConfig("/ws/notifications"),
	}
}

// LoadConfig 从配置中读取 realtime 节点，未出现的字段保持默认值
func LoadConfig(c *config.Config) (Config, error) {
	cfg := DefaultConfig()
	if c == nil {
		return cfg, nil
	}
	if err := c.UnmarshalKey(ConfigKey, &cfg); err != nil {
		return cfg, ErrInvalidConfig.WithError(err)
	}
	return cfg, nil
}

// resolveEndpoint 将相对路径拼接到 BaseURL
func (c Config) resolveEndpoint(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", ErrInvalidConfig.WithError(err)
	}
	if u.IsAbs() {
		return endpoint, nil
	}
	if c.BaseURL == "" {
		return "", ErrInvalidConfig.WithMessage("service: base_url is required for relative endpoint " + endpoint)
	}
	base, err := url.Parse(strings.TrimRight(c.BaseURL, "/"))
	if err != nil {
		return "", ErrInvalidConfig.WithError(err)
	}
	switch base.Scheme {
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	}
	return base.JoinPath(u.Path).String(), nil
}

// wsConfig 转换为连接核心配置
func (c Config) wsConfig(ch ChannelConfig) (*ws.Config, error) {
	endpoint, err := c.resolveEndpoint(ch.Endpoint)
	if err != nil {
		return nil, err
	}
	cfg := ws.DefaultConfig()
	cfg.Endpoint = endpoint
	cfg.EnableHeartbeat = ch.EnableHeartbeat
	cfg.EnableLogging = ch.EnableLogging
	cfg.EnableDebounce = ch.EnableDebounce
	cfg.ReconnectJitter = ch.ReconnectJitter
	cfg.MaxReconnectAttempts = ch.MaxReconnectAttempts
	setMillis(&cfg.ReconnectInterval, ch.ReconnectInterval)
	setMillis(&cfg.MaxReconnectDelay, ch.MaxReconnectDelay)
	setMillis(&cfg.HeartbeatInterval, ch.HeartbeatInterval)
	setMillis(&cfg.ConnectionTimeout, ch.ConnectionTimeout)
	setMillis(&cfg.Debounce, ch.DebounceMs)
	if ch.QueueSize > 0 {
		cfg.QueueSize = ch.QueueSize
	}
	return cfg, nil
}

func setMillis(dst *time.Duration, ms int) {
	if ms > 0 {
		*dst = time.Duration(ms) * time.Millisecond
	}
}
