package config

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config 并发安全的 viper 封装：文件 + 环境变量 + 默认值，可选监听文件变化
type Config struct {
	viper *viper.Viper
	mu    sync.RWMutex

	file     fileSource
	env      envSource
	defaults map[string]any

	autoWatch bool
	watching  bool
	onChange  func()
	onError   func(error)
}

// fileSource 配置文件定位方式：path 非空时忽略其余字段
type fileSource struct {
	path  string
	name  string
	typ   string
	paths []string
}

type envSource struct {
	prefix   string
	replacer *strings.Replacer
}

// New 创建 Config，需调用 Load 读取文件
func New(opts ...Option) *Config {
	c := &Config{viper: viper.New()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load 读取配置文件；找不到文件返回 ErrConfigNotFound，解析失败返回 ErrConfigReadFailed
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range c.defaults {
		c.viper.SetDefault(k, v)
	}
	c.env.apply(c.viper)
	c.file.apply(c.viper)

	if err := c.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return ErrConfigNotFound.WithError(err)
		}
		return ErrConfigReadFailed.WithError(err)
	}
	if c.autoWatch {
		c.startWatch()
	}
	return nil
}

func (s envSource) apply(v *viper.Viper) {
	if s.prefix != "" {
		v.SetEnvPrefix(s.prefix)
		v.AutomaticEnv()
	}
	if s.replacer != nil {
		v.SetEnvKeyReplacer(s.replacer)
	}
}

func (s fileSource) apply(v *viper.Viper) {
	if s.path != "" {
		v.SetConfigFile(s.path)
		return
	}
	if s.name != "" {
		v.SetConfigName(s.name)
	}
	if s.typ != "" {
		v.SetConfigType(s.typ)
	}
	for _, p := range s.paths {
		v.AddConfigPath(p)
	}
}

// read 在读锁下访问 viper，文件监听重载时不会读到一半的状态
func read[T any](c *Config, fn func(*viper.Viper) T) T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fn(c.viper)
}

// Get 按类型断言取值，类型不符时返回零值
func Get[T any](c *Config, key string) T {
	v, _ := read(c, func(v *viper.Viper) any { return v.Get(key) }).(T)
	return v
}

func (c *Config) GetString(key string) string {
	return read(c, func(v *viper.Viper) string { return v.GetString(key) })
}

func (c *Config) GetInt(key string) int {
	return read(c, func(v *viper.Viper) int { return v.GetInt(key) })
}

func (c *Config) GetFloat64(key string) float64 {
	return read(c, func(v *viper.Viper) float64 { return v.GetFloat64(key) })
}

func (c *Config) GetBool(key string) bool {
	return read(c, func(v *viper.Viper) bool { return v.GetBool(key) })
}

func (c *Config) GetDuration(key string) time.Duration {
	return read(c, func(v *viper.Viper) time.Duration { return v.GetDuration(key) })
}

func (c *Config) GetStringMapString(key string) map[string]string {
	return read(c, func(v *viper.Viper) map[string]string { return v.GetStringMapString(key) })
}

// IsSet 文件、环境变量或默认值任一来源提供了该键
func (c *Config) IsSet(key string) bool {
	return read(c, func(v *viper.Viper) bool { return v.IsSet(key) })
}

// ConfigFileUsed 实际读取的文件路径
func (c *Config) ConfigFileUsed() string {
	return read(c, func(v *viper.Viper) string { return v.ConfigFileUsed() })
}

// Set 运行期覆盖，优先级高于文件与环境变量
func (c *Config) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viper.Set(key, value)
}

// Unmarshal 解码全部配置
func (c *Config) Unmarshal(rawVal any) error {
	return read(c, func(v *viper.Viper) error { return v.Unmarshal(rawVal) })
}

// UnmarshalKey 解码一个配置段；配置中缺失的字段保留 rawVal 里的原值，
// 因此可以先填默认值再解码
func (c *Config) UnmarshalKey(key string, rawVal any) error {
	return read(c, func(v *viper.Viper) error { return v.UnmarshalKey(key, rawVal) })
}

// Close 停止变更回调
func (c *Config) Close() {
	c.StopWatch()
}
