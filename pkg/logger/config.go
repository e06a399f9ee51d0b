package logger

import "time"

// Format 日志格式
type Format string

const (
	JSONFormat    Format = "json"
	ConsoleFormat Format = "console"
)

// IsValid 检查格式是否有效
func (f Format) IsValid() bool {
	return f == JSONFormat || f == ConsoleFormat
}

// Config 日志配置
type Config struct {
	Name   string // Logger 名称
	Level  Level  // 日志级别（默认 InfoLevel）
	Format Format // 日志格式（json/console，默认 json）

	Console bool          // 是否输出到控制台（stderr）
	File    string        // 文件路径（空则不输出到文件）
	Rotate  *RotateConfig // 轮转配置（nil 则不轮转）

	Sampling *SamplingConfig // 采样配置（nil 则不采样）

	EnableCaller     bool // 是否记录调用位置
	EnableStacktrace bool // 是否记录堆栈（Error 及以上）
}

func (c *Config) setDefaults() {
	if c.Format == "" {
		c.Format = JSONFormat
	}
	// 未配置任何输出时默认输出到控制台
	if !c.Console && c.File == "" && c.Rotate == nil {
		c.Console = true
	}
	if c.Sampling != nil {
		c.Sampling.setDefaults()
	}
}

// SamplingConfig 采样配置
// 同一消息在每个 Tick 内前 Initial 条全部记录，之后每 Thereafter 条记录 1 条。
// 断线重连风暴期间的重复告警由此收敛。
type SamplingConfig struct {
	Tick       time.Duration // 统计窗口（默认 1s）
	Initial    int
	Thereafter int
}

func (s *SamplingConfig) setDefaults() {
	if s.Tick <= 0 {
		s.Tick = time.Second
	}
	if s.Initial == 0 {
		s.Initial = 100
	}
	if s.Thereafter == 0 {
		s.Thereafter = 100
	}
}
