package tracing

import (
	"time"

	"github.com/tokmz/realtime/pkg/errors"
)

// ErrInvalidConfig 追踪配置错误
var ErrInvalidConfig = errors.New(4001, "tracing: invalid config")

// Config 链路追踪配置
type Config struct {
	ServiceName      string            `mapstructure:"service_name"`
	ServiceVersion   string            `mapstructure:"service_version"`
	Environment      string            `mapstructure:"environment"`
	ExporterType     string            `mapstructure:"exporter"` // otlp/stdout/noop
	ExporterEndpoint string            `mapstructure:"endpoint"`
	ExporterHeaders  map[string]string `mapstructure:"headers"`
	Insecure         bool              `mapstructure:"insecure"`
	SamplingRate     float64           `mapstructure:"sampling_rate"` // 0.0-1.0
	SamplingType     string            `mapstructure:"sampling_type"` // always/never/ratio/parent_based
	Enabled          bool              `mapstructure:"enabled"`

	ResourceAttributes map[string]string `mapstructure:"resource_attributes"`

	BatchTimeout       time.Duration `mapstructure:"batch_timeout"`
	MaxExportBatchSize int           `mapstructure:"max_export_batch_size"`
	MaxQueueSize       int           `mapstructure:"max_queue_size"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ServiceName:        "realtime-client",
		ServiceVersion:     "1.0.0",
		Environment:        "development",
		ExporterType:       ExporterNoop,
		SamplingRate:       1.0,
		SamplingType:       SamplerParentBased,
		Enabled:            true,
		ResourceAttributes: make(map[string]string),
		BatchTimeout:       5 * time.Second,
		MaxExportBatchSize: 512,
		MaxQueueSize:       2048,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return ErrInvalidConfig.WithMessage("tracing: service name is required")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return ErrInvalidConfig.WithMessage("tracing: sampling rate must be between 0.0 and 1.0")
	}
	switch c.ExporterType {
	case ExporterOTLP, ExporterStdout, ExporterNoop:
	default:
		return ErrInvalidConfig.WithMessage("tracing: invalid exporter type: " + c.ExporterType)
	}
	if !validSamplingType(c.SamplingType) {
		return ErrInvalidConfig.WithMessage("tracing: invalid sampling type: " + c.SamplingType)
	}
	return nil
}
