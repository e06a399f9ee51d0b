package tracing

import (
	"os"
	"strconv"

	"go.opentelemetry.io/otel/sdk/trace"
)

// 采样策略（Config.SamplingType）
const (
	SamplerAlways      = "always"
	SamplerNever       = "never"
	SamplerRatio       = "ratio"
	SamplerParentBased = "parent_based"
)

func validSamplingType(typ string) bool {
	switch typ {
	case "", SamplerAlways, SamplerNever, SamplerRatio, SamplerParentBased:
		return true
	}
	return false
}

// newSampler 选择采样器，OTEL_TRACES_SAMPLER 优先于配置
// 连接建立的 span 通常是根 span，parent_based 下由比例采样决定
func newSampler(cfg *Config) trace.Sampler {
	if name := os.Getenv("OTEL_TRACES_SAMPLER"); name != "" {
		return envSampler(name, envSamplerArg())
	}
	switch cfg.SamplingType {
	case SamplerAlways:
		return trace.AlwaysSample()
	case SamplerNever:
		return trace.NeverSample()
	case SamplerRatio:
		return trace.TraceIDRatioBased(cfg.SamplingRate)
	default:
		return trace.ParentBased(trace.TraceIDRatioBased(cfg.SamplingRate))
	}
}

// envSampler 按 OpenTelemetry 环境变量约定解析采样器，未知取值回退为 parentbased_always_on
func envSampler(name string, ratio float64) trace.Sampler {
	var root trace.Sampler
	parent := true
	switch name {
	case "always_on":
		root, parent = trace.AlwaysSample(), false
	case "always_off":
		root, parent = trace.NeverSample(), false
	case "traceidratio":
		root, parent = trace.TraceIDRatioBased(ratio), false
	case "parentbased_always_off":
		root = trace.NeverSample()
	case "parentbased_traceidratio":
		root = trace.TraceIDRatioBased(ratio)
	default:
		root = trace.AlwaysSample()
	}
	if parent {
		return trace.ParentBased(root)
	}
	return root
}

func envSamplerArg() float64 {
	ratio, err := strconv.ParseFloat(os.Getenv("OTEL_TRACES_SAMPLER_ARG"), 64)
	if err != nil || ratio < 0 || ratio > 1 {
		return 1.0
	}
	return ratio
}
