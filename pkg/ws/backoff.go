package ws

import (
	"math"
	"time"
)

// Backoff 指数退避：delay = min(Base * 2^attempt, Max)，再叠加 ±Jitter 比例的抖动
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
	Rand   func() float64
}

// Delay 不含抖动的第 attempt 次（从 0 开始）退避时长
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := b.Base
	for i := 0; i < attempt; i++ {
		if b.Max > 0 && d >= b.Max/2 {
			return b.Max
		}
		if d > math.MaxInt64/2 {
			return d
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Next 含抖动的退避时长
func (b Backoff) Next(attempt int) time.Duration {
	d := b.Delay(attempt)
	if b.Jitter <= 0 || b.Rand == nil {
		return d
	}
	// Rand 取值 [0,1)，映射到 [-Jitter, +Jitter)
	factor := 1 + b.Jitter*(2*b.Rand()-1)
	return time.Duration(float64(d) * factor)
}
