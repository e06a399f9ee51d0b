// Package wstest 提供连接核心的测试替身：可手动推进的时钟与内存传输层
package wstest

import (
	"sort"
	"sync"
	"time"

	"github.com/tokmz/realtime/pkg/ws"
)

// FakeClock 手动推进的时钟；到期回调在 Advance 的调用协程中同步执行
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *FakeClock
	at    time.Time
	seq   int
	f     func()
	done  bool
}

// NewFakeClock 创建起始于 start 的时钟
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now 当前模拟时间
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc 注册定时回调
func (c *FakeClock) AfterFunc(d time.Duration, f func()) ws.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Stop 取消定时器，已触发或已取消时返回 false
func (t *fakeTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	c.removeLocked(t)
	return true
}

func (c *FakeClock) removeLocked(t *fakeTimer) {
	for i, x := range c.timers {
		if x == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}

// Advance 推进时间，按到期顺序依次执行回调（回调中新注册且到期的定时器同样会执行）
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		t := c.nextLocked()
		if t == nil || t.at.After(target) {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = t.at
		t.done = true
		c.removeLocked(t)
		c.mu.Unlock()

		t.f()
	}
}

func (c *FakeClock) nextLocked() *fakeTimer {
	if len(c.timers) == 0 {
		return nil
	}
	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].at.Equal(c.timers[j].at) {
			return c.timers[i].seq < c.timers[j].seq
		}
		return c.timers[i].at.Before(c.timers[j].at)
	})
	return c.timers[0]
}

// Pending 未触发的定时器数量
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// NextDeadline 最早到期的定时器时间
func (c *FakeClock) NextDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.nextLocked()
	if t == nil {
		return time.Time{}, false
	}
	return t.at, true
}

// UntilNext 距最早到期定时器的时长
func (c *FakeClock) UntilNext() (time.Duration, bool) {
	at, ok := c.NextDeadline()
	if !ok {
		return 0, false
	}
	return at.Sub(c.Now()), true
}
