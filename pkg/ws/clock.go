package ws

import "time"

// Timer 可取消的定时回调
type Timer interface {
	Stop() bool
}

// Clock 时间源，所有定时器均经由它创建
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock 基于标准库 time 的时钟
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
