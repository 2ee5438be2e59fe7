package xclock

import (
	"sync/atomic"
	"time"
)

// Clock 表示单调毫秒时间源。
// 所有实现都必须是并发安全的，且返回值单调不减。
type Clock interface {
	// Now 返回当前单调时间（毫秒）。
	Now() int64
}

// Func 将普通函数适配为 Clock。
type Func func() int64

// Now 调用 f。
func (f Func) Now() int64 { return f() }

// systemClock 基于进程启动时的基准时刻计算经过的毫秒数。
// time.Since 使用 time.Time 内部的单调读数，系统时间回拨不会影响结果。
type systemClock struct {
	base time.Time
}

func (c systemClock) Now() int64 {
	return time.Since(c.base).Milliseconds()
}

var processClock = systemClock{base: time.Now()}

// System 返回进程级单调时钟。
// 同一进程内所有调用共享同一基准时刻，返回值可互相比较。
func System() Clock {
	return processClock
}

// Manual 是手动推进的时钟，零值从 0 开始。
type Manual struct {
	now atomic.Int64
}

// NewManual 创建起始时间为 start 的手动时钟。
func NewManual(start int64) *Manual {
	m := &Manual{}
	m.now.Store(start)
	return m
}

// Now 返回当前设定的时间。
func (m *Manual) Now() int64 {
	return m.now.Load()
}

// Set 设置当前时间。
// 回拨会破坏单调性，仅由测试代码按需使用。
func (m *Manual) Set(ms int64) {
	m.now.Store(ms)
}

// Advance 将时钟前进 d（按毫秒截断），返回推进后的时间。
func (m *Manual) Advance(d time.Duration) int64 {
	return m.now.Add(d.Milliseconds())
}

// 编译期接口检查。
var (
	_ Clock = systemClock{}
	_ Clock = (*Manual)(nil)
	_ Clock = Func(nil)
)
