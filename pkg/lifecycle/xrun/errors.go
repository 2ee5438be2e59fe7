package xrun

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrSignal 表示因收到系统信号而终止。
	ErrSignal = errors.New("received signal")

	// ErrInvalidInterval 表示 Ticker 的间隔参数无效（必须为正数）。
	ErrInvalidInterval = errors.New("xrun: interval must be positive")

	// ErrNilFunc 表示传入了 nil 服务函数。
	ErrNilFunc = errors.New("xrun: nil function")

	// ErrNilService 表示传入了 nil Service。
	ErrNilService = errors.New("xrun: nil service")
)

// SignalError 包含触发终止的具体信号。
// errors.Is(err, ErrSignal) 判断是否为信号退出，errors.As 获取信号值。
type SignalError struct {
	Signal os.Signal
}

// Error 实现 error 接口
func (e *SignalError) Error() string {
	if e.Signal == nil {
		return "received signal <nil>"
	}
	return fmt.Sprintf("received signal %s", e.Signal)
}

// Is 支持 errors.Is(err, ErrSignal)
func (e *SignalError) Is(target error) bool {
	return target == ErrSignal
}

// Unwrap 返回 ErrSignal
func (e *SignalError) Unwrap() error {
	return ErrSignal
}
