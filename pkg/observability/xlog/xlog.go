package xlog

import (
	"context"
	"log/slog"
)

// Logger 是各包注入使用的日志接口。
//
// 方法以 context 开头，属性只接受 slog.Attr；存储和事务代码通过
// [Logger.With] 预先绑定组件名，调用点只补充 key、计数等动态属性。
type Logger interface {
	Debug(ctx context.Context, msg string, attrs ...slog.Attr)
	Info(ctx context.Context, msg string, attrs ...slog.Attr)
	Warn(ctx context.Context, msg string, attrs ...slog.Attr)
	Error(ctx context.Context, msg string, attrs ...slog.Attr)

	// Stack 以 Error 级别记录，并附带当前 goroutine 的堆栈，用于事务 panic
	Stack(ctx context.Context, msg string, attrs ...slog.Attr)

	With(attrs ...slog.Attr) Logger
	WithGroup(name string) Logger
}

// Leveler 支持运行时调整级别，派生 logger 与父级共享同一级别。
type Leveler interface {
	SetLevel(level Level)
	GetLevel() Level
	Enabled(ctx context.Context, level Level) bool
}

// LoggerWithLevel 是 [Builder.Build]、[Default] 和 [Discard] 的返回类型
type LoggerWithLevel interface {
	Logger
	Leveler
}

var _ LoggerWithLevel = (*xlogger)(nil)
