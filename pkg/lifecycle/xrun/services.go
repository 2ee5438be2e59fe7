package xrun

import (
	"context"
	"time"
)

// Service 是可由 Group 管理的长期任务，Run 阻塞到 ctx 取消或出错。
type Service interface {
	Run(ctx context.Context) error
}

// ServiceFunc 将函数适配为 Service
type ServiceFunc func(ctx context.Context) error

func (f ServiceFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Ticker 返回按 interval 周期执行 fn 的服务。fn 返回错误时服务退出，
// 希望单次失败不影响后续执行时由 fn 自行吞掉错误。
// immediate 为 true 时启动后先执行一次。
func Ticker(interval time.Duration, immediate bool, fn func(ctx context.Context) error) ServiceFunc {
	return func(ctx context.Context) error {
		if interval <= 0 {
			return ErrInvalidInterval
		}
		if fn == nil {
			return ErrNilFunc
		}
		if immediate {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx); err != nil {
				return err
			}
		}

		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if err := fn(ctx); err != nil {
					return err
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Idle 返回只等待 ctx 取消的服务，用于保持 Group 运行。
func Idle() ServiceFunc {
	return func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
}
