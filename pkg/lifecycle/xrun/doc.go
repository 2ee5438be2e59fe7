// Package xrun 提供基于 errgroup + context 的进程生命周期管理。
//
// 任一服务返回错误或收到终止信号时，共享的 context 被取消，
// 所有服务监听 ctx.Done() 并退出。
//
// # 快速开始
//
//	err := xrun.RunServices(ctx, nil, store, xrun.Ticker(time.Minute, false, sweep))
//	var sigErr *xrun.SignalError
//	if errors.As(err, &sigErr) {
//	    // 信号退出
//	}
//
// # 错误处理
//
//   - 服务返回的第一个非 context.Canceled 错误由 Wait 返回
//   - Group 被 Cancel(cause) 取消时，Wait 返回 cause（如 *SignalError）
//   - 无显式原因的取消返回 nil
//
// 直接使用 NewGroup 时不包含信号处理，Run/RunServices 默认监听
// SIGHUP、SIGINT、SIGTERM、SIGQUIT。
//
// [errgroup]: https://pkg.go.dev/golang.org/x/sync/errgroup
package xrun
