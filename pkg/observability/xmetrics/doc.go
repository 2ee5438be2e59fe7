// Package xmetrics 提供存储操作的观测接口（metrics + tracing）。
//
// 业务代码只依赖 Observer/Span 接口，默认实现基于 OpenTelemetry。
// 未配置 Observer 时使用 [NoopObserver]，零开销。
//
// # 使用示例
//
//	obs, _ := xmetrics.NewOTelObserver()
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Component: "xmemo",
//		Operation: "fetch",
//	})
//	defer func() { span.End(xmetrics.Result{Err: err, Outcome: "hit"}) }()
//
// # 指标命名
//
//   - xmemo.operation.total：操作次数
//   - xmemo.operation.duration：操作耗时（秒）
//   - xmemo.operation.inflight：进行中的操作数，仅按 component / operation 分组
//
// 计数与耗时的属性：component / operation / status / outcome。
package xmetrics
