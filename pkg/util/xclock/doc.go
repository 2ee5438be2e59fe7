// Package xclock 提供单调毫秒时钟。
//
// 所有时间戳与 TTL 比较都基于单调时钟：
// 数值为自基准时刻起经过的毫秒数，不受系统时间调整影响。
//
// # 实现
//
//   - [System]：进程级单调时钟，基于 time.Since 的单调读数
//   - [Manual]：手动推进的时钟，用于测试 TTL 边界
//   - [Func]：将 func() int64 适配为 [Clock]
//
// 注意：时钟数值只在同一进程内可比较，不可持久化或跨进程传递。
package xclock
