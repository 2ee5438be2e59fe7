// Package xkeystore 提供按 key 串行执行事务的进程内键值存储。
//
// 每个 key 拥有独立的待执行队列，同一 key 上的事务严格串行，
// 不同 key 之间完全并行。事务函数读取当前值并返回下一步动作：
// 保留（OpKeep）、写入（OpSet）或删除（OpPop）。
//
// # 调度模型
//
//	概念          说明
//	──────────────────────────────────────────────
//	分片          xxhash(key) & mask，默认 32 分片
//	队列          每个 key 一个优先级堆，同优先级 FIFO
//	执行者        队列非空时按需启动一个 goroutine，队列清空即退出
//	Call          入队并等待事务完成（受超时约束）
//	Cast          入队后立即返回，不等待
//	Props         存储级属性通道，读写互相原子
//
// # 优先级
//
// PriorityUrgent > PriorityHigh > PriorityNormal > PriorityLow。
// 高优先级事务优先出队，但不会抢占已经开始执行的事务。
//
// # 生命周期
//
//   - New 之后必须 Start，之前的 Call/Cast 返回 [ErrNotStarted]
//   - Start 执行可选的初始化钩子，受 WithStartTimeout 约束
//   - Stop 拒绝新事务并等待已入队事务全部执行完毕
//   - Run 实现 xrun.Service 风格：Start → 等待 ctx 取消 → Stop
//
// # 注意事项
//
//   - 事务内对同一 key 的 Call 会自我死锁；事务内可以安全地 Cast
//   - 事务 panic 会被恢复并记录堆栈，值保持不变，调用方收到 [ErrTxPanic]
//   - Call 超时后事务仍在队列中，之后仍会执行
package xkeystore
