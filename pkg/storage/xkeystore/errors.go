package xkeystore

import "errors"

var (
	// ErrNotStarted 表示 Store 尚未 Start。
	ErrNotStarted = errors.New("xkeystore: not started")

	// ErrClosed 表示 Store 已 Stop，不再接受新事务。
	ErrClosed = errors.New("xkeystore: closed")

	// ErrTimeout 表示 Call 在超时前未完成。
	// 返回的错误同时包装 context.DeadlineExceeded。
	ErrTimeout = errors.New("xkeystore: call timeout")

	// ErrStartTimeout 表示初始化钩子未在 WithStartTimeout 内完成。
	ErrStartTimeout = errors.New("xkeystore: start timeout")

	// ErrQueueFull 表示 key 的待执行队列已达 WithMaxPending 上限。
	ErrQueueFull = errors.New("xkeystore: queue full")

	// ErrTxPanic 表示事务函数 panic，值未被修改。
	ErrTxPanic = errors.New("xkeystore: transaction panicked")

	// ErrNilTx 表示事务函数为 nil。
	ErrNilTx = errors.New("xkeystore: nil transaction")

	// ErrNilContext 表示传入了 nil Context。
	ErrNilContext = errors.New("xkeystore: nil context")

	// ErrInvalidShardCount 表示分片数不是 2 的正整数幂或超出上限。
	ErrInvalidShardCount = errors.New("xkeystore: invalid shard count")
)
