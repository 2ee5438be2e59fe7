package xkeystore

import (
	"context"
	"fmt"
	"time"

	"github.com/omeyang/xmemo/pkg/observability/xlog"
)

const (
	defaultShardCount   = 32
	maxShardCount       = 1 << 16 // 65536
	defaultTimeout      = 5 * time.Second
	defaultStartTimeout = 5 * time.Second
)

// InitFunc 是 Start 时执行的初始化钩子，可用于预置存储属性。
// ctx 在 WithStartTimeout 到期时取消，钩子应遵守 ctx。
type InitFunc func(ctx context.Context, props *Props) error

// Option 定义 Store 可选配置。
type Option func(*options)

type options struct {
	shardCount   int
	shardMask    uint64 // validate() 计算
	timeout      time.Duration
	startTimeout time.Duration
	maxPending   int
	init         InitFunc
	logger       xlog.Logger
	name         string
}

func defaultOptions() options {
	return options{
		shardCount:   defaultShardCount,
		timeout:      defaultTimeout,
		startTimeout: defaultStartTimeout,
		name:         "xkeystore",
	}
}

// WithShardCount 设置分片数量。
// n 必须为正整数且为 2 的幂，上限 65536，否则 New 返回错误。默认 32。
func WithShardCount(n int) Option {
	return func(o *options) {
		o.shardCount = n
	}
}

// WithDefaultTimeout 设置 Call 的默认超时，默认 5s。
// d <= 0 表示不设超时，仅受调用方 ctx 约束。
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithStartTimeout 设置初始化钩子的超时，默认 5s。
// d <= 0 表示不设超时。
func WithStartTimeout(d time.Duration) Option {
	return func(o *options) {
		o.startTimeout = d
	}
}

// WithMaxPending 限制单个 key 的待执行事务数，超出返回 [ErrQueueFull]。
// n <= 0 表示不限制（默认）。
func WithMaxPending(n int) Option {
	if n < 0 {
		n = 0
	}
	return func(o *options) {
		o.maxPending = n
	}
}

// WithInit 设置 Start 时执行的初始化钩子。
func WithInit(fn InitFunc) Option {
	return func(o *options) {
		o.init = fn
	}
}

// WithLogger 设置日志记录器，nil 被忽略。默认使用 xlog.Default()。
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithName 设置存储名称，出现在日志的 component 属性中。
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

func (o *options) validate() error {
	sc := o.shardCount
	if sc <= 0 || sc > maxShardCount || sc&(sc-1) != 0 {
		return fmt.Errorf("%w: must be a positive power of 2 (max %d), got %d",
			ErrInvalidShardCount, maxShardCount, sc)
	}
	o.shardMask = uint64(sc - 1)
	if o.logger == nil {
		o.logger = xlog.Default()
	}
	return nil
}

// CallOption 定义单次 Call/Cast 的可选配置。
type CallOption func(*callOptions)

type callOptions struct {
	priority   Priority
	timeout    time.Duration
	hasTimeout bool
}

// WithPriority 设置事务优先级，默认 PriorityNormal。
func WithPriority(p Priority) CallOption {
	return func(o *callOptions) {
		o.priority = p
	}
}

// WithTimeout 覆盖本次 Call 的超时，d <= 0 表示不设超时。对 Cast 无效。
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = d
		o.hasTimeout = true
	}
}
