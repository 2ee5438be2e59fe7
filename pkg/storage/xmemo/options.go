package xmemo

import (
	"time"

	"github.com/omeyang/xmemo/pkg/observability/xlog"
	"github.com/omeyang/xmemo/pkg/observability/xmetrics"
	"github.com/omeyang/xmemo/pkg/storage/xkeystore"
	"github.com/omeyang/xmemo/pkg/util/xclock"
)

// Option 定义 Memo 可选配置。
type Option func(*options)

type options struct {
	clock     xclock.Clock
	logger    xlog.Logger
	observer  xmetrics.Observer
	policy    Policy
	storeOpts []xkeystore.Option
	name      string
}

func defaultOptions() options {
	return options{
		clock:    xclock.System(),
		observer: xmetrics.NoopObserver{},
		name:     "xmemo",
	}
}

// WithClock 设置时间源，默认 [xclock.System]。
func WithClock(c xclock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger 设置日志记录器，默认 xlog.Default()。同时作为底层存储的日志记录器。
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver 设置观测器，默认不观测。
func WithObserver(obs xmetrics.Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithPolicy 设置初始策略。TTL 策略的 TTLSince 在 Start 时补齐。
func WithPolicy(p Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithStoreOptions 透传底层存储配置。初始化钩子由 Memo 占用，传入的 WithInit 不生效。
func WithStoreOptions(opts ...xkeystore.Option) Option {
	return func(o *options) {
		o.storeOpts = append(o.storeOpts, opts...)
	}
}

// WithName 设置日志与观测中使用的组件名，默认 "xmemo"。
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// OpOption 定义单次操作的可选配置。
// 不适用于当前操作的选项会被忽略，例如对 Fetch 传入 WithTTL。
type OpOption func(*opOptions)

type opOptions struct {
	// Put
	expiry  Expiry
	hasTTL  bool
	hasPred bool
	custom  map[string]any

	// Put / Delete
	wait bool

	// 读取
	def      any
	hasDef   bool
	detached bool
	bypass   bool

	// 全部
	priority    xkeystore.Priority
	hasPriority bool
	timeout     time.Duration
	hasTimeout  bool
}

func applyOpOptions(opts []OpOption) opOptions {
	var o opOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// callOptions 转换为存储调用选项，未指定优先级时使用 def。
func (o opOptions) callOptions(def xkeystore.Priority) []xkeystore.CallOption {
	prio := def
	if o.hasPriority {
		prio = o.priority
	}
	out := []xkeystore.CallOption{xkeystore.WithPriority(prio)}
	if o.hasTimeout {
		out = append(out, xkeystore.WithTimeout(o.timeout))
	}
	return out
}

func (o opOptions) priorityOr(def xkeystore.Priority) xkeystore.Priority {
	if o.hasPriority {
		return o.priority
	}
	return def
}

// WithTTL 为 Put 设置条目级 TTL，不能与 WithExpired 同时使用。
func WithTTL(ttl time.Duration) OpOption {
	return func(o *opOptions) {
		o.expiry = ExpireAfter(ttl)
		o.hasTTL = true
	}
}

// WithExpired 为 Put 设置条目级过期谓词，不能与 WithTTL 同时使用。
func WithExpired(fn PredicateFunc) OpOption {
	return func(o *opOptions) {
		if fn == nil {
			return
		}
		o.expiry = ExpireWhen(fn)
		o.hasPred = true
	}
}

// WithCustom 为 Put 合并自定义属性
func WithCustom(attrs map[string]any) OpOption {
	return func(o *opOptions) {
		o.custom = mergeCustom(o.custom, attrs)
	}
}

// WithWait 使 Put/Delete 等待事务完成后再返回，默认只保证已入队。
func WithWait() OpOption {
	return func(o *opOptions) {
		o.wait = true
	}
}

// WithDefault 设置值缺失或过期时 Get/GetItem 使用的默认值。
func WithDefault(v any) OpOption {
	return func(o *opOptions) {
		o.def = v
		o.hasDef = true
	}
}

// WithDetached 使 Get/GetItem 的变换函数在事务之外执行，不阻塞该 key 上的后续事务。
func WithDetached() OpOption {
	return func(o *opOptions) {
		o.detached = true
	}
}

// WithBypass 使读取跳过过期判断，过期值照常返回。
func WithBypass() OpOption {
	return func(o *opOptions) {
		o.bypass = true
	}
}

// WithPriority 设置事务优先级。读取默认 PriorityNormal，Put/Delete 默认 PriorityHigh；
// PriorityLow 使读取排在该 key 上已排队的更高优先级事务之后。
func WithPriority(p xkeystore.Priority) OpOption {
	return func(o *opOptions) {
		o.priority = p
		o.hasPriority = true
	}
}

// WithTimeout 覆盖等待事务完成的超时，d <= 0 表示不设超时。
func WithTimeout(d time.Duration) OpOption {
	return func(o *opOptions) {
		o.timeout = d
		o.hasTimeout = true
	}
}
