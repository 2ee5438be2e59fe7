package xmemo

import (
	"context"
	"log/slog"
	"time"

	"github.com/omeyang/xmemo/pkg/observability/xlog"
)

// policyProp 是策略在存储属性通道中的名称
const policyProp = "xmemo.policy"

// Policy 是进程级条目策略的不可变快照。
type Policy struct {
	// Attrs 是需要记录的统计属性
	Attrs AttrSet
	// Expiry 是条目未指定过期策略时使用的默认策略
	Expiry Expiry
	// TTLSince 是最近一次配置策略 TTL 的时钟时间，HasTTLSince 为 false 时无效
	TTLSince    int64
	HasTTLSince bool
}

// Tracks 报告策略是否记录 a
func (p Policy) Tracks(a Attr) bool {
	return p.Attrs.Has(a)
}

func (p Policy) String() string {
	return "attrs=" + p.Attrs.String() + " expiry=" + p.Expiry.String()
}

func (p Policy) logAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("attrs", p.Attrs.String()),
		slog.String("expiry", p.Expiry.String()),
	}
}

// withExpiry 替换默认过期策略。TTL 策略重新记录 TTLSince，其他策略清除它。
func (p Policy) withExpiry(e Expiry, now int64) Policy {
	p.Expiry = e
	p.TTLSince, p.HasTTLSince = 0, false
	if e.Kind() == ExpiryTTL {
		p.TTLSince, p.HasTTLSince = now, true
	}
	return p
}

// Policy 返回当前策略快照
func (m *Memo) Policy() Policy {
	v, ok := m.store.Props().Get(policyProp)
	if !ok {
		return Policy{}
	}
	p, _ := v.(Policy)
	return p
}

// updatePolicy 在属性通道上原子地替换策略
func (m *Memo) updatePolicy(ctx context.Context, fn func(Policy) Policy) Policy {
	next := m.store.Props().Update(policyProp, func(cur any, _ bool) any {
		p, _ := cur.(Policy)
		return fn(p)
	}).(Policy)
	m.logger.Info(ctx, "policy updated", next.logAttrs()...)
	return next
}

// SetPolicy 整体替换策略。TTL 策略未设置 TTLSince 时，若当前策略的 TTL 相同则沿用
// 当前的 TTLSince，否则以当前时间补齐；只改 attrs 的配置重载因此不会延长条目寿命。
func (m *Memo) SetPolicy(ctx context.Context, p Policy) (Policy, error) {
	switch p.Expiry.Kind() {
	case ExpiryTTL:
		if err := validTTL(p.Expiry.TTL()); err != nil {
			return m.Policy(), err
		}
	default:
		p.TTLSince, p.HasTTLSince = 0, false
	}
	now := m.clock.Now()
	return m.updatePolicy(ctx, func(cur Policy) Policy {
		next := p
		if next.Expiry.Kind() != ExpiryTTL || next.HasTTLSince {
			return next
		}
		if cur.Expiry.Kind() == ExpiryTTL && cur.Expiry.TTL() == next.Expiry.TTL() && cur.HasTTLSince {
			next.TTLSince, next.HasTTLSince = cur.TTLSince, true
		} else {
			next.TTLSince, next.HasTTLSince = now, true
		}
		return next
	}), nil
}

// SetAttrs 将记录的属性集合替换为 attrs
func (m *Memo) SetAttrs(ctx context.Context, attrs ...Attr) Policy {
	set := NewAttrSet(attrs...)
	return m.updatePolicy(ctx, func(p Policy) Policy {
		p.Attrs = set
		return p
	})
}

// TrackAttrs 开始记录 attrs
func (m *Memo) TrackAttrs(ctx context.Context, attrs ...Attr) Policy {
	return m.updatePolicy(ctx, func(p Policy) Policy {
		p.Attrs = p.Attrs.With(attrs...)
		return p
	})
}

// UntrackAttrs 停止记录 attrs；已记录的值在对应 key 下一次整理时移除。
func (m *Memo) UntrackAttrs(ctx context.Context, attrs ...Attr) Policy {
	return m.updatePolicy(ctx, func(p Policy) Policy {
		p.Attrs = p.Attrs.Without(attrs...)
		return p
	})
}

// SetTTL 设置默认 TTL 并清除默认谓词，TTLSince 记为当前时间。
func (m *Memo) SetTTL(ctx context.Context, ttl time.Duration) (Policy, error) {
	if err := validTTL(ttl); err != nil {
		return m.Policy(), err
	}
	now := m.clock.Now()
	return m.updatePolicy(ctx, func(p Policy) Policy {
		return p.withExpiry(ExpireAfter(ttl), now)
	}), nil
}

// SetExpired 设置默认过期谓词并清除默认 TTL。
func (m *Memo) SetExpired(ctx context.Context, fn PredicateFunc) (Policy, error) {
	if fn == nil {
		return m.Policy(), ErrNilPredicate
	}
	return m.updatePolicy(ctx, func(p Policy) Policy {
		return p.withExpiry(ExpireWhen(fn), 0)
	}), nil
}

// ClearExpiry 清除默认过期策略
func (m *Memo) ClearExpiry(ctx context.Context) Policy {
	return m.updatePolicy(ctx, func(p Policy) Policy {
		return p.withExpiry(NoExpiry(), 0)
	})
}

// buildPolicy 组合策略级 TTL 与谓词。两者同时给出时丢弃 TTL 并记录告警。
// 返回的策略不含 TTLSince，由 SetPolicy 或 Start 补齐。
func buildPolicy(ctx context.Context, attrs AttrSet, ttl time.Duration, pred PredicateFunc, logger xlog.Logger) (Policy, error) {
	p := Policy{Attrs: attrs}
	switch {
	case pred != nil:
		if ttl != 0 {
			logger.Warn(ctx, "policy ttl dropped in favour of expiry predicate",
				xlog.Err(&ConflictError{Level: LevelPolicy}),
				slog.String("ttl", ttl.String()))
		}
		p.Expiry = ExpireWhen(pred)
	case ttl != 0:
		if err := validTTL(ttl); err != nil {
			return Policy{}, err
		}
		p.Expiry = ExpireAfter(ttl)
	}
	return p, nil
}
