package xmemo

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// Attr 枚举由引擎自动维护的统计属性。
type Attr uint8

const (
	InsertedAt Attr = iota
	UpdatedAt
	UsedAt
	MissedAt
	Updated
	Used
	Missed

	attrCount
)

var attrNames = [attrCount]string{
	InsertedAt: "inserted_at",
	UpdatedAt:  "updated_at",
	UsedAt:     "used_at",
	MissedAt:   "missed_at",
	Updated:    "updated",
	Used:       "used",
	Missed:     "missed",
}

// String 返回属性名，与配置文件中的写法一致
func (a Attr) String() string {
	if a >= attrCount {
		return fmt.Sprintf("Attr(%d)", a)
	}
	return attrNames[a]
}

// IsTimestamp 报告属性是否为时间戳（否则为计数器）。
func (a Attr) IsTimestamp() bool {
	return a <= MissedAt
}

// ParseAttr 解析属性名，大小写不敏感。
func ParseAttr(s string) (Attr, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range attrNames {
		if n == name {
			return Attr(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAttr, s)
}

// AttrSet 是 Attr 的位集合，零值为空集。
type AttrSet uint8

// NewAttrSet 由属性列表构建集合
func NewAttrSet(attrs ...Attr) AttrSet {
	return AttrSet(0).With(attrs...)
}

// Has 报告集合是否包含 a
func (s AttrSet) Has(a Attr) bool {
	return a < attrCount && s&(1<<a) != 0
}

// With 返回加入 attrs 后的集合
func (s AttrSet) With(attrs ...Attr) AttrSet {
	for _, a := range attrs {
		if a < attrCount {
			s |= 1 << a
		}
	}
	return s
}

// Without 返回移除 attrs 后的集合
func (s AttrSet) Without(attrs ...Attr) AttrSet {
	for _, a := range attrs {
		if a < attrCount {
			s &^= 1 << a
		}
	}
	return s
}

// Slice 按声明顺序返回集合中的属性
func (s AttrSet) Slice() []Attr {
	var out []Attr
	for a := range attrCount {
		if s.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

func (s AttrSet) String() string {
	names := make([]string, 0, attrCount)
	for _, a := range s.Slice() {
		names = append(names, a.String())
	}
	return "[" + strings.Join(names, " ") + "]"
}

// Meta 保存条目上实际存在的统计属性及其取值。Meta 是值类型，复制即快照。
type Meta struct {
	present AttrSet
	vals    [attrCount]int64
}

// Get 返回属性值及其是否存在
func (m Meta) Get(a Attr) (int64, bool) {
	if !m.present.Has(a) {
		return 0, false
	}
	return m.vals[a], true
}

// Has 报告属性是否存在
func (m Meta) Has(a Attr) bool {
	return m.present.Has(a)
}

// Counter 返回计数器值，不存在时为 0。
func (m Meta) Counter(a Attr) int64 {
	v, _ := m.Get(a)
	return v
}

// Set 写入属性值
func (m *Meta) Set(a Attr, v int64) {
	if a >= attrCount {
		return
	}
	m.present = m.present.With(a)
	m.vals[a] = v
}

// Drop 移除属性
func (m *Meta) Drop(a Attr) {
	if a >= attrCount {
		return
	}
	m.present = m.present.Without(a)
	m.vals[a] = 0
}

// Attrs 返回存在的属性集合
func (m Meta) Attrs() AttrSet {
	return m.present
}

// IsZero 报告是否不含任何属性
func (m Meta) IsZero() bool {
	return m.present == 0
}

// ExpiryKind 过期策略类型
type ExpiryKind uint8

const (
	ExpiryNone ExpiryKind = iota
	ExpiryTTL
	ExpiryPredicate
)

// PredicateFunc 判断条目是否过期。入参中缺失的计数器已补为 0。
type PredicateFunc func(Item) bool

// Expiry 是过期策略变体：无、TTL 或谓词，三者互斥。零值为无。
type Expiry struct {
	kind ExpiryKind
	ttl  time.Duration
	pred PredicateFunc
}

// NoExpiry 返回永不过期的策略
func NoExpiry() Expiry {
	return Expiry{}
}

// ExpireAfter 返回 TTL 策略。TTL 以毫秒计，有效性由调用方校验。
func ExpireAfter(ttl time.Duration) Expiry {
	return Expiry{kind: ExpiryTTL, ttl: ttl}
}

// ExpireWhen 返回谓词策略，fn 为 nil 时等同 NoExpiry。
func ExpireWhen(fn PredicateFunc) Expiry {
	if fn == nil {
		return Expiry{}
	}
	return Expiry{kind: ExpiryPredicate, pred: fn}
}

// Kind 返回策略类型
func (e Expiry) Kind() ExpiryKind { return e.kind }

// TTL 返回 TTL，非 TTL 策略返回 0。
func (e Expiry) TTL() time.Duration { return e.ttl }

// Predicate 返回谓词，非谓词策略返回 nil。
func (e Expiry) Predicate() PredicateFunc { return e.pred }

// IsNone 报告是否为无过期策略
func (e Expiry) IsNone() bool { return e.kind == ExpiryNone }

func (e Expiry) String() string {
	switch e.kind {
	case ExpiryTTL:
		return "ttl(" + e.ttl.String() + ")"
	case ExpiryPredicate:
		return "predicate"
	default:
		return "none"
	}
}

// validTTL 要求 TTL 为整毫秒且不小于 1ms，过期判断按毫秒计算。
func validTTL(d time.Duration) error {
	if d < time.Millisecond || d%time.Millisecond != 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTTL, d)
	}
	return nil
}

// Item 是单个 key 的存储记录。
//
// HasValue 是"有值"的唯一依据，nil Value 也可以是合法载荷。
// 无值的条目只承载统计信息（例如删除之后）。
type Item struct {
	Value    any
	HasValue bool
	Expiry   Expiry
	Meta     Meta
	// Custom 是用户自定义属性，引擎不整理也不自动记录。
	Custom map[string]any
}

// IsEmpty 报告条目是否不含值、统计与自定义属性，此时可以从存储中删除。
func (it Item) IsEmpty() bool {
	return !it.HasValue && it.Meta.IsZero() && len(it.Custom) == 0
}

// Clone 返回不与原条目共享 Custom 的副本
func (it Item) Clone() Item {
	it.Custom = maps.Clone(it.Custom)
	return it
}

// mergeCustom 写时复制地合并自定义属性
func mergeCustom(cur, extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return cur
	}
	out := make(map[string]any, len(cur)+len(extra))
	maps.Copy(out, cur)
	maps.Copy(out, extra)
	return out
}
