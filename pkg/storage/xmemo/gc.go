package xmemo

// effectiveExpiry 返回条目实际生效的过期策略：条目自身策略非空时整体遮蔽策略默认值。
func effectiveExpiry(it Item, p Policy) Expiry {
	if !it.Expiry.IsNone() {
		return it.Expiry
	}
	return p.Expiry
}

// anchorOf 返回条目上的 TTL 时间锚点：updated_at 与 inserted_at 中较晚的一个，
// 相等时取 updated_at。删除后重新写入时，新的 inserted_at 晚于删除留下的 updated_at。
func anchorOf(m Meta) (Attr, bool) {
	u, hasU := m.Get(UpdatedAt)
	i, hasI := m.Get(InsertedAt)
	switch {
	case hasU && (!hasI || u >= i):
		return UpdatedAt, true
	case hasI:
		return InsertedAt, true
	default:
		return 0, false
	}
}

// GC 按策略整理条目，返回新的条目，不修改入参。
//
// 无值条目丢弃值、过期策略和 inserted_at。未被跟踪的统计属性全部丢弃，
// 唯一例外是：条目有值且 TTL 生效时，保留一个时间锚点（见 anchorOf）。
// 自定义属性不受影响。
//
// GC 是幂等的：GC(GC(x, p), p) 与 GC(x, p) 相等。
func GC(it Item, p Policy) Item {
	if !it.HasValue {
		it.Value = nil
		it.Expiry = NoExpiry()
		it.Meta.Drop(InsertedAt)
	}

	keep := p.Attrs
	if it.HasValue && effectiveExpiry(it, p).Kind() == ExpiryTTL {
		if a, ok := anchorOf(it.Meta); ok {
			keep = keep.With(a)
		}
	}

	for _, a := range it.Meta.Attrs().Slice() {
		if !keep.Has(a) {
			it.Meta.Drop(a)
		}
	}
	return it
}
