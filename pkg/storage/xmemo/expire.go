package xmemo

// Expired 判断条目在 now 时刻是否过期。调用方应只对有值的条目调用。
//
// 条目的过期策略不为 None 时整体替代策略级设置，不按字段合并：
// 策略配置了谓词时，带 TTL 的条目仍只按自己的 TTL 判断。
//
// 谓词策略以补齐计数器后的条目副本调用谓词；TTL 策略以 updated_at 与
// inserted_at 中较晚的一个为锚点，两者都没有时使用策略的 TTLSince，
// 锚点 + ttl <= now 即过期。TTL 生效却没有任何锚点时返回 [*AnchorError]。
func Expired(it Item, p Policy, now int64) (bool, error) {
	e := effectiveExpiry(it, p)
	switch e.Kind() {
	case ExpiryPredicate:
		return e.Predicate()(predicateView(it)), nil
	case ExpiryTTL:
		ref, ok := ttlAnchor(it, p)
		if !ok {
			return false, &AnchorError{TTL: e.TTL()}
		}
		return ref+e.TTL().Milliseconds() <= now, nil
	default:
		return false, nil
	}
}

func ttlAnchor(it Item, p Policy) (int64, bool) {
	if a, ok := anchorOf(it.Meta); ok {
		return it.Meta.Counter(a), true
	}
	if p.HasTTLSince {
		return p.TTLSince, true
	}
	return 0, false
}

// predicateView 返回谓词看到的条目副本，缺失的计数器补为 0。
func predicateView(it Item) Item {
	v := it.Clone()
	for _, a := range [...]Attr{Updated, Used, Missed} {
		if !v.Meta.Has(a) {
			v.Meta.Set(a, 0)
		}
	}
	return v
}
