package xmemo

// 各事件对应的统计属性
var (
	insertEvents = []Attr{InsertedAt}
	updateEvents = []Attr{Updated, UpdatedAt}
	useEvents    = []Attr{Used, UsedAt}
	missEvents   = []Attr{Missed, MissedAt}
)

// Stamp 在条目上记录 events 并执行 [GC]：时间戳设为 now，计数器从 0 起加一。
// 未被跟踪的属性会被随后的 GC 移除，因此调用方无需预先过滤。
func Stamp(it Item, p Policy, now int64, events ...Attr) Item {
	return GC(stamp(it, now, events), p)
}

func stamp(it Item, now int64, events []Attr) Item {
	for _, a := range events {
		if a.IsTimestamp() {
			it.Meta.Set(a, now)
			continue
		}
		it.Meta.Set(a, it.Meta.Counter(a)+1)
	}
	return it
}
