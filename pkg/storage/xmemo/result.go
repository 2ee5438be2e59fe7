package xmemo

import "fmt"

// Status 是一次读取的结果分类。
type Status uint8

const (
	// StatusHit 表示值存在且未过期
	StatusHit Status = iota + 1
	// StatusMissing 表示没有值
	StatusMissing
	// StatusExpired 表示值存在但已过期
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusMissing:
		return "missing"
	case StatusExpired:
		return "expired"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Result 是 Fetch 的返回值。
//
// Item 是读取时条目的快照；非命中时 Item 不含值，过期值只能通过 WithBypass 读取。
type Result struct {
	Key    string
	Value  any
	Item   Item
	Status Status
}

// OK 报告是否命中
func (r Result) OK() bool {
	return r.Status == StatusHit
}

// Err 将非命中结果转换为 [ErrMissing] 或 [ErrExpired]，命中时返回 nil。
func (r Result) Err() error {
	switch r.Status {
	case StatusHit:
		return nil
	case StatusExpired:
		return ErrExpired
	default:
		return ErrMissing
	}
}
