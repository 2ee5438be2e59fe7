package xmemo

import (
	"errors"
	"fmt"
	"time"

	"github.com/omeyang/xmemo/pkg/storage/xkeystore"
)

var (
	// ErrMissing 表示 key 没有可用的值（从未写入或已删除）。
	ErrMissing = errors.New("xmemo: missing")

	// ErrExpired 表示值存在但已过期。
	ErrExpired = errors.New("xmemo: expired")

	// ErrConfigurationConflict 表示同时指定了 TTL 与过期谓词。
	ErrConfigurationConflict = errors.New("xmemo: ttl and expiry predicate are mutually exclusive")

	// ErrAnchorMissing 表示 TTL 生效但条目与策略都没有可用的时间锚点。
	// 这是 attrs 配置错误，不应被当作未过期处理。
	ErrAnchorMissing = errors.New("xmemo: ttl in effect without a timestamp anchor")

	// ErrInvalidTTL 表示 TTL 小于 1ms 或不是整毫秒。
	ErrInvalidTTL = errors.New("xmemo: ttl must be a whole number of milliseconds, at least 1ms")

	// ErrNilTransform 表示 Get/GetItem 的变换函数为 nil。
	ErrNilTransform = errors.New("xmemo: nil transform")

	// ErrNilPredicate 表示过期谓词为 nil。
	ErrNilPredicate = errors.New("xmemo: nil expiry predicate")

	// ErrEmptyKey 表示 key 为空字符串。
	ErrEmptyKey = errors.New("xmemo: empty key")

	// ErrUnknownAttr 表示无法识别的属性名。
	ErrUnknownAttr = errors.New("xmemo: unknown attribute")

	// ErrUnknownPredicate 表示配置引用了未注册的过期谓词。
	ErrUnknownPredicate = errors.New("xmemo: unknown expiry predicate")

	// ErrTimeout 表示操作未在超时前完成，底层事务是否执行不确定。
	ErrTimeout = xkeystore.ErrTimeout
)

// KeyError 是 FetchOrFail 返回的错误，Reason 为 ErrMissing 或 ErrExpired。
//
//	var ke *xmemo.KeyError
//	if errors.As(err, &ke) && errors.Is(ke, xmemo.ErrExpired) { ... }
type KeyError struct {
	Key    string
	Reason error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("xmemo: key %q: %v", e.Key, e.Reason)
}

// Unwrap 返回 Reason
func (e *KeyError) Unwrap() error {
	return e.Reason
}

// ConflictLevel 标识冲突发生的层级
type ConflictLevel string

const (
	LevelItem   ConflictLevel = "item"
	LevelPolicy ConflictLevel = "policy"
)

// ConflictError 表示同时提供了 TTL 与过期谓词。
// 条目级冲突在发起任何事务前同步返回。
type ConflictError struct {
	Key   string
	Level ConflictLevel
}

func (e *ConflictError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%v (%s level)", ErrConfigurationConflict, e.Level)
	}
	return fmt.Sprintf("%v (%s level, key %q)", ErrConfigurationConflict, e.Level, e.Key)
}

// Is 支持 errors.Is(err, ErrConfigurationConflict)
func (e *ConflictError) Is(target error) bool {
	return target == ErrConfigurationConflict
}

// AnchorError 表示 TTL 生效但没有时间锚点。
type AnchorError struct {
	Key string
	TTL time.Duration
}

func (e *AnchorError) Error() string {
	return fmt.Sprintf("%v (key %q, ttl %v)", ErrAnchorMissing, e.Key, e.TTL)
}

// Is 支持 errors.Is(err, ErrAnchorMissing)
func (e *AnchorError) Is(target error) bool {
	return target == ErrAnchorMissing
}
