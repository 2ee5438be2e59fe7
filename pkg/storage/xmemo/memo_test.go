package xmemo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xmemo/pkg/observability/xlog"
	"github.com/omeyang/xmemo/pkg/storage/xkeystore"
	"github.com/omeyang/xmemo/pkg/util/xclock"
)

func newMemo(t *testing.T, opts ...Option) (*Memo, *xclock.Manual) {
	t.Helper()
	clk := xclock.NewManual(1000)
	m, err := New(append([]Option{WithClock(clk), WithLogger(xlog.Discard())}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { require.NoError(t, m.Stop(context.Background())) })
	return m, clk
}

func stats(t *testing.T, m *Memo, key string) Meta {
	t.Helper()
	meta, _, err := m.Stats(context.Background(), key)
	require.NoError(t, err)
	return meta
}

func TestPutFetchRoundTrip(t *testing.T) {
	m, _ := newMemo(t)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "k", "v"))
	res, err := m.Fetch(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StatusHit, res.Status)
	assert.True(t, res.OK())
	assert.NoError(t, res.Err())
	assert.Equal(t, "v", res.Value)
	assert.Equal(t, "k", res.Key)
	assert.True(t, res.Item.HasValue)

	res, err = m.Fetch(ctx, "absent")
	require.NoError(t, err)
	assert.Equal(t, StatusMissing, res.Status)
	assert.ErrorIs(t, res.Err(), ErrMissing)
	assert.Nil(t, res.Value)
}

func TestPutNilValueIsAValue(t *testing.T) {
	m, _ := newMemo(t)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "k", nil, WithWait()))
	res, err := m.Fetch(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StatusHit, res.Status)
	assert.Nil(t, res.Value)
}

func TestPutValidation(t *testing.T) {
	m, _ := newMemo(t)
	ctx := context.Background()

	err := m.Put(ctx, "k", 1, WithTTL(time.Second), WithExpired(never))
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "k", ce.Key)
	assert.Equal(t, LevelItem, ce.Level)
	assert.ErrorIs(t, err, ErrConfigurationConflict)

	assert.ErrorIs(t, m.Put(ctx, "k", 1, WithTTL(time.Microsecond)), ErrInvalidTTL)
	assert.ErrorIs(t, m.Put(ctx, "k", 1, WithTTL(1500*time.Microsecond)), ErrInvalidTTL)
	assert.ErrorIs(t, m.Put(ctx, "", 1), ErrEmptyKey)

	// 冲突在任何事务之前被拒绝
	assert.Equal(t, 0, m.Len())
	res, err := m.Fetch(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StatusMissing, res.Status)
}

func TestPolicyTTLBoundary(t *testing.T) {
	m, clk := newMemo(t)
	ctx := context.Background()
	_, err := m.SetTTL(ctx, 100*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, m.Put(ctx, "k", "v"))
	clk.Advance(99 * time.Millisecond)
	res, err := m.Fetch(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StatusHit, res.Status)

	clk.Advance(time.Millisecond)
	res, err = m.Fetch(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, res.Status)
	assert.ErrorIs(t, res.Err(), ErrExpired)
	assert.Nil(t, res.Value)
	assert.False(t, res.Item.HasValue, "expired value must not leak through the normal path")

	// 绕过过期判断仍可读取
	res, err = m.Fetch(ctx, "k", WithBypass())
	require.NoError(t, err)
	assert.Equal(t, StatusHit, res.Status)
	assert.Equal(t, "v", res.Value)
}

func TestUpdateRestartsTTL(t *testing.T) {
	m, clk := newMemo(t)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "k", 1, WithTTL(50*time.Millisecond)))
	clk.Advance(40 * time.Millisecond)
	require.NoError(t, m.Put(ctx, "k", 2, WithTTL(50*time.Millisecond)))
	clk.Advance(40 * time.Millisecond)

	res, err := m.Fetch(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StatusHit, res.Status)
	assert.Equal(t, 2, res.Value)
}

func TestPutReplacesItemExpiry(t *testing.T) {
	m, clk := newMemo(t)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "k", 1, WithTTL(10*time.Millisecond)))
	require.NoError(t, m.Put(ctx, "k", 2))
	clk.Advance(time.Hour)

	res, err := m.Fetch(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StatusHit, res.Status)
	assert.True(t, res.Item.Expiry.IsNone())
}

func TestPredicateExpiry(t *testing.T) {
	m, _ := newMemo(t)
	ctx := context.Background()
	m.SetAttrs(ctx, Used)
	_, err := m.SetExpired(ctx, func(it Item) bool { return it.Meta.Counter(Used) > 1 })
	require.NoError(t, err)

	require.NoError(t, m.Put(ctx, "k", "v"))
	for i, want := range []Status{StatusHit, StatusHit, StatusExpired} {
		res, err := m.Fetch(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, want, res.Status, "fetch #%d", i+1)
	}
	// 过期读取不计为使用
	assert.Equal(t, int64(2), stats(t, m, "k").Counter(Used))
}

func TestItemPredicateBeatsPolicyTTL(t *testing.T) {
	m, clk := newMemo(t)
	ctx := context.Background()
	_, err := m.SetTTL(ctx, 10*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, m.Put(ctx, "k", "v", WithExpired(never)))
	clk.Advance(time.Hour)
	res, err := m.Fetch(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StatusHit, res.Status)
}

func TestSetExpiredNil(t *testing.T) {
	m, _ := newMemo(t)
	_, err := m.SetExpired(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilPredicate)
	_, err = m.SetTTL(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestDeletePreservesStats(t *testing.T) {
	m, _ := newMemo(t)
	ctx := context.Background()
	m.SetAttrs(ctx, Missed, Updated)

	_, err := m.Fetch(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, m.Put(ctx, "k", "v"))
	require.NoError(t, m.Delete(ctx, "k"))

	res, err := m.Fetch(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StatusMissing, res.Status)

	meta := stats(t, m, "k")
	assert.Equal(t, int64(2), meta.Counter(Missed))
	// 删除计为一次更新
	assert.Equal(t, int64(1), meta.Counter(Updated))
}

func TestDeleteRemovesEmptyRecord(t *testing.T) {
	m, _ := newMemo(t)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "k", "v", WithWait()))
	assert.Equal(t, 1, m.Len())
	require.NoError(t, m.Delete(ctx, "k", WithWait()))
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.Keys())

	// 删除不存在的 key 不创建记录
	require.NoError(t, m.Delete(ctx, "absent", WithWait()))
	assert.Equal(t, 0, m.Len())
}

func TestDeleteKeepsCustom(t *testing.T) {
	m, _ := newMemo(t)
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "k", "v", WithCustom(map[string]any{"owner": "ops"})))
	require.NoError(t, m.Delete(ctx, "k", WithWait()))
	assert.Equal(t, 1, m.Len())

	out, err := m.GetItem(ctx, "k", func(it Item) any { return it.Custom["owner"] })
	require.NoError(t, err)
	assert.Equal(t, "ops", out)
}

func TestUntrackRemovesOnNextMutation(t *testing.T) {
	m, _ := newMemo(t)
	ctx := context.Background()
	m.TrackAttrs(ctx, Updated)

	require.NoError(t, m.Put(ctx, "k", 1))
	require.NoError(t, m.Put(ctx, "k", 2))
	assert.Equal(t, int64(1), stats(t, m, "k").Counter(Updated))

	m.UntrackAttrs(ctx, Updated)
	// 策略变更不会立即改写已有记录
	assert.True(t, stats(t, m, "k").Has(Updated))

	require.NoError(t, m.Put(ctx, "k", 3))
	assert.False(t, stats(t, m, "k").Has(Updated))
}

func TestSweepAppliesPolicy(t *testing.T) {
	m, _ := newMemo(t)
	ctx := context.Background()
	m.SetAttrs(ctx, Used)

	for i := range 5 {
		key := fmt.Sprintf("k%d", i)
		require.NoError(t, m.Put(ctx, key, i))
		require.NoError(t, m.Delete(ctx, key))
		_, err := m.Fetch(ctx, key) // missed 不被跟踪，记录为空
		require.NoError(t, err)
	}
	require.NoError(t, m.Put(ctx, "kept", 1))
	_, err := m.Fetch(ctx, "kept")
	require.NoError(t, err)
	require.True(t, stats(t, m, "kept").Has(Used))

	m.SetAttrs(ctx)
	n, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	// 整理以 PriorityLow 入队，同优先级读取排在其后
	meta, ok, err := m.Stats(ctx, "kept", WithPriority(xkeystore.PriorityLow))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, meta.Has(Used))

	ctx2, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.Sweep(ctx2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentPutsCountUpdates(t *testing.T) {
	m, _ := newMemo(t)
	ctx := context.Background()
	m.SetAttrs(ctx, Updated)

	const n = 64
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			assert.NoError(t, m.Put(ctx, "k", i, WithWait()))
		})
	}
	wg.Wait()
	assert.Equal(t, int64(n-1), stats(t, m, "k").Counter(Updated))
}

func TestFetchOrFail(t *testing.T) {
	m, clk := newMemo(t)
	ctx := context.Background()

	_, err := m.FetchOrFail(ctx, "k")
	var ke *KeyError
	require.ErrorAs(t, err, &ke)
	assert.Equal(t, "k", ke.Key)
	assert.ErrorIs(t, err, ErrMissing)

	require.NoError(t, m.Put(ctx, "k", "v", WithTTL(time.Second)))
	v, err := m.FetchOrFail(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	clk.Advance(time.Second)
	_, err = m.FetchOrFail(ctx, "k")
	assert.ErrorIs(t, err, ErrExpired)
	assert.Contains(t, err.Error(), `"k"`)
}

func TestGet(t *testing.T) {
	m, clk := newMemo(t)
	ctx := context.Background()
	m.SetAttrs(ctx, Used, Missed)
	double := func(v any) any {
		n, _ := v.(int)
		return n * 2
	}

	_, err := m.Get(ctx, "k", nil)
	assert.ErrorIs(t, err, ErrNilTransform)

	out, err := m.Get(ctx, "k", double, WithDefault(5))
	require.NoError(t, err)
	assert.Equal(t, 10, out)

	require.NoError(t, m.Put(ctx, "k", 21, WithTTL(time.Second)))
	out, err = m.Get(ctx, "k", double, WithDefault(5))
	require.NoError(t, err)
	assert.Equal(t, 42, out)

	clk.Advance(time.Second)
	out, err = m.Get(ctx, "k", func(v any) any { return v })
	require.NoError(t, err)
	assert.Nil(t, out)

	meta := stats(t, m, "k")
	assert.Equal(t, int64(1), meta.Counter(Used))
	assert.Equal(t, int64(2), meta.Counter(Missed))
}

func TestGetItem(t *testing.T) {
	m, _ := newMemo(t)
	ctx := context.Background()

	_, err := m.GetItem(ctx, "k", nil)
	assert.ErrorIs(t, err, ErrNilTransform)

	out, err := m.GetItem(ctx, "k", func(it Item) any { return it.HasValue })
	require.NoError(t, err)
	assert.Equal(t, false, out)

	out, err = m.GetItem(ctx, "k", func(it Item) any { return it.Value }, WithDefault("d"))
	require.NoError(t, err)
	assert.Equal(t, "d", out)

	require.NoError(t, m.Put(ctx, "k", "v", WithCustom(map[string]any{"a": 1})))
	out, err = m.GetItem(ctx, "k", func(it Item) any {
		it.Custom["a"] = 2 // 快照，修改不会写回
		return it.Value
	})
	require.NoError(t, err)
	assert.Equal(t, "v", out)

	out, err = m.GetItem(ctx, "k", func(it Item) any { return it.Custom["a"] })
	require.NoError(t, err)
	assert.Equal(t, 1, out)
}

func TestGetDetachedDoesNotBlockKey(t *testing.T) {
	m, _ := newMemo(t)
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "k", 1))

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan any, 1)
	go func() {
		out, err := m.Get(ctx, "k", func(v any) any {
			close(entered)
			<-release
			return v
		}, WithDetached())
		assert.NoError(t, err)
		done <- out
	}()

	<-entered
	// 变换仍在执行，同一 key 上的写入不受阻塞
	require.NoError(t, m.Put(ctx, "k", 2, WithWait(), WithTimeout(time.Second)))
	close(release)
	assert.Equal(t, 1, <-done)
}

func TestGetLowPriorityWaitsForQueued(t *testing.T) {
	m, _ := newMemo(t)
	ctx := context.Background()

	// 用一个阻塞的事务占住 key，使后续事务排队
	gate := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, m.store.Cast("k", func(cur Item, _ bool) (Item, xkeystore.Op) {
		close(started)
		<-gate
		return cur, xkeystore.OpKeep
	}))
	<-started

	done := make(chan any, 1)
	go func() {
		out, err := m.Get(ctx, "k", func(v any) any { return v }, WithPriority(xkeystore.PriorityLow))
		assert.NoError(t, err)
		done <- out
	}()
	// 低优先级读取先入队，普通优先级的写入仍排在它之前
	require.Eventually(t, func() bool { return queued(m, "k") == 1 }, time.Second, time.Millisecond)
	require.NoError(t, m.Put(ctx, "k", "late", WithPriority(xkeystore.PriorityNormal)))
	close(gate)
	assert.Equal(t, "late", <-done)
}

func TestAnchorMissingSurfaces(t *testing.T) {
	m, _ := newMemo(t)
	ctx := context.Background()

	// 无过期策略时 inserted_at 未被跟踪，写入后被整理掉
	require.NoError(t, m.Put(ctx, "k", "v", WithWait()))
	require.False(t, stats(t, m, "k").Has(InsertedAt))

	// 绕过配置调用写入没有 TTLSince 的 TTL 策略
	m.store.Props().Set(policyProp, Policy{Expiry: ExpireAfter(time.Second)})

	res, err := m.Fetch(ctx, "k")
	var ae *AnchorError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "k", ae.Key)
	assert.Equal(t, time.Second, ae.TTL)
	assert.ErrorIs(t, err, ErrAnchorMissing)
	assert.Equal(t, Result{Key: "k"}, res)

	_, err = m.Get(ctx, "k", func(v any) any { return v })
	assert.ErrorIs(t, err, ErrAnchorMissing)
	_, err = m.FetchOrFail(ctx, "k")
	assert.ErrorIs(t, err, ErrAnchorMissing)
}

func TestPolicyTTLSinceAnchor(t *testing.T) {
	clk := xclock.NewManual(0)
	m, err := New(WithClock(clk), WithLogger(xlog.Discard()), WithPolicy(Policy{Expiry: ExpireAfter(time.Second)}))
	require.NoError(t, err)
	assert.False(t, m.Policy().HasTTLSince)

	clk.Set(500)
	require.NoError(t, m.Start(context.Background()))
	defer func() { require.NoError(t, m.Stop(context.Background())) }()

	p := m.Policy()
	assert.True(t, p.HasTTLSince)
	assert.Equal(t, int64(500), p.TTLSince)

	clk.Set(900)
	p, err = m.SetTTL(context.Background(), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(900), p.TTLSince)

	p = m.ClearExpiry(context.Background())
	assert.False(t, p.HasTTLSince)
	assert.True(t, p.Expiry.IsNone())

	p, err = m.SetPolicy(context.Background(), Policy{Expiry: ExpireAfter(time.Second)})
	require.NoError(t, err)
	assert.Equal(t, int64(900), p.TTLSince)
	_, err = m.SetPolicy(context.Background(), Policy{Expiry: ExpireAfter(0)})
	assert.ErrorIs(t, err, ErrInvalidTTL)
	_, err = m.SetPolicy(context.Background(), Policy{Expiry: ExpireAfter(1500 * time.Microsecond)})
	assert.ErrorIs(t, err, ErrInvalidTTL)

	// TTL 不变时沿用原锚点，TTL 改变时重新记录
	clk.Set(1200)
	p, err = m.SetPolicy(context.Background(), Policy{Attrs: NewAttrSet(Used), Expiry: ExpireAfter(time.Second)})
	require.NoError(t, err)
	assert.Equal(t, int64(900), p.TTLSince)
	assert.True(t, p.Tracks(Used))

	p, err = m.SetPolicy(context.Background(), Policy{Expiry: ExpireAfter(3 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, int64(1200), p.TTLSince)
}

func TestRePutAfterDeleteUsesFreshAnchor(t *testing.T) {
	m, clk := newMemo(t)
	ctx := context.Background()
	m.SetAttrs(ctx, UpdatedAt)
	_, err := m.SetTTL(ctx, 10*time.Second)
	require.NoError(t, err)

	require.NoError(t, m.Put(ctx, "k", 1, WithWait()))
	require.NoError(t, m.Put(ctx, "k", 2, WithWait()))
	require.NoError(t, m.Delete(ctx, "k", WithWait()))
	updated, ok := stats(t, m, "k").Get(UpdatedAt)
	require.True(t, ok)
	assert.Equal(t, int64(1000), updated)

	clk.Advance(time.Hour)
	require.NoError(t, m.Put(ctx, "k", 3, WithWait()))
	res, err := m.Fetch(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StatusHit, res.Status)
	assert.Equal(t, 3, res.Value)

	clk.Advance(10 * time.Second)
	res, err = m.Fetch(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, res.Status)
}

func TestFetchDropsStatisticsWhenQueueFull(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := xlog.New().SetOutput(&buf).SetLevelString("debug").SetFormat("json").Build()
	require.NoError(t, err)
	defer func() { require.NoError(t, cleanup()) }()

	m, _ := newMemo(t, WithLogger(logger), WithStoreOptions(xkeystore.WithMaxPending(1)))
	ctx := context.Background()
	m.TrackAttrs(ctx, Used)

	// 谓词在读取事务内占满 key 的队列，使随后的统计补记入队失败
	var filled atomic.Bool
	pred := func(Item) bool {
		if filled.CompareAndSwap(false, true) {
			assert.NoError(t, m.store.Cast("k", func(cur Item, _ bool) (Item, xkeystore.Op) {
				return cur, xkeystore.OpKeep
			}))
		}
		return false
	}
	require.NoError(t, m.Put(ctx, "k", "v", WithExpired(pred), WithWait()))

	res, err := m.Fetch(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StatusHit, res.Status)
	assert.Equal(t, "v", res.Value)
	assert.True(t, filled.Load())

	assert.False(t, stats(t, m, "k").Has(Used))
	assert.Contains(t, buf.String(), "statistics dropped")
	assert.Contains(t, buf.String(), "queue full")
}

func TestNewValidation(t *testing.T) {
	_, err := New(WithLogger(xlog.Discard()), WithPolicy(Policy{Expiry: ExpireAfter(time.Nanosecond)}))
	assert.ErrorIs(t, err, ErrInvalidTTL)

	_, err = New(WithLogger(xlog.Discard()), WithStoreOptions(xkeystore.WithShardCount(3)))
	assert.ErrorIs(t, err, xkeystore.ErrInvalidShardCount)
}

func TestOperationsBeforeStart(t *testing.T) {
	m, err := New(WithLogger(xlog.Discard()), nil)
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, m.Put(ctx, "k", 1), xkeystore.ErrNotStarted)
	_, err = m.Fetch(ctx, "k")
	assert.ErrorIs(t, err, xkeystore.ErrNotStarted)
	assert.ErrorIs(t, m.Delete(ctx, "k"), xkeystore.ErrNotStarted)
}

func TestRunStopsOnCancel(t *testing.T) {
	m, err := New(WithLogger(xlog.Discard()))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool {
		return m.Put(context.Background(), "k", 1) == nil
	}, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.ErrorIs(t, m.Put(context.Background(), "k", 2), xkeystore.ErrClosed)
}

func TestTimeoutSurfaces(t *testing.T) {
	m, _ := newMemo(t)
	ctx := context.Background()

	gate := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, m.store.Cast("k", func(cur Item, _ bool) (Item, xkeystore.Op) {
		close(started)
		<-gate
		return cur, xkeystore.OpKeep
	}))
	<-started
	defer close(gate)

	_, err := m.Fetch(ctx, "k", WithTimeout(10*time.Millisecond))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

// queued 返回 key 上等待执行的事务数量
func queued(m *Memo, key string) int {
	return m.store.Pending(key)
}
