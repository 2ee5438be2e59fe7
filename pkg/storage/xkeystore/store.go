package xkeystore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/omeyang/xmemo/pkg/observability/xlog"
)

// Op 是事务函数返回的写入动作。
type Op uint8

const (
	// OpKeep 保留当前值不变
	OpKeep Op = iota
	// OpSet 以事务返回值替换当前值
	OpSet
	// OpPop 删除 key
	OpPop
)

// TxFunc 是单 key 事务。cur/ok 为执行时的当前值，返回下一值与写入动作。
type TxFunc[V any] func(cur V, ok bool) (next V, op Op)

const (
	stateNew int32 = iota
	stateStarted
	stateStopped
)

// Store 按 key 串行执行事务的分片存储。
type Store[V any] struct {
	shards []shard[V]
	mask   uint64
	opts   options
	logger xlog.Logger
	props  *Props

	// lifeMu 保护 state 切换与 wg.Add 的先后关系：
	// 入队持读锁，Stop 持写锁切换状态后再 Wait。
	lifeMu  sync.RWMutex
	state   int32
	wg      sync.WaitGroup
	startMu sync.Mutex

	seq  atomic.Uint64
	size atomic.Int64

	stopOnce sync.Once
	drained  chan struct{}
}

type shard[V any] struct {
	mu     sync.Mutex
	values map[string]V
	queues map[string]*queue[V]
}

// New 创建 Store。返回的 Store 需要 Start 后才能接受事务。
func New[V any](opts ...Option) (*Store[V], error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	shards := make([]shard[V], o.shardCount)
	for i := range shards {
		shards[i].values = make(map[string]V)
		shards[i].queues = make(map[string]*queue[V])
	}
	return &Store[V]{
		shards:  shards,
		mask:    o.shardMask,
		opts:    o,
		logger:  o.logger.With(xlog.Component(o.name)),
		props:   newProps(),
		drained: make(chan struct{}),
	}, nil
}

func (s *Store[V]) shardOf(key string) *shard[V] {
	return &s.shards[xxhash.Sum64String(key)&s.mask]
}

// Props 返回存储级属性通道
func (s *Store[V]) Props() *Props {
	return s.props
}

// Start 执行初始化钩子并开始接受事务。重复调用返回 nil，Stop 之后返回 [ErrClosed]。
func (s *Store[V]) Start(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.lifeMu.RLock()
	state := s.state
	s.lifeMu.RUnlock()
	switch state {
	case stateStarted:
		return nil
	case stateStopped:
		return ErrClosed
	}

	// 钩子执行期间不持有 lifeMu，Stop 可以并发完成
	if s.opts.init != nil {
		if err := s.runInit(ctx); err != nil {
			s.logger.Error(ctx, "store init failed", xlog.Err(err))
			return err
		}
	}

	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.state == stateStopped {
		return ErrClosed
	}
	s.state = stateStarted
	s.logger.Debug(ctx, "store started", xlog.Count(int64(len(s.shards))))
	return nil
}

func (s *Store[V]) runInit(ctx context.Context) error {
	if s.opts.startTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.startTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("%w: init: %v", ErrTxPanic, r)
			}
		}()
		done <- s.opts.init(ctx, s.props)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w", ErrStartTimeout, ctx.Err())
		}
		return ctx.Err()
	}
}

// Stop 拒绝新事务，并等待所有已入队事务执行完毕或 ctx 结束。
// Stop 幂等；未 Start 的 Store 直接进入关闭状态。
func (s *Store[V]) Stop(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	s.stopOnce.Do(func() {
		s.lifeMu.Lock()
		s.state = stateStopped
		s.lifeMu.Unlock()
		go func() {
			s.wg.Wait()
			close(s.drained)
		}()
	})

	select {
	case <-s.drained:
		s.logger.Debug(ctx, "store stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run 启动 Store，阻塞到 ctx 取消后以默认超时执行 Stop。
// ctx 取消视为正常退出，返回 nil。
func (s *Store[V]) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx := context.Background()
	if s.opts.timeout > 0 {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(stopCtx, s.opts.timeout)
		defer cancel()
	}
	return s.Stop(stopCtx)
}

// Call 将事务入队并等待其完成。
// 等待超过超时返回 [ErrTimeout]（事务仍会执行），事务 panic 返回 [ErrTxPanic]。
func (s *Store[V]) Call(ctx context.Context, key string, fn TxFunc[V], opts ...CallOption) error {
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilTx
	}
	o := s.callOptions(opts)

	t := &task[V]{fn: fn, prio: o.priority, done: make(chan error, 1)}
	if err := s.enqueue(key, t); err != nil {
		return err
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: key %q: %w", ErrTimeout, key, ctx.Err())
		}
		return ctx.Err()
	}
}

// Cast 将事务入队后立即返回。同一 key 上的 Cast 与 Call 按优先级和入队顺序执行。
func (s *Store[V]) Cast(key string, fn TxFunc[V], opts ...CallOption) error {
	if fn == nil {
		return ErrNilTx
	}
	o := s.callOptions(opts)
	return s.enqueue(key, &task[V]{fn: fn, prio: o.priority})
}

// Get 通过一次只读事务读取 key 的值，与该 key 上的其他事务有序。
func (s *Store[V]) Get(ctx context.Context, key string, opts ...CallOption) (V, bool, error) {
	var (
		val   V
		found bool
	)
	err := s.Call(ctx, key, func(cur V, ok bool) (V, Op) {
		val, found = cur, ok
		return cur, OpKeep
	}, opts...)
	if err != nil {
		// 超时后事务仍可能执行并写入 val，不能再读取
		var zero V
		return zero, false, err
	}
	return val, found, nil
}

// Peek 直接读取已提交的值，不经过队列，不保证与排队中的事务有序。
func (s *Store[V]) Peek(key string) (V, bool) {
	sh := s.shardOf(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.values[key]
	return v, ok
}

// Keys 返回当前已提交的全部 key 快照，顺序不定。
func (s *Store[V]) Keys() []string {
	keys := make([]string, 0, s.Len())
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k := range sh.values {
			keys = append(keys, k)
		}
		sh.mu.Unlock()
	}
	return keys
}

// Pending 返回 key 上排队等待执行的事务数量，不含正在执行的事务。
func (s *Store[V]) Pending(key string) int {
	sh := s.shardOf(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if q, ok := sh.queues[key]; ok {
		return q.len()
	}
	return 0
}

// Len 返回已提交的 key 数量
func (s *Store[V]) Len() int {
	return int(s.size.Load())
}

func (s *Store[V]) callOptions(opts []CallOption) callOptions {
	o := callOptions{priority: PriorityNormal}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if !o.hasTimeout {
		o.timeout = s.opts.timeout
	}
	return o
}

// enqueue 将任务放入 key 的队列，队列不存在时启动执行者。
func (s *Store[V]) enqueue(key string, t *task[V]) error {
	s.lifeMu.RLock()
	defer s.lifeMu.RUnlock()

	switch s.state {
	case stateNew:
		return ErrNotStarted
	case stateStopped:
		return ErrClosed
	}

	sh := s.shardOf(key)
	sh.mu.Lock()
	q, running := sh.queues[key]
	if !running {
		q = &queue[V]{}
		sh.queues[key] = q
	}
	if s.opts.maxPending > 0 && q.len() >= s.opts.maxPending {
		sh.mu.Unlock()
		return fmt.Errorf("%w: key %q", ErrQueueFull, key)
	}
	t.seq = s.seq.Add(1)
	q.push(t)
	sh.mu.Unlock()

	if !running {
		s.wg.Add(1)
		go s.drain(key, sh, q)
	}
	return nil
}

// drain 依次执行 key 队列中的任务，队列为空时注销自身并退出。
func (s *Store[V]) drain(key string, sh *shard[V], q *queue[V]) {
	defer s.wg.Done()
	for {
		sh.mu.Lock()
		if q.len() == 0 {
			delete(sh.queues, key)
			sh.mu.Unlock()
			return
		}
		t := q.pop()
		cur, ok := sh.values[key]
		sh.mu.Unlock()

		next, op, err := s.apply(key, t.fn, cur, ok)
		if err == nil {
			s.commit(sh, key, next, op, ok)
		}
		t.finish(err)
	}
}

// apply 执行事务函数并恢复 panic。
func (s *Store[V]) apply(key string, fn TxFunc[V], cur V, ok bool) (next V, op Op, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Stack(context.Background(), "transaction panicked",
				xlog.Key(key), xlog.Err(fmt.Errorf("%v", r)))
			err = fmt.Errorf("%w: key %q: %v", ErrTxPanic, key, r)
		}
	}()
	next, op = fn(cur, ok)
	return next, op, nil
}

func (s *Store[V]) commit(sh *shard[V], key string, next V, op Op, existed bool) {
	switch op {
	case OpSet:
		sh.mu.Lock()
		sh.values[key] = next
		sh.mu.Unlock()
		if !existed {
			s.size.Add(1)
		}
	case OpPop:
		if !existed {
			return
		}
		sh.mu.Lock()
		delete(sh.values, key)
		sh.mu.Unlock()
		s.size.Add(-1)
	}
}

// DefaultTimeout 返回 Call 的默认超时
func (s *Store[V]) DefaultTimeout() time.Duration {
	return s.opts.timeout
}
