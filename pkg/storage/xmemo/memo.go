package xmemo

import (
	"context"
	"errors"

	"github.com/omeyang/xmemo/pkg/observability/xlog"
	"github.com/omeyang/xmemo/pkg/observability/xmetrics"
	"github.com/omeyang/xmemo/pkg/storage/xkeystore"
	"github.com/omeyang/xmemo/pkg/util/xclock"
)

const (
	opPut    = "put"
	opFetch  = "fetch"
	opGet    = "get"
	opDelete = "delete"
	opSweep  = "sweep"

	outcomeQueued  = "queued"
	outcomeStored  = "stored"
	outcomeDeleted = "deleted"
)

// Memo 在 [xkeystore.Store] 之上维护带统计信息、可过期的条目。
// 所有方法并发安全。
type Memo struct {
	store    *xkeystore.Store[Item]
	clock    xclock.Clock
	logger   xlog.Logger
	observer xmetrics.Observer
	name     string
}

// New 创建 Memo。返回的 Memo 需要 Start（或 Run）后才能读写。
func New(opts ...Option) (*Memo, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = xlog.Default()
	}
	if o.policy.Expiry.Kind() == ExpiryTTL {
		if err := validTTL(o.policy.Expiry.TTL()); err != nil {
			return nil, err
		}
	}

	m := &Memo{
		clock:    o.clock,
		logger:   o.logger.With(xlog.Component(o.name)),
		observer: o.observer,
		name:     o.name,
	}

	storeOpts := make([]xkeystore.Option, 0, len(o.storeOpts)+3)
	storeOpts = append(storeOpts, xkeystore.WithLogger(o.logger), xkeystore.WithName(o.name+".store"))
	storeOpts = append(storeOpts, o.storeOpts...)
	storeOpts = append(storeOpts, xkeystore.WithInit(m.install))
	store, err := xkeystore.New[Item](storeOpts...)
	if err != nil {
		return nil, err
	}
	m.store = store
	store.Props().Set(policyProp, o.policy)
	return m, nil
}

// install 在存储启动时安装初始策略，TTL 策略以启动时刻为 TTLSince。
func (m *Memo) install(ctx context.Context, props *xkeystore.Props) error {
	now := m.clock.Now()
	p := props.Update(policyProp, func(cur any, _ bool) any {
		p, _ := cur.(Policy)
		if p.Expiry.Kind() == ExpiryTTL && !p.HasTTLSince {
			p.TTLSince, p.HasTTLSince = now, true
		}
		return p
	}).(Policy)
	m.logger.Info(ctx, "policy installed", p.logAttrs()...)
	return nil
}

// Start 启动底层存储
func (m *Memo) Start(ctx context.Context) error {
	return m.store.Start(ctx)
}

// Stop 停止接受新操作并等待已入队的事务执行完毕，ctx 限定等待时间。
func (m *Memo) Stop(ctx context.Context) error {
	return m.store.Stop(ctx)
}

// Run 启动 Memo 并阻塞到 ctx 取消，可直接作为 xrun 服务运行。
func (m *Memo) Run(ctx context.Context) error {
	return m.store.Run(ctx)
}

// Put 写入 key 的值。
//
// 默认以 PriorityHigh 入队后立即返回，之后同一调用方发起的读取不一定能看到本次写入；
// 需要可见性时使用 WithWait。WithTTL 与 WithExpired 同时指定时返回 [*ConflictError]，
// 不发起任何事务。已有值时计为一次更新，否则记录 inserted_at。
// 条目级过期策略每次写入都会被替换，未指定则清除。
func (m *Memo) Put(ctx context.Context, key string, value any, opts ...OpOption) (err error) {
	if key == "" {
		return ErrEmptyKey
	}
	o := applyOpOptions(opts)
	if o.hasTTL && o.hasPred {
		return &ConflictError{Key: key, Level: LevelItem}
	}
	if o.hasTTL {
		if err := validTTL(o.expiry.TTL()); err != nil {
			return err
		}
	}

	ctx, span := m.startSpan(ctx, opPut, key)
	var outcome string
	defer func() { span.End(xmetrics.Result{Err: err, Outcome: outcome}) }()

	tx := func(cur Item, _ bool) (Item, xkeystore.Op) {
		next := cur
		next.Custom = mergeCustom(cur.Custom, o.custom)
		next.Value, next.HasValue = value, true
		next.Expiry = o.expiry
		events := insertEvents
		if cur.HasValue {
			events = updateEvents
		}
		return Stamp(next, m.Policy(), m.clock.Now(), events...), xkeystore.OpSet
	}

	if !o.wait {
		if err = m.store.Cast(key, tx, o.callOptions(xkeystore.PriorityHigh)...); err != nil {
			return err
		}
		outcome = outcomeQueued
		return nil
	}
	if err = m.store.Call(ctx, key, tx, o.callOptions(xkeystore.PriorityHigh)...); err != nil {
		return err
	}
	outcome = outcomeStored
	return nil
}

// Fetch 读取 key 并判定过期。
//
// 命中时异步补记 used/used_at，缺失或过期时补记 missed/missed_at，读取本身不等待补记。
// WithBypass 跳过过期判断。TTL 生效而条目没有时间锚点时返回 [*AnchorError]。
func (m *Memo) Fetch(ctx context.Context, key string, opts ...OpOption) (res Result, err error) {
	o := applyOpOptions(opts)
	ctx, span := m.startSpan(ctx, opFetch, key)
	defer func() { span.End(xmetrics.Result{Err: err, Outcome: outcomeOf(res.Status, err)}) }()

	res, err = m.read(ctx, key, o, nil)
	if err != nil {
		return Result{Key: key}, err
	}
	return res, nil
}

// FetchOrFail 与 Fetch 相同，但缺失或过期时返回 [*KeyError]。
func (m *Memo) FetchOrFail(ctx context.Context, key string, opts ...OpOption) (any, error) {
	res, err := m.Fetch(ctx, key, opts...)
	if err != nil {
		return nil, err
	}
	if reason := res.Err(); reason != nil {
		return nil, &KeyError{Key: key, Reason: reason}
	}
	return res.Value, nil
}

// Get 对 key 的值执行 fn 并返回其结果。缺失或过期时 fn 收到 WithDefault 指定的默认值（默认 nil）。
//
// fn 默认在该 key 的事务内执行，期间同一 key 的其他操作排队等待；
// WithDetached 使 fn 在事务提交后执行。统计在 fn 执行之前补记。
func (m *Memo) Get(ctx context.Context, key string, fn func(any) any, opts ...OpOption) (any, error) {
	if fn == nil {
		return nil, ErrNilTransform
	}
	return m.transform(ctx, key, opts, func(r Result, o opOptions) any {
		if r.Status != StatusHit {
			return fn(o.def)
		}
		return fn(r.Value)
	})
}

// GetItem 对完整条目执行 fn。缺失或过期时条目的值替换为 WithDefault 指定的默认值，
// 未指定默认值则移除。fn 收到的是快照，修改不会写回。
func (m *Memo) GetItem(ctx context.Context, key string, fn func(Item) any, opts ...OpOption) (any, error) {
	if fn == nil {
		return nil, ErrNilTransform
	}
	return m.transform(ctx, key, opts, func(r Result, o opOptions) any {
		it := r.Item
		if r.Status != StatusHit {
			it.Value, it.HasValue = nil, false
			if o.hasDef {
				it.Value, it.HasValue = o.def, true
			}
		}
		return fn(it)
	})
}

// Delete 移除 key 的值并保留统计，删除计为一次更新。
// 整理后为空的条目从存储中删除。默认以 PriorityHigh 入队，WithWait 等待完成。
func (m *Memo) Delete(ctx context.Context, key string, opts ...OpOption) (err error) {
	o := applyOpOptions(opts)
	ctx, span := m.startSpan(ctx, opDelete, key)
	var outcome string
	defer func() { span.End(xmetrics.Result{Err: err, Outcome: outcome}) }()

	tx := func(cur Item, ok bool) (Item, xkeystore.Op) {
		if !ok {
			return cur, xkeystore.OpKeep
		}
		next := cur
		if next.HasValue {
			next = stamp(next, m.clock.Now(), updateEvents)
		}
		next.Value, next.HasValue = nil, false
		return settle(GC(next, m.Policy()), ok)
	}

	if !o.wait {
		if err = m.store.Cast(key, tx, o.callOptions(xkeystore.PriorityHigh)...); err != nil {
			return err
		}
		outcome = outcomeQueued
		return nil
	}
	if err = m.store.Call(ctx, key, tx, o.callOptions(xkeystore.PriorityHigh)...); err != nil {
		return err
	}
	outcome = outcomeDeleted
	return nil
}

// Stats 读取 key 的统计属性，不补记任何统计。
func (m *Memo) Stats(ctx context.Context, key string, opts ...OpOption) (Meta, bool, error) {
	o := applyOpOptions(opts)
	it, ok, err := m.store.Get(ctx, key, o.callOptions(xkeystore.PriorityNormal)...)
	if err != nil {
		return Meta{}, false, err
	}
	return it.Meta, ok, nil
}

// Sweep 以 PriorityLow 对当前所有 key 入队一次整理，使策略变更立即作用于全部条目。
// 返回入队的 key 数量。
func (m *Memo) Sweep(ctx context.Context) (n int, err error) {
	ctx, span := m.startSpan(ctx, opSweep, "")
	defer func() {
		span.End(xmetrics.Result{Err: err, Outcome: outcomeQueued, Attrs: []xmetrics.Attr{xmetrics.Count(n)}})
	}()

	tx := func(cur Item, ok bool) (Item, xkeystore.Op) {
		if !ok {
			return cur, xkeystore.OpKeep
		}
		return settle(GC(cur, m.Policy()), ok)
	}
	for _, key := range m.store.Keys() {
		if err = ctx.Err(); err != nil {
			return n, err
		}
		if err = m.store.Cast(key, tx, xkeystore.WithPriority(xkeystore.PriorityLow)); err != nil {
			return n, err
		}
		n++
	}
	m.logger.Debug(ctx, "sweep queued", xlog.Count(int64(n)))
	return n, nil
}

// Keys 返回已提交的 key 快照，不含仍在队列中的写入。
func (m *Memo) Keys() []string {
	return m.store.Keys()
}

// Len 返回已提交的 key 数量
func (m *Memo) Len() int {
	return m.store.Len()
}

// transform 是 Get/GetItem 的公共流程
func (m *Memo) transform(ctx context.Context, key string, opts []OpOption, apply func(Result, opOptions) any) (out any, err error) {
	o := applyOpOptions(opts)
	ctx, span := m.startSpan(ctx, opGet, key)
	var status Status
	defer func() { span.End(xmetrics.Result{Err: err, Outcome: outcomeOf(status, err)}) }()

	var (
		res Result
		val any
	)
	inTx := func(r Result) {
		if !o.detached {
			val = apply(r, o)
		}
	}
	if res, err = m.read(ctx, key, o, inTx); err != nil {
		return nil, err
	}
	status = res.Status
	if o.detached {
		val = apply(res, o)
	}
	return val, nil
}

// read 在一次只读事务内解析条目并发起统计补记。
// inTx 非 nil 时在同一事务内以解析结果调用。Call 返回错误后不能读取闭包写入的变量。
func (m *Memo) read(ctx context.Context, key string, o opOptions, inTx func(Result)) (Result, error) {
	prio := o.priorityOr(xkeystore.PriorityNormal)
	var (
		res  Result
		rerr error
	)
	err := m.store.Call(ctx, key, func(cur Item, _ bool) (Item, xkeystore.Op) {
		res, rerr = m.resolve(ctx, key, cur, o.bypass, prio)
		if rerr == nil && inTx != nil {
			inTx(res)
		}
		return cur, xkeystore.OpKeep
	}, o.callOptions(xkeystore.PriorityNormal)...)
	if err != nil {
		return Result{Key: key}, err
	}
	if rerr != nil {
		return Result{Key: key}, rerr
	}
	return res, nil
}

// resolve 判定条目状态并入队对应的统计补记，在事务内调用。
func (m *Memo) resolve(ctx context.Context, key string, cur Item, bypass bool, prio xkeystore.Priority) (Result, error) {
	res := Result{Key: key, Item: cur.Clone()}
	if !cur.HasValue {
		res.Status = StatusMissing
		m.stampAsync(key, prio, missEvents)
		return res, nil
	}
	if !bypass {
		expired, err := Expired(cur, m.Policy(), m.clock.Now())
		if err != nil {
			var ae *AnchorError
			if errors.As(err, &ae) {
				ae.Key = key
			}
			m.logger.Error(ctx, "ttl in effect without anchor", xlog.Key(key), xlog.Err(err))
			return Result{}, err
		}
		if expired {
			res.Status = StatusExpired
			res.Item.Value, res.Item.HasValue = nil, false
			m.stampAsync(key, prio, missEvents)
			return res, nil
		}
	}
	res.Status = StatusHit
	res.Value = cur.Value
	m.stampAsync(key, prio, useEvents)
	return res, nil
}

// stampAsync 以异步事务补记统计。
// 在读取事务内调用时，补记先于读取返回入队，同一调用方随后在该 key 上发起的、
// 优先级不高于 prio 的操作必然在补记之后执行。
func (m *Memo) stampAsync(key string, prio xkeystore.Priority, events []Attr) {
	err := m.store.Cast(key, func(cur Item, ok bool) (Item, xkeystore.Op) {
		return settle(Stamp(cur, m.Policy(), m.clock.Now(), events...), ok)
	}, xkeystore.WithPriority(prio))
	if err != nil {
		m.logger.Debug(context.Background(), "statistics dropped", xlog.Key(key), xlog.Err(err))
	}
}

// settle 将整理后的条目转换为存储写入动作，空条目删除。
func settle(next Item, existed bool) (Item, xkeystore.Op) {
	if !next.IsEmpty() {
		return next, xkeystore.OpSet
	}
	if existed {
		return Item{}, xkeystore.OpPop
	}
	return Item{}, xkeystore.OpKeep
}

func (m *Memo) startSpan(ctx context.Context, op, key string) (context.Context, xmetrics.Span) {
	opts := xmetrics.SpanOptions{
		Component: m.name,
		Operation: op,
		Kind:      xmetrics.KindInternal,
	}
	if key != "" {
		opts.Attrs = []xmetrics.Attr{xmetrics.Key(key)}
	}
	return xmetrics.Start(ctx, m.observer, opts)
}

func outcomeOf(s Status, err error) string {
	if err != nil || s == 0 {
		return ""
	}
	return s.String()
}
