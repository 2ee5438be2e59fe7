// Package xmemo 在按 key 串行的存储之上维护带统计信息、可过期的条目。
//
// 每个 key 存储一个 [Item]：用户值加上可选的时间戳（inserted_at、updated_at、
// used_at、missed_at）、计数器（updated、used、missed）、过期策略和自定义属性。
// 所有读写都是对 [xkeystore.Store] 单个 key 的一次原子事务。
//
// # 策略
//
// [Policy] 是进程级配置，存放在存储的属性通道中：
//   - Attrs：需要记录的计数器和时间戳
//   - Expiry：默认过期策略，TTL 与谓词互斥（[Expiry] 是变体类型）
//   - TTLSince：最近一次配置 TTL 的时刻，条目缺少时间锚点时作为兜底
//
// 事务执行时读取当时的策略，策略变更不与在途事务同步。
//
// # 条目整理（GC）
//
// 每次写入后条目都经过 [GC]：丢弃未被跟踪的统计属性，无值条目丢弃
// 过期策略与 inserted_at；TTL 生效时保留一个时间锚点（updated_at 与 inserted_at 中较晚者）。
// 整理后为空的条目会从存储中删除。自定义属性永远不被整理。
//
// # 过期判断
//
// 条目自身的过期策略优先，否则使用策略默认值：
//
//	策略        判定
//	─────────────────────────────────────────────
//	无          永不过期
//	谓词        fn(条目)，缺失的计数器视为 0
//	TTL         锚点 + ttl <= now（边界上即过期）
//
// TTL 生效但找不到锚点返回 [*AnchorError]，不会被当作未过期。
//
// # 操作
//
//   - Put：默认以高优先级异步入队，WithWait 等待写入完成
//   - Fetch / FetchOrFail：读取并判定过期，used/missed 统计以异步事务补记
//   - Get / GetItem：对值或完整条目执行变换，支持默认值与脱离事务执行
//   - Delete：移除值但保留统计，删除计为一次更新
//   - Sweep：对所有 key 执行一次整理，使策略变更立即生效
//
// 同一调用方在同一 key 上随后发起的、优先级不高于原读取的操作，
// 必然能观察到该次读取补记的统计。
package xmemo
