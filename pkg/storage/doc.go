// Package storage 提供进程内存储相关的子包。
//
// 子包列表：
//   - xkeystore: 按 key 串行执行事务的分片存储，支持优先级与属性通道
//   - xmemo: 基于 xkeystore 的统计型、可过期条目存储
package storage
