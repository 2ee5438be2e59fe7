// Package util 提供通用工具相关的子包。
//
// 子包列表：
//   - xclock: 毫秒级单调时钟，测试可使用手动时钟
package util
