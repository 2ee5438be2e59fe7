// Package xrotate 为日志文件提供按大小轮转。
//
// [NewLumberjack] 返回的 [Rotator] 可直接交给 xlog 作为输出，
// xmemoctl 的 --log-file 即由此实现。父目录不存在时以 0750 权限创建。
package xrotate
