// xmemoctl 是 xmemo 的命令行工具，在进程内运行一个存储并提供交互式操作。
//
// 用法:
//
//	xmemoctl [全局选项] <命令>
//
// 全局选项:
//
//	-c, --config          配置文件路径（YAML/JSON），变更后自动重载策略
//	    --log-level       日志级别，覆盖配置文件 (debug/info/warn/error)
//	    --log-format      日志格式，覆盖配置文件 (text/json)
//	    --log-file        日志文件路径，按大小轮转
//	    --sweep-interval  周期性整理间隔，0 表示不整理 (默认: 0)
//
// 命令:
//
//	repl    交互模式
//	demo    执行一段演示脚本后退出
//
// 退出码:
//
//	0: 正常退出（包括收到 SIGINT/SIGTERM）
//	1: 运行错误
//	2: 参数错误
//
// 示例:
//
//	xmemoctl repl
//	xmemoctl -c xmemo.yaml --sweep-interval 30s repl
//	xmemoctl --log-level debug demo
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
)

// 版本信息（可通过 -ldflags 注入）
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "xmemoctl",
		Usage:   "带统计与过期策略的进程内存储",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别 (debug/info/warn/error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "日志格式 (text/json)",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "日志文件路径",
			},
			&cli.DurationFlag{
				Name:  "sweep-interval",
				Usage: "周期性整理间隔，0 表示不整理",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "repl",
				Usage: "交互模式",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return serve(ctx, settingsFrom(cmd), replService(os.Stdin, os.Stdout, os.Stderr))
				},
			},
			{
				Name:  "demo",
				Usage: "执行演示脚本后退出",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return serve(ctx, settingsFrom(cmd), scriptService(demoScript, os.Stdout, os.Stderr))
				},
			},
		},
		DefaultCommand: "help",
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run() int {
	if err := createApp().Run(context.Background(), os.Args); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) || isCLIUsageError(err) {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", err)
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}
	return 0
}

// isCLIUsageError 判断是否为 urfave/cli 产生的参数错误
func isCLIUsageError(err error) bool {
	if _, ok := err.(cli.ExitCoder); ok {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "flag provided but not defined") ||
		strings.Contains(msg, "invalid value")
}

// settings 是命令行选项的快照
type settings struct {
	configPath    string
	logLevel      string
	logFormat     string
	logFile       string
	sweepInterval time.Duration
}

func settingsFrom(cmd *cli.Command) settings {
	return settings{
		configPath:    cmd.String("config"),
		logLevel:      cmd.String("log-level"),
		logFormat:     cmd.String("log-format"),
		logFile:       cmd.String("log-file"),
		sweepInterval: cmd.Duration("sweep-interval"),
	}
}
