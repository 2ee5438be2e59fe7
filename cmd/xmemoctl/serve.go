package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/omeyang/xmemo/pkg/config/xconf"
	"github.com/omeyang/xmemo/pkg/lifecycle/xrun"
	"github.com/omeyang/xmemo/pkg/observability/xlog"
	"github.com/omeyang/xmemo/pkg/observability/xrotate"
	"github.com/omeyang/xmemo/pkg/storage/xkeystore"
	"github.com/omeyang/xmemo/pkg/storage/xmemo"
)

// errSessionDone 表示前端会话结束，用于取消其余服务。
var errSessionDone = errors.New("xmemoctl: session finished")

// predicates 是配置文件和 expired 命令可以引用的过期谓词
var predicates = xmemo.Predicates{
	"used_once": func(it xmemo.Item) bool { return it.Meta.Counter(xmemo.Used) >= 1 },
	"used_10":   func(it xmemo.Item) bool { return it.Meta.Counter(xmemo.Used) >= 10 },
}

// frontend 是与用户交互的会话，返回即结束整个进程。
type frontend func(ctx context.Context, s *session) error

// serve 加载配置、启动存储，并在同一 xrun 组内运行会话、配置监视与周期整理。
func serve(ctx context.Context, st settings, fe frontend) error {
	var cfg xconf.Config
	if st.configPath != "" {
		c, err := xconf.New(st.configPath)
		if err != nil {
			return err
		}
		cfg = c
	}
	conf, err := xmemo.LoadConfig(cfg)
	if err != nil {
		return err
	}
	conf.Log = st.overrideLog(conf.Log)

	logger, cleanup, err := buildLogger(conf.Log)
	if err != nil {
		return &usageError{msg: err.Error()}
	}
	defer func() { _ = cleanup() }()

	opts, err := conf.Options(ctx, predicates, logger)
	if err != nil {
		return err
	}
	m, err := xmemo.New(append(opts, xmemo.WithLogger(logger))...)
	if err != nil {
		return err
	}
	// 先启动存储，会话开始时即可读写；Run 中的重复 Start 直接返回
	if err := m.Start(ctx); err != nil {
		return err
	}

	services := []xrun.Service{
		m,
		xrun.ServiceFunc(func(ctx context.Context) error {
			if err := fe(ctx, newSession(m)); err != nil {
				return err
			}
			return errSessionDone
		}),
	}
	if cfg != nil {
		w, err := xmemo.WatchPolicy(cfg, m, predicates)
		if err != nil {
			logger.Warn(ctx, "config watch disabled", xlog.Err(err))
		} else {
			services = append(services, w)
		}
	}
	if st.sweepInterval > 0 {
		services = append(services, xrun.Ticker(st.sweepInterval, false, sweeper(m, logger)))
	}

	err = xrun.RunServices(ctx, []xrun.Option{xrun.WithLogger(logger), xrun.WithName("xmemoctl")}, services...)
	if errors.Is(err, errSessionDone) || errors.Is(err, xrun.ErrSignal) {
		return nil
	}
	return err
}

// sweeper 返回周期整理任务，单次失败只记录告警。
func sweeper(m *xmemo.Memo, logger xlog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := m.Sweep(ctx)
		switch {
		case err == nil, ctx.Err() != nil, errors.Is(err, xkeystore.ErrClosed):
			return nil
		default:
			logger.Warn(ctx, "sweep failed", xlog.Err(err))
			return nil
		}
	}
}

// overrideLog 以命令行选项覆盖配置文件中的日志配置
func (st settings) overrideLog(c xmemo.LogConfig) xmemo.LogConfig {
	if st.logLevel != "" {
		c.Level = st.logLevel
	}
	if st.logFormat != "" {
		c.Format = st.logFormat
	}
	if st.logFile != "" {
		c.File = st.logFile
	}
	return c
}

func buildLogger(c xmemo.LogConfig) (xlog.LoggerWithLevel, func() error, error) {
	b := xlog.New().SetLevelString(c.Level).SetFormat(c.Format)
	if c.File != "" {
		b = b.SetRotation(c.File, xrotate.WithMaxSize(64), xrotate.WithMaxBackups(3), xrotate.WithCompress(true))
	}
	return b.Build()
}

// scriptService 依次执行 lines 中的命令，每条命令先回显。
func scriptService(lines []string, out, errOut io.Writer) frontend {
	return func(ctx context.Context, s *session) error {
		s.out, s.errOut = out, errOut
		for _, line := range lines {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "xmemo> %s\n", line)
			if processLine(ctx, s, line) {
				return nil
			}
		}
		return nil
	}
}

var demoScript = []string{
	"attrs used missed updated",
	"put greeting hello",
	"fetch greeting",
	"put greeting world",
	"get greeting",
	"stats greeting",
	"ttl 50ms",
	"sleep 60ms",
	"fetch greeting",
	"raw greeting",
	"del greeting",
	"fetch greeting",
	"stats greeting",
	"policy",
	"keys",
}
