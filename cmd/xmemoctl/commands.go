package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/omeyang/xmemo/pkg/storage/xmemo"
)

// usageError 表示命令参数错误
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// session 将文本命令转换为 Memo 操作
type session struct {
	memo   *xmemo.Memo
	out    io.Writer
	errOut io.Writer
}

func newSession(m *xmemo.Memo) *session {
	return &session{memo: m, out: io.Discard, errOut: io.Discard}
}

type command struct {
	usage string
	min   int
	max   int // -1 表示不限
	run   func(ctx context.Context, s *session, args []string) (string, error)
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":    {usage: "help", max: 0, run: cmdHelp},
		"put":     {usage: "put <key> <value> [ttl]", min: 2, max: 3, run: cmdPut},
		"fetch":   {usage: "fetch <key>", min: 1, max: 1, run: cmdFetch},
		"raw":     {usage: "raw <key>", min: 1, max: 1, run: cmdRaw},
		"get":     {usage: "get <key> [default]", min: 1, max: 2, run: cmdGet},
		"del":     {usage: "del <key>", min: 1, max: 1, run: cmdDel},
		"stats":   {usage: "stats <key>", min: 1, max: 1, run: cmdStats},
		"keys":    {usage: "keys", max: 0, run: cmdKeys},
		"attrs":   {usage: "attrs [attr...]", max: -1, run: cmdAttrs},
		"track":   {usage: "track <attr...>", min: 1, max: -1, run: cmdTrack},
		"untrack": {usage: "untrack <attr...>", min: 1, max: -1, run: cmdUntrack},
		"ttl":     {usage: "ttl <duration|off>", min: 1, max: 1, run: cmdTTL},
		"expired": {usage: "expired <predicate>", min: 1, max: 1, run: cmdExpired},
		"sweep":   {usage: "sweep", max: 0, run: cmdSweep},
		"policy":  {usage: "policy", max: 0, run: cmdPolicy},
		"sleep":   {usage: "sleep <duration>", min: 1, max: 1, run: cmdSleep},
	}
}

// execute 执行一条命令并返回输出
func (s *session) execute(ctx context.Context, name string, args []string) (string, error) {
	c, ok := commands[name]
	if !ok {
		return "", usagef("未知命令 %q，输入 help 查看可用命令", name)
	}
	if len(args) < c.min || (c.max >= 0 && len(args) > c.max) {
		return "", usagef("用法: %s", c.usage)
	}
	return c.run(ctx, s, args)
}

func cmdHelp(context.Context, *session, []string) (string, error) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	lines := make([]string, 0, len(names)+1)
	for _, name := range names {
		lines = append(lines, "  "+commands[name].usage)
	}
	lines = append(lines, "  quit")
	return "可用命令:\n" + strings.Join(lines, "\n"), nil
}

func cmdPut(ctx context.Context, s *session, args []string) (string, error) {
	var opts []xmemo.OpOption
	if len(args) == 3 {
		d, err := time.ParseDuration(args[2])
		if err != nil {
			return "", usagef("无效的 ttl %q", args[2])
		}
		opts = append(opts, xmemo.WithTTL(d))
	}
	// 交互场景下后续命令需要看到本次写入
	opts = append(opts, xmemo.WithWait())
	if err := s.memo.Put(ctx, args[0], args[1], opts...); err != nil {
		return "", err
	}
	return "ok", nil
}

func cmdFetch(ctx context.Context, s *session, args []string) (string, error) {
	res, err := s.memo.Fetch(ctx, args[0])
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return res.Status.String(), nil
	}
	return fmt.Sprintf("hit: %v", res.Value), nil
}

func cmdRaw(ctx context.Context, s *session, args []string) (string, error) {
	res, err := s.memo.Fetch(ctx, args[0], xmemo.WithBypass())
	if err != nil {
		return "", err
	}
	return formatItem(res.Item), nil
}

func cmdGet(ctx context.Context, s *session, args []string) (string, error) {
	var opts []xmemo.OpOption
	if len(args) == 2 {
		opts = append(opts, xmemo.WithDefault(args[1]))
	}
	v, err := s.memo.Get(ctx, args[0], func(v any) any { return v }, opts...)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "(nil)", nil
	}
	return fmt.Sprint(v), nil
}

func cmdDel(ctx context.Context, s *session, args []string) (string, error) {
	if err := s.memo.Delete(ctx, args[0], xmemo.WithWait()); err != nil {
		return "", err
	}
	return "ok", nil
}

func cmdStats(ctx context.Context, s *session, args []string) (string, error) {
	meta, ok, err := s.memo.Stats(ctx, args[0])
	if err != nil {
		return "", err
	}
	if !ok {
		return "(no record)", nil
	}
	return formatMeta(meta), nil
}

func cmdKeys(_ context.Context, s *session, _ []string) (string, error) {
	keys := s.memo.Keys()
	if len(keys) == 0 {
		return "(empty)", nil
	}
	slices.Sort(keys)
	return strings.Join(keys, "\n"), nil
}

func parseAttrs(args []string) ([]xmemo.Attr, error) {
	attrs := make([]xmemo.Attr, 0, len(args))
	for _, arg := range args {
		a, err := xmemo.ParseAttr(arg)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	return attrs, nil
}

func cmdAttrs(ctx context.Context, s *session, args []string) (string, error) {
	attrs, err := parseAttrs(args)
	if err != nil {
		return "", err
	}
	return s.memo.SetAttrs(ctx, attrs...).String(), nil
}

func cmdTrack(ctx context.Context, s *session, args []string) (string, error) {
	attrs, err := parseAttrs(args)
	if err != nil {
		return "", err
	}
	return s.memo.TrackAttrs(ctx, attrs...).String(), nil
}

func cmdUntrack(ctx context.Context, s *session, args []string) (string, error) {
	attrs, err := parseAttrs(args)
	if err != nil {
		return "", err
	}
	return s.memo.UntrackAttrs(ctx, attrs...).String(), nil
}

func cmdTTL(ctx context.Context, s *session, args []string) (string, error) {
	if args[0] == "off" {
		return s.memo.ClearExpiry(ctx).String(), nil
	}
	d, err := time.ParseDuration(args[0])
	if err != nil {
		return "", usagef("无效的 ttl %q", args[0])
	}
	p, err := s.memo.SetTTL(ctx, d)
	if err != nil {
		return "", err
	}
	return p.String(), nil
}

func cmdExpired(ctx context.Context, s *session, args []string) (string, error) {
	fn, ok := predicates[args[0]]
	if !ok {
		names := make([]string, 0, len(predicates))
		for name := range predicates {
			names = append(names, name)
		}
		slices.Sort(names)
		return "", usagef("未知谓词 %q，可用: %s", args[0], strings.Join(names, ", "))
	}
	p, err := s.memo.SetExpired(ctx, fn)
	if err != nil {
		return "", err
	}
	return p.String(), nil
}

func cmdSweep(ctx context.Context, s *session, _ []string) (string, error) {
	n, err := s.memo.Sweep(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("queued %d", n), nil
}

func cmdPolicy(_ context.Context, s *session, _ []string) (string, error) {
	p := s.memo.Policy()
	if p.HasTTLSince {
		return fmt.Sprintf("%s ttl_since=%d", p, p.TTLSince), nil
	}
	return p.String(), nil
}

func cmdSleep(ctx context.Context, _ *session, args []string) (string, error) {
	d, err := time.ParseDuration(args[0])
	if err != nil {
		return "", usagef("无效的时长 %q", args[0])
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return "", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// formatMeta 按属性声明顺序输出 name=value
func formatMeta(m xmemo.Meta) string {
	attrs := m.Attrs().Slice()
	if len(attrs) == 0 {
		return "(no stats)"
	}
	fields := make([]string, 0, len(attrs))
	for _, a := range attrs {
		v, _ := m.Get(a)
		fields = append(fields, fmt.Sprintf("%s=%d", a, v))
	}
	return strings.Join(fields, " ")
}

func formatItem(it xmemo.Item) string {
	var b strings.Builder
	if it.HasValue {
		fmt.Fprintf(&b, "value=%v", it.Value)
	} else {
		b.WriteString("value=(none)")
	}
	fmt.Fprintf(&b, " expiry=%s stats=[%s]", it.Expiry, formatMeta(it.Meta))
	if len(it.Custom) > 0 {
		keys := make([]string, 0, len(it.Custom))
		for k := range it.Custom {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, it.Custom[k])
		}
	}
	return b.String()
}
