package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omeyang/xmemo/pkg/observability/xlog"
	"github.com/omeyang/xmemo/pkg/storage/xmemo"
	"github.com/omeyang/xmemo/pkg/util/xclock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestSession(t *testing.T) (*session, *xclock.Manual, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	clk := xclock.NewManual(1000)
	m, err := xmemo.New(xmemo.WithClock(clk), xmemo.WithLogger(xlog.Discard()))
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { require.NoError(t, m.Stop(context.Background())) })

	var out, errOut bytes.Buffer
	s := newSession(m)
	s.out, s.errOut = &out, &errOut
	return s, clk, &out, &errOut
}

func exec(t *testing.T, s *session, line string) string {
	t.Helper()
	parts := parseCommandLine(line)
	require.NotEmpty(t, parts)
	out, err := s.execute(context.Background(), parts[0], parts[1:])
	require.NoError(t, err, line)
	return out
}

func TestParseCommandLine(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"single_word", "keys", []string{"keys"}},
		{"two_words", "fetch k", []string{"fetch", "k"}},
		{"double_quoted", `put k "hello world"`, []string{"put", "k", "hello world"}},
		{"single_quoted", "put k 'hello world'", []string{"put", "k", "hello world"}},
		{"escaped_quote", `put k "a\"b"`, []string{"put", "k", `a"b`}},
		{"escape_outside_quotes", `put k a\ b`, []string{"put", "k", "a b"}},
		{"multiple_spaces", "  fetch   k  ", []string{"fetch", "k"}},
		{"empty_quotes", `put ""`, []string{"put"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCommandLine(tt.input))
		})
	}
}

func TestExecuteArgValidation(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args []string
	}{
		{"put", []string{"k"}},
		{"put", []string{"k", "v", "1s", "extra"}},
		{"fetch", nil},
		{"keys", []string{"x"}},
		{"track", nil},
		{"ttl", nil},
		{"nosuch", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.execute(ctx, tt.name, tt.args)
			var ue *usageError
			assert.True(t, errors.As(err, &ue), "got %v", err)
		})
	}
}

func TestExecuteInvalidValues(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	ctx := context.Background()

	_, err := s.execute(ctx, "put", []string{"k", "v", "soon"})
	var ue *usageError
	assert.ErrorAs(t, err, &ue)

	_, err = s.execute(ctx, "ttl", []string{"0s"})
	assert.ErrorIs(t, err, xmemo.ErrInvalidTTL)

	_, err = s.execute(ctx, "track", []string{"bogus"})
	assert.ErrorIs(t, err, xmemo.ErrUnknownAttr)

	_, err = s.execute(ctx, "expired", []string{"bogus"})
	assert.ErrorAs(t, err, &ue)
	assert.Contains(t, err.Error(), "used_once")
}

func TestExecutePutFetchDelete(t *testing.T) {
	s, _, _, _ := newTestSession(t)

	assert.Equal(t, "attrs=[updated used missed] expiry=none", exec(t, s, "attrs used missed updated"))
	assert.Equal(t, "ok", exec(t, s, "put k hello"))
	assert.Equal(t, "hit: hello", exec(t, s, "fetch k"))
	assert.Equal(t, "hello", exec(t, s, "get k"))
	assert.Equal(t, "dflt", exec(t, s, "get nope dflt"))
	assert.Equal(t, "(nil)", exec(t, s, "get nope"))
	assert.Equal(t, "used=2", exec(t, s, "stats k"))

	assert.Equal(t, "ok", exec(t, s, "del k"))
	assert.Equal(t, "missing", exec(t, s, "fetch k"))
	assert.Equal(t, "updated=1 used=2 missed=1", exec(t, s, "stats k"))
	assert.Equal(t, "k\nnope", exec(t, s, "keys"))
	assert.Equal(t, "(no record)", exec(t, s, "stats other"))
}

func TestExecuteTTL(t *testing.T) {
	s, clk, _, _ := newTestSession(t)

	exec(t, s, "put k v")
	assert.Equal(t, "attrs=[] expiry=ttl(10ms)", exec(t, s, "ttl 10ms"))
	assert.Equal(t, "attrs=[] expiry=ttl(10ms) ttl_since=1000", exec(t, s, "policy"))
	assert.Equal(t, "hit: v", exec(t, s, "fetch k"))

	clk.Advance(10 * time.Millisecond)
	assert.Equal(t, "expired", exec(t, s, "fetch k"))
	assert.Equal(t, "value=v expiry=none stats=[(no stats)]", exec(t, s, "raw k"))

	assert.Equal(t, "attrs=[] expiry=none", exec(t, s, "ttl off"))
	assert.Equal(t, "hit: v", exec(t, s, "fetch k"))

	exec(t, s, "put k2 v2 5ms")
	clk.Advance(5 * time.Millisecond)
	assert.Equal(t, "expired", exec(t, s, "fetch k2"))
}

func TestExecuteExpiredPredicate(t *testing.T) {
	s, _, _, _ := newTestSession(t)

	exec(t, s, "track used")
	assert.Equal(t, "attrs=[used] expiry=predicate", exec(t, s, "expired used_once"))
	exec(t, s, "put k v")
	assert.Equal(t, "hit: v", exec(t, s, "fetch k"))
	assert.Equal(t, "expired", exec(t, s, "fetch k"))

	assert.Equal(t, "attrs=[] expiry=predicate", exec(t, s, "untrack used"))
	assert.Equal(t, "queued 1", exec(t, s, "sweep"))
}

func TestProcessLine(t *testing.T) {
	s, _, out, errOut := newTestSession(t)
	ctx := context.Background()

	assert.False(t, processLine(ctx, s, ""))
	assert.False(t, processLine(ctx, s, "# comment"))
	assert.False(t, processLine(ctx, s, "put k v"))
	assert.False(t, processLine(ctx, s, "fetch"))
	assert.True(t, processLine(ctx, s, "quit"))
	assert.True(t, processLine(ctx, s, "exit"))

	assert.Contains(t, out.String(), "ok\n")
	assert.Contains(t, errOut.String(), "错误: 用法: fetch <key>")
}

func TestRunREPL(t *testing.T) {
	s, _, out, _ := newTestSession(t)

	in := strings.NewReader("put k v\nfetch k\nquit\nfetch k\n")
	require.NoError(t, runREPL(context.Background(), s, in))
	assert.Equal(t, 1, strings.Count(out.String(), "hit: v"))
	assert.Contains(t, out.String(), "再见!")
}

func TestRunREPLEndOfInput(t *testing.T) {
	s, _, out, _ := newTestSession(t)

	require.NoError(t, runREPL(context.Background(), s, strings.NewReader("keys\n")))
	assert.Contains(t, out.String(), "(empty)")
}

func TestHelpListsCommands(t *testing.T) {
	s, _, _, _ := newTestSession(t)

	help := exec(t, s, "help")
	for name := range commands {
		assert.Contains(t, help, commands[name].usage)
	}
	assert.Contains(t, help, "quit")
}

func TestServeDemo(t *testing.T) {
	var out, errOut bytes.Buffer
	st := settings{logLevel: "error"}
	err := serve(context.Background(), st, scriptService(demoScript, &out, &errOut))
	require.NoError(t, err)

	got := out.String()
	assert.Contains(t, got, "xmemo> put greeting hello\nok\n")
	assert.Contains(t, got, "hit: hello")
	assert.Contains(t, got, "xmemo> fetch greeting\nexpired\n")
	assert.Contains(t, got, "value=world")
	assert.Contains(t, got, "xmemo> fetch greeting\nmissing\n")
	assert.Empty(t, errOut.String())
}

func TestServeInvalidLogLevel(t *testing.T) {
	err := serve(context.Background(), settings{logLevel: "loud"}, scriptService(nil, nil, nil))
	var ue *usageError
	assert.ErrorAs(t, err, &ue)
}

func TestServeMissingConfig(t *testing.T) {
	err := serve(context.Background(), settings{configPath: "/nonexistent/xmemo.yaml"}, scriptService(nil, nil, nil))
	assert.Error(t, err)
}
