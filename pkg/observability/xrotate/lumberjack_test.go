package xrotate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLumberjack_Validation(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		file string
		opts []Option
		want error
	}{
		{"empty filename", "", nil, ErrEmptyFilename},
		{"zero size", filepath.Join(dir, "a.log"), []Option{WithMaxSize(0)}, ErrInvalidOption},
		{"negative backups", filepath.Join(dir, "a.log"), []Option{WithMaxBackups(-1)}, ErrInvalidOption},
		{"age overflow", filepath.Join(dir, "a.log"), []Option{WithMaxAge(maxAgeDays + 1)}, ErrInvalidOption},
		{"no cleanup", filepath.Join(dir, "a.log"), []Option{WithMaxBackups(0), WithMaxAge(0)}, ErrNoCleanupPolicy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLumberjack(tt.file, tt.opts...)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLumberjack_WriteRotateClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "xmemo.log")
	r, err := NewLumberjack(path, WithMaxSize(1), WithCompress(false), WithLocalTime(true), nil)
	require.NoError(t, err)

	n, err := r.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	require.NoError(t, r.Rotate())
	_, err = r.Write([]byte("after rotate\n"))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 2, "轮转后应存在备份文件")

	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Close(), ErrClosed)

	_, err = r.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, r.Rotate(), ErrClosed)
}

func TestOptionError(t *testing.T) {
	_, err := NewLumberjack(filepath.Join(t.TempDir(), "a.log"), WithMaxSize(0), WithMaxAge(-1))

	var oe *OptionError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "max_size_mb", oe.Field)
	assert.Equal(t, 1, oe.Min)
	assert.Contains(t, err.Error(), "max_age_days=-1")
}
