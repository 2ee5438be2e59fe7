package xrotate

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyFilename 表示未指定日志文件
	ErrEmptyFilename = errors.New("xrotate: filename is required")

	// ErrInvalidOption 表示选项取值越界，具体字段见 [*OptionError]
	ErrInvalidOption = errors.New("xrotate: invalid option")

	// ErrNoCleanupPolicy 表示备份既不按数量也不按天数清理，磁盘会被写满
	ErrNoCleanupPolicy = errors.New("xrotate: no cleanup policy configured")

	// ErrClosed 表示轮转器已关闭
	ErrClosed = errors.New("xrotate: rotator is closed")
)

// OptionError 描述越界的选项
type OptionError struct {
	Field    string
	Got      int
	Min, Max int
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("xrotate: %s=%d out of range [%d, %d]", e.Field, e.Got, e.Min, e.Max)
}

// Is 支持 errors.Is(err, ErrInvalidOption)
func (e *OptionError) Is(target error) bool {
	return target == ErrInvalidOption
}

func checkRange(field string, got, lo, hi int) error {
	if got < lo || got > hi {
		return &OptionError{Field: field, Got: got, Min: lo, Max: hi}
	}
	return nil
}
