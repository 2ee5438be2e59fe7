package xconf

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyPath         = errors.New("xconf: empty config path")
	ErrUnsupportedFormat = errors.New("xconf: unsupported config format")
	ErrLoadFailed        = errors.New("xconf: failed to load config")
	ErrParseFailed       = errors.New("xconf: failed to parse config")
	ErrUnmarshalFailed   = errors.New("xconf: failed to unmarshal config")

	// ErrNotReloadable 表示 Config 由字节数据创建，不能重载或监视
	ErrNotReloadable = errors.New("xconf: config is not backed by a file")
)

// FileError 记录出错的文件。Kind 为 ErrLoadFailed 或 ErrParseFailed。
//
//	var fe *xconf.FileError
//	if errors.As(err, &fe) { log.Printf("bad config %s", fe.Path) }
type FileError struct {
	Path string
	Kind error
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%v %s: %v", e.Kind, e.Path, e.Err)
}

func (e *FileError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
