package xconf

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/v2"
)

// Format 是配置格式
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf 按扩展名识别格式，支持 .yaml/.yml/.json。
func FormatOf(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %q", ErrUnsupportedFormat, ext)
	}
}

func (f Format) valid() bool {
	return f == FormatYAML || f == FormatJSON
}

// Config 是一份已解析的配置。读取单个值直接使用 Client，
// 整段读取使用 Unmarshal。
type Config interface {
	// Client 返回当前 koanf 实例，Reload 成功后为新实例
	Client() *koanf.Koanf

	// Unmarshal 将 path 下的配置解码到 target，path 为空表示根节点
	Unmarshal(path string, target any) error

	// Reload 重新读取文件，失败时保留上一次成功的内容
	Reload() error

	Path() string
	Format() Format
}
