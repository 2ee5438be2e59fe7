package xmetrics

import "time"

// 存储类组件共用的属性名
const (
	AttrKey   = "key"
	AttrCount = "count"
)

// Key 创建 key 属性
func Key(key string) Attr { return String(AttrKey, key) }

// Count 创建数量属性，例如一次整理入队的 key 数
func Count(n int) Attr { return Int(AttrCount, n) }

func String(key, value string) Attr { return Attr{Key: key, Value: value} }

func Bool(key string, value bool) Attr { return Attr{Key: key, Value: value} }

func Int(key string, value int) Attr { return Attr{Key: key, Value: value} }

func Int64(key string, value int64) Attr { return Attr{Key: key, Value: value} }

func Float64(key string, value float64) Attr { return Attr{Key: key, Value: value} }

// Duration 以纳秒记录
func Duration(key string, value time.Duration) Attr { return Attr{Key: key, Value: value} }
