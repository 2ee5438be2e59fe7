package xmemo

import (
	"context"
	"fmt"
	"time"

	"github.com/omeyang/xmemo/pkg/config/xconf"
	"github.com/omeyang/xmemo/pkg/observability/xlog"
	"github.com/omeyang/xmemo/pkg/storage/xkeystore"
)

// Config 是 Memo 的文件配置
//
//	store:
//	  shards: 32
//	  timeout: 5s
//	policy:
//	  attrs: [used, missed, updated]
//	  ttl: 30s
//	  expired: ""
//	log:
//	  level: info
type Config struct {
	Store  StoreConfig  `koanf:"store"`
	Policy PolicyConfig `koanf:"policy"`
	Log    LogConfig    `koanf:"log"`
}

// StoreConfig 对应底层存储配置，零值字段使用存储默认值。
type StoreConfig struct {
	Shards       int           `koanf:"shards"`
	Timeout      time.Duration `koanf:"timeout"`
	StartTimeout time.Duration `koanf:"start_timeout"`
	MaxPending   int           `koanf:"max_pending"`
}

// PolicyConfig 描述初始策略。
// Expired 是通过 [Predicates] 注册的谓词名，与 TTL 同时给出时谓词生效。
type PolicyConfig struct {
	Attrs   []string      `koanf:"attrs"`
	TTL     time.Duration `koanf:"ttl"`
	Expired string        `koanf:"expired"`
}

// LogConfig 描述日志输出，File 非空时写入文件并按大小轮转。
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	File   string `koanf:"file"`
}

// Predicates 是按名称注册的过期谓词，供配置文件引用。
type Predicates map[string]PredicateFunc

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Shards:  32,
			Timeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig 在默认配置之上加载 cfg 并校验。
func LoadConfig(cfg xconf.Config) (Config, error) {
	c := DefaultConfig()
	if cfg == nil {
		return c, nil
	}
	if err := cfg.Unmarshal("", &c); err != nil {
		return Config{}, err
	}
	if _, err := c.Policy.attrSet(); err != nil {
		return Config{}, err
	}
	if c.Policy.TTL != 0 {
		if err := validTTL(c.Policy.TTL); err != nil {
			return Config{}, err
		}
	}
	return c, nil
}

// Options 转换为底层存储配置，零值字段不覆盖默认值。
func (c StoreConfig) Options() []xkeystore.Option {
	var opts []xkeystore.Option
	if c.Shards > 0 {
		opts = append(opts, xkeystore.WithShardCount(c.Shards))
	}
	if c.Timeout != 0 {
		opts = append(opts, xkeystore.WithDefaultTimeout(c.Timeout))
	}
	if c.StartTimeout != 0 {
		opts = append(opts, xkeystore.WithStartTimeout(c.StartTimeout))
	}
	if c.MaxPending > 0 {
		opts = append(opts, xkeystore.WithMaxPending(c.MaxPending))
	}
	return opts
}

func (c PolicyConfig) attrSet() (AttrSet, error) {
	var set AttrSet
	for _, name := range c.Attrs {
		a, err := ParseAttr(name)
		if err != nil {
			return 0, err
		}
		set = set.With(a)
	}
	return set, nil
}

// Build 由配置构建策略。谓词名未在 reg 中注册时返回 [ErrUnknownPredicate]；
// 同时配置 TTL 与谓词时以谓词为准并记录告警。
func (c PolicyConfig) Build(ctx context.Context, reg Predicates, logger xlog.Logger) (Policy, error) {
	if logger == nil {
		logger = xlog.Default()
	}
	attrs, err := c.attrSet()
	if err != nil {
		return Policy{}, err
	}
	var pred PredicateFunc
	if c.Expired != "" {
		fn, ok := reg[c.Expired]
		if !ok || fn == nil {
			return Policy{}, fmt.Errorf("%w: %q", ErrUnknownPredicate, c.Expired)
		}
		pred = fn
	}
	return buildPolicy(ctx, attrs, c.TTL, pred, logger)
}

// Options 转换为 Memo 配置：存储配置与初始策略。
func (c Config) Options(ctx context.Context, reg Predicates, logger xlog.Logger) ([]Option, error) {
	p, err := c.Policy.Build(ctx, reg, logger)
	if err != nil {
		return nil, err
	}
	return []Option{
		WithPolicy(p),
		WithStoreOptions(c.Store.Options()...),
	}, nil
}

// WatchPolicy 监视配置文件，文件变更后重新构建策略并通过 SetPolicy 应用。
// 重载或构建失败时保留当前策略并记录告警。返回的 Watcher 需要调用 Run。
func WatchPolicy(cfg xconf.Config, m *Memo, reg Predicates, opts ...xconf.WatchOption) (*xconf.Watcher, error) {
	return xconf.Watch(cfg, func(c xconf.Config, err error) {
		ctx := context.Background()
		if err != nil {
			m.logger.Warn(ctx, "config reload failed", xlog.Err(err))
			return
		}
		loaded, err := LoadConfig(c)
		if err != nil {
			m.logger.Warn(ctx, "config reload rejected", xlog.Err(err))
			return
		}
		p, err := loaded.Policy.Build(ctx, reg, m.logger)
		if err != nil {
			m.logger.Warn(ctx, "policy reload rejected", xlog.Err(err))
			return
		}
		if _, err := m.SetPolicy(ctx, p); err != nil {
			m.logger.Warn(ctx, "policy reload rejected", xlog.Err(err))
		}
	}, opts...)
}
