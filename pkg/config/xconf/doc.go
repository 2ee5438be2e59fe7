// Package xconf 提供基于 koanf 的配置加载、反序列化和热重载。
//
// 支持 YAML（.yaml/.yml）和 JSON（.json），按扩展名自动识别；
// NewFromBytes 需要显式指定格式。
//
// # 热重载
//
// Watch 监视配置文件所在目录（编辑器保存时常见 删除+创建 或 rename），
// 变更经防抖后调用 Reload 并回调。Watcher 实现 Run(ctx)，可直接交给 xrun 管理：
//
//	cfg, _ := xconf.New("/etc/xmemo/config.yaml")
//	w, _ := xconf.Watch(cfg, func(c xconf.Config, err error) { ... })
//	g.Go(w.Run)
//
// Reload 原子替换内部 koanf 实例，读操作并发安全。
package xconf
