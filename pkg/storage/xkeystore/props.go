package xkeystore

import "sync"

// Props 是存储级属性通道。每次读写都是原子的，
// Update 在持锁状态下执行读-改-写。
type Props struct {
	mu sync.RWMutex
	m  map[string]any
}

func newProps() *Props {
	return &Props{m: make(map[string]any)}
}

// Get 读取属性
func (p *Props) Get(name string) (any, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.m[name]
	return v, ok
}

// Set 写入属性
func (p *Props) Set(name string, v any) {
	p.mu.Lock()
	p.m[name] = v
	p.mu.Unlock()
}

// Delete 删除属性
func (p *Props) Delete(name string) {
	p.mu.Lock()
	delete(p.m, name)
	p.mu.Unlock()
}

// Update 原子地读-改-写属性并返回新值。fn 内不得再访问同一 Props。
func (p *Props) Update(name string, fn func(cur any, ok bool) any) any {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur, ok := p.m[name]
	next := fn(cur, ok)
	p.m[name] = next
	return next
}
