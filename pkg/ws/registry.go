package ws

import (
	"container/list"
	"sync"
)

// Registry 订阅表：key 下的处理器按订阅顺序保存，通过 Subscription 以 O(1) 取消
type Registry[K comparable, V any] struct {
	mu       sync.RWMutex
	handlers map[K]*list.List
}

// NewRegistry 创建订阅表
func NewRegistry[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{handlers: make(map[K]*list.List)}
}

// Subscribe 注册处理器
func (r *Registry[K, V]) Subscribe(key K, v V) *Subscription {
	r.mu.Lock()
	l, ok := r.handlers[key]
	if !ok {
		l = list.New()
		r.handlers[key] = l
	}
	elem := l.PushBack(v)
	r.mu.Unlock()

	return newSubscription(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		l.Remove(elem)
		if l.Len() == 0 && r.handlers[key] == l {
			delete(r.handlers, key)
		}
	})
}

// Handlers 返回 key 下处理器的快照（订阅顺序）
func (r *Registry[K, V]) Handlers(key K) []V {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.handlers[key]
	if !ok {
		return nil
	}
	out := make([]V, 0, l.Len())
	for e := l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(V))
	}
	return out
}

// Len 返回 key 下处理器数量
func (r *Registry[K, V]) Len(key K) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if l, ok := r.handlers[key]; ok {
		return l.Len()
	}
	return 0
}

// Subscription 订阅句柄
type Subscription struct {
	once   sync.Once
	cancel func()
}

func newSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Dispose 取消订阅，可重复调用
func (s *Subscription) Dispose() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Subscriptions 一组订阅句柄，便于统一释放
type Subscriptions []*Subscription

// Dispose 释放全部订阅
func (ss Subscriptions) Dispose() {
	for _, s := range ss {
		s.Dispose()
	}
}
