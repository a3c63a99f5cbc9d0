package vault

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// HandlerRegistry Handler注册表
type HandlerRegistry struct {
	mu sync.RWMutex
	m  map[OpKind]OpHandler
}

// NewHandlerRegistry 创建新的注册表
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{m: make(map[OpKind]OpHandler)}
}

// 注册Handler
func (r *HandlerRegistry) Register(h OpHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h == nil {
		return ErrNilHandler
	}

	kind := h.Kind()
	if kind == "" {
		return errors.New("empty handler kind")
	}

	if _, ok := r.m[kind]; ok {
		return fmt.Errorf("duplicate handler kind: %s", kind)
	}
	r.m[kind] = h
	return nil
}

// Get 获取Handler
func (r *HandlerRegistry) Get(kind OpKind) (OpHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.m[kind]
	return h, ok
}

// List 列出所有已注册的Handler类型（排序后）
func (r *HandlerRegistry) List() []OpKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]OpKind, 0, len(r.m))
	for k := range r.m {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
