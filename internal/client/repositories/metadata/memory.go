package metadata

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
)

// MemoryRepository keeps metadata for the lifetime of the process. Used when
// the Local Store failed to open.
type MemoryRepository struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string][]byte)}
}

func (r *MemoryRepository) Get(_ context.Context, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.m[key]
	if !ok {
		return nil, nil
	}
	return slices.Clone(v), nil
}

func (r *MemoryRepository) Set(_ context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[key] = slices.Clone(value)
	return nil
}

func (r *MemoryRepository) SetMany(_ context.Context, kv map[string][]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range kv {
		r.m[k] = slices.Clone(v)
	}
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, key)
	return nil
}

func (r *MemoryRepository) List(_ context.Context) (map[string][]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.m), nil
}

func (r *MemoryRepository) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.m)
	return nil
}

func (r *MemoryRepository) ListPrefix(_ context.Context, prefix string) (map[string][]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]byte)
	for k, v := range r.m {
		if strings.HasPrefix(k, prefix) {
			out[k] = slices.Clone(v)
		}
	}
	return out, nil
}

func (r *MemoryRepository) DeletePrefix(_ context.Context, prefix string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	maps.DeleteFunc(r.m, func(k string, _ []byte) bool { return strings.HasPrefix(k, prefix) })
	return nil
}
