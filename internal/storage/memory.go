package storage

import (
	"context"
	"sync"
)

// MemoryBackend keeps every collection in process memory. Nothing survives a
// restart; it is the default for tests and local runs.
type MemoryBackend struct {
	mu          sync.Mutex
	collections map[string]*memoryCollection
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{collections: make(map[string]*memoryCollection)}
}

func (b *MemoryBackend) Collection(name string) Collection {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.collections[name]
	if !ok {
		c = &memoryCollection{values: make(map[string][]byte)}
		b.collections[name] = c
	}
	return c
}

func (b *MemoryBackend) Close() error { return nil }

type memoryCollection struct {
	mu     sync.RWMutex
	keys   []string
	values map[string][]byte
}

func (c *memoryCollection) Put(_ context.Context, key string, value []byte) error {
	cp := append([]byte(nil), value...)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = cp
	return nil
}

func (c *memoryCollection) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (c *memoryCollection) Scan(ctx context.Context, fn func(key string, value []byte) error) error {
	// Snapshot under the lock so fn may call back into the collection.
	c.mu.RLock()
	keys := append([]string(nil), c.keys...)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = c.values[k]
	}
	c.mu.RUnlock()

	for i, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k, append([]byte(nil), values[i]...)); err != nil {
			return err
		}
	}
	return nil
}
