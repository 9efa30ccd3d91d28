// Package cache stores rendered catalog responses so product lists are not
// re-queried on every store page load.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Keys used by the product handler.
const (
	KeyAvailableProducts = "products:available"
	KeyAllProducts       = "products:all"
	KeyCategories        = "products:categories"
)

// Cache is a byte-value cache with prefix invalidation.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// Invalidate removes every key starting with prefix.
	Invalidate(ctx context.Context, prefix string) error
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-process Cache, used when no Redis URL is configured.
type Memory struct {
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	store map[string]memoryEntry
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, store: make(map[string]memoryEntry)}
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if c.ttl > 0 && c.now().After(e.expires) {
		c.mu.Lock()
		delete(c.store, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *Memory) Set(_ context.Context, key string, value []byte) error {
	buf := make([]byte, len(value))
	copy(buf, value)
	c.mu.Lock()
	c.store[key] = memoryEntry{value: buf, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

func (c *Memory) Invalidate(_ context.Context, prefix string) error {
	c.mu.Lock()
	for k := range c.store {
		if strings.HasPrefix(k, prefix) {
			delete(c.store, k)
		}
	}
	c.mu.Unlock()
	return nil
}
