package cache

import (
	"sync"
	"time"
)

// Entry represents a cached value with expiration
type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// Cache is a simple in-memory cache with TTL
type Cache[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]*Entry[V]
	now   func() time.Time
}

// New creates a new cache
func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{items: map[K]*Entry[V]{}, now: time.Now}
}

// Set stores a value in the cache with a given TTL
func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = &Entry[V]{
		Value:     value,
		ExpiresAt: c.now().Add(ttl),
	}
}

// Get retrieves a value from the cache if it hasn't expired
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var zero V
	entry, exists := c.items[key]
	if !exists {
		return zero, false
	}
	if c.now().After(entry.ExpiresAt) {
		return zero, false
	}
	return entry.Value, true
}

// Delete removes a key from the cache
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}
