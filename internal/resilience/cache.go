package resilience

import (
	"context"
	"sync"
	"time"
)

// Cache is a TTL cache keyed by string. Entries past their TTL are
// treated as absent and pruned lazily on access.
type Cache[T any] struct {
	mu      sync.Mutex
	entries map[string]cacheEntry[T]
	ttl     time.Duration
	nowFunc func() time.Time

	hits   int64
	misses int64
}

type cacheEntry[T any] struct {
	value    T
	storedAt time.Time
}

// NewCache returns a cache whose entries expire ttl after being stored.
// A non-positive ttl disables caching entirely.
func NewCache[T any](ttl time.Duration) *Cache[T] {
	return &Cache[T]{
		entries: make(map[string]cacheEntry[T]),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// Get returns the cached value for key if present and unexpired.
func (c *Cache[T]) Get(key string) (T, bool) {
	var zero T
	if c.ttl <= 0 {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}
	if c.nowFunc().Sub(entry.storedAt) >= c.ttl {
		delete(c.entries, key)
		c.misses++
		return zero, false
	}
	c.hits++
	return entry.value, true
}

// Set stores value under key, resetting its TTL.
func (c *Cache[T]) Set(key string, value T) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry[T]{value: value, storedAt: c.nowFunc()}
}

// GetOrFetch returns the cached value for key, calling fetch on a miss
// and storing the result. Fetch errors are never cached.
func (c *Cache[T]) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	if val, ok := c.Get(key); ok {
		return val, nil
	}

	val, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(key, val)
	return val, nil
}

// Invalidate removes key from the cache.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Purge drops every entry.
func (c *Cache[T]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry[T])
}

// Stats reports hit and miss counts since creation.
func (c *Cache[T]) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
