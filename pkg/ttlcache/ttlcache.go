// Package ttlcache provides small TTL maps used throughout the node to
// cache chain reads (block height, DR records, DR config, stakers,
// staking config).
package ttlcache

import (
	"sync"
	"time"

	"github.com/sedaoverlay/node/pkg/singleflight"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a key -> (value, expiresAt) map with at-most-one in-flight
// fetch per key via an embedded singleflight.Group. Expired entries are
// skipped on access and removed by Prune or replaced by the next Set.
type Cache[V any] struct {
	ttl time.Duration

	mu    sync.RWMutex
	items map[string]entry[V]

	flight singleflight.Group[V]
}

// New creates a cache with a fixed TTL applied to every stored value.
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		ttl:   ttl,
		items: make(map[string]entry[V]),
	}
}

// Get returns the cached value for key if present and unexpired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the cache's configured TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	c.items[key] = entry[V]{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate removes key, forcing the next GetOrFetch to refetch.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// GetOrFetch returns the cached value for key, or calls fn (deduped across
// concurrent callers via single-flight) and caches the result only if fn
// succeeds.
func (c *Cache[V]) GetOrFetch(key string, fn func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	return c.flight.Do(key, func() (V, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			var zero V
			return zero, err
		}
		c.Set(key, v)
		return v, nil
	})
}

// Prune removes all expired entries. Safe to call periodically; GetOrFetch
// does not require it for correctness.
func (c *Cache[V]) Prune() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.items {
		if now.After(e.expiresAt) {
			delete(c.items, k)
		}
	}
}
