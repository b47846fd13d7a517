// Package cache provides a small TTL cache owned by the client for
// REST lookup results. Eviction is explicit (expiry plus a size bound)
// rather than relying on garbage-collector behavior.
package cache

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a mutex-guarded TTL map with a size bound. Safe for
// concurrent use.
type Cache[K comparable, V any] struct {
	mu         sync.RWMutex
	ttl        time.Duration
	maxEntries int
	clock      clockwork.Clock
	entries    map[K]entry[V]
}

// New creates a Cache with the given entry TTL and size bound.
func New[K comparable, V any](ttl time.Duration, maxEntries int, clock clockwork.Clock) *Cache[K, V] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &Cache[K, V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		clock:      clock,
		entries:    make(map[K]entry[V]),
	}
}

// Get returns the cached value for key if present and unexpired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.clock.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, evicting expired entries first and the
// soonest-to-expire entry if the cache is still full.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}

	if len(c.entries) >= c.maxEntries {
		var oldestKey K
		var oldestAt time.Time
		first := true
		for k, e := range c.entries {
			if first || e.expiresAt.Before(oldestAt) {
				oldestKey, oldestAt = k, e.expiresAt
				first = false
			}
		}
		if !first {
			delete(c.entries, oldestKey)
		}
	}

	c.entries[key] = entry[V]{value: value, expiresAt: now.Add(c.ttl)}
}

// Delete removes key from the cache.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of entries, including any not yet swept.
func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
