package cache

import (
	"strings"
	"sync"
	"time"
)

// Cache is a key/value store with per-entry expiry and prefix invalidation.
// Reads are lazy expiry checks: an expired entry is deleted on access, so no
// background timer is needed for correctness. Cleanup is a memory-hygiene
// convenience. There is no eviction ordering and capacity is unbounded; the
// cache is meant for short-lived, high-churn keys (rosters, question pools).
type Cache[V any] struct {
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry[V]
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func New[V any]() *Cache[V] {
	return NewWithClock[V](time.Now)
}

// NewWithClock allows deterministic expiry in tests.
func NewWithClock[V any](now func() time.Time) *Cache[V] {
	return &Cache[V]{now: now, entries: make(map[string]entry[V])}
}

func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(ttl)}
}

// Get returns the value for key, deleting and missing entries past their TTL.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Invalidate drops every entry whose key starts with prefix.
func (c *Cache[V]) Invalidate(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// Cleanup evicts all expired entries.
func (c *Cache[V]) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Len reports the number of entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
