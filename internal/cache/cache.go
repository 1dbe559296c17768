// Package cache provides a typed TTL cache used for channel routing tables
// and contact profiles. Entries expire individually; a single background
// janitor sweeps the store on a fixed interval.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is a typed key/value store with per-entry expiry. A miss is a normal
// result, not an error. Safe for concurrent use.
type Cache[T any] struct {
	store *gocache.Cache
}

// New creates a cache whose janitor sweeps expired entries every
// cleanupInterval. defaultTTL applies when Set is called with ttl <= 0.
func New[T any](defaultTTL, cleanupInterval time.Duration) *Cache[T] {
	return &Cache[T]{store: gocache.New(defaultTTL, cleanupInterval)}
}

// Set stores value under key with absolute expiry now+ttl, replacing any
// prior entry and its expiry.
func (c *Cache[T]) Set(key string, value T, ttl time.Duration) {
	c.store.Set(key, value, ttl)
}

// Get returns the value for key if present and not expired.
func (c *Cache[T]) Get(key string) (T, bool) {
	raw, ok := c.store.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	value, ok := raw.(T)
	if !ok {
		var zero T
		return zero, false
	}
	return value, true
}

// Delete removes key unconditionally.
func (c *Cache[T]) Delete(key string) {
	c.store.Delete(key)
}

// Clear empties the store.
func (c *Cache[T]) Clear() {
	c.store.Flush()
}

// Size returns the number of stored entries, possibly including expired
// entries not yet swept.
func (c *Cache[T]) Size() int {
	return c.store.ItemCount()
}

// Keys returns the keys of all unexpired entries.
func (c *Cache[T]) Keys() []string {
	items := c.store.Items()
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	return keys
}
