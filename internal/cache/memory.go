package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache implements in-process expiring caching
type MemoryCache struct {
	cache *gocache.Cache
}

// NewMemoryCache creates a new memory cache
func NewMemoryCache(defaultTTL time.Duration, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{
		cache: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Get retrieves a copy of a value from the cache
func (c *MemoryCache) Get(key string) ([]byte, bool) {
	val, found := c.cache.Get(key)
	if !found {
		return nil, false
	}
	b, ok := val.([]byte)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

// GetWithTTL retrieves a copy of a value and its remaining lifetime
func (c *MemoryCache) GetWithTTL(key string) ([]byte, time.Duration, bool) {
	val, expiresAt, found := c.cache.GetWithExpiration(key)
	if !found {
		return nil, 0, false
	}
	b, ok := val.([]byte)
	if !ok {
		return nil, 0, false
	}

	var remaining time.Duration
	if !expiresAt.IsZero() {
		remaining = time.Until(expiresAt)
		if remaining <= 0 {
			return nil, 0, false
		}
	}
	return append([]byte(nil), b...), remaining, true
}

// Set stores a copy of value with the given TTL (0 = default)
func (c *MemoryCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	c.cache.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) error {
	c.cache.Delete(key)
	return nil
}

// Clear removes all values from the cache
func (c *MemoryCache) Clear() error {
	c.cache.Flush()
	return nil
}

// Len returns the number of cached items, including expired ones not yet cleaned up
func (c *MemoryCache) Len() int {
	return c.cache.ItemCount()
}
