package cache

import (
	"errors"
	"time"
)

// LayeredCache implements a multi-layer cache (memory in front of disk)
type LayeredCache struct {
	memory Cache
	disk   Cache
}

// NewLayeredCache creates a new layered cache. disk may be nil for memory-only caching.
func NewLayeredCache(memory, disk Cache) *LayeredCache {
	return &LayeredCache{
		memory: memory,
		disk:   disk,
	}
}

// Get retrieves a value from the cache (checks memory first, then disk).
// A disk hit is copied to memory with the disk entry's remaining TTL.
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	if val, found := c.memory.Get(key); found {
		return val, true
	}

	if c.disk == nil {
		return nil, false
	}

	disk, ok := c.disk.(Expiring)
	if !ok {
		// Remaining lifetime unknown; serve from disk without promoting
		return c.disk.Get(key)
	}

	val, remaining, found := disk.GetWithTTL(key)
	if !found {
		return nil, false
	}
	// Promote for no longer than the disk entry has left.
	// Entries that never expire on disk take the memory default.
	_ = c.memory.Set(key, val, remaining)
	return val, true
}

// Set stores a value in both layers
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	if err := c.memory.Set(key, value, ttl); err != nil {
		return err
	}
	if c.disk != nil {
		return c.disk.Set(key, value, ttl)
	}
	return nil
}

// Delete removes a value from both layers
func (c *LayeredCache) Delete(key string) error {
	errs := []error{c.memory.Delete(key)}
	if c.disk != nil {
		errs = append(errs, c.disk.Delete(key))
	}
	return errors.Join(errs...)
}

// Clear removes all values from both layers
func (c *LayeredCache) Clear() error {
	errs := []error{c.memory.Clear()}
	if c.disk != nil {
		errs = append(errs, c.disk.Clear())
	}
	return errors.Join(errs...)
}
