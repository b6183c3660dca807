// Package cache stores serialized query results and conversations with a TTL.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache defines the interface for caching.
// A ttl of 0 means the implementation's default TTL.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Expiring is implemented by caches that can report an entry's remaining
// lifetime. A remaining TTL of 0 means the entry never expires.
type Expiring interface {
	GetWithTTL(key string) ([]byte, time.Duration, bool)
}

// Key generates a namespaced cache key from its parts
func Key(namespace string, parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return "hllm:v1:" + namespace + ":" + hex.EncodeToString(hash[:])
}
