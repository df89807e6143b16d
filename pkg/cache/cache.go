// Package cache holds the TTL caches shared by market discovery and token
// metadata lookups.
package cache

import "time"

// Cache is a keyed TTL cache.
type Cache interface {
	// Get returns the value and whether it was present and unexpired.
	Get(key string) (any, bool)

	// Set stores a value. Admission is best effort; false means dropped.
	Set(key string, value any, ttl time.Duration) bool

	Delete(key string)
	Clear()
	Close()
}
