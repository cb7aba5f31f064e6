// Package cache provides a small generic in-process cache.
package cache

// Cache defines a generic cache interface
type Cache[K comparable, V any] interface {
	// Get retrieves a value from the cache
	Get(key K) (V, bool)

	// Set stores a value in the cache
	Set(key K, value V)

	// Delete removes a key from the cache
	Delete(key K)

	// DeleteFunc removes every key matching pred and returns how many went
	DeleteFunc(pred func(K) bool) int

	// Purge empties the cache
	Purge()

	// Len returns the current number of items in the cache
	Len() int
}

// Stats counts lookups.
type Stats struct {
	Hits   uint64
	Misses uint64
}

var _ Cache[string, int] = (*LRU[string, int])(nil)
