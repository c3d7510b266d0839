package cache

import (
	"sort"
	"sync"
)

// Cache is an in-process cache keyed by string. Entries never expire; they
// are only dropped by Delete.
type Cache[V any] struct {
	localCache sync.Map
}

// NewCache creates an empty cache.
func NewCache[V any]() *Cache[V] {
	return &Cache[V]{}
}

// Get retrieves a value from the cache
func (c *Cache[V]) Get(key string) (V, bool) {
	value, ok := c.localCache.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return value.(V), true
}

// Set stores a value
func (c *Cache[V]) Set(key string, value V) {
	c.localCache.Store(key, value)
}

// Delete removes the given keys
func (c *Cache[V]) Delete(keys ...string) {
	for _, key := range keys {
		c.localCache.Delete(key)
	}
}

// Keys returns the cached keys in sorted order.
func (c *Cache[V]) Keys() []string {
	var keys []string
	c.localCache.Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	sort.Strings(keys)
	return keys
}
