package store

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUCacheFactory creates LRU cache instances.
type LRUCacheFactory struct {
	maxSize int
}

// NewLRUCacheFactory creates a new LRU cache factory.
func NewLRUCacheFactory(maxSize int) LocalCacheFactory {
	return &LRUCacheFactory{maxSize: maxSize}
}

// Create creates a new LRU cache instance.
func (f *LRUCacheFactory) Create() (LocalCache, error) {
	return NewLRUCache(f.maxSize)
}

// LRUCache is a local LRU cache implementation using golang-lru.
type LRUCache struct {
	cache     *lru.Cache[string, any]
	hits      int64
	misses    int64
	evictions int64
	maxSize   int64
}

// NewLRUCache creates a new LRU-based local cache.
func NewLRUCache(maxSize int) (*LRUCache, error) {
	c := &LRUCache{maxSize: int64(maxSize)}
	cache, err := lru.NewWithEvict[string, any](maxSize, func(string, any) {
		atomic.AddInt64(&c.evictions, 1)
	})
	if err != nil {
		return nil, err
	}
	c.cache = cache
	return c, nil
}

// Get retrieves a value from the local cache.
func (c *LRUCache) Get(key string) (any, bool) {
	value, found := c.cache.Get(key)
	if found {
		atomic.AddInt64(&c.hits, 1)
	} else {
		atomic.AddInt64(&c.misses, 1)
	}
	return value, found
}

// Set stores a value in the local cache. Cost is ignored.
func (c *LRUCache) Set(key string, value any, cost int64) bool {
	c.cache.Add(key, value)
	return true
}

// Has reports whether key is cached without updating its recency.
func (c *LRUCache) Has(key string) bool {
	return c.cache.Contains(key)
}

// Delete removes a value from the local cache.
func (c *LRUCache) Delete(key string) {
	c.cache.Remove(key)
}

// Clear removes all values from the local cache.
func (c *LRUCache) Clear() {
	c.cache.Purge()
}

// Close closes the local cache.
func (c *LRUCache) Close() {
	c.cache.Purge()
}

// Metrics returns cache metrics.
func (c *LRUCache) Metrics() LocalCacheMetrics {
	return LocalCacheMetrics{
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
		Size:      int64(c.cache.Len()),
	}
}
