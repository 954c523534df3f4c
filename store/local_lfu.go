package store

import (
	"sync/atomic"

	lfu "github.com/dgraph-io/ristretto"
)

// LFUCacheFactory creates Ristretto cache instances.
type LFUCacheFactory struct {
	config LocalCacheConfig
}

// NewLFUCacheFactory creates a new Ristretto cache factory.
func NewLFUCacheFactory(config LocalCacheConfig) LocalCacheFactory {
	return &LFUCacheFactory{config: config}
}

// Create creates a new Ristretto cache instance.
func (f *LFUCacheFactory) Create() (LocalCache, error) {
	return NewLFUCache(f.config)
}

// LFUCache is a local LFU cache implementation using Ristretto.
type LFUCache struct {
	cache     *lfu.Cache
	hits      int64
	misses    int64
	evictions int64
}

// NewLFUCache creates a new Ristretto-based local cache.
func NewLFUCache(config LocalCacheConfig) (*LFUCache, error) {
	c := &LFUCache{}
	cache, err := lfu.NewCache(&lfu.Config{
		NumCounters:        config.NumCounters,
		MaxCost:            config.MaxCost,
		BufferItems:        config.BufferItems,
		IgnoreInternalCost: config.IgnoreInternalCost,
		OnEvict: func(item *lfu.Item) {
			atomic.AddInt64(&c.evictions, 1)
		},
	})
	if err != nil {
		return nil, err
	}
	c.cache = cache
	return c, nil
}

// Get retrieves a value from the local cache.
func (c *LFUCache) Get(key string) (any, bool) {
	value, found := c.cache.Get(key)
	if found {
		atomic.AddInt64(&c.hits, 1)
	} else {
		atomic.AddInt64(&c.misses, 1)
	}
	return value, found
}

// Set stores a value and waits for Ristretto's write buffer to flush so the
// value is readable immediately. It returns false if the admission policy
// dropped the value.
func (c *LFUCache) Set(key string, value any, cost int64) bool {
	if !c.cache.Set(key, value, cost) {
		return false
	}
	c.cache.Wait()
	return true
}

// Has reports whether key is cached.
func (c *LFUCache) Has(key string) bool {
	_, found := c.cache.Get(key)
	return found
}

// Delete removes a value from the local cache.
func (c *LFUCache) Delete(key string) {
	c.cache.Del(key)
}

// Clear removes all values from the local cache.
func (c *LFUCache) Clear() {
	c.cache.Clear()
}

// Close closes the local cache.
func (c *LFUCache) Close() {
	c.cache.Close()
}

// Metrics returns cache metrics.
func (c *LFUCache) Metrics() LocalCacheMetrics {
	return LocalCacheMetrics{
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
		Size:      c.cache.MaxCost(),
	}
}
