package store

import (
	"errors"
	"time"
)

// LocalCacheConfig configures the local cache.
type LocalCacheConfig struct {
	// NumCounters is the number of counters for the cache (LFU only).
	// Recommended: 10 * MaxItems
	NumCounters int64

	// MaxCost is the maximum cost of items in the cache (LFU only).
	MaxCost int64

	// BufferItems is the number of keys per Get buffer (LFU only).
	// Recommended: 64
	BufferItems int64

	// IgnoreInternalCost ignores the internal cost of items (LFU only).
	IgnoreInternalCost bool

	// MaxSize is the maximum number of items in the cache (LRU only).
	MaxSize int
}

// DefaultLocalCacheConfig returns default local cache configuration.
func DefaultLocalCacheConfig() LocalCacheConfig {
	return LocalCacheConfig{
		NumCounters:        1e6,
		MaxCost:            1e5,
		BufferItems:        64,
		IgnoreInternalCost: true,
		MaxSize:            10000,
	}
}

// QueryStoreOptions configures a QueryStore.
type QueryStoreOptions struct {
	// LocalCacheFactory creates the value layer.
	// If nil, defaults to an LFU cache built from LocalCacheConfig.
	LocalCacheFactory LocalCacheFactory

	// LocalCacheConfig is used when LocalCacheFactory is nil.
	LocalCacheConfig LocalCacheConfig

	// Fetcher loads values on a miss and on refetch.
	// If nil, misses return ErrNotFound and invalidation only marks entries stale.
	Fetcher Fetcher

	// RefetchConcurrency bounds parallel refetches for prefix and batch invalidations.
	RefetchConcurrency int

	// FetchTimeout bounds background refetches triggered by stale reads and remote events.
	FetchTimeout time.Duration

	// Logger is the logger for debug logging.
	// If nil, defaults to no-op logger.
	Logger Logger

	// DebugMode enables debug logging.
	DebugMode bool

	// OnError is called when a background refetch fails.
	OnError func(error)
}

// DefaultQueryStoreOptions returns default query store options.
func DefaultQueryStoreOptions() QueryStoreOptions {
	return QueryStoreOptions{
		LocalCacheConfig:   DefaultLocalCacheConfig(),
		RefetchConcurrency: 8,
		FetchTimeout:       5 * time.Second,
	}
}

// Validate validates the options.
func (o *QueryStoreOptions) Validate() error {
	if o.RefetchConcurrency <= 0 {
		return ErrInvalidConfig
	}
	if o.FetchTimeout <= 0 {
		return ErrInvalidConfig
	}
	if o.LocalCacheFactory == nil && (o.LocalCacheConfig.NumCounters <= 0 || o.LocalCacheConfig.MaxCost <= 0) {
		return ErrInvalidConfig
	}
	return nil
}

// RedisStoreOptions configures a RedisStore.
type RedisStoreOptions struct {
	// Addr is the Redis server address (e.g., "localhost:6379").
	Addr string

	// Password is the optional Redis password.
	Password string

	// DB is the Redis database number.
	DB int

	// Namespace prefixes every Redis key the store touches.
	Namespace string

	// PodID identifies this process as the sender of published events.
	PodID string

	// Expiration is the TTL applied by SetValue. Zero means no expiry.
	Expiration time.Duration

	// ScanCount is the COUNT hint passed to SCAN during prefix invalidation.
	ScanCount int64

	// DeleteBatch is the number of keys removed per DEL during prefix invalidation.
	DeleteBatch int

	// Publisher receives an event for every write and invalidation. Optional.
	Publisher Publisher

	// Serializer encodes values passed to SetValue that are not already []byte.
	// If nil, defaults to JSON.
	Serializer Serializer
}

// DefaultRedisStoreOptions returns default Redis store options.
func DefaultRedisStoreOptions() RedisStoreOptions {
	return RedisStoreOptions{
		Addr:        "localhost:6379",
		Namespace:   "cachecoord:",
		PodID:       "default-pod",
		ScanCount:   500,
		DeleteBatch: 500,
	}
}

// Validate validates the options.
func (o *RedisStoreOptions) Validate() error {
	if o.Addr == "" || o.PodID == "" {
		return ErrInvalidConfig
	}
	if o.ScanCount <= 0 || o.DeleteBatch <= 0 {
		return ErrInvalidConfig
	}
	if o.Expiration < 0 {
		return ErrInvalidConfig
	}
	return nil
}

var (
	// ErrNotFound is returned when a key is not cached and cannot be fetched.
	ErrNotFound = errors.New("key not found")

	// ErrNoFetcher is returned by Refetch when the store has no Fetcher.
	ErrNoFetcher = errors.New("no fetcher configured")

	// ErrInvalidConfig is returned when store options are invalid.
	ErrInvalidConfig = errors.New("invalid store configuration")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")
)
