package store

import (
	"context"

	"github.com/huykn/cache-coordinator/types"
)

// Logger defines the interface for logging in the store package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LocalCache defines the interface for local in-process caching.
type LocalCache interface {
	// Get retrieves a value from the local cache.
	Get(key string) (any, bool)

	// Set stores a value in the local cache. A stored value is visible to
	// Get as soon as Set returns true.
	Set(key string, value any, cost int64) bool

	// Has reports whether key is cached without counting a hit or miss.
	Has(key string) bool

	// Delete removes a value from the local cache.
	Delete(key string)

	// Clear removes all values from the local cache.
	Clear()

	// Close closes the local cache.
	Close()

	// Metrics returns cache metrics.
	Metrics() LocalCacheMetrics
}

// LocalCacheMetrics represents local cache metrics.
type LocalCacheMetrics struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int64
}

// LocalCacheFactory defines the interface for creating local cache implementations.
type LocalCacheFactory interface {
	// Create creates a new local cache instance.
	Create() (LocalCache, error)
}

// Fetcher loads the authoritative value for key, typically by running the
// query the key identifies.
type Fetcher func(ctx context.Context, key string) (any, error)

// Publisher fans store events out to other processes.
type Publisher interface {
	Publish(ctx context.Context, event types.Event) error
}

// BatchPublisher is implemented by publishers that can send several events
// in one round trip.
type BatchPublisher interface {
	PublishAll(ctx context.Context, events []types.Event) error
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}
