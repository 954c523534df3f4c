package cachecoordinator

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/huykn/cache-coordinator/coordinator"
)

// Config configures a cache update coordinator.
type Config struct {
	// Store is the cache to invalidate. It may be nil and attached later
	// with Coordinator.Configure; requests arriving before that are dropped.
	Store Store

	// BatchDelay is the quiet period after the last non-critical request
	// before the pending batch is drained.
	BatchDelay time.Duration

	// CriticalInterval is the minimum spacing between two critical drains.
	CriticalInterval time.Duration

	// Cooldowns is the minimum time between two executed updates of the
	// same key, per priority. If nil, DefaultCooldowns is used.
	Cooldowns map[Priority]time.Duration

	// GroupConcurrency bounds concurrent store calls within one priority group.
	GroupConcurrency int

	// StampOnFailure starts the cooldown of a key even when its update failed.
	StampOnFailure bool

	// ContextTimeout bounds the store calls of a single drain. Zero means no deadline.
	ContextTimeout time.Duration

	// Clock is the time source. If nil, defaults to the wall clock.
	Clock clock.Clock

	// Logger is the logger for debug logging.
	// If nil, defaults to no-op logger.
	Logger Logger

	// DebugMode enables debug logging.
	DebugMode bool

	// OnError is called when a store call fails during a drain.
	OnError func(error)

	// MetricsRegisterer receives Prometheus collectors. If nil, metrics are disabled.
	MetricsRegisterer prometheus.Registerer
}

// New creates a new cache update coordinator.
// This is the root-level initialization function that allows users to import from the root package.
func New(cfg Config) (*Coordinator, error) {
	opts := coordinator.Options{
		Store:             cfg.Store,
		BatchDelay:        cfg.BatchDelay,
		CriticalInterval:  cfg.CriticalInterval,
		Cooldowns:         cfg.Cooldowns,
		GroupConcurrency:  cfg.GroupConcurrency,
		StampOnFailure:    cfg.StampOnFailure,
		ContextTimeout:    cfg.ContextTimeout,
		Clock:             cfg.Clock,
		Logger:            cfg.Logger,
		DebugMode:         cfg.DebugMode,
		OnError:           cfg.OnError,
		MetricsRegisterer: cfg.MetricsRegisterer,
	}

	return coordinator.New(opts)
}

// DefaultConfig returns default coordinator configuration.
func DefaultConfig() Config {
	opts := coordinator.DefaultOptions()
	return Config{
		BatchDelay:       opts.BatchDelay,
		CriticalInterval: opts.CriticalInterval,
		Cooldowns:        opts.Cooldowns,
		GroupConcurrency: opts.GroupConcurrency,
		StampOnFailure:   opts.StampOnFailure,
		ContextTimeout:   opts.ContextTimeout,
		Logger:           nil, // Will default to no-op in New()
		DebugMode:        false,
	}
}

// DefaultCooldowns returns the default per-priority cooldown table:
// low 10s, normal 5s, high 2s, critical none.
func DefaultCooldowns() map[Priority]time.Duration {
	return coordinator.DefaultCooldowns()
}
