package coordinator

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/huykn/cache-coordinator/types"
)

// Options configures a Coordinator instance.
type Options struct {
	// Store is the cache to invalidate. It may be nil and attached later with Configure.
	Store Store

	// BatchDelay is the quiet period after the last non-critical request
	// before a batch drain runs.
	BatchDelay time.Duration

	// CriticalInterval is the minimum spacing between two critical drains.
	CriticalInterval time.Duration

	// Cooldowns is the minimum time between two executed updates of the same
	// key, per priority. Missing priorities have no cooldown.
	Cooldowns map[types.Priority]time.Duration

	// GroupConcurrency bounds the number of concurrent store calls within one
	// priority group of a batch drain.
	GroupConcurrency int

	// StampOnFailure stamps the cooldown of keys whose invalidation failed,
	// so a failing store is not retried before the cooldown elapses.
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

	// MetricsRegisterer receives the coordinator's Prometheus collectors.
	// If nil, metrics are disabled.
	MetricsRegisterer prometheus.Registerer
}

// DefaultCooldowns returns the default per-priority cooldown table.
func DefaultCooldowns() map[types.Priority]time.Duration {
	return map[types.Priority]time.Duration{
		types.PriorityLow:      10 * time.Second,
		types.PriorityNormal:   5 * time.Second,
		types.PriorityHigh:     2 * time.Second,
		types.PriorityCritical: 0,
	}
}

// DefaultOptions returns default coordinator options.
func DefaultOptions() Options {
	return Options{
		BatchDelay:       time.Second,
		CriticalInterval: 500 * time.Millisecond,
		Cooldowns:        DefaultCooldowns(),
		GroupConcurrency: 8,
		StampOnFailure:   true,
		ContextTimeout:   5 * time.Second,
		Clock:            nil, // Will default to the wall clock in New()
		Logger:           nil, // Will default to no-op in New()
		DebugMode:        false,
	}
}

// Validate validates the options.
func (o *Options) Validate() error {
	if o.BatchDelay <= 0 {
		return ErrInvalidConfig
	}
	if o.CriticalInterval <= 0 {
		return ErrInvalidConfig
	}
	if o.GroupConcurrency <= 0 {
		return ErrInvalidConfig
	}
	if o.ContextTimeout < 0 {
		return ErrInvalidConfig
	}
	for p, d := range o.Cooldowns {
		if !p.Valid() || d < 0 {
			return ErrInvalidConfig
		}
	}
	return nil
}

// ErrInvalidConfig is returned when options are invalid.
var ErrInvalidConfig = NewError("invalid coordinator configuration")

// ErrNotConfigured is reported when a request arrives before a store is attached.
var ErrNotConfigured = NewError("coordinator has no store configured")

// ErrCoordinatorClosed is reported when a request arrives after Close.
var ErrCoordinatorClosed = NewError("coordinator is closed")

// ErrInvalidRequest is reported for requests with an empty key or unknown priority.
var ErrInvalidRequest = NewError("invalid update request")

// NewError creates a new error with the given message.
func NewError(msg string) error {
	return &coordinatorError{msg: msg}
}

type coordinatorError struct {
	msg string
}

func (e *coordinatorError) Error() string {
	return e.msg
}
