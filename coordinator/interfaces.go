package coordinator

import (
	"context"
	"time"

	"github.com/huykn/cache-coordinator/types"
)

// Logger defines the interface for logging in the coordinator.
type Logger interface {
	// Debug logs a debug message.
	Debug(msg string, args ...any)

	// Info logs an info message.
	Info(msg string, args ...any)

	// Warn logs a warning message.
	Warn(msg string, args ...any)

	// Error logs an error message.
	Error(msg string, args ...any)
}

// Store is the cache the coordinator invalidates.
// The coordinator should be the only component calling these methods.
type Store interface {
	// InvalidateByKey invalidates exactly one entry.
	InvalidateByKey(ctx context.Context, key string, mode types.RefetchMode) error

	// InvalidateByPrefix invalidates every entry whose key starts with prefix.
	InvalidateByPrefix(ctx context.Context, prefix string, mode types.RefetchMode) error

	// SetValue overwrites an entry's value without invalidating it.
	SetValue(ctx context.Context, key string, value any) error
}

// BatchInvalidator is implemented by stores that can invalidate several
// exact keys in one call.
type BatchInvalidator interface {
	InvalidateKeys(ctx context.Context, keys []string, mode types.RefetchMode) error
}

// UpdateRequest is an alias for types.UpdateRequest.
type UpdateRequest = types.UpdateRequest

// Priority is an alias for types.Priority.
type Priority = types.Priority

// Priority constants.
const (
	PriorityLow      = types.PriorityLow
	PriorityNormal   = types.PriorityNormal
	PriorityHigh     = types.PriorityHigh
	PriorityCritical = types.PriorityCritical
)

// Stats is a point-in-time snapshot of coordinator state.
type Stats struct {
	// PendingCount is the number of requests waiting for a drain.
	PendingCount int

	// Cooldowns maps each key to the time its last update executed.
	Cooldowns map[string]time.Time

	// IsExecuting is true while a drain is running.
	IsExecuting bool

	// Scheduled counts requests admitted to the pending table.
	Scheduled int64

	// Suppressed counts requests dropped by a key's cooldown.
	Suppressed int64

	// Drains counts drains that executed at least one request.
	Drains int64

	// Failures counts requests whose store calls failed during drains.
	Failures int64
}
