package cachecoordinator

import (
	"github.com/huykn/cache-coordinator/coordinator"
	"github.com/huykn/cache-coordinator/store"
	"github.com/huykn/cache-coordinator/types"
)

// Coordinator is an alias for coordinator.Coordinator.
type Coordinator = coordinator.Coordinator

// Store is an alias for coordinator.Store.
type Store = coordinator.Store

// BatchInvalidator is an alias for coordinator.BatchInvalidator.
type BatchInvalidator = coordinator.BatchInvalidator

// Logger is an alias for coordinator.Logger.
type Logger = coordinator.Logger

// Stats is an alias for coordinator.Stats.
type Stats = coordinator.Stats

// UpdateRequest is an alias for types.UpdateRequest.
type UpdateRequest = types.UpdateRequest

// Priority is an alias for types.Priority.
type Priority = types.Priority

// RefetchMode is an alias for types.RefetchMode.
type RefetchMode = types.RefetchMode

// Priority constants.
const (
	PriorityLow      = types.PriorityLow
	PriorityNormal   = types.PriorityNormal
	PriorityHigh     = types.PriorityHigh
	PriorityCritical = types.PriorityCritical
)

// Refetch modes.
const (
	RefetchNone   = types.RefetchNone
	RefetchActive = types.RefetchActive
)

// QueryStore is an alias for store.QueryStore.
type QueryStore = store.QueryStore

// QueryStoreOptions is an alias for store.QueryStoreOptions.
type QueryStoreOptions = store.QueryStoreOptions

// Fetcher is an alias for store.Fetcher.
type Fetcher = store.Fetcher

// LocalCacheConfig is an alias for store.LocalCacheConfig.
type LocalCacheConfig = store.LocalCacheConfig

// NewQueryStore creates an in-process store that loads values through fetcher.
func NewQueryStore(fetcher Fetcher) (*QueryStore, error) {
	opts := store.DefaultQueryStoreOptions()
	opts.Fetcher = fetcher
	return store.NewQueryStore(opts)
}

// NewZapLogger is re-exported from the coordinator package.
var NewZapLogger = coordinator.NewZapLogger

// NewConsoleLogger creates a logger that prints to stdout.
func NewConsoleLogger(prefix string) Logger {
	return coordinator.NewConsoleLogger(prefix)
}
