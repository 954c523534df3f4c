package cachecoordinator

import (
	"github.com/huykn/cache-coordinator/coordinator"
	"github.com/huykn/cache-coordinator/store"
)

// ErrInvalidConfig is returned when the coordinator configuration is invalid.
var ErrInvalidConfig = coordinator.ErrInvalidConfig

// ErrNotConfigured is reported when a request arrives before a store is attached.
var ErrNotConfigured = coordinator.ErrNotConfigured

// ErrCoordinatorClosed is reported when a request arrives after Close.
var ErrCoordinatorClosed = coordinator.ErrCoordinatorClosed

// ErrInvalidRequest is reported for requests with an empty key or unknown priority.
var ErrInvalidRequest = coordinator.ErrInvalidRequest

// ErrNotFound is returned when a key is not cached and cannot be fetched.
var ErrNotFound = store.ErrNotFound
