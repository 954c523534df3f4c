package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/huykn/cache-coordinator/types"
)

// QueryStore is an in-process cache of query results addressed by string key.
//
// Invalidated entries are kept and marked stale. A stale entry is still
// served by Get while a background refetch replaces it. Invalidating with
// RefetchActive refetches every affected entry before returning.
type QueryStore struct {
	local   LocalCache
	fetcher Fetcher
	group   singleflight.Group
	codec   Serializer

	mu       sync.RWMutex
	keys     map[string]struct{}
	stale    map[string]struct{}
	versions map[string]uint64

	logger  Logger
	options QueryStoreOptions
	closed  int32
	wg      sync.WaitGroup
	stats   QueryStoreStats
}

// QueryStoreStats represents query store statistics.
type QueryStoreStats struct {
	Hits          int64
	Misses        int64
	StaleHits     int64
	Fetches       int64
	FetchErrors   int64
	Invalidations int64
	Local         LocalCacheMetrics
}

// NewQueryStore creates a new QueryStore.
func NewQueryStore(opts QueryStoreOptions) (*QueryStore, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	factory := opts.LocalCacheFactory
	if factory == nil {
		factory = NewLFUCacheFactory(opts.LocalCacheConfig)
	}
	local, err := factory.Create()
	if err != nil {
		return nil, fmt.Errorf("create local cache: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &QueryStore{
		local:    local,
		fetcher:  opts.Fetcher,
		codec:    NewJSONSerializer(),
		keys:     make(map[string]struct{}),
		stale:    make(map[string]struct{}),
		versions: make(map[string]uint64),
		logger:   logger,
		options:  opts,
	}, nil
}

// Get returns the value cached under key. A miss is loaded through the
// Fetcher; concurrent loads of the same key share one fetch.
func (qs *QueryStore) Get(ctx context.Context, key string) (any, error) {
	if qs.isClosed() {
		return nil, ErrClosed
	}

	if value, ok := qs.local.Get(key); ok {
		atomic.AddInt64(&qs.stats.Hits, 1)
		if qs.IsStale(key) {
			atomic.AddInt64(&qs.stats.StaleHits, 1)
			qs.refetchAsync(key)
		}
		return value, nil
	}

	atomic.AddInt64(&qs.stats.Misses, 1)
	qs.forget(key)
	if qs.fetcher == nil {
		return nil, ErrNotFound
	}
	return qs.fetch(ctx, key)
}

// SetValue stores value under key as fresh data.
func (qs *QueryStore) SetValue(ctx context.Context, key string, value any) error {
	if qs.isClosed() {
		return ErrClosed
	}

	qs.mu.Lock()
	defer qs.mu.Unlock()

	qs.versions[key]++
	if !qs.local.Set(key, value, 1) {
		return fmt.Errorf("set %s: rejected by local cache", key)
	}
	qs.keys[key] = struct{}{}
	delete(qs.stale, key)
	return nil
}

// InvalidateByKey marks key stale. With RefetchActive the entry is
// refetched before InvalidateByKey returns. Keys that are not cached are
// left alone.
func (qs *QueryStore) InvalidateByKey(ctx context.Context, key string, mode types.RefetchMode) error {
	return qs.InvalidateKeys(ctx, []string{key}, mode)
}

// InvalidateByPrefix invalidates every cached key starting with prefix.
func (qs *QueryStore) InvalidateByPrefix(ctx context.Context, prefix string, mode types.RefetchMode) error {
	if qs.isClosed() {
		return ErrClosed
	}

	var keys []string
	qs.mu.RLock()
	for key := range qs.keys {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	qs.mu.RUnlock()

	if qs.options.DebugMode {
		qs.logger.Debug("query store: prefix invalidation", "prefix", prefix, "matched", len(keys), "mode", mode)
	}
	return qs.invalidate(ctx, keys, mode)
}

// InvalidateKeys invalidates several keys at once.
func (qs *QueryStore) InvalidateKeys(ctx context.Context, keys []string, mode types.RefetchMode) error {
	if qs.isClosed() {
		return ErrClosed
	}
	return qs.invalidate(ctx, keys, mode)
}

func (qs *QueryStore) invalidate(ctx context.Context, keys []string, mode types.RefetchMode) error {
	var marked []string

	qs.mu.Lock()
	for _, key := range keys {
		if _, ok := qs.keys[key]; !ok {
			continue
		}
		if !qs.local.Has(key) {
			qs.forgetLocked(key)
			continue
		}
		qs.versions[key]++
		qs.stale[key] = struct{}{}
		qs.group.Forget(key)
		marked = append(marked, key)
	}
	qs.mu.Unlock()

	atomic.AddInt64(&qs.stats.Invalidations, int64(len(marked)))

	if mode != types.RefetchActive || qs.fetcher == nil || len(marked) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs *multierror.Error
	)
	var g errgroup.Group
	g.SetLimit(qs.options.RefetchConcurrency)
	for _, key := range marked {
		g.Go(func() error {
			if _, err := qs.fetch(ctx, key); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("refetch %s: %w", key, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs.ErrorOrNil()
}

// Refetch loads key through the Fetcher and replaces the cached value.
func (qs *QueryStore) Refetch(ctx context.Context, key string) error {
	if qs.fetcher == nil {
		return ErrNoFetcher
	}
	_, err := qs.fetch(ctx, key)
	return err
}

// fetch loads key once for all concurrent callers. The result is only
// cached if key was not written or invalidated while the fetch ran.
func (qs *QueryStore) fetch(ctx context.Context, key string) (any, error) {
	qs.mu.RLock()
	version := qs.versions[key]
	qs.mu.RUnlock()

	value, err, _ := qs.group.Do(key, func() (any, error) {
		atomic.AddInt64(&qs.stats.Fetches, 1)
		value, err := qs.fetcher(ctx, key)
		if err != nil {
			atomic.AddInt64(&qs.stats.FetchErrors, 1)
			return nil, err
		}

		qs.mu.Lock()
		defer qs.mu.Unlock()
		if qs.versions[key] != version {
			return value, nil
		}
		if qs.local.Set(key, value, 1) {
			qs.keys[key] = struct{}{}
			delete(qs.stale, key)
		}
		return value, nil
	})
	return value, err
}

func (qs *QueryStore) refetchAsync(key string) {
	if qs.fetcher == nil || qs.isClosed() {
		return
	}

	qs.wg.Add(1)
	go func() {
		defer qs.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), qs.options.FetchTimeout)
		defer cancel()

		if _, err := qs.fetch(ctx, key); err != nil {
			qs.logger.Error("query store: background refetch failed", "key", key, "error", err)
			if qs.options.OnError != nil {
				qs.options.OnError(fmt.Errorf("refetch %s: %w", key, err))
			}
		}
	}()
}

// HandleEvent applies an event published by another process.
func (qs *QueryStore) HandleEvent(event types.Event) {
	if qs.isClosed() {
		return
	}
	if qs.options.DebugMode {
		qs.logger.Debug("query store: applying remote event", "key", event.Key, "action", event.Action, "sender", event.Sender)
	}

	ctx := context.Background()
	prefix, wildcard := types.SplitWildcard(event.Key)

	switch event.Action {
	case types.Set:
		var value any
		if err := qs.codec.Unmarshal(event.Value, &value); err != nil {
			qs.logger.Warn("query store: dropping undecodable remote value", "key", event.Key, "error", err)
			_ = qs.InvalidateByKey(ctx, event.Key, types.RefetchNone)
			return
		}
		_ = qs.SetValue(ctx, event.Key, value)
	case types.Invalidate, types.Refetch:
		if wildcard {
			_ = qs.InvalidateByPrefix(ctx, prefix, types.RefetchNone)
		} else {
			_ = qs.InvalidateByKey(ctx, event.Key, types.RefetchNone)
		}
		if event.Action == types.Refetch {
			qs.refetchStale(prefix, wildcard, event.Key)
		}
	case types.Clear:
		qs.Clear()
	default:
		qs.logger.Warn("query store: unknown remote action", "key", event.Key, "action", event.Action)
	}
}

// refetchStale refreshes the entries a remote refetch event marked stale
// without blocking the event loop.
func (qs *QueryStore) refetchStale(prefix string, wildcard bool, key string) {
	if !wildcard {
		if qs.IsStale(key) {
			qs.refetchAsync(key)
		}
		return
	}
	qs.mu.RLock()
	var keys []string
	for k := range qs.stale {
		if strings.HasPrefix(k, prefix) && qs.local.Has(k) {
			keys = append(keys, k)
		}
	}
	qs.mu.RUnlock()
	for _, k := range keys {
		qs.refetchAsync(k)
	}
}

// IsStale reports whether key is cached and has been invalidated since it
// was last written.
func (qs *QueryStore) IsStale(key string) bool {
	qs.mu.RLock()
	defer qs.mu.RUnlock()
	_, ok := qs.stale[key]
	return ok && qs.local.Has(key)
}

// Keys returns the cached keys in sorted order. Keys the local cache has
// evicted are dropped from the index.
func (qs *QueryStore) Keys() []string {
	qs.mu.Lock()
	keys := make([]string, 0, len(qs.keys))
	for key := range qs.keys {
		if !qs.local.Has(key) {
			qs.forgetLocked(key)
			continue
		}
		keys = append(keys, key)
	}
	qs.mu.Unlock()

	sort.Strings(keys)
	return keys
}

// Clear removes every entry.
func (qs *QueryStore) Clear() {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	for key := range qs.keys {
		qs.versions[key]++
	}
	qs.local.Clear()
	qs.keys = make(map[string]struct{})
	qs.stale = make(map[string]struct{})
}

// Stats returns query store statistics.
func (qs *QueryStore) Stats() QueryStoreStats {
	return QueryStoreStats{
		Hits:          atomic.LoadInt64(&qs.stats.Hits),
		Misses:        atomic.LoadInt64(&qs.stats.Misses),
		StaleHits:     atomic.LoadInt64(&qs.stats.StaleHits),
		Fetches:       atomic.LoadInt64(&qs.stats.Fetches),
		FetchErrors:   atomic.LoadInt64(&qs.stats.FetchErrors),
		Invalidations: atomic.LoadInt64(&qs.stats.Invalidations),
		Local:         qs.local.Metrics(),
	}
}

// Close waits for background refetches and releases the local cache.
func (qs *QueryStore) Close() error {
	if !atomic.CompareAndSwapInt32(&qs.closed, 0, 1) {
		return nil
	}
	qs.wg.Wait()
	qs.local.Close()
	return nil
}

// forget drops key from the index after the local cache evicted it.
func (qs *QueryStore) forget(key string) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.forgetLocked(key)
}

// forgetLocked is forget with qs.mu held.
func (qs *QueryStore) forgetLocked(key string) {
	delete(qs.keys, key)
	delete(qs.stale, key)
}

func (qs *QueryStore) isClosed() bool {
	return atomic.LoadInt32(&qs.closed) == 1
}

// IsNotFound reports whether err means the key is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
