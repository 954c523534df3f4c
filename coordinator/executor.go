package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/huykn/cache-coordinator/types"
)

type drainState int

const (
	stateIdle drainState = iota
	stateDraining
)

// batchOrder is the order in which a batch drain processes priority groups.
var batchOrder = []types.Priority{types.PriorityHigh, types.PriorityNormal, types.PriorityLow}

// beginDrainLocked moves the coordinator from idle to draining. If a drain is
// already running it remembers that kind was refused and returns false.
// c.mu must be held.
func (c *Coordinator) beginDrainLocked(kind string) bool {
	if c.state == stateDraining {
		switch kind {
		case drainKindCritical:
			c.rerunCritical = true
		default:
			c.rerunBatch = true
		}
		if c.options.DebugMode {
			c.logger.Debug("drain: another drain is running, deferring", "kind", kind)
		}
		return false
	}
	c.state = stateDraining
	return true
}

// finishDrain returns the coordinator to idle and re-arms any policy whose
// drain was refused while this one ran.
func (c *Coordinator) finishDrain() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = stateIdle

	if c.rerunCritical {
		c.rerunCritical = false
		if c.hasPendingLocked(isCritical) {
			c.critical.Arm()
		}
	}
	if c.rerunBatch {
		c.rerunBatch = false
		if c.hasPendingLocked(isNotCritical) {
			c.batch.Arm()
		}
	}
}

func (c *Coordinator) hasPendingLocked(match func(types.UpdateRequest) bool) bool {
	for _, req := range c.pending.requests {
		if match(req) {
			return true
		}
	}
	return false
}

// claim starts a drain of kind and removes the requests it will execute.
// ok is false if the drain must not run.
func (c *Coordinator) claim(kind string, match func(types.UpdateRequest) bool) (store Store, requests []types.UpdateRequest, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil {
		if c.pending.len() > 0 {
			c.logger.Warn("drain: no store configured, keeping requests pending", "kind", kind, "error", ErrNotConfigured)
		}
		return nil, nil, false
	}
	if !c.beginDrainLocked(kind) {
		return nil, nil, false
	}

	requests = c.pending.take(match)
	c.metrics.setPending(c.pending.len())
	return c.store, requests, true
}

// drainCritical executes every pending critical request individually with
// an active refetch.
func (c *Coordinator) drainCritical() {
	store, requests, ok := c.claim(drainKindCritical, isCritical)
	if !ok {
		return
	}
	defer c.finishDrain()

	if len(requests) == 0 {
		return
	}

	start := c.clock.Now()
	drainID := uuid.NewString()
	ctx, cancel := c.drainContext()
	defer cancel()

	if c.options.DebugMode {
		c.logger.Debug("drain: critical started", "drain", drainID, "requests", len(requests))
	}

	for _, req := range requests {
		err := c.invalidate(ctx, store, req, types.RefetchActive)
		failed := map[string]bool{}
		if err != nil {
			failed[req.Key] = true
			c.reportFailure(drainID, req.Priority, 1, err)
			c.metrics.recordInvalidations(req.Priority, 0, 1)
		} else {
			c.metrics.recordInvalidations(req.Priority, 1, 0)
		}
		c.stamp([]string{req.Key}, failed)
	}

	atomic.AddInt64(&c.stats.Drains, 1)
	c.metrics.recordDrain(drainKindCritical, c.clock.Since(start))
	if c.options.DebugMode {
		c.logger.Debug("drain: critical finished", "drain", drainID, "requests", len(requests))
	}
}

// drainBatch executes every pending non-critical request, one priority group
// at a time from high to low. Requests arriving meanwhile wait for the next drain.
func (c *Coordinator) drainBatch() {
	store, requests, ok := c.claim(drainKindBatch, isNotCritical)
	if !ok {
		return
	}
	defer c.finishDrain()

	if len(requests) == 0 {
		return
	}

	start := c.clock.Now()
	drainID := uuid.NewString()
	ctx, cancel := c.drainContext()
	defer cancel()

	groups := make(map[types.Priority][]types.UpdateRequest, len(batchOrder))
	for _, req := range requests {
		groups[req.Priority] = append(groups[req.Priority], req)
	}

	if c.options.DebugMode {
		c.logger.Debug("drain: batch started", "drain", drainID, "requests", len(requests),
			"high", len(groups[types.PriorityHigh]), "normal", len(groups[types.PriorityNormal]), "low", len(groups[types.PriorityLow]))
	}

	for _, priority := range batchOrder {
		group := groups[priority]
		if len(group) == 0 {
			continue
		}

		failed := c.executeGroup(ctx, store, drainID, priority, group)

		keys := make([]string, len(group))
		for i, req := range group {
			keys[i] = req.Key
		}
		c.stamp(keys, failed)
		c.metrics.recordInvalidations(priority, len(group)-len(failed), len(failed))
	}

	atomic.AddInt64(&c.stats.Drains, 1)
	c.metrics.recordDrain(drainKindBatch, c.clock.Since(start))
	if c.options.DebugMode {
		c.logger.Debug("drain: batch finished", "drain", drainID, "requests", len(requests))
	}
}

// executeGroup writes optimistic values, then invalidates every key of one
// priority group. It returns the keys whose store calls failed.
func (c *Coordinator) executeGroup(ctx context.Context, store Store, drainID string, priority types.Priority, group []types.UpdateRequest) map[string]bool {
	var (
		mu     sync.Mutex
		errs   *multierror.Error
		failed = make(map[string]bool)
	)
	record := func(key string, err error) {
		if err == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		failed[key] = true
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", key, err))
	}

	var exact, prefixes []string
	var writes errgroup.Group
	writes.SetLimit(c.options.GroupConcurrency)
	for _, req := range group {
		prefix, wildcard := types.SplitWildcard(req.Key)
		if wildcard {
			prefixes = append(prefixes, prefix)
		} else {
			exact = append(exact, req.Key)
		}

		if req.Data == nil {
			continue
		}
		if wildcard {
			c.logger.Warn("drain: ignoring data on wildcard key", "drain", drainID, "key", req.Key, "source", req.Source)
			continue
		}
		writes.Go(func() error {
			record(req.Key, safeCall(func() error { return store.SetValue(ctx, req.Key, req.Data) }))
			return nil
		})
	}
	_ = writes.Wait()

	var invalidations errgroup.Group
	invalidations.SetLimit(c.options.GroupConcurrency)
	if batcher, ok := store.(BatchInvalidator); ok && len(exact) > 0 {
		invalidations.Go(func() error {
			err := safeCall(func() error { return batcher.InvalidateKeys(ctx, exact, types.RefetchNone) })
			for _, key := range exact {
				record(key, err)
			}
			return nil
		})
	} else {
		for _, key := range exact {
			invalidations.Go(func() error {
				record(key, safeCall(func() error { return store.InvalidateByKey(ctx, key, types.RefetchNone) }))
				return nil
			})
		}
	}
	for _, prefix := range prefixes {
		invalidations.Go(func() error {
			record(prefix+types.WildcardSuffix, safeCall(func() error { return store.InvalidateByPrefix(ctx, prefix, types.RefetchNone) }))
			return nil
		})
	}
	_ = invalidations.Wait()

	if err := errs.ErrorOrNil(); err != nil {
		c.reportFailure(drainID, priority, len(failed), err)
	}
	return failed
}

// invalidate applies one request: optimistic write first, then invalidation.
func (c *Coordinator) invalidate(ctx context.Context, store Store, req types.UpdateRequest, mode types.RefetchMode) error {
	var errs *multierror.Error

	prefix, wildcard := types.SplitWildcard(req.Key)
	if req.Data != nil {
		if wildcard {
			c.logger.Warn("drain: ignoring data on wildcard key", "key", req.Key, "source", req.Source)
		} else if err := safeCall(func() error { return store.SetValue(ctx, req.Key, req.Data) }); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("set %s: %w", req.Key, err))
		}
	}

	var err error
	if wildcard {
		err = safeCall(func() error { return store.InvalidateByPrefix(ctx, prefix, mode) })
	} else {
		err = safeCall(func() error { return store.InvalidateByKey(ctx, req.Key, mode) })
	}
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("invalidate %s: %w", req.Key, err))
	}

	return errs.ErrorOrNil()
}

// stamp records execution of keys. Failed keys are skipped unless
// StampOnFailure is set.
func (c *Coordinator) stamp(keys []string, failed map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for _, key := range keys {
		if failed[key] && !c.options.StampOnFailure {
			continue
		}
		c.cooldowns.stamp(key, now)
	}
}

func (c *Coordinator) reportFailure(drainID string, priority types.Priority, keys int, err error) {
	atomic.AddInt64(&c.stats.Failures, int64(keys))
	c.logger.Error("drain: store update failed", "drain", drainID, "priority", priority, "keys", keys, "error", err)
	if c.options.OnError != nil {
		c.options.OnError(err)
	}
}

func (c *Coordinator) drainContext() (context.Context, context.CancelFunc) {
	if c.options.ContextTimeout > 0 {
		return context.WithTimeout(context.Background(), c.options.ContextTimeout)
	}
	return context.WithCancel(context.Background())
}

// safeCall runs fn, turning a panic into an error so a misbehaving store
// cannot take down a timer goroutine.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("store panic: %v", r)
		}
	}()
	return fn()
}
