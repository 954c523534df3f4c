package coordinator

import (
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/huykn/cache-coordinator/types"
)

// Coordinator collects cache update requests from anywhere in the process
// and decides when and how they reach the Store.
//
// Non-critical requests are batched: they drain together one BatchDelay
// after the last of them arrives. Critical requests drain through a
// throttle that runs at most once per CriticalInterval. Per-key cooldowns
// suppress repeated updates, and at most one drain runs at a time.
type Coordinator struct {
	mu        sync.Mutex
	store     Store
	pending   *pendingTable
	cooldowns *cooldownTracker

	state         drainState
	rerunBatch    bool
	rerunCritical bool

	batch    *debouncer
	critical *throttler

	clock   clock.Clock
	logger  Logger
	metrics *Metrics
	options Options
	closed  int32
	stats   Stats
}

// New creates a new Coordinator. The returned coordinator accepts requests
// immediately; if opts.Store is nil they are dropped until Configure is called.
func New(opts Options) (*Coordinator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	// Set defaults for optional fields
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = NewNoOpLogger()
	}
	if opts.Cooldowns == nil {
		opts.Cooldowns = DefaultCooldowns()
	}

	metrics, err := NewMetrics(opts.MetricsRegisterer)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		store:     opts.Store,
		pending:   newPendingTable(),
		cooldowns: newCooldownTracker(),
		clock:     opts.Clock,
		logger:    opts.Logger,
		metrics:   metrics,
		options:   opts,
	}
	c.batch = newDebouncer(opts.Clock, opts.BatchDelay, c.drainBatch)
	c.critical = newThrottler(opts.Clock, opts.CriticalInterval, c.drainCritical)

	return c, nil
}

// Configure attaches the store the coordinator invalidates, replacing any
// previous one. A nil store detaches it. Requests left pending while no
// store was attached are scheduled again once one is.
func (c *Coordinator) Configure(store Store) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store = store
	c.logger.Info("Configure: store attached", "attached", store != nil)
	if store == nil {
		return
	}
	if c.hasPendingLocked(isCritical) {
		c.critical.Arm()
	}
	if c.hasPendingLocked(isNotCritical) {
		c.batch.Arm()
	}
}

// ScheduleUpdate records an update request. It never blocks on I/O and never
// fails: requests that are invalid, arrive before a store is configured, or
// fall inside their key's cooldown window are logged and dropped.
func (c *Coordinator) ScheduleUpdate(req UpdateRequest) {
	if atomic.LoadInt32(&c.closed) != 0 {
		c.logger.Warn("ScheduleUpdate: dropping request", "key", req.Key, "source", req.Source, "error", ErrCoordinatorClosed)
		c.metrics.recordRequest(req.Priority, outcomeClosed)
		return
	}
	if req.Key == "" || !req.Priority.Valid() {
		c.logger.Warn("ScheduleUpdate: dropping request", "key", req.Key, "source", req.Source, "priority", req.Priority, "error", ErrInvalidRequest)
		c.metrics.recordRequest(req.Priority, outcomeInvalid)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil {
		c.logger.Warn("ScheduleUpdate: dropping request", "key", req.Key, "source", req.Source, "error", ErrNotConfigured)
		c.metrics.recordRequest(req.Priority, outcomeUnconfigured)
		return
	}

	if !req.Force && req.Priority != types.PriorityCritical {
		now := c.clock.Now()
		if c.cooldowns.suppressed(req.Key, now, c.options.Cooldowns[req.Priority]) {
			atomic.AddInt64(&c.stats.Suppressed, 1)
			c.metrics.recordRequest(req.Priority, outcomeSuppressed)
			if c.options.DebugMode {
				elapsed, _ := c.cooldowns.elapsed(req.Key, now)
				c.logger.Debug("ScheduleUpdate: suppressed by cooldown", "key", req.Key, "source", req.Source, "priority", req.Priority, "elapsed", elapsed)
			}
			return
		}
	}

	atomic.AddInt64(&c.stats.Scheduled, 1)
	if c.pending.merge(req) {
		c.metrics.recordRequest(req.Priority, outcomeMerged)
		if c.options.DebugMode {
			c.logger.Debug("ScheduleUpdate: queued", "key", req.Key, "source", req.Source, "priority", req.Priority, "force", req.Force)
		}
	} else {
		c.metrics.recordRequest(req.Priority, outcomeSuperseded)
		if c.options.DebugMode {
			existing, _ := c.pending.get(req.Key)
			c.logger.Debug("ScheduleUpdate: pending request kept", "key", req.Key, "source", req.Source, "priority", req.Priority, "pendingPriority", existing.Priority)
		}
	}
	c.metrics.setPending(c.pending.len())

	if req.Priority == types.PriorityCritical {
		c.critical.Arm()
	} else {
		c.batch.Arm()
	}
}

// Schedule is the positional form of ScheduleUpdate. data may be nil.
func (c *Coordinator) Schedule(key, source string, priority Priority, force bool, data any) {
	c.ScheduleUpdate(UpdateRequest{
		Key:      key,
		Source:   source,
		Priority: priority,
		Force:    force,
		Data:     data,
	})
}

// ForceRefresh schedules a critical update for key that bypasses the cooldown.
func (c *Coordinator) ForceRefresh(key, source string) {
	if source == "" {
		source = "manual"
	}
	c.ScheduleUpdate(UpdateRequest{
		Key:      key,
		Source:   source,
		Priority: types.PriorityCritical,
		Force:    true,
	})
}

// ClearPendingUpdates drops every pending request. Cooldowns and armed
// timers are left alone; a timer firing on an empty table does nothing.
func (c *Coordinator) ClearPendingUpdates() {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := c.pending.len()
	c.pending.clear()
	c.metrics.setPending(0)
	if c.options.DebugMode {
		c.logger.Debug("ClearPendingUpdates: cleared pending requests", "dropped", dropped)
	}
}

// Reset drops every pending request and forgets every cooldown.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending.clear()
	c.cooldowns.reset()
	c.metrics.setPending(0)
	c.logger.Info("Reset: cleared pending requests and cooldowns")
}

// GetStats returns a snapshot of the coordinator state.
func (c *Coordinator) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		PendingCount: c.pending.len(),
		Cooldowns:    c.cooldowns.snapshot(),
		IsExecuting:  c.state == stateDraining,
		Scheduled:    atomic.LoadInt64(&c.stats.Scheduled),
		Suppressed:   atomic.LoadInt64(&c.stats.Suppressed),
		Drains:       atomic.LoadInt64(&c.stats.Drains),
		Failures:     atomic.LoadInt64(&c.stats.Failures),
	}
}

// Close stops both timers. Requests scheduled afterwards are dropped.
// A drain already running is allowed to finish.
func (c *Coordinator) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}

	c.batch.Stop()
	c.critical.Stop()
	c.logger.Info("Close: coordinator stopped")
	return nil
}
