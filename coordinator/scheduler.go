package coordinator

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

// debouncer runs fn once, delay after the last call to Arm.
//
// Example: with a 1s delay, Arm at T+0, T+100ms and T+200ms runs fn once at T+1200ms.
type debouncer struct {
	mu      sync.Mutex
	clock   clock.Clock
	delay   time.Duration
	fn      func()
	timer   *clock.Timer
	gen     uint64
	stopped bool
}

func newDebouncer(clk clock.Clock, delay time.Duration, fn func()) *debouncer {
	return &debouncer{clock: clk, delay: delay, fn: fn}
}

// Arm cancels any outstanding timer and starts a new one.
func (d *debouncer) Arm() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.delay, func() { d.fire(gen) })
}

// fire runs fn unless the timer was superseded after it had already expired.
func (d *debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.fn()
}

// Armed reports whether a timer is outstanding.
func (d *debouncer) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels any outstanding timer; later Arm calls are ignored.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// throttler runs fn at most once per interval. Arming inside the window
// schedules exactly one trailing run at the end of the window.
type throttler struct {
	mu       sync.Mutex
	clock    clock.Clock
	limiter  *rate.Limiter
	fn       func()
	trailing *clock.Timer
	stopped  bool
}

func newThrottler(clk clock.Clock, interval time.Duration, fn func()) *throttler {
	return &throttler{
		clock:   clk,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		fn:      fn,
	}
}

// Arm runs fn now if the window allows it, otherwise makes sure a trailing
// run is scheduled. fn always runs on its own goroutine.
func (t *throttler) Arm() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped || t.trailing != nil {
		return
	}

	now := t.clock.Now()
	delay := t.limiter.ReserveN(now, 1).DelayFrom(now)
	if delay <= 0 {
		go t.fn()
		return
	}
	t.trailing = t.clock.AfterFunc(delay, t.fire)
}

func (t *throttler) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.trailing = nil
	t.mu.Unlock()

	t.fn()
}

// Stop cancels a pending trailing run; later Arm calls are ignored.
func (t *throttler) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	if t.trailing != nil {
		t.trailing.Stop()
		t.trailing = nil
	}
}
