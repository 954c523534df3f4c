package coordinator

import (
	"time"
)

// cooldownTracker records when each key's last update executed.
// It is not safe for concurrent use; the coordinator guards it.
type cooldownTracker struct {
	executed map[string]time.Time
}

func newCooldownTracker() *cooldownTracker {
	return &cooldownTracker{executed: make(map[string]time.Time)}
}

// stamp records an execution at t. Stamps never move backwards.
func (ct *cooldownTracker) stamp(key string, t time.Time) {
	if last, ok := ct.executed[key]; ok && !t.After(last) {
		return
	}
	ct.executed[key] = t
}

// elapsed returns the time since key last executed.
// ok is false if key has never executed.
func (ct *cooldownTracker) elapsed(key string, now time.Time) (time.Duration, bool) {
	last, ok := ct.executed[key]
	if !ok {
		return 0, false
	}
	return now.Sub(last), true
}

// suppressed reports whether an update for key is still inside its cooldown window.
func (ct *cooldownTracker) suppressed(key string, now time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	elapsed, ok := ct.elapsed(key, now)
	return ok && elapsed < window
}

func (ct *cooldownTracker) snapshot() map[string]time.Time {
	out := make(map[string]time.Time, len(ct.executed))
	for k, v := range ct.executed {
		out[k] = v
	}
	return out
}

func (ct *cooldownTracker) reset() {
	ct.executed = make(map[string]time.Time)
}
