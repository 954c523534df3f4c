package coordinator

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncerFiresOnceAfterLastArm(t *testing.T) {
	mock := clock.NewMock()
	var runs int32
	d := newDebouncer(mock, time.Second, func() { atomic.AddInt32(&runs, 1) })

	d.Arm()
	mock.Add(100 * time.Millisecond)
	d.Arm()
	mock.Add(100 * time.Millisecond)
	d.Arm()
	assert.True(t, d.Armed())

	mock.Add(900 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&runs))

	mock.Add(100 * time.Millisecond)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, waitFor, time.Millisecond)
	assert.False(t, d.Armed())

	mock.Add(5 * time.Second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestDebouncerStop(t *testing.T) {
	mock := clock.NewMock()
	var runs int32
	d := newDebouncer(mock, time.Second, func() { atomic.AddInt32(&runs, 1) })

	d.Arm()
	d.Stop()
	d.Arm()
	mock.Add(2 * time.Second)

	assert.Equal(t, int32(0), atomic.LoadInt32(&runs))
	assert.False(t, d.Armed())
}

func TestDebouncerIgnoresSupersededFire(t *testing.T) {
	mock := clock.NewMock()
	var runs int32
	d := newDebouncer(mock, time.Second, func() { atomic.AddInt32(&runs, 1) })

	d.Arm()
	d.mu.Lock()
	stale := d.gen
	d.mu.Unlock()
	d.Arm()

	d.fire(stale)
	assert.Equal(t, int32(0), atomic.LoadInt32(&runs))
	assert.True(t, d.Armed())
}

func TestThrottlerLeadingAndTrailing(t *testing.T) {
	mock := clock.NewMock()
	var runs int32
	th := newThrottler(mock, 500*time.Millisecond, func() { atomic.AddInt32(&runs, 1) })

	th.Arm()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, waitFor, time.Millisecond)

	mock.Add(100 * time.Millisecond)
	th.Arm()
	mock.Add(100 * time.Millisecond)
	th.Arm()
	th.Arm()

	mock.Add(200 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs), "still inside the window")

	mock.Add(100 * time.Millisecond)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 2 }, waitFor, time.Millisecond)

	mock.Add(2 * time.Second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&runs), "exactly one trailing run")
}

func TestThrottlerSpacesRuns(t *testing.T) {
	mock := clock.NewMock()
	var runs int32
	th := newThrottler(mock, 500*time.Millisecond, func() { atomic.AddInt32(&runs, 1) })

	th.Arm()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, waitFor, time.Millisecond)

	// A full window later the next arm runs right away.
	mock.Add(500 * time.Millisecond)
	th.Arm()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 2 }, waitFor, time.Millisecond)
}

func TestThrottlerStop(t *testing.T) {
	mock := clock.NewMock()
	var runs int32
	th := newThrottler(mock, 500*time.Millisecond, func() { atomic.AddInt32(&runs, 1) })

	th.Arm()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) == 1 }, waitFor, time.Millisecond)

	th.Arm()
	th.Stop()
	mock.Add(time.Second)
	th.Arm()

	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}
