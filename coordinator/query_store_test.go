package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huykn/cache-coordinator/store"
)

func newSeededQueryStore(t *testing.T, fetcher store.Fetcher, keys ...string) *store.QueryStore {
	t.Helper()

	opts := store.DefaultQueryStoreOptions()
	opts.Fetcher = fetcher
	qs, err := store.NewQueryStore(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = qs.Close() })

	for _, key := range keys {
		require.NoError(t, qs.SetValue(context.Background(), key, key))
	}
	return qs
}

func TestWildcardExpansionAgainstQueryStore(t *testing.T) {
	qs := newSeededQueryStore(t, nil, "workouts_list", "workouts_detail_42", "templates_list")
	c, mock := newTestCoordinator(t, qs)

	c.Schedule("workouts*", "workout saved", PriorityNormal, false, nil)
	mock.Add(time.Second)
	waitForDrains(t, c, 1)

	assert.True(t, qs.IsStale("workouts_list"))
	assert.True(t, qs.IsStale("workouts_detail_42"))
	assert.False(t, qs.IsStale("templates_list"))
}

func TestBatchDrainUsesQueryStoreBatchInvalidation(t *testing.T) {
	qs := newSeededQueryStore(t, nil, "a", "b", "c")
	c, mock := newTestCoordinator(t, qs)

	c.Schedule("a", "test", PriorityLow, false, nil)
	c.Schedule("b", "test", PriorityHigh, false, "fresh-b")
	mock.Add(time.Second)
	waitForDrains(t, c, 1)

	assert.True(t, qs.IsStale("a"))
	assert.True(t, qs.IsStale("b"), "optimistic write is followed by invalidation")
	assert.False(t, qs.IsStale("c"))

	value, err := qs.Get(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "fresh-b", value)
}

func TestCriticalDrainRefetchesQueryStore(t *testing.T) {
	fetched := make(chan string, 4)
	fetcher := func(ctx context.Context, key string) (any, error) {
		fetched <- key
		return "refetched", nil
	}
	qs := newSeededQueryStore(t, fetcher, "session_active")
	c, _ := newTestCoordinator(t, qs)

	c.ForceRefresh("session_active", "")
	waitForDrains(t, c, 1)

	assert.Equal(t, "session_active", <-fetched)
	assert.False(t, qs.IsStale("session_active"))
	value, err := qs.Get(context.Background(), "session_active")
	require.NoError(t, err)
	assert.Equal(t, "refetched", value)
}

var (
	_ Store            = (*store.QueryStore)(nil)
	_ BatchInvalidator = (*store.QueryStore)(nil)
	_ Store            = (*store.RedisStore)(nil)
	_ BatchInvalidator = (*store.RedisStore)(nil)
)
