package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/huykn/cache-coordinator/types"
)

const waitFor = 2 * time.Second

type storeCall struct {
	op    string
	keys  []string
	mode  types.RefetchMode
	value any
}

// recordingStore records every call. Keys listed in fail return that error.
// When block is non-nil, invalidations announce themselves on entered and
// wait for block to be closed.
type recordingStore struct {
	mu      sync.Mutex
	calls   []storeCall
	fail    map[string]error
	block   chan struct{}
	entered chan string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{fail: make(map[string]error)}
}

func (s *recordingStore) record(call storeCall) error {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	var err error
	for _, k := range call.keys {
		if e, ok := s.fail[k]; ok {
			err = e
		}
	}
	block, entered := s.block, s.entered
	s.mu.Unlock()

	if call.op != "set" && block != nil {
		if entered != nil {
			entered <- call.keys[0]
		}
		<-block
	}
	return err
}

func (s *recordingStore) InvalidateByKey(ctx context.Context, key string, mode types.RefetchMode) error {
	return s.record(storeCall{op: "key", keys: []string{key}, mode: mode})
}

func (s *recordingStore) InvalidateByPrefix(ctx context.Context, prefix string, mode types.RefetchMode) error {
	return s.record(storeCall{op: "prefix", keys: []string{prefix}, mode: mode})
}

func (s *recordingStore) SetValue(ctx context.Context, key string, value any) error {
	return s.record(storeCall{op: "set", keys: []string{key}, value: value})
}

func (s *recordingStore) Calls() []storeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storeCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// invalidatedKeys lists every key passed to an invalidation call, in call order.
func (s *recordingStore) invalidatedKeys() []string {
	var keys []string
	for _, c := range s.Calls() {
		if c.op != "set" {
			keys = append(keys, c.keys...)
		}
	}
	return keys
}

// batchingStore additionally implements BatchInvalidator.
type batchingStore struct {
	*recordingStore
}

func (s batchingStore) InvalidateKeys(ctx context.Context, keys []string, mode types.RefetchMode) error {
	cp := make([]string, len(keys))
	copy(cp, keys)
	return s.record(storeCall{op: "keys", keys: cp, mode: mode})
}

func newTestCoordinator(t *testing.T, store Store, mutate ...func(*Options)) (*Coordinator, *clock.Mock) {
	t.Helper()

	mock := clock.NewMock()
	opts := DefaultOptions()
	opts.Clock = mock
	opts.Store = store
	for _, m := range mutate {
		m(&opts)
	}

	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mock
}

func waitForDrains(t *testing.T, c *Coordinator, n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := c.GetStats()
		return s.Drains >= n && !s.IsExecuting
	}, waitFor, time.Millisecond)
}

type panickingStore struct{}

func (panickingStore) InvalidateByKey(ctx context.Context, key string, mode types.RefetchMode) error {
	panic("invalidate " + key)
}

func (panickingStore) InvalidateByPrefix(ctx context.Context, prefix string, mode types.RefetchMode) error {
	panic("invalidate prefix " + prefix)
}

func (panickingStore) SetValue(ctx context.Context, key string, value any) error {
	panic("set " + key)
}
