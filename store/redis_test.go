package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/huykn/cache-coordinator/types"
)

type recordingPublisher struct {
	mu      sync.Mutex
	events  []types.Event
	batches int
}

func (p *recordingPublisher) Publish(ctx context.Context, event types.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Events() []types.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.Event(nil), p.events...)
}

type batchRecordingPublisher struct {
	*recordingPublisher
}

func (p batchRecordingPublisher) PublishAll(ctx context.Context, events []types.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches++
	p.events = append(p.events, events...)
	return nil
}

// newTestRedisStore connects to a local Redis under a namespace unique to
// the test, skipping the test when Redis is unavailable.
func newTestRedisStore(t *testing.T, pub Publisher) *RedisStore {
	t.Helper()

	opts := DefaultRedisStoreOptions()
	opts.Namespace = fmt.Sprintf("test:%s:%d:", t.Name(), time.Now().UnixNano())
	opts.PodID = "pod-1"
	opts.Publisher = pub
	opts.ScanCount = 10
	opts.DeleteBatch = 3

	store, err := NewRedisStore(opts)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Clear(context.Background())
		store.Close()
	})
	return store
}

func TestRedisStoreOptionsValidate(t *testing.T) {
	opts := DefaultRedisStoreOptions()
	if err := opts.Validate(); err != nil {
		t.Fatalf("Default options should be valid: %v", err)
	}

	opts.PodID = ""
	if err := opts.Validate(); err != ErrInvalidConfig {
		t.Fatalf("Expected ErrInvalidConfig, got %v", err)
	}

	opts = DefaultRedisStoreOptions()
	opts.DeleteBatch = 0
	if _, err := NewRedisStore(opts); err != ErrInvalidConfig {
		t.Fatalf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestNewRedisStoreUnreachable(t *testing.T) {
	opts := DefaultRedisStoreOptions()
	opts.Addr = "127.0.0.1:1"
	if _, err := NewRedisStore(opts); err == nil {
		t.Fatal("Expected error connecting to an unreachable address")
	}
}

func TestRedisStoreSetValueAndGet(t *testing.T) {
	pub := &recordingPublisher{}
	store := newTestRedisStore(t, pub)
	ctx := context.Background()

	if err := store.SetValue(ctx, "workouts_list", map[string]int{"count": 2}); err != nil {
		t.Fatalf("Failed to set value: %v", err)
	}

	value, err := store.Get(ctx, "workouts_list")
	if err != nil {
		t.Fatalf("Failed to get value: %v", err)
	}
	if string(value) != `{"count":2}` {
		t.Fatalf("Unexpected value %s", value)
	}

	events := pub.Events()
	if len(events) != 1 || events[0].Action != types.Set || events[0].Sender != "pod-1" {
		t.Fatalf("Unexpected events: %+v", events)
	}
	if string(events[0].Value) != `{"count":2}` {
		t.Fatalf("Event should carry the encoded value, got %s", events[0].Value)
	}
}

func TestRedisStoreGetNotFound(t *testing.T) {
	store := newTestRedisStore(t, nil)

	_, err := store.Get(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreInvalidateByKey(t *testing.T) {
	pub := &recordingPublisher{}
	store := newTestRedisStore(t, pub)
	ctx := context.Background()

	store.SetValue(ctx, "k", "v")
	if err := store.InvalidateByKey(ctx, "k", types.RefetchActive); err != nil {
		t.Fatalf("Failed to invalidate: %v", err)
	}

	if _, err := store.Get(ctx, "k"); !IsNotFound(err) {
		t.Fatalf("Expected key to be deleted, got %v", err)
	}

	events := pub.Events()
	last := events[len(events)-1]
	if last.Action != types.Refetch || last.Key != "k" {
		t.Fatalf("Expected refetch event for k, got %+v", last)
	}
}

func TestRedisStoreInvalidateKeysBatchesEvents(t *testing.T) {
	pub := batchRecordingPublisher{&recordingPublisher{}}
	store := newTestRedisStore(t, pub)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		store.SetValue(ctx, key, key)
	}

	if err := store.InvalidateKeys(ctx, []string{"a", "b"}, types.RefetchNone); err != nil {
		t.Fatalf("Failed to invalidate: %v", err)
	}

	if _, err := store.Get(ctx, "a"); !IsNotFound(err) {
		t.Fatal("a should be deleted")
	}
	if _, err := store.Get(ctx, "c"); err != nil {
		t.Fatalf("c should remain: %v", err)
	}
	if pub.batches != 1 {
		t.Fatalf("Expected one batch publish, got %d", pub.batches)
	}
}

func TestRedisStoreInvalidateByPrefix(t *testing.T) {
	pub := &recordingPublisher{}
	store := newTestRedisStore(t, pub)
	ctx := context.Background()

	var keys []string
	for i := 0; i < 7; i++ {
		keys = append(keys, fmt.Sprintf("workouts_detail_%d", i))
	}
	keys = append(keys, "workouts_list", "templates_list", "workouts")
	for _, key := range keys {
		if err := store.SetValue(ctx, key, key); err != nil {
			t.Fatalf("Failed to set %s: %v", key, err)
		}
	}

	if err := store.InvalidateByPrefix(ctx, "workouts_", types.RefetchNone); err != nil {
		t.Fatalf("Failed to invalidate prefix: %v", err)
	}

	var remaining []string
	for _, key := range keys {
		if _, err := store.Get(ctx, key); err == nil {
			remaining = append(remaining, key)
		}
	}
	sort.Strings(remaining)
	if fmt.Sprint(remaining) != "[templates_list workouts]" {
		t.Fatalf("Unexpected remaining keys: %v", remaining)
	}

	events := pub.Events()
	last := events[len(events)-1]
	if last.Key != "workouts_*" || last.Action != types.Invalidate {
		t.Fatalf("Expected one wildcard event, got %+v", last)
	}
}

func TestRedisStoreInvalidateByPrefixIsLiteral(t *testing.T) {
	store := newTestRedisStore(t, nil)
	ctx := context.Background()

	store.SetValue(ctx, "a?b", 1)
	store.SetValue(ctx, "axb", 2)

	if err := store.InvalidateByPrefix(ctx, "a?", types.RefetchNone); err != nil {
		t.Fatalf("Failed to invalidate prefix: %v", err)
	}

	if _, err := store.Get(ctx, "axb"); err != nil {
		t.Fatal("Glob characters in the prefix must match literally")
	}
	if _, err := store.Get(ctx, "a?b"); !IsNotFound(err) {
		t.Fatal("a?b should be deleted")
	}
}
