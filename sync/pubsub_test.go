package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/huykn/cache-coordinator/types"
)

func setupRedisClient(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1, // Use DB 1 for tests
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	return client
}

func testChannel(t *testing.T) string {
	return fmt.Sprintf("test-channel:%s:%d", t.Name(), time.Now().UnixNano())
}

func TestNewPubSubSynchronizer(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	sync := NewPubSubSynchronizer(client, "test-channel", "pod-1")
	if sync.channel != "test-channel" {
		t.Fatalf("Expected channel 'test-channel', got %s", sync.channel)
	}
	if sync.podID != "pod-1" {
		t.Fatalf("Expected podID 'pod-1', got %s", sync.podID)
	}

	// Closing without subscribing is fine, twice.
	if err := sync.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := sync.Close(); err != nil {
		t.Fatalf("Second Close failed: %v", err)
	}
}

func TestEncodeFillsSender(t *testing.T) {
	sync := NewPubSubSynchronizer(nil, "c", "pod-1")

	data, err := sync.encode(types.Event{Key: "k", Action: types.Invalidate})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if string(data) != `{"key":"k","sender":"pod-1","action":"invalidate"}` {
		t.Fatalf("Unexpected payload %s", data)
	}

	data, _ = sync.encode(types.Event{Key: "k", Sender: "pod-9", Action: types.Refetch})
	if string(data) != `{"key":"k","sender":"pod-9","action":"refetch"}` {
		t.Fatalf("Explicit sender should be kept, got %s", data)
	}
}

func TestPubSubSynchronizerDeliversPeerEvents(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	channel := testChannel(t)
	ctx := context.Background()

	receiver := NewPubSubSynchronizer(client, channel, "pod-1")
	defer receiver.Close()
	sender := NewPubSubSynchronizer(client, channel, "pod-2")
	defer sender.Close()

	received := make(chan types.Event, 4)
	receiver.OnEvent(func(event types.Event) {
		received <- event
	})

	if err := receiver.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Own events are skipped.
	if err := receiver.Publish(ctx, types.Event{Key: "self", Action: types.Invalidate}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := sender.Publish(ctx, types.Event{Key: "workouts*", Action: types.Refetch}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case event := <-received:
		if event.Key != "workouts*" || event.Sender != "pod-2" || event.Action != types.Refetch {
			t.Fatalf("Unexpected event %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
	}
}

func TestPubSubSynchronizerPublishAll(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	channel := testChannel(t)
	ctx := context.Background()

	receiver := NewPubSubSynchronizer(client, channel, "pod-1")
	defer receiver.Close()
	sender := NewPubSubSynchronizer(client, channel, "pod-2")
	defer sender.Close()

	received := make(chan types.Event, 8)
	receiver.OnEvent(func(event types.Event) {
		received <- event
	})
	if err := receiver.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	events := []types.Event{
		{Key: "a", Action: types.Invalidate},
		{Key: "b", Action: types.Invalidate},
		{Key: "c", Action: types.Invalidate},
	}
	if err := sender.PublishAll(ctx, events); err != nil {
		t.Fatalf("PublishAll failed: %v", err)
	}

	for _, want := range []string{"a", "b", "c"} {
		select {
		case event := <-received:
			if event.Key != want {
				t.Fatalf("Expected %s, got %s", want, event.Key)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for %s", want)
		}
	}
}

func TestPubSubSynchronizerSkipsMalformedPayload(t *testing.T) {
	client := setupRedisClient(t)
	defer client.Close()

	channel := testChannel(t)
	ctx := context.Background()

	receiver := NewPubSubSynchronizer(client, channel, "pod-1")
	defer receiver.Close()

	received := make(chan types.Event, 2)
	receiver.OnEvent(func(event types.Event) {
		received <- event
	})
	if err := receiver.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	client.Publish(ctx, channel, "not json")
	NewPubSubSynchronizer(client, channel, "pod-2").Publish(ctx, types.Event{Key: "ok", Action: types.Clear})

	select {
	case event := <-received:
		if event.Key != "ok" {
			t.Fatalf("Expected the valid event, got %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
	}
}
