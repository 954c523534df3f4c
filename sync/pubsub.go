package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/huykn/cache-coordinator/types"
)

// Logger defines the interface for logging in the synchronizer.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// PubSubSynchronizer carries cache events between pods over a Redis
// Pub/Sub channel. Events sent by its own pod are not delivered back.
type PubSubSynchronizer struct {
	client         *redis.Client
	channel        string
	podID          string
	pubsub         *redis.PubSub
	logger         Logger
	callbacks      []func(event types.Event)
	callbacksMutex sync.RWMutex
	done           chan struct{}
	closeOnce      sync.Once
	wg             sync.WaitGroup
}

// NewPubSubSynchronizer creates a new Pub/Sub synchronizer.
func NewPubSubSynchronizer(client *redis.Client, channel, podID string) *PubSubSynchronizer {
	return &PubSubSynchronizer{
		client:  client,
		channel: channel,
		podID:   podID,
		done:    make(chan struct{}),
	}
}

// SetLogger sets the logger used to report dropped messages.
func (ps *PubSubSynchronizer) SetLogger(logger Logger) {
	ps.logger = logger
}

// Subscribe subscribes to the channel and starts dispatching events to the
// registered callbacks. It returns once Redis has confirmed the subscription.
func (ps *PubSubSynchronizer) Subscribe(ctx context.Context) error {
	pubsub := ps.client.Subscribe(ctx, ps.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", ps.channel, err)
	}
	ps.pubsub = pubsub

	ps.wg.Add(1)
	go ps.listenForEvents()

	return nil
}

// Publish publishes an event. An empty Sender is filled with this pod's id.
func (ps *PubSubSynchronizer) Publish(ctx context.Context, event types.Event) error {
	data, err := ps.encode(event)
	if err != nil {
		return err
	}
	return ps.client.Publish(ctx, ps.channel, data).Err()
}

// PublishAll publishes events in one pipelined round trip.
func (ps *PubSubSynchronizer) PublishAll(ctx context.Context, events []types.Event) error {
	payloads := make([][]byte, len(events))
	for i, event := range events {
		data, err := ps.encode(event)
		if err != nil {
			return err
		}
		payloads[i] = data
	}

	_, err := ps.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, data := range payloads {
			pipe.Publish(ctx, ps.channel, data)
		}
		return nil
	})
	return err
}

func (ps *PubSubSynchronizer) encode(event types.Event) ([]byte, error) {
	if event.Sender == "" {
		event.Sender = ps.podID
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s event for %s: %w", event.Action, event.Key, err)
	}
	return data, nil
}

// OnEvent registers a callback for events published by other pods.
func (ps *PubSubSynchronizer) OnEvent(callback func(event types.Event)) {
	ps.callbacksMutex.Lock()
	defer ps.callbacksMutex.Unlock()
	ps.callbacks = append(ps.callbacks, callback)
}

// Close stops the listener and closes the subscription.
func (ps *PubSubSynchronizer) Close() error {
	var err error
	ps.closeOnce.Do(func() {
		close(ps.done)
		if ps.pubsub != nil {
			err = ps.pubsub.Close()
		}
		ps.wg.Wait()
	})
	return err
}

func (ps *PubSubSynchronizer) listenForEvents() {
	defer ps.wg.Done()

	ch := ps.pubsub.Channel()

	for {
		select {
		case <-ps.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event types.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				if ps.logger != nil {
					ps.logger.Warn("sync: dropping malformed event", "channel", ps.channel, "error", err)
				}
				continue
			}

			// Don't apply your own writes
			if event.Sender == ps.podID {
				continue
			}

			ps.callbacksMutex.RLock()
			callbacks := ps.callbacks
			ps.callbacksMutex.RUnlock()

			if ps.logger != nil {
				ps.logger.Debug("sync: received event", "key", event.Key, "action", event.Action, "sender", event.Sender)
			}
			for _, callback := range callbacks {
				callback(event)
			}
		}
	}
}
