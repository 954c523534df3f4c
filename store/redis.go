package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/huykn/cache-coordinator/types"
)

// RedisStore is a cache shared by every process through Redis. All keys
// live under Namespace. Writes and invalidations are announced to the
// configured Publisher so peers can update their local caches.
type RedisStore struct {
	client  *redis.Client
	options RedisStoreOptions
	codec   Serializer
}

// NewRedisStore connects to Redis and creates a new store.
func NewRedisStore(opts RedisStoreOptions) (*RedisStore, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}

	return NewRedisStoreWithClient(client, opts), nil
}

// NewRedisStoreWithClient creates a store over an existing client.
func NewRedisStoreWithClient(client *redis.Client, opts RedisStoreOptions) *RedisStore {
	codec := opts.Serializer
	if codec == nil {
		codec = NewJSONSerializer()
	}
	if opts.ScanCount <= 0 {
		opts.ScanCount = DefaultRedisStoreOptions().ScanCount
	}
	if opts.DeleteBatch <= 0 {
		opts.DeleteBatch = DefaultRedisStoreOptions().DeleteBatch
	}
	return &RedisStore{client: client, options: opts, codec: codec}
}

// Get retrieves the raw value stored under key.
func (rs *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := rs.client.Get(ctx, rs.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return val, nil
}

// SetValue stores value under key and publishes a set event carrying it.
func (rs *RedisStore) SetValue(ctx context.Context, key string, value any) error {
	data, err := encodeValue(rs.codec, value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := rs.client.Set(ctx, rs.key(key), data, rs.options.Expiration).Err(); err != nil {
		return err
	}
	return rs.publish(ctx, types.Event{Key: key, Action: types.Set, Value: data})
}

// InvalidateByKey deletes key and publishes an invalidate event, or a
// refetch event in RefetchActive mode.
func (rs *RedisStore) InvalidateByKey(ctx context.Context, key string, mode types.RefetchMode) error {
	if err := rs.client.Del(ctx, rs.key(key)).Err(); err != nil {
		return err
	}
	return rs.publish(ctx, types.Event{Key: key, Action: invalidationAction(mode)})
}

// InvalidateKeys deletes keys with a single DEL and publishes one event per key.
func (rs *RedisStore) InvalidateKeys(ctx context.Context, keys []string, mode types.RefetchMode) error {
	if len(keys) == 0 {
		return nil
	}

	nsKeys := make([]string, len(keys))
	events := make([]types.Event, len(keys))
	for i, key := range keys {
		nsKeys[i] = rs.key(key)
		events[i] = types.Event{Key: key, Action: invalidationAction(mode)}
	}
	if err := rs.client.Del(ctx, nsKeys...).Err(); err != nil {
		return err
	}
	return rs.publishAll(ctx, events)
}

// InvalidateByPrefix deletes every key starting with prefix and publishes
// a single wildcard event.
func (rs *RedisStore) InvalidateByPrefix(ctx context.Context, prefix string, mode types.RefetchMode) error {
	deleted, err := rs.deleteMatching(ctx, escapePattern(rs.key(prefix))+"*")
	if err != nil {
		return fmt.Errorf("invalidate prefix %q after %d keys: %w", prefix, deleted, err)
	}
	return rs.publish(ctx, types.Event{Key: prefix + types.WildcardSuffix, Action: invalidationAction(mode)})
}

// Clear removes every key in the namespace and publishes a clear event.
func (rs *RedisStore) Clear(ctx context.Context) error {
	if _, err := rs.deleteMatching(ctx, escapePattern(rs.options.Namespace)+"*"); err != nil {
		return err
	}
	return rs.publish(ctx, types.Event{Action: types.Clear})
}

// deleteMatching walks the keyspace with SCAN and deletes matches in
// batches of DeleteBatch. It returns the number of keys deleted.
func (rs *RedisStore) deleteMatching(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		deleted int
		batch   []string
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := rs.client.Del(ctx, batch...).Err(); err != nil {
			return err
		}
		deleted += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		keys, next, err := rs.client.Scan(ctx, cursor, pattern, rs.options.ScanCount).Result()
		if err != nil {
			return deleted, err
		}
		for _, key := range keys {
			batch = append(batch, key)
			if len(batch) >= rs.options.DeleteBatch {
				if err := flush(); err != nil {
					return deleted, err
				}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return deleted, flush()
}

func (rs *RedisStore) publish(ctx context.Context, event types.Event) error {
	if rs.options.Publisher == nil {
		return nil
	}
	event.Sender = rs.options.PodID
	if err := rs.options.Publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish %s event for %s: %w", event.Action, event.Key, err)
	}
	return nil
}

func (rs *RedisStore) publishAll(ctx context.Context, events []types.Event) error {
	if rs.options.Publisher == nil {
		return nil
	}
	for i := range events {
		events[i].Sender = rs.options.PodID
	}

	if batch, ok := rs.options.Publisher.(BatchPublisher); ok {
		if err := batch.PublishAll(ctx, events); err != nil {
			return fmt.Errorf("publish %d events: %w", len(events), err)
		}
		return nil
	}
	for _, event := range events {
		if err := rs.publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (rs *RedisStore) key(key string) string {
	return rs.options.Namespace + key
}

// Close closes the Redis connection.
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}

// Client returns the underlying Redis client.
func (rs *RedisStore) Client() *redis.Client {
	return rs.client
}

func invalidationAction(mode types.RefetchMode) types.Action {
	if mode == types.RefetchActive {
		return types.Refetch
	}
	return types.Invalidate
}

var patternEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// escapePattern quotes glob metacharacters so s matches literally in SCAN MATCH.
func escapePattern(s string) string {
	return patternEscaper.Replace(s)
}
