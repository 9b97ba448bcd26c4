package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend is a Redis-backed Backend implementation, suitable for
// distributed deployments where multiple runner instances share one cache.
type RedisBackend struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisBackend.
type RedisOption func(*RedisBackend)

// WithTTL sets the time-to-live applied to every write. Default is 1 hour;
// 0 disables expiration.
func WithTTL(ttl time.Duration) RedisOption {
	return func(b *RedisBackend) { b.ttl = ttl }
}

// WithKeyPrefix sets the Redis key prefix. Default is "pipeline:cache:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(b *RedisBackend) { b.prefix = prefix }
}

const defaultRedisTTL = time.Hour

// NewRedisBackend creates a Redis-backed cache Backend.
func NewRedisBackend(client *redis.Client, opts ...RedisOption) *RedisBackend {
	b := &RedisBackend{
		client: client,
		ttl:    defaultRedisTTL,
		prefix: "pipeline:cache:",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *RedisBackend) fullKey(key string) string {
	return b.prefix + key
}

// Get returns the Envelope stored under key, or ErrNotFound.
func (b *RedisBackend) Get(ctx context.Context, key string) (Envelope, error) {
	data, err := b.client.Get(ctx, b.fullKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Envelope{}, ErrNotFound
		}
		return Envelope{}, fmt.Errorf("cache: redis get failed: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("cache: redis envelope decode failed: %w", err)
	}
	return env, nil
}

// Exists reports whether key has an entry.
func (b *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, b.fullKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("cache: redis exists failed: %w", err)
	}
	return n > 0, nil
}

// Cache stores env under key with the configured TTL.
func (b *RedisBackend) Cache(ctx context.Context, key string, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("cache: redis envelope encode failed: %w", err)
	}
	if err := b.client.Set(ctx, b.fullKey(key), data, b.ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set failed: %w", err)
	}
	return nil
}

// Invalidate removes the entry at key, if any.
func (b *RedisBackend) Invalidate(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.fullKey(key)).Err(); err != nil {
		return fmt.Errorf("cache: redis del failed: %w", err)
	}
	return nil
}

// InvalidateByPrefix removes every entry whose key starts with prefix using
// SCAN to avoid blocking the server the way KEYS would on a large keyspace.
func (b *RedisBackend) InvalidateByPrefix(ctx context.Context, prefix string) error {
	pattern := b.fullKey(prefix) + "*"
	iter := b.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache: redis scan failed: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: redis del failed: %w", err)
	}
	return nil
}
