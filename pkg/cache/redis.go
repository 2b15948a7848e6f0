package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisKeyPrefix namespaces cache entries in Redis.
const RedisKeyPrefix = "elexon:cache:"

// RedisStore shares cache entries between processes through Redis.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStore creates a Redis backed store. Entries expire in Redis after
// ttl; a ttl of 0 keeps them until evicted.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Name implements Backend.
func (r *RedisStore) Name() string {
	return "redis"
}

// Get implements Backend.
func (r *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := r.redis.Get(ctx, RedisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return &entry, nil
}

// Set implements Backend.
func (r *RedisStore) Set(ctx context.Context, key string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := r.redis.Set(ctx, RedisKeyPrefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
