package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache is a read-through copy of completed responses. The database stays
// authoritative; cache failures only cost a round trip.
type Cache interface {
	Get(ctx context.Context, callerID uuid.UUID, key Key) (*SavedResponse, bool, error)
	Put(ctx context.Context, callerID uuid.UUID, key Key, resp *SavedResponse) error
}

const cacheKeyPrefix = "newsletter:idempotency:"

// RedisCache stores JSON-encoded responses in Redis with a TTL.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisCache creates a RedisCache. A zero ttl stores entries without
// expiry.
func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func cacheKey(callerID uuid.UUID, key Key) string {
	return cacheKeyPrefix + callerID.String() + ":" + string(key)
}

// Get returns the cached response, or ok=false when none is cached.
func (c *RedisCache) Get(ctx context.Context, callerID uuid.UUID, key Key) (*SavedResponse, bool, error) {
	data, err := c.client.Get(ctx, cacheKey(callerID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var resp SavedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false, fmt.Errorf("decode cached response: %w", err)
	}
	return &resp, true, nil
}

// Put caches resp for the pair.
func (c *RedisCache) Put(ctx context.Context, callerID uuid.UUID, key Key, resp *SavedResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(callerID, key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
