package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisExactCache stores completions as plain string values with a Redis TTL,
// so expiry needs no sweeper on this side.
type RedisExactCache struct {
	client redis.UniversalClient
	prefix string
}

type RedisConfig struct {
	Prefix string
}

func NewRedisExactCache(client redis.UniversalClient, config RedisConfig) *RedisExactCache {
	return &RedisExactCache{client: client, prefix: config.Prefix}
}

func (c *RedisExactCache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

// Get treats a missing key as a clean miss. Any other failure is returned
// with ok=false; the handler logs it and calls the upstream.
func (c *RedisExactCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	res, err := c.client.Get(ctx, c.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return res, true, nil
}

// Set is a no-op for a non-positive ttl; entries never outlive their TTL.
func (c *RedisExactCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	if err := c.client.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *RedisExactCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
