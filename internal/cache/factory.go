package cache

import (
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Backend string
	TTL     time.Duration
	Prefix  string
}

// NewExactCache picks the backend. The memory and redis backends are wrapped
// with logging and hit metrics; "none" and unknown backends disable caching.
// redisClient is only used by the redis backend.
func NewExactCache(cfg Config, redisClient *redis.Client) ExactCache {
	switch cfg.Backend {
	case BackendRedis:
		return NewLoggingExactCache(NewRedisExactCache(redisClient, RedisConfig{
			Prefix: cfg.Prefix,
		}))
	case BackendMemory:
		return NewLoggingExactCache(NewMemoryExactCache(DefaultSweepInterval))
	default:
		return NopExactCache{}
	}
}

// Enabled reports whether c can ever return a hit.
func Enabled(c ExactCache) bool {
	_, nop := c.(NopExactCache)
	return c != nil && !nop
}
