package cache

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"hunyuan-gateway/internal/metrics"
	"hunyuan-gateway/pkg/logging/logging"
)

// LoggingExactCache records hit/miss logs and the hit counter around a backend.
type LoggingExactCache struct {
	inner ExactCache
}

func NewLoggingExactCache(inner ExactCache) ExactCache {
	return &LoggingExactCache{inner: inner}
}

func (c *LoggingExactCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	value, ok, err := c.inner.Get(ctx, key)

	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case ok:
		result = "hit"
		metrics.ExactHitsTotal.Inc()
	}

	observe(ctx, "exact_cache_get", key, start, err, zap.String("cache_result", result))
	return value, ok, err
}

func (c *LoggingExactCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.inner.Set(ctx, key, value, ttl)

	observe(ctx, "exact_cache_set", key, start, err,
		zap.Int("bytes", len(value)),
		zap.Duration("ttl", ttl),
	)
	return err
}

func observe(ctx context.Context, op, key string, start time.Time, err error, extra ...zap.Field) {
	fields := append([]zap.Field{
		zap.String("cache_tier", "exact"),
		zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000.0),
	}, extra...)
	fields = append(fields, keyFields(key)...)

	logger := logging.L(ctx)
	if err != nil {
		logger.Error(op, append(fields, zap.Error(err))...)
		return
	}
	logger.Debug(op, fields...)
}

// keyFields splits the output of ExactCacheKey.String into log fields.
func keyFields(key string) []zap.Field {
	parts := strings.Split(key, ":")
	if len(parts) != 5 || parts[0] != "exact" {
		return []zap.Field{zap.String("cache_key", key)}
	}
	return []zap.Field{
		zap.String("tenant", parts[1]),
		zap.String("model_id", parts[2]),
		zap.String("version_id", parts[3]),
		zap.String("hash", parts[4]),
	}
}
