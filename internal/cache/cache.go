// Package cache provides a thin string cache in front of the live
// metadata endpoint. It is a pure performance enrichment: every caller
// must work correctly if the cache is absent or unreachable. Grounded on
// internal/infrastructure/datafacade/cache/ttl_cache.go and
// internal/application/config.go's CacheConfig (Redis addr/db/ttl shape).
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache is the minimal interface components depend on, so tests can swap
// in an in-memory Fake instead of standing up a real Redis instance.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
}

// RedisCache degrades silently: a connection failure at construction or
// use time simply results in cache misses, never an error surfaced to the
// caller (spec.md's components are stateless functions of their inputs;
// this cache is never load-bearing for correctness).
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache returns nil if addr is empty — callers should treat a nil
// *RedisCache as "caching disabled" (it implements Cache as a permanent miss).
func NewRedisCache(addr string, db int) *RedisCache {
	if addr == "" {
		return nil
	}
	return &RedisCache{client: redis.NewClient(&redis.Options{Addr: addr, DB: db})}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	if c == nil || c.client == nil {
		return "", false
	}
	v, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("cache get failed, treating as miss")
		}
		return "", false
	}
	return v, true
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("cache set failed, ignoring")
	}
}
