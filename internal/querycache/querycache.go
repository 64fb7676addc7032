// Package querycache fronts the query layer with a short-TTL result
// cache. The default backend is process-local; a shared Redis backend
// can be layered on top for multi-instance deployments, following the
// same enabled/disabled graceful-fallback shape the rest of the stack
// uses for optional infrastructure.
package querycache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/mallardmetrics/mallard/internal/logger"
)

// Config controls the cache backend. Redis is optional: when RedisAddr is
// empty the cache runs purely off the local LRU tier.
type Config struct {
	TTL       time.Duration
	LocalSize int
	RedisAddr string
	RedisDB   int
	RedisPass string
}

// Cache is a two-tier query result cache: a bounded local LRU always
// present, and an optional shared Redis tier that lets a fleet of
// instances agree on cached results instead of each computing its own.
type Cache struct {
	local *lru.LRU[string, []byte]
	redis *redis.Client
	ttl   time.Duration
}

func New(ctx context.Context, cfg Config) (*Cache, error) {
	if cfg.LocalSize <= 0 {
		cfg.LocalSize = 1000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}

	c := &Cache{
		local: lru.NewLRU[string, []byte](cfg.LocalSize, nil, cfg.TTL),
		ttl:   cfg.TTL,
	}

	if cfg.RedisAddr == "" {
		return c, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect query cache redis: %w", err)
	}
	c.redis = client
	return c, nil
}

// IsShared reports whether a Redis tier backs this cache in addition
// to the always-present local tier.
func (c *Cache) IsShared() bool {
	return c.redis != nil
}

func (c *Cache) Close() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}

// Get looks up key, checking the local tier first and falling back to
// the shared tier (populating the local tier on a shared hit) when one
// is configured.
func (c *Cache) Get(ctx context.Context, key string, target any) bool {
	if raw, ok := c.local.Get(key); ok {
		if json.Unmarshal(raw, target) == nil {
			return true
		}
		return false
	}

	if c.redis == nil {
		return false
	}
	raw, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if json.Unmarshal(raw, target) != nil {
		return false
	}
	c.local.Add(key, raw)
	return true
}

// Set stores value under key in every configured tier. Marshal and
// Redis failures are logged and otherwise ignored: a cache write never
// fails the query that produced the value.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		logger.Query().Warn().Err(err).Str("key", key).Msg("marshal query cache value failed")
		return
	}
	c.local.Add(key, raw)

	if c.redis == nil {
		return
	}
	if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		logger.Query().Warn().Err(err).Str("key", key).Msg("write-through to shared query cache failed")
	}
}

// Invalidate drops key from both tiers. No ingest or flush path calls
// it; cached results expire by TTL.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	c.local.Remove(key)
	if c.redis != nil {
		c.redis.Del(ctx, key)
	}
}
