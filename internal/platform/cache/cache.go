// Package cache provides a small JSON value cache backed by Redis. It is
// optional; a nil Cache disables caching without branching at call sites.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/corpulate/platform/pkg/logger"
)

// Cache stores JSON-encoded values with a TTL.
type Cache struct {
	client *redis.Client
	log    *logger.Logger
}

// New connects a cache to the Redis server at addr.
func New(addr, password string, db int, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.NewDefault("cache")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Cache{client: client, log: log}
}

// Name implements the lifecycle service interface.
func (c *Cache) Name() string { return "cache" }

// Start verifies the Redis connection.
func (c *Cache) Start(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Stop closes the Redis connection.
func (c *Cache) Stop(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// Get loads the value stored under key into v. The second return is false on
// a miss. Redis failures are logged and reported as misses so the caller
// falls through to the source of truth.
func (c *Cache) Get(ctx context.Context, key string, v interface{}) bool {
	if c == nil {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).WithField("key", key).Warn("cache get failed")
		}
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache entry corrupt")
		return false
	}
	return true
}

// Set stores v under key for ttl. Failures are logged, never returned.
func (c *Cache) Set(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache encode failed")
		return
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache set failed")
	}
}

// Delete drops the given keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) {
	if c == nil || len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.WithError(err).Warn("cache delete failed")
	}
}
