// Package cache provides a Redis-backed JSON response cache.
//
// Cache failures are deliberately swallowed: a cache outage degrades to
// hitting the database, it never fails a request. Every error is logged.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default configuration values for the Redis connection pool.
const (
	DefaultPoolSize     = 10
	DefaultMinIdleConns = 3
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
	DefaultMaxRetries   = 3
)

// Cache stores JSON-serializable values under string keys.
// All implementations must be safe for concurrent use.
type Cache interface {
	// Get unmarshals the cached value for key into dest and reports
	// whether there was a hit.
	Get(ctx context.Context, key string, dest any) bool

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value any, ttl time.Duration)

	// Delete removes the given keys.
	Delete(ctx context.Context, keys ...string)

	// DeletePattern removes every key matching a glob pattern.
	DeletePattern(ctx context.Context, pattern string)

	// Close releases the underlying connection.
	Close() error
}

// RedisConfig holds the configuration for the Redis cache backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     DefaultPoolSize,
		MinIdleConns: DefaultMinIdleConns,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		MaxRetries:   DefaultMaxRetries,
	}
}

// Redis implements Cache on a Redis string keyspace with JSON values.
type Redis struct {
	client *redis.Client
	mu     sync.RWMutex
	closed bool
}

// NewRedis connects to Redis and validates the connection with a ping.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: failed to connect to %s: %w", cfg.Addr, err)
	}

	slog.Info("cache: connected to redis", "addr", cfg.Addr, "pool_size", cfg.PoolSize)

	return &Redis{client: client}, nil
}

// Client returns the underlying Redis client so other components (the
// rate limiter's counter store) can share the connection pool.
func (c *Redis) Client() *redis.Client {
	return c.client
}

// Get unmarshals the cached value for key into dest.
func (c *Redis) Get(ctx context.Context, key string, dest any) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		slog.Debug("cache: miss", "key", key)
		return false
	}
	if err != nil {
		slog.Error("cache: get failed", "key", key, "error", err)
		return false
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		slog.Error("cache: corrupt entry, dropping", "key", key, "error", err)
		c.client.Del(ctx, key)
		return false
	}

	slog.Debug("cache: hit", "key", key)

	return true
}

// Set stores value under key with the given TTL.
func (c *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		slog.Error("cache: marshal failed", "key", key, "error", err)
		return
	}

	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		slog.Error("cache: set failed", "key", key, "error", err)
	}
}

// Delete removes the given keys.
func (c *Redis) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		slog.Error("cache: delete failed", "keys", keys, "error", err)
	}
}

// DeletePattern removes every key matching a glob pattern using an
// incremental SCAN so large keyspaces are never blocked.
func (c *Redis) DeletePattern(ctx context.Context, pattern string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			slog.Error("cache: scan failed", "pattern", pattern, "error", err)
			return
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				slog.Error("cache: delete failed", "pattern", pattern, "error", err)
				return
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			return
		}
	}
}

// Close gracefully shuts down the Redis connection.
func (c *Redis) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	return c.client.Close()
}

// Null is a no-op Cache used when Redis is not configured; every read
// is a miss and every write is discarded.
type Null struct{}

// NewNull creates a no-op cache.
func NewNull() Null { return Null{} }

func (Null) Get(context.Context, string, any) bool           { return false }
func (Null) Set(context.Context, string, any, time.Duration) {}
func (Null) Delete(context.Context, ...string)               {}
func (Null) DeletePattern(context.Context, string)           {}
func (Null) Close() error                                    { return nil }
