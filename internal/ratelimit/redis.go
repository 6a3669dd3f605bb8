package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces rate limit keys in Redis.
const DefaultKeyPrefix = "rate_limit:"

// RedisStore implements CounterStore on a Redis sorted set per key.
// Each member is a request timestamp; the score is the same timestamp in
// milliseconds, so trimming by score expires entries older than the window.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a CounterStore backed by the provided Redis client.
// The client's dial/read/write timeouts bound every store operation, so a
// Redis outage cannot hang the request pipeline.
func NewRedisStore(client *redis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("ratelimit: redis client is required")
	}

	return &RedisStore{client: client, prefix: DefaultKeyPrefix}, nil
}

// Take records one request for key and returns the number of requests in
// the trailing window. The four commands run inside a MULTI/EXEC
// transaction pipeline: a single round trip, applied atomically, so a
// partial trim or an uncounted insert is never observable.
func (s *RedisStore) Take(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now()
	windowStart := now.Add(-window)
	redisKey := s.prefix + key

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart.UnixMilli(), 10))
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	pipe.Expire(ctx, redisKey, window)
	count := pipe.ZCard(ctx, redisKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("ratelimit: redis transaction for key %q: %w", key, err)
	}

	return count.Val(), nil
}
