// Package ratelimit provides sliding-log request rate limiting backed by
// a shared counter store.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CounterStore records one request for a key and reports how many requests
// fall inside the trailing window, including the one just recorded. The
// trim, insert, expiry refresh and count steps must execute as one atomic
// unit against the backing store.
type CounterStore interface {
	Take(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Lease is the outcome of a permit acquisition attempt.
type Lease struct {
	// Granted indicates whether the request may proceed.
	Granted bool
	// RetryAfter is how long the caller should wait before retrying.
	// Zero when the permit was granted.
	RetryAfter time.Duration
}

// Config controls limiter behavior.
type Config struct {
	Limit  int64
	Window time.Duration
}

// Limiter decides per request whether a caller identified by a partition
// key may proceed. The decision is stateless from the caller's
// perspective; all persisted state lives in the CounterStore.
type Limiter struct {
	store  CounterStore
	limit  int64
	window time.Duration
}

// New creates a limiter with the provided configuration.
func New(store CounterStore, cfg Config) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("ratelimit: store is required")
	}
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("ratelimit: limit must be greater than 0")
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("ratelimit: window must be greater than 0")
	}

	return &Limiter{
		store:  store,
		limit:  cfg.Limit,
		window: cfg.Window,
	}, nil
}

// Acquire attempts to take one permit for key. Store failures never
// propagate: the limiter fails open and grants the permit, because a
// limiter outage must not become a full outage. The incident is logged.
func (l *Limiter) Acquire(ctx context.Context, key string) Lease {
	count, err := l.store.Take(ctx, key, l.window)
	if err != nil {
		slog.Warn("ratelimit: counter store unavailable, failing open", "key", key, "error", err)
		return Lease{Granted: true}
	}

	if count <= l.limit {
		return Lease{Granted: true}
	}

	return Lease{Granted: false, RetryAfter: l.window}
}

// Limit returns the configured permit limit.
func (l *Limiter) Limit() int64 { return l.limit }

// Window returns the configured window duration.
func (l *Limiter) Window() time.Duration { return l.window }
