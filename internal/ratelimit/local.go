package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// localBucketTTL is how long an idle bucket is kept before pruning.
const localBucketTTL = 10 * time.Minute

// LocalLimiter is an in-process, per-key token bucket. It guards hot
// endpoints (login attempts, for one) even when the shared counter store
// is unreachable, at the cost of being per-instance rather than global.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
	rps     rate.Limit
	burst   int
}

type localBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter creates a limiter refilling rps tokens per second with
// the given burst capacity per key.
func NewLocalLimiter(rps float64, burst int) *LocalLimiter {
	return &LocalLimiter{
		buckets: make(map[string]*localBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

// Allow reports whether one request for key may proceed right now.
func (l *LocalLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{lim: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = b
		l.pruneLocked(now)
	}
	b.lastSeen = now

	return b.lim.Allow()
}

// pruneLocked drops buckets idle longer than localBucketTTL. Called with
// the mutex held, only when a new key is added, so steady-state traffic
// pays nothing.
func (l *LocalLimiter) pruneLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > localBucketTTL {
			delete(l.buckets, key)
		}
	}
}
