package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vittordeaguiar/blog-api/internal/httputil"
)

// Policy pairs a limiter with a partition key selector. A policy whose
// key selector reports ok=false does not apply to the request (for
// example, the per-user policy on an unauthenticated request).
type Policy struct {
	Name    string
	Limiter *Limiter
	Key     func(r *http.Request) (key string, ok bool)
}

// Event describes a single rate limit decision, published to the
// configured sink for live streaming and analytics.
type Event struct {
	Timestamp time.Time
	ClientKey string
	Policy    string
	Method    string
	Path      string
	Allowed   bool
	Status    int
}

// Middleware applies a set of named policies to every request. A request
// is rejected as soon as any applicable policy denies it.
type Middleware struct {
	policies []Policy
	onEvent  func(Event)
}

// Option configures optional Middleware behavior.
type Option func(*Middleware)

// WithEventSink configures a callback invoked for every decision.
// The callback must not block.
func WithEventSink(sink func(Event)) Option {
	return func(m *Middleware) {
		m.onEvent = sink
	}
}

// NewMiddleware creates a middleware enforcing the given policies in order.
func NewMiddleware(policies []Policy, opts ...Option) *Middleware {
	m := &Middleware{policies: policies}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Wrap returns a handler that enforces all policies before calling next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, policy := range m.policies {
			key, ok := policy.Key(r)
			if !ok {
				continue
			}

			lease := policy.Limiter.Acquire(r.Context(), key)
			if lease.Granted {
				continue
			}

			retryAfter := int64(math.Ceil(lease.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			m.publish(Event{
				Timestamp: time.Now().UTC(),
				ClientKey: key,
				Policy:    policy.Name,
				Method:    r.Method,
				Path:      r.URL.Path,
				Allowed:   false,
				Status:    http.StatusTooManyRequests,
			})
			httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":               "rate limit exceeded",
				"retry_after_seconds": retryAfter,
			})
			return
		}

		m.publish(Event{
			Timestamp: time.Now().UTC(),
			ClientKey: clientLabel(r, m.policies),
			Method:    r.Method,
			Path:      r.URL.Path,
			Allowed:   true,
			Status:    http.StatusOK,
		})
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) publish(event Event) {
	if m.onEvent != nil {
		m.onEvent(event)
	}
}

// clientLabel picks the most specific applicable partition key for event
// reporting: the last applicable policy wins, so user beats ip beats global.
func clientLabel(r *http.Request, policies []Policy) string {
	label := "unknown"
	for _, policy := range policies {
		if key, ok := policy.Key(r); ok {
			label = key
		}
	}

	return label
}

// GlobalKey partitions all callers into a single fixed bucket, for an
// aggregate ceiling across all traffic.
func GlobalKey() func(*http.Request) (string, bool) {
	return func(*http.Request) (string, bool) {
		return "global", true
	}
}

// ClientIPKey partitions by remote IP address. When trustProxy is set the
// first X-Forwarded-For entry takes precedence over RemoteAddr; only
// enable it behind a trusted reverse proxy. Falls back to "unknown" when
// no address is available.
func ClientIPKey(trustProxy bool) func(*http.Request) (string, bool) {
	return func(r *http.Request) (string, bool) {
		return "ip-" + clientIP(r, trustProxy), true
	}
}

// UserKey partitions authenticated callers by user id. identify extracts
// the user id from the request; requests it rejects are not subject to
// the per-user policy.
func UserKey(identify func(*http.Request) (string, bool)) func(*http.Request) (string, bool) {
	return func(r *http.Request) (string, bool) {
		id, ok := identify(r)
		if !ok || id == "" {
			return "", false
		}

		return "user-" + id, true
	}
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
			if first != "" {
				return first
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}

		return "unknown"
	}

	return host
}
