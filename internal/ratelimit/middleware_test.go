package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fixedStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
	keys   []string
}

func (s *fixedStore) Take(_ context.Context, key string, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys = append(s.keys, key)
	if s.err != nil {
		return 0, s.err
	}
	s.counts[key]++
	return s.counts[key], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newTestPolicy(t *testing.T, name string, store CounterStore, limit int64, key func(*http.Request) (string, bool)) Policy {
	t.Helper()

	l, err := New(store, Config{Limit: limit, Window: time.Minute})
	if err != nil {
		t.Fatalf("New limiter: %v", err)
	}

	return Policy{Name: name, Limiter: l, Key: key}
}

func TestMiddlewareDeniesWithRetryAfter(t *testing.T) {
	store := &fixedStore{counts: map[string]int64{}}
	mw := NewMiddleware([]Policy{newTestPolicy(t, "global", store, 2, GlobalKey())})
	handler := mw.Wrap(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/posts", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/posts", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("Retry-After = %q, want 60", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}
}

func TestMiddlewareFailsOpenOnStoreError(t *testing.T) {
	store := &fixedStore{err: errors.New("redis down")}
	mw := NewMiddleware([]Policy{newTestPolicy(t, "global", store, 1, GlobalKey())})
	handler := mw.Wrap(okHandler())

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d while store is down, want 200", i+1, rec.Code)
		}
	}
}

func TestMiddlewareChecksAllApplicablePolicies(t *testing.T) {
	store := &fixedStore{counts: map[string]int64{}}
	identify := func(r *http.Request) (string, bool) {
		id := r.Header.Get("X-Test-User")
		return id, id != ""
	}

	mw := NewMiddleware([]Policy{
		newTestPolicy(t, "global", store, 100, GlobalKey()),
		newTestPolicy(t, "ip", store, 100, ClientIPKey(false)),
		newTestPolicy(t, "user", store, 100, UserKey(identify)),
	})
	handler := mw.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:51234"
	req.Header.Set("X-Test-User", "42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	want := []string{"global", "ip-203.0.113.9", "user-42"}
	if len(store.keys) != len(want) {
		t.Fatalf("store keys = %v, want %v", store.keys, want)
	}
	for i, k := range want {
		if store.keys[i] != k {
			t.Errorf("key %d = %q, want %q", i, store.keys[i], k)
		}
	}
}

func TestMiddlewareSkipsUserPolicyWhenAnonymous(t *testing.T) {
	store := &fixedStore{counts: map[string]int64{}}
	identify := func(*http.Request) (string, bool) { return "", false }

	mw := NewMiddleware([]Policy{newTestPolicy(t, "user", store, 1, UserKey(identify))})
	handler := mw.Wrap(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("anonymous request %d was limited by the user policy", i+1)
		}
	}
	if len(store.keys) != 0 {
		t.Fatalf("store was consulted for an inapplicable policy: %v", store.keys)
	}
}

func TestMiddlewarePublishesEvents(t *testing.T) {
	store := &fixedStore{counts: map[string]int64{}}

	var events []Event
	mw := NewMiddleware(
		[]Policy{newTestPolicy(t, "global", store, 1, GlobalKey())},
		WithEventSink(func(e Event) { events = append(events, e) }),
	)
	handler := mw.Wrap(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/posts", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/posts", nil))

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if !events[0].Allowed || events[0].Status != http.StatusOK {
		t.Fatalf("first event = %+v, want allowed", events[0])
	}
	if events[1].Allowed || events[1].Status != http.StatusTooManyRequests {
		t.Fatalf("second event = %+v, want denied with 429", events[1])
	}
	if events[1].Policy != "global" {
		t.Fatalf("denied event policy = %q, want global", events[1].Policy)
	}
}

func TestClientIPKey(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		trustProxy bool
		want       string
	}{
		{"remote addr", "198.51.100.7:9000", "", false, "ip-198.51.100.7"},
		{"forwarded ignored when untrusted", "198.51.100.7:9000", "203.0.113.1", false, "ip-198.51.100.7"},
		{"forwarded wins when trusted", "198.51.100.7:9000", "203.0.113.1, 10.0.0.1", true, "ip-203.0.113.1"},
		{"no address at all", "", "", false, "ip-unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}

			key, ok := ClientIPKey(tt.trustProxy)(req)
			if !ok {
				t.Fatal("ip policy must always apply")
			}
			if key != tt.want {
				t.Fatalf("key = %q, want %q", key, tt.want)
			}
		})
	}
}
