package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

func newIntegrationCache(t *testing.T) *Redis {
	t.Helper()

	cfg := DefaultRedisConfig()
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := NewRedis(ctx, cfg)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", cfg.Addr, err)
	}
	t.Cleanup(func() { _ = c.Close() })

	return c
}

type payload struct {
	Title string `json:"title"`
	Count int    `json:"count"`
}

func TestRedisRoundTrip(t *testing.T) {
	c := newIntegrationCache(t)
	ctx := context.Background()
	key := fmt.Sprintf("it:roundtrip:%d", time.Now().UnixNano())
	t.Cleanup(func() { c.Delete(ctx, key) })

	c.Set(ctx, key, payload{Title: "hello", Count: 3}, time.Minute)

	var got payload
	if !c.Get(ctx, key, &got) {
		t.Fatal("expected a cache hit")
	}
	if got.Title != "hello" || got.Count != 3 {
		t.Fatalf("got %+v, want the stored payload", got)
	}
}

func TestRedisMiss(t *testing.T) {
	c := newIntegrationCache(t)

	var got payload
	if c.Get(context.Background(), "it:does-not-exist", &got) {
		t.Fatal("expected a miss for an absent key")
	}
}

func TestRedisDeletePattern(t *testing.T) {
	c := newIntegrationCache(t)
	ctx := context.Background()

	prefix := fmt.Sprintf("it:pattern:%d", time.Now().UnixNano())
	for i := 0; i < 5; i++ {
		c.Set(ctx, fmt.Sprintf("%s:%d", prefix, i), payload{Count: i}, time.Minute)
	}
	survivor := prefix + "-other"
	c.Set(ctx, survivor, payload{Count: 99}, time.Minute)
	t.Cleanup(func() { c.Delete(ctx, survivor) })

	c.DeletePattern(ctx, prefix+":*")

	var got payload
	for i := 0; i < 5; i++ {
		if c.Get(ctx, fmt.Sprintf("%s:%d", prefix, i), &got) {
			t.Fatalf("key %d survived DeletePattern", i)
		}
	}
	if !c.Get(ctx, survivor, &got) {
		t.Fatal("DeletePattern removed a key outside the pattern")
	}
}

func TestRedisClosedIsSafe(t *testing.T) {
	c := newIntegrationCache(t)
	ctx := context.Background()

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Operations after Close must be silent no-ops.
	c.Set(ctx, "it:closed", payload{}, time.Minute)
	var got payload
	if c.Get(ctx, "it:closed", &got) {
		t.Fatal("closed cache reported a hit")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
