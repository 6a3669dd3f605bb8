package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestKeys(t *testing.T) {
	id := uuid.MustParse("a2aa0519-6c18-4a8a-9be4-f9e07e36cf2e")

	tests := []struct {
		got  string
		want string
	}{
		{PostsPageKey(2, 20), "posts:page:2:20"},
		{PostByIDKey(id), "posts:id:a2aa0519-6c18-4a8a-9be4-f9e07e36cf2e"},
		{PostBySlugKey("hello-world"), "posts:slug:hello-world"},
		{AllPostsPattern(), "posts:*"},
		{CategoriesKey(), "categories:all"},
		{AllCategoriesPattern(), "categories:*"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("key = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNull()

	c.Set(ctx, "k", map[string]string{"a": "b"}, time.Minute)

	var dest map[string]string
	if c.Get(ctx, "k", &dest) {
		t.Fatal("null cache must never report a hit")
	}

	// The remaining operations must be safe no-ops.
	c.Delete(ctx, "k")
	c.DeletePattern(ctx, "posts:*")
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()

	if cfg.Addr != "localhost:6379" {
		t.Errorf("expected addr localhost:6379, got %s", cfg.Addr)
	}
	if cfg.PoolSize != DefaultPoolSize {
		t.Errorf("expected pool size %d, got %d", DefaultPoolSize, cfg.PoolSize)
	}
	if cfg.DialTimeout != DefaultDialTimeout {
		t.Errorf("expected dial timeout %v, got %v", DefaultDialTimeout, cfg.DialTimeout)
	}
	if cfg.MaxRetries != DefaultMaxRetries {
		t.Errorf("expected max retries %d, got %d", DefaultMaxRetries, cfg.MaxRetries)
	}
}

func TestCacheInterfaceCompliance(t *testing.T) {
	var _ Cache = (*Redis)(nil)
	var _ Cache = Null{}
}
