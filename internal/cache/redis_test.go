package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/njoerd114/wpmirror/internal/model"
)

// redisTestStore connects to WPMIRROR_TEST_REDIS_URL under a unique prefix,
// or skips.
func redisTestStore(t *testing.T) *RedisStore {
	t.Helper()
	url := os.Getenv("WPMIRROR_TEST_REDIS_URL")
	if url == "" {
		t.Skip("WPMIRROR_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	client := redis.NewClient(opts)
	prefix := "wpmirror-test:" + uuid.NewString()
	s := NewRedisStoreWithClient(client, prefix, time.Minute, discardLogger())
	t.Cleanup(func() {
		_ = client.Del(context.Background(), s.itemKey, s.metaKey).Err()
		_ = s.Close()
	})
	return s
}

func TestNewRedisStoreWithClient_Keys(t *testing.T) {
	s := NewRedisStoreWithClient(nil, "", 0, discardLogger())
	if s.itemKey != DefaultRedisPrefix+":items" || s.metaKey != DefaultRedisPrefix+":meta" {
		t.Errorf("keys = %q, %q", s.itemKey, s.metaKey)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil client: %v", err)
	}
}

func TestNewRedisStore_BadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisConfig{URL: "not a url"}, discardLogger())
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRedisStore_RoundTrip(t *testing.T) {
	s := redisTestStore(t)
	ctx := context.Background()

	if _, _, err := s.Load(ctx); !errors.Is(err, ErrColdStart) {
		t.Fatalf("Load on empty keys = %v, want ErrColdStart", err)
	}

	meta := model.Metadata{CachedPages: 1, TotalItems: 3, LastUpdated: "2026-10-15"}
	if err := s.Save(ctx, sampleItems(3), meta); err != nil {
		t.Fatalf("Save: %v", err)
	}
	items, got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != meta || len(items) != 3 || items[0].ID != 3 {
		t.Errorf("Load = %d items, %+v", len(items), got)
	}
}

func TestRedisStore_SaveRejectsMismatch(t *testing.T) {
	s := NewRedisStoreWithClient(nil, "x", 0, discardLogger())
	err := s.Save(context.Background(), sampleItems(2), model.Metadata{TotalItems: 3})
	if !errors.Is(err, ErrInvariant) {
		t.Errorf("Save err = %v, want ErrInvariant", err)
	}
}
