package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/njoerd114/wpmirror/internal/model"
)

// DefaultRedisPrefix namespaces the two keys of a Redis-backed cache.
const DefaultRedisPrefix = "wpmirror:posts"

// RedisConfig holds Redis connection settings for [RedisStore].
type RedisConfig struct {
	// URL is the Redis connection URL, e.g. "redis://:password@host:6379/0".
	URL string

	// Prefix is prepended to the ":items" and ":meta" keys.
	Prefix string

	// TTL expires both keys. Zero keeps them forever.
	TTL time.Duration
}

// RedisStore implements Store on two Redis keys written in one MULTI/EXEC.
type RedisStore struct {
	client  redis.UniversalClient
	itemKey string
	metaKey string
	ttl     time.Duration
	logger  *slog.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := NewRedisStoreWithClient(client, cfg.Prefix, cfg.TTL, logger)
	logger.Info("redis cache connected", "items_key", s.itemKey, "ttl", s.ttl)
	return s, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		client:  client,
		itemKey: prefix + ":items",
		metaKey: prefix + ":meta",
		ttl:     ttl,
		logger:  logger,
	}
}

// Load fetches both keys. A missing key reports ErrColdStart.
func (s *RedisStore) Load(ctx context.Context) ([]model.CachedItem, model.Metadata, error) {
	vals, err := s.client.MGet(ctx, s.itemKey, s.metaKey).Result()
	if err != nil {
		return nil, model.Metadata{}, fmt.Errorf("failed to get cache from redis: %w", err)
	}
	itemData, ok1 := vals[0].(string)
	metaData, ok2 := vals[1].(string)
	if !ok1 || !ok2 {
		return nil, model.Metadata{}, ErrColdStart
	}

	var items []model.CachedItem
	if err := json.Unmarshal([]byte(itemData), &items); err != nil {
		return nil, model.Metadata{}, fmt.Errorf("failed to parse cache from redis: %w", err)
	}
	var meta model.Metadata
	if err := json.Unmarshal([]byte(metaData), &meta); err != nil {
		return nil, model.Metadata{}, fmt.Errorf("failed to parse metadata from redis: %w", err)
	}
	if err := checkInvariant(items, meta); err != nil {
		s.logger.Warn("redis cache and metadata disagree, treating as cold start", "error", err)
		return nil, model.Metadata{}, ErrColdStart
	}
	return items, meta, nil
}

// Save writes both keys in a single transaction.
func (s *RedisStore) Save(ctx context.Context, items []model.CachedItem, meta model.Metadata) error {
	if err := checkInvariant(items, meta); err != nil {
		return err
	}
	if items == nil {
		items = []model.CachedItem{}
	}
	itemData, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.itemKey, itemData, s.ttl)
		p.Set(ctx, s.metaKey, metaData, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set cache in redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
