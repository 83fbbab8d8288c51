// Package cache persists the mirrored collection and its sync metadata.
//
// Two backends implement [Store]: [FileStore], the default pair of sibling
// JSON files, and [RedisStore] for mirrors shared between hosts.
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/njoerd114/wpmirror/internal/model"
)

var (
	// ErrColdStart is returned by Load when either the collection or its
	// metadata record does not exist yet.
	ErrColdStart = errors.New("cache: cold start")

	// ErrInvariant is returned by Save when len(items) does not match
	// metadata.TotalItems. Nothing is written.
	ErrInvariant = errors.New("cache: item count does not match metadata")
)

// Store loads and saves one cache instance.
type Store interface {
	Load(ctx context.Context) ([]model.CachedItem, model.Metadata, error)
	Save(ctx context.Context, items []model.CachedItem, meta model.Metadata) error
	Close() error
}

func checkInvariant(items []model.CachedItem, meta model.Metadata) error {
	if len(items) != meta.TotalItems {
		return fmt.Errorf("%w: %d items, total_posts=%d", ErrInvariant, len(items), meta.TotalItems)
	}
	return nil
}
