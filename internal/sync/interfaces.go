// Package sync keeps a local cache consistent with a remote WordPress
// collection.
//
// [Engine] decides between a full build and an incremental sync, merges new
// items at the head of the cache, and validates the merge before anything is
// persisted. A merge that fails validation is discarded and replaced by one
// full rebuild.
//
// An Engine is not safe for concurrent use. Only one sync may run against a
// given cache at a time; callers enforce that (the CLI holds a file lock).
package sync

import (
	"context"

	"github.com/njoerd114/wpmirror/internal/model"
	"github.com/njoerd114/wpmirror/internal/state"
	"github.com/njoerd114/wpmirror/internal/wordpress"
)

// Fetcher reads pages of a remote collection.
// Implemented by [wordpress.Client].
type Fetcher interface {
	FetchPage(ctx context.Context, collection model.Collection, page int) (wordpress.Page, error)
	FetchFirstPage(ctx context.Context, collection model.Collection) (wordpress.Page, error)
	FetchAll(ctx context.Context, collection model.Collection) ([]model.CachedItem, wordpress.Page, error)
}

// CacheStore persists the cache.
// Implemented by [cache.FileStore] and [cache.RedisStore].
type CacheStore interface {
	Load(ctx context.Context) ([]model.CachedItem, model.Metadata, error)
	Save(ctx context.Context, items []model.CachedItem, meta model.Metadata) error
}

// Ledger records the outcome of every sync run.
// Implemented by [state.Store].
type Ledger interface {
	RecordSyncRun(ctx context.Context, run *state.SyncRun) error
}
