// Package lifecycle drives posts through create, publish and rollback, and
// waits for a published post to show up in the mirrored cache.
//
// A [Manager] does not retry create or publish; a network error there goes
// straight back to the caller, who still has the last created handle to roll
// back with.
package lifecycle

import (
	"context"

	"github.com/njoerd114/wpmirror/internal/model"
	"github.com/njoerd114/wpmirror/internal/state"
	wpsync "github.com/njoerd114/wpmirror/internal/sync"
)

// Poster is the write side of the WordPress API.
//
// Implemented by [wordpress.Client].
type Poster interface {
	CreatePost(ctx context.Context, collection model.Collection, payload model.PostPayload) (model.PostHandle, error)
	PublishPost(ctx context.Context, collection model.Collection, id int) error
	DeletePost(ctx context.Context, collection model.Collection, id int) error
}

// Syncer refreshes the cache and exposes its items.
//
// Implemented by [wpsync.Engine].
type Syncer interface {
	Sync(ctx context.Context, force bool) (wpsync.Result, error)
	Items() []model.CachedItem
}

// Ledger keeps the post handles across runs.
//
// Implemented by [state.Store].
type Ledger interface {
	UpsertHandle(ctx context.Context, h *state.Handle) error
	SetStatus(ctx context.Context, collection string, postID int, status, link string) error
	MarkPublishedBySlug(ctx context.Context, collection, slug, link string) error
}
