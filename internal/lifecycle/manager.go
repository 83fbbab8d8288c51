package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/njoerd114/wpmirror/internal/model"
	"github.com/njoerd114/wpmirror/internal/state"
	"github.com/njoerd114/wpmirror/internal/wordpress"
)

const otelScope = "wpmirror/lifecycle"

// ErrRolledBack is returned by [Manager.RunDependent] when the dependent step
// kept failing and the post was deleted.
var ErrRolledBack = errors.New("post rolled back")

// Options configures a Manager. Zero values pick the defaults.
type Options struct {
	Collection model.Collection
	// PollUnit is the length of one backoff step while polling.
	PollUnit time.Duration
	// Backoff paces the retries of dependent steps.
	Backoff wordpress.Backoff
}

// Manager runs post lifecycle operations against one collection.
type Manager struct {
	poster     Poster
	syncer     Syncer
	ledger     Ledger
	collection model.Collection
	unit       time.Duration
	backoff    wordpress.Backoff
	sleep      func(context.Context, time.Duration) error
	tracer     trace.Tracer
	log        *slog.Logger

	mu        sync.Mutex
	last      *model.PostHandle
	published string
}

// NewManager creates a Manager. ledger may be nil.
func NewManager(poster Poster, syncer Syncer, ledger Ledger, opts Options, logger *slog.Logger) *Manager {
	if opts.Collection == "" {
		opts.Collection = model.CollectionPosts
	}
	if opts.PollUnit <= 0 {
		opts.PollUnit = time.Second
	}
	if opts.Backoff == (wordpress.Backoff{}) {
		opts.Backoff = wordpress.DefaultBackoff
	}
	return &Manager{
		poster:     poster,
		syncer:     syncer,
		ledger:     ledger,
		collection: opts.Collection,
		unit:       opts.PollUnit,
		backoff:    opts.Backoff,
		sleep:      sleepCtx,
		tracer:     otel.Tracer(otelScope),
		log:        logger.With("collection", string(opts.Collection)),
	}
}

// Create posts payload. Only a 201 counts as success; anything else is a
// *wordpress.StatusError the workflow cannot continue from. The handle is
// remembered as the last created one and written to the ledger.
func (m *Manager) Create(ctx context.Context, payload model.PostPayload) (model.PostHandle, error) {
	h, err := m.poster.CreatePost(ctx, m.collection, payload)
	if err != nil {
		return model.PostHandle{}, err
	}

	m.mu.Lock()
	m.last = &h
	m.mu.Unlock()
	m.log.Info("post created", "id", h.ID, "slug", h.Slug)

	if m.ledger != nil {
		err := m.ledger.UpsertHandle(ctx, &state.Handle{
			PostID:     h.ID,
			Collection: string(m.collection),
			Slug:       h.Slug,
			Title:      h.Title,
			Type:       h.Type,
			Author:     h.Author,
			Link:       h.Link,
		})
		if err != nil {
			m.log.Warn("recording post handle", "id", h.ID, "error", err)
		}
	}
	return h, nil
}

// LastCreated returns the handle of the most recent successful Create that
// has not been deleted since.
func (m *Manager) LastCreated() (model.PostHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return model.PostHandle{}, false
	}
	return *m.last, true
}

// Publish sets the post status to publish. Publishing twice is harmless.
func (m *Manager) Publish(ctx context.Context, id int) error {
	if err := m.poster.PublishPost(ctx, m.collection, id); err != nil {
		return err
	}
	m.setStatus(ctx, id, state.StatusPublished)
	return nil
}

// Delete removes the post. It is the compensating action for a workflow that
// cannot finish.
func (m *Manager) Delete(ctx context.Context, id int) error {
	if err := m.poster.DeletePost(ctx, m.collection, id); err != nil {
		return err
	}
	m.mu.Lock()
	if m.last != nil && m.last.ID == id {
		m.last = nil
	}
	m.mu.Unlock()
	m.log.Info("post deleted", "id", id)
	m.setStatus(ctx, id, state.StatusRolledBack)
	return nil
}

func (m *Manager) setStatus(ctx context.Context, id int, status string) {
	if m.ledger == nil {
		return
	}
	err := m.ledger.SetStatus(ctx, string(m.collection), id, status, "")
	switch {
	case errors.Is(err, state.ErrNotFound):
		m.log.Debug("post not in ledger", "id", id)
	case err != nil:
		m.log.Warn("updating post handle", "id", id, "status", status, "error", err)
	}
}

// RunDependent runs step for h, retrying up to attempts times (default
// [wordpress.DefaultAttempts]). When every
// attempt fails the post is deleted and the error wraps ErrRolledBack. If the
// delete fails too, both errors are returned and the post is left in place.
func (m *Manager) RunDependent(ctx context.Context, h model.PostHandle, attempts int, step func(context.Context, model.PostHandle) error) error {
	if attempts <= 0 {
		attempts = wordpress.DefaultAttempts
	}
	err := m.backoff.Retry(ctx, attempts, func(ctx context.Context) error {
		return step(ctx, h)
	})
	if err == nil {
		return nil
	}

	m.log.Warn("dependent step failed, rolling back", "id", h.ID, "slug", h.Slug, "error", err)
	// The rollback must run even when ctx is what ended the retries.
	if derr := m.Delete(context.WithoutCancel(ctx), h.ID); derr != nil {
		return errors.Join(
			fmt.Errorf("dependent step on post %d: %w", h.ID, err),
			fmt.Errorf("rolling back post %d: %w", h.ID, derr),
		)
	}
	return fmt.Errorf("%w: post %d: %w", ErrRolledBack, h.ID, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
