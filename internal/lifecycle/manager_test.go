package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/njoerd114/wpmirror/internal/model"
	"github.com/njoerd114/wpmirror/internal/state"
	wpsync "github.com/njoerd114/wpmirror/internal/sync"
	"github.com/njoerd114/wpmirror/internal/wordpress"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mock poster -------------------------------------------------------------

type mockPoster struct {
	mu         sync.Mutex
	createErr  error
	deleteErr  error
	nextID     int
	published  []int
	deleted    []int
	collection model.Collection
}

func (p *mockPoster) CreatePost(_ context.Context, c model.Collection, payload model.PostPayload) (model.PostHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.collection = c
	if p.createErr != nil {
		return model.PostHandle{}, p.createErr
	}
	p.nextID++
	return model.PostHandle{ID: p.nextID, Slug: payload.Slug, Title: payload.Title, Type: "post"}, nil
}

func (p *mockPoster) PublishPost(_ context.Context, _ model.Collection, id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, id)
	return nil
}

func (p *mockPoster) DeletePost(_ context.Context, _ model.Collection, id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleteErr != nil {
		return p.deleteErr
	}
	p.deleted = append(p.deleted, id)
	return nil
}

// --- Mock syncer -------------------------------------------------------------

// mockSyncer serves items once syncs reaches appearAfter.
type mockSyncer struct {
	appearAfter int
	slug        string
	syncs       int
	err         error
	onSync      func(n int)
	items       []model.CachedItem
}

func (s *mockSyncer) Sync(context.Context, bool) (wpsync.Result, error) {
	s.syncs++
	if s.onSync != nil {
		s.onSync(s.syncs)
	}
	if s.err != nil {
		return wpsync.Result{}, s.err
	}
	if s.appearAfter > 0 && s.syncs >= s.appearAfter {
		s.items = []model.CachedItem{{ID: 1, Slug: s.slug, Link: "https://example.com/" + s.slug + "/"}}
	}
	return wpsync.Result{Mode: wpsync.ModeIncremental}, nil
}

func (s *mockSyncer) Items() []model.CachedItem { return s.items }

// --- Mock ledger -------------------------------------------------------------

type mockLedger struct {
	mu        sync.Mutex
	handles   map[int]*state.Handle
	published map[string]string
	ctxErrs   []error
}

func newMockLedger() *mockLedger {
	return &mockLedger{handles: map[int]*state.Handle{}, published: map[string]string{}}
}

func (l *mockLedger) UpsertHandle(_ context.Context, h *state.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *h
	if cp.Status == "" {
		cp.Status = state.StatusCreated
	}
	l.handles[h.PostID] = &cp
	return nil
}

func (l *mockLedger) SetStatus(_ context.Context, _ string, id int, status, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.handles[id]
	if !ok {
		return state.ErrNotFound
	}
	h.Status = status
	return nil
}

func (l *mockLedger) MarkPublishedBySlug(ctx context.Context, _ string, slug, link string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ctxErrs = append(l.ctxErrs, ctx.Err())
	l.published[slug] = link
	return nil
}

var fast = wordpress.Backoff{Base: time.Millisecond, Max: 2 * time.Millisecond}

func newTestManager(p *mockPoster, s *mockSyncer, l *mockLedger) *Manager {
	var ledger Ledger
	if l != nil {
		ledger = l
	}
	return NewManager(p, s, ledger, Options{Collection: model.CollectionPhotos, Backoff: fast}, discardLogger())
}

// ---------------------------------------------------------------------------
// Create / publish / delete
// ---------------------------------------------------------------------------

func TestCreate_RecordsHandle(t *testing.T) {
	p, l := &mockPoster{}, newMockLedger()
	m := newTestManager(p, &mockSyncer{}, l)

	h, err := m.Create(context.Background(), model.PostPayload{Slug: "new-post", Title: "New"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.collection != model.CollectionPhotos {
		t.Errorf("collection = %q, want photos", p.collection)
	}
	last, ok := m.LastCreated()
	if !ok || last != h {
		t.Errorf("LastCreated = %+v, %v", last, ok)
	}
	if got := l.handles[h.ID]; got == nil || got.Slug != "new-post" || got.Collection != "photos" {
		t.Errorf("ledger handle = %+v", got)
	}
}

func TestCreate_RejectedLeavesNoHandle(t *testing.T) {
	rejected := &wordpress.StatusError{Op: "create post", Status: 400, Err: wordpress.ErrCreateRejected}
	p, l := &mockPoster{createErr: rejected}, newMockLedger()
	m := newTestManager(p, &mockSyncer{}, l)

	_, err := m.Create(context.Background(), model.PostPayload{Slug: "x"})
	if !errors.Is(err, wordpress.ErrCreateRejected) {
		t.Fatalf("err = %v, want ErrCreateRejected", err)
	}
	var se *wordpress.StatusError
	if !errors.As(err, &se) || se.Status != 400 {
		t.Errorf("status not carried: %v", err)
	}
	if _, ok := m.LastCreated(); ok {
		t.Error("LastCreated set after failed create")
	}
	if len(l.handles) != 0 {
		t.Errorf("ledger has %d handles", len(l.handles))
	}
}

func TestPublishAndDelete_UpdateLedger(t *testing.T) {
	p, l := &mockPoster{}, newMockLedger()
	m := newTestManager(p, &mockSyncer{}, l)
	ctx := context.Background()

	h, _ := m.Create(ctx, model.PostPayload{Slug: "a"})
	for range 2 {
		if err := m.Publish(ctx, h.ID); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if l.handles[h.ID].Status != state.StatusPublished {
		t.Errorf("status = %q", l.handles[h.ID].Status)
	}

	if err := m.Delete(ctx, h.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if l.handles[h.ID].Status != state.StatusRolledBack {
		t.Errorf("status = %q, want rolled_back", l.handles[h.ID].Status)
	}
	if _, ok := m.LastCreated(); ok {
		t.Error("LastCreated still set after delete")
	}
	if err := m.Publish(ctx, 999); err != nil {
		t.Errorf("Publish of a post unknown to the ledger: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Dependent steps
// ---------------------------------------------------------------------------

func TestRunDependent_SucceedsAfterRetry(t *testing.T) {
	p := &mockPoster{}
	m := newTestManager(p, &mockSyncer{}, nil)
	h, _ := m.Create(context.Background(), model.PostPayload{Slug: "a"})

	calls := 0
	err := m.RunDependent(context.Background(), h, 3, func(context.Context, model.PostHandle) error {
		calls++
		if calls < 2 {
			return fmt.Errorf("meta update: timeout")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunDependent: %v", err)
	}
	if calls != 2 || len(p.deleted) != 0 {
		t.Errorf("calls = %d, deleted = %v", calls, p.deleted)
	}
}

func TestRunDependent_ExhaustedRollsBack(t *testing.T) {
	p, l := &mockPoster{}, newMockLedger()
	m := newTestManager(p, &mockSyncer{}, l)
	h, _ := m.Create(context.Background(), model.PostPayload{Slug: "a"})

	stepErr := errors.New("meta update: 500")
	calls := 0
	err := m.RunDependent(context.Background(), h, 3, func(context.Context, model.PostHandle) error {
		calls++
		return stepErr
	})
	if !errors.Is(err, ErrRolledBack) || !errors.Is(err, stepErr) {
		t.Fatalf("err = %v, want ErrRolledBack wrapping the step error", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !slices.Equal(p.deleted, []int{h.ID}) {
		t.Errorf("deleted = %v", p.deleted)
	}
	if l.handles[h.ID].Status != state.StatusRolledBack {
		t.Errorf("ledger status = %q", l.handles[h.ID].Status)
	}
}

func TestRunDependent_FailedRollbackReportsBoth(t *testing.T) {
	deleteErr := errors.New("delete: connection refused")
	p := &mockPoster{deleteErr: deleteErr}
	m := newTestManager(p, &mockSyncer{}, nil)
	h, _ := m.Create(context.Background(), model.PostPayload{Slug: "a"})

	stepErr := errors.New("boom")
	err := m.RunDependent(context.Background(), h, 1, func(context.Context, model.PostHandle) error { return stepErr })
	if errors.Is(err, ErrRolledBack) {
		t.Error("reported rolled back although delete failed")
	}
	if !errors.Is(err, stepErr) || !errors.Is(err, deleteErr) {
		t.Errorf("err = %v, want both errors", err)
	}
	if _, ok := m.LastCreated(); !ok {
		t.Error("handle dropped although the post still exists")
	}
}
