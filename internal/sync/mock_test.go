package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/njoerd114/wpmirror/internal/cache"
	"github.com/njoerd114/wpmirror/internal/model"
	"github.com/njoerd114/wpmirror/internal/state"
	"github.com/njoerd114/wpmirror/internal/wordpress"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// item builds a cached item the way the API would serve it.
func item(id int) model.CachedItem {
	return itemWithTitle(id, fmt.Sprintf("Post %d", id))
}

func itemWithTitle(id int, title string) model.CachedItem {
	var it model.CachedItem
	raw := fmt.Sprintf(`{"id":%d,"slug":"post-%d","link":"https://example.com/post-%d/","title":{"rendered":%q}}`, id, id, id, title)
	if err := it.UnmarshalJSON([]byte(raw)); err != nil {
		panic(err)
	}
	return it
}

// descending returns items with ids n..1, newest first.
func descending(n int) []model.CachedItem {
	items := make([]model.CachedItem, 0, n)
	for id := n; id >= 1; id-- {
		items = append(items, item(id))
	}
	return items
}

// --- Mock remote -------------------------------------------------------------

type mockRemote struct {
	mu      sync.Mutex
	items   []model.CachedItem
	perPage int

	// lieTotal, when non-zero, replaces the X-WP-Total value.
	lieTotal int
	failPage int

	pagesRequested []int
	fetchAllCalls  int
}

func newMockRemote(perPage int, items []model.CachedItem) *mockRemote {
	return &mockRemote{items: items, perPage: perPage}
}

func (m *mockRemote) set(items []model.CachedItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = items
}

func (m *mockRemote) totalPages() int {
	return (len(m.items) + m.perPage - 1) / m.perPage
}

func (m *mockRemote) page(n int) (wordpress.Page, error) {
	if n == m.failPage {
		return wordpress.Page{}, fmt.Errorf("page %d: connection reset", n)
	}
	if n < 1 || n > m.totalPages() {
		return wordpress.Page{}, wordpress.ErrNoMorePages
	}
	lo := (n - 1) * m.perPage
	hi := min(lo+m.perPage, len(m.items))
	total := len(m.items)
	if m.lieTotal != 0 {
		total = m.lieTotal
	}
	return wordpress.Page{
		Number:        n,
		Items:         append([]model.CachedItem(nil), m.items[lo:hi]...),
		Total:         total,
		TotalPages:    m.totalPages(),
		HasPagination: true,
	}, nil
}

func (m *mockRemote) FetchPage(_ context.Context, _ model.Collection, n int) (wordpress.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pagesRequested = append(m.pagesRequested, n)
	return m.page(n)
}

func (m *mockRemote) FetchFirstPage(ctx context.Context, c model.Collection) (wordpress.Page, error) {
	return m.FetchPage(ctx, c, 1)
}

func (m *mockRemote) FetchAll(_ context.Context, _ model.Collection) ([]model.CachedItem, wordpress.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchAllCalls++
	first, err := m.page(1)
	if err != nil {
		return nil, wordpress.Page{}, err
	}
	return append([]model.CachedItem(nil), m.items...), first, nil
}

func (m *mockRemote) resetRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pagesRequested = nil
}

// --- Mock cache store --------------------------------------------------------

type mockStore struct {
	mu    sync.Mutex
	items []model.CachedItem
	meta  model.Metadata
	has   bool
	saves int

	// badSaves counts saves that broke the count invariant.
	badSaves int
}

func (s *mockStore) Load(context.Context) ([]model.CachedItem, model.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.has {
		return nil, model.Metadata{}, cache.ErrColdStart
	}
	return append([]model.CachedItem(nil), s.items...), s.meta, nil
}

func (s *mockStore) Save(_ context.Context, items []model.CachedItem, meta model.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if len(items) != meta.TotalItems {
		s.badSaves++
		return cache.ErrInvariant
	}
	s.items = append([]model.CachedItem(nil), items...)
	s.meta = meta
	s.has = true
	return nil
}

// --- Mock ledger -------------------------------------------------------------

type mockLedger struct {
	mu   sync.Mutex
	runs []state.SyncRun
}

func (l *mockLedger) RecordSyncRun(_ context.Context, run *state.SyncRun) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, *run)
	return nil
}
