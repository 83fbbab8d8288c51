// Package state manages the SQLite ledger that sits beside the content cache:
// a history of sync runs and the handles of posts this tool created,
// published or rolled back.
//
// The ledger doubles as the side channel for poll results. A post detected as
// published is written here before the poll returns, so the detection
// survives an interrupted caller.
//
// Only this package may open or query the database. All other packages receive
// a [*Store] and call its methods.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_runs (
    id          TEXT    PRIMARY KEY,
    collection  TEXT    NOT NULL,
    mode        TEXT    NOT NULL DEFAULT '',
    started_at  TEXT    NOT NULL,
    finished_at TEXT    NOT NULL DEFAULT '',
    added       INTEGER NOT NULL DEFAULT 0,
    items       INTEGER NOT NULL DEFAULT 0,
    pages       INTEGER NOT NULL DEFAULT 0,
    persisted   INTEGER NOT NULL DEFAULT 0,
    error       TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_collection ON sync_runs (collection, started_at);

CREATE TABLE IF NOT EXISTS post_handles (
    post_id     INTEGER NOT NULL,
    collection  TEXT    NOT NULL,
    slug        TEXT    NOT NULL DEFAULT '',
    title       TEXT    NOT NULL DEFAULT '',
    type        TEXT    NOT NULL DEFAULT '',
    author      INTEGER NOT NULL DEFAULT 0,
    status      TEXT    NOT NULL,
    link        TEXT    NOT NULL DEFAULT '',
    created_at  TEXT    NOT NULL,
    updated_at  TEXT    NOT NULL,
    PRIMARY KEY (collection, post_id)
);

CREATE INDEX IF NOT EXISTS idx_post_handles_slug ON post_handles (collection, slug);
`

// Handle statuses.
const (
	StatusCreated    = "created"
	StatusPublished  = "published"
	StatusRolledBack = "rolled_back"
)

// SyncRun is one row of the sync history.
type SyncRun struct {
	ID         string
	Collection string
	Mode       string
	StartedAt  time.Time
	FinishedAt time.Time
	Added      int
	Items      int
	Pages      int
	Persisted  bool
	Error      string
}

// Handle is a post created through this tool.
type Handle struct {
	PostID     int
	Collection string
	Slug       string
	Title      string
	Type       string
	Author     int
	Status     string
	Link       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Store is the SQLite-backed ledger.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultDBPath returns the default path for the ledger:
// ~/.local/share/wpmirror/state.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "wpmirror", "state.db"), nil
}

// Open opens (or creates) the SQLite database at path, applies the schema, and
// configures WAL mode.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- sync runs ---------------------------------------------------------------

// RecordSyncRun inserts run.
func (s *Store) RecordSyncRun(ctx context.Context, run *SyncRun) error {
	const q = `
		INSERT INTO sync_runs
		    (id, collection, mode, started_at, finished_at, added, items, pages, persisted, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		run.ID,
		run.Collection,
		run.Mode,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		run.Added,
		run.Items,
		run.Pages,
		run.Persisted,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("recording sync run %s: %w", run.ID, err)
	}
	return nil
}

// LastSyncRun returns the most recent run for collection, or (nil, nil).
func (s *Store) LastSyncRun(ctx context.Context, collection string) (*SyncRun, error) {
	runs, err := s.RecentSyncRuns(ctx, collection, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

// RecentSyncRuns returns up to limit runs for collection, newest first.
func (s *Store) RecentSyncRuns(ctx context.Context, collection string, limit int) ([]*SyncRun, error) {
	const q = `
		SELECT id, collection, mode, started_at, finished_at, added, items, pages, persisted, error
		FROM sync_runs WHERE collection = ?
		ORDER BY started_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, collection, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*SyncRun
	for rows.Next() {
		var r SyncRun
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Collection, &r.Mode, &started, &finished,
			&r.Added, &r.Items, &r.Pages, &r.Persisted, &r.Error); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		r.StartedAt, _ = parseTime(started)
		r.FinishedAt, _ = parseTime(finished)
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// --- post handles ------------------------------------------------------------

// UpsertHandle inserts h or overwrites the row with the same collection and
// post id.
func (s *Store) UpsertHandle(ctx context.Context, h *Handle) error {
	now := s.now()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	h.UpdatedAt = now
	if h.Status == "" {
		h.Status = StatusCreated
	}

	const q = `
		INSERT INTO post_handles
		    (post_id, collection, slug, title, type, author, status, link, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, post_id) DO UPDATE SET
		    slug       = excluded.slug,
		    title      = excluded.title,
		    type       = excluded.type,
		    author     = excluded.author,
		    status     = excluded.status,
		    link       = excluded.link,
		    updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, q,
		h.PostID, h.Collection, h.Slug, h.Title, h.Type, h.Author,
		h.Status, h.Link, formatTime(h.CreatedAt), formatTime(h.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting handle %d: %w", h.PostID, err)
	}
	return nil
}

// SetStatus moves a handle to status, optionally recording its public link.
// An empty link leaves the stored one unchanged.
func (s *Store) SetStatus(ctx context.Context, collection string, postID int, status, link string) error {
	const q = `
		UPDATE post_handles
		SET status = ?, link = CASE WHEN ? = '' THEN link ELSE ? END, updated_at = ?
		WHERE collection = ? AND post_id = ?`
	res, err := s.db.ExecContext(ctx, q, status, link, link, formatTime(s.now()), collection, postID)
	if err != nil {
		return fmt.Errorf("updating handle %d: %w", postID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("updating handle %d: %w", postID, ErrNotFound)
	}
	return nil
}

// MarkPublishedBySlug records the public link of the handle with slug. It
// returns ErrNotFound when this tool never created that slug.
func (s *Store) MarkPublishedBySlug(ctx context.Context, collection, slug, link string) error {
	const q = `
		UPDATE post_handles SET status = ?, link = ?, updated_at = ?
		WHERE collection = ? AND slug = ?`
	res, err := s.db.ExecContext(ctx, q, StatusPublished, link, formatTime(s.now()), collection, slug)
	if err != nil {
		return fmt.Errorf("marking %q published: %w", slug, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ErrNotFound is returned by updates that matched no handle.
var ErrNotFound = errors.New("handle not found")

// LatestHandle returns the most recently created handle in collection that
// has not been rolled back, or (nil, nil).
func (s *Store) LatestHandle(ctx context.Context, collection string) (*Handle, error) {
	const q = handleColumns + `
		FROM post_handles WHERE collection = ? AND status != ?
		ORDER BY created_at DESC, post_id DESC LIMIT 1`
	return scanHandle(s.db.QueryRowContext(ctx, q, collection, StatusRolledBack))
}

// LatestPublished returns the most recently published handle, or (nil, nil).
func (s *Store) LatestPublished(ctx context.Context, collection string) (*Handle, error) {
	const q = handleColumns + `
		FROM post_handles WHERE collection = ? AND status = ?
		ORDER BY updated_at DESC LIMIT 1`
	return scanHandle(s.db.QueryRowContext(ctx, q, collection, StatusPublished))
}

// HandleBySlug returns the handle for slug, or (nil, nil).
func (s *Store) HandleBySlug(ctx context.Context, collection, slug string) (*Handle, error) {
	const q = handleColumns + `
		FROM post_handles WHERE collection = ? AND slug = ?
		ORDER BY created_at DESC LIMIT 1`
	return scanHandle(s.db.QueryRowContext(ctx, q, collection, slug))
}

// --- helpers -----------------------------------------------------------------

const handleColumns = `
		SELECT post_id, collection, slug, title, type, author, status, link, created_at, updated_at`

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanHandle(s scanner) (*Handle, error) {
	var h Handle
	var created, updated string
	err := s.Scan(&h.PostID, &h.Collection, &h.Slug, &h.Title, &h.Type, &h.Author,
		&h.Status, &h.Link, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning handle row: %w", err)
	}
	h.CreatedAt, _ = parseTime(created)
	h.UpdatedAt, _ = parseTime(updated)
	return &h, nil
}

// timeLayout is fixed width so stored timestamps sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
