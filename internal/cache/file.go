package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/njoerd114/wpmirror/internal/model"
)

// FileStore keeps a cache as two sibling files:
//
//	<name>.json           JSON array of items
//	<name>_metadata.json  {"<name>.json": {"cached_pages", "total_posts", "last_updated"}}
//
// The metadata file may hold records for other caches; they are preserved.
type FileStore struct {
	path     string
	metaPath string
	key      string
	logger   *slog.Logger
}

// NewFileStore returns a store for the cache file at path. Nothing is read
// or created until Load or Save.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	return &FileStore{
		path:     path,
		metaPath: MetadataPath(path),
		key:      filepath.Base(path),
		logger:   logger,
	}
}

// MetadataPath derives the metadata file path from a cache file path.
func MetadataPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_metadata.json"
}

// Path returns the collection file path.
func (s *FileStore) Path() string { return s.path }

// Load reads both files. A missing file, a missing metadata record or a
// count mismatch between the two (a torn write) all report ErrColdStart.
func (s *FileStore) Load(_ context.Context) ([]model.CachedItem, model.Metadata, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, model.Metadata{}, ErrColdStart
	}
	if err != nil {
		return nil, model.Metadata{}, fmt.Errorf("reading cache file %q: %w", s.path, err)
	}

	var items []model.CachedItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, model.Metadata{}, fmt.Errorf("parsing cache file %q: %w", s.path, err)
	}

	records, err := s.readMetadata()
	if err != nil {
		return nil, model.Metadata{}, err
	}
	raw, ok := records[s.key]
	if !ok {
		return nil, model.Metadata{}, ErrColdStart
	}
	var meta model.Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, model.Metadata{}, fmt.Errorf("parsing metadata record %q: %w", s.key, err)
	}

	if err := checkInvariant(items, meta); err != nil {
		s.logger.Warn("cache and metadata disagree, treating as cold start",
			"path", s.path, "items", len(items), "total_posts", meta.TotalItems)
		return nil, model.Metadata{}, ErrColdStart
	}

	s.logger.Debug("cache loaded", "path", s.path, "items", len(items), "cached_pages", meta.CachedPages)
	return items, meta, nil
}

// Save writes the collection then its metadata record, each atomically.
func (s *FileStore) Save(_ context.Context, items []model.CachedItem, meta model.Metadata) error {
	if err := checkInvariant(items, meta); err != nil {
		return err
	}
	if items == nil {
		items = []model.CachedItem{}
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	records, err := s.readMetadata()
	if err != nil {
		return err
	}
	rec, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	records[s.key] = rec
	metaData, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	if err := writeAtomic(s.path, data); err != nil {
		return err
	}
	if err := writeAtomic(s.metaPath, metaData); err != nil {
		return err
	}

	s.logger.Debug("cache saved", "path", s.path, "items", len(items))
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

// readMetadata returns every record in the metadata file, or an empty map
// when the file does not exist. The older list-wrapped layout
// [{"<name>.json": {...}}] is also accepted.
func (s *FileStore) readMetadata() (map[string]json.RawMessage, error) {
	records := make(map[string]json.RawMessage)

	data, err := os.ReadFile(s.metaPath)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(data) == 0) {
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading metadata file %q: %w", s.metaPath, err)
	}

	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	}

	var legacy []map[string]json.RawMessage
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("parsing metadata file %q: %w", s.metaPath, err)
	}
	records = make(map[string]json.RawMessage)
	for _, entry := range legacy {
		for k, v := range entry {
			if _, seen := records[k]; !seen {
				records[k] = v
			}
		}
	}
	return records, nil
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
