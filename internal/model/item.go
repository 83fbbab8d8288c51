// Package model defines shared types used across the cache, sync engine,
// taxonomy indexer and WordPress client.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Collection identifies one of the remote paginated collections that can be
// mirrored.
type Collection string

const (
	// CollectionPosts is the standard WordPress posts collection.
	CollectionPosts Collection = "posts"
	// CollectionPhotos is the custom photo-gallery post type.
	CollectionPhotos Collection = "photos"
)

// ParseCollection validates a collection name.
func ParseCollection(s string) (Collection, error) {
	switch Collection(s) {
	case CollectionPosts, CollectionPhotos:
		return Collection(s), nil
	}
	return "", fmt.Errorf("unknown collection %q (want posts or photos)", s)
}

// CachedItem is one entry of the mirrored collection.
//
// Only the fields the engine reads are decoded. The full JSON object served by
// the API is retained in Raw and is what gets persisted, so nothing the API
// returns is lost on a save/load round trip.
type CachedItem struct {
	ID   int
	Slug string
	Link string

	// ClassList holds the classification markers, e.g. "tag-foo-bar".
	ClassList []string

	Tags       []int
	Categories []int
	Models     []int
	PhotoTags  []int

	// Rendered HTML of the title, excerpt and content.
	Title   string
	Excerpt string
	Content string

	Raw json.RawMessage
}

type rendered struct {
	Rendered string `json:"rendered"`
}

// wireItem mirrors the subset of the WP REST post object we care about.
type wireItem struct {
	ID         int      `json:"id"`
	Slug       string   `json:"slug"`
	Link       string   `json:"link"`
	ClassList  []string `json:"class_list"`
	Tags       []int    `json:"tags,omitempty"`
	Categories []int    `json:"categories,omitempty"`
	Pornstars  []int    `json:"pornstars,omitempty"`
	PhotosTag  []int    `json:"photos_tag,omitempty"`
	Title      rendered `json:"title"`
	Excerpt    rendered `json:"excerpt"`
	Content    rendered `json:"content"`
}

// UnmarshalJSON decodes the known fields and keeps a copy of the raw object.
func (c *CachedItem) UnmarshalJSON(data []byte) error {
	var w wireItem
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = CachedItem{
		ID:         w.ID,
		Slug:       w.Slug,
		Link:       w.Link,
		ClassList:  w.ClassList,
		Tags:       w.Tags,
		Categories: w.Categories,
		Models:     w.Pornstars,
		PhotoTags:  w.PhotosTag,
		Title:      w.Title.Rendered,
		Excerpt:    w.Excerpt.Rendered,
		Content:    w.Content.Rendered,
		Raw:        append(json.RawMessage(nil), data...),
	}
	return nil
}

// MarshalJSON returns the raw object when present. Items built in code
// without a raw payload are encoded from their fields.
func (c CachedItem) MarshalJSON() ([]byte, error) {
	if len(c.Raw) > 0 {
		return c.Raw, nil
	}
	return json.Marshal(wireItem{
		ID:         c.ID,
		Slug:       c.Slug,
		Link:       c.Link,
		ClassList:  c.ClassList,
		Tags:       c.Tags,
		Categories: c.Categories,
		Pornstars:  c.Models,
		PhotosTag:  c.PhotoTags,
		Title:      rendered{c.Title},
		Excerpt:    rendered{c.Excerpt},
		Content:    rendered{c.Content},
	})
}

// TermIDs returns the numeric value array for taxonomy t.
func (c *CachedItem) TermIDs(t Taxonomy) []int {
	switch t {
	case TaxonomyTag:
		return c.Tags
	case TaxonomyCategory:
		return c.Categories
	case TaxonomyModel:
		return c.Models
	case TaxonomyPhotoTag:
		return c.PhotoTags
	}
	return nil
}

// Canonical returns a key-order independent encoding of the item. Two items
// are equal for cache membership purposes iff their canonical forms are
// byte-equal.
func (c CachedItem) Canonical() []byte {
	data, err := c.MarshalJSON()
	if err != nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return data
	}
	// encoding/json writes map keys in sorted order.
	out, err := json.Marshal(v)
	if err != nil {
		return data
	}
	return out
}

// ItemSet answers "is this exact item already cached?" by full value
// equality. Fingerprints are only an index; collisions fall back to a byte
// comparison of the canonical forms.
type ItemSet struct {
	byHash map[uint64][][]byte
	n      int
}

// NewItemSet indexes items.
func NewItemSet(items []CachedItem) *ItemSet {
	s := &ItemSet{byHash: make(map[uint64][][]byte, len(items))}
	for _, it := range items {
		s.Add(it)
	}
	return s
}

// Contains reports whether an item equal to it is in the set.
func (s *ItemSet) Contains(it CachedItem) bool {
	return s.contains(it.Canonical())
}

// Add inserts it and reports whether it was not already present.
func (s *ItemSet) Add(it CachedItem) bool {
	canon := it.Canonical()
	if s.contains(canon) {
		return false
	}
	h := xxhash.Sum64(canon)
	s.byHash[h] = append(s.byHash[h], canon)
	s.n++
	return true
}

// Len returns the number of distinct items in the set.
func (s *ItemSet) Len() int { return s.n }

func (s *ItemSet) contains(canon []byte) bool {
	for _, c := range s.byHash[xxhash.Sum64(canon)] {
		if bytes.Equal(c, canon) {
			return true
		}
	}
	return false
}
