package model

import "time"

// DateLayout is the on-disk format of Metadata.LastUpdated.
const DateLayout = "2006-01-02"

// Metadata describes the state of a cache file at its last successful sync.
type Metadata struct {
	CachedPages int    `json:"cached_pages"`
	TotalItems  int    `json:"total_posts"`
	LastUpdated string `json:"last_updated"`
}

// Today formats t as a LastUpdated value.
func Today(t time.Time) string {
	return t.Format(DateLayout)
}

// PostHandle is what a successful create returns. It is everything a caller
// needs to publish the post or roll it back.
type PostHandle struct {
	ID      int    `json:"id"`
	Slug    string `json:"slug"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Type    string `json:"type"`
	Author  int    `json:"author"`
	Link    string `json:"link,omitempty"`
}

// PostPayload is the body sent to create a post or photo gallery.
type PostPayload struct {
	Slug          string `json:"slug,omitempty"`
	Status        string `json:"status,omitempty"`
	Type          string `json:"type,omitempty"`
	Title         string `json:"title,omitempty"`
	Excerpt       string `json:"excerpt,omitempty"`
	Content       string `json:"content,omitempty"`
	FeaturedMedia int    `json:"featured_media,omitempty"`
	Tags          []int  `json:"tags,omitempty"`
	Pornstars     []int  `json:"pornstars,omitempty"`
	Categories    []int  `json:"categories,omitempty"`
	PhotosTag     []int  `json:"photos_tag,omitempty"`
}

// SetTermIDs stores ids in the value array belonging to t.
func (p *PostPayload) SetTermIDs(t Taxonomy, ids []int) {
	switch t {
	case TaxonomyTag:
		p.Tags = ids
	case TaxonomyCategory:
		p.Categories = ids
	case TaxonomyModel:
		p.Pornstars = ids
	case TaxonomyPhotoTag:
		p.PhotosTag = ids
	}
}

// MediaAttributes are the descriptive fields attached to an uploaded file.
type MediaAttributes struct {
	AltText     string `json:"alt_text,omitempty"`
	Caption     string `json:"caption,omitempty"`
	Description string `json:"description,omitempty"`
}

// Empty reports whether there is nothing to attach.
func (a MediaAttributes) Empty() bool {
	return a.AltText == "" && a.Caption == "" && a.Description == ""
}
