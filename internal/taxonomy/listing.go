package taxonomy

import "github.com/njoerd114/wpmirror/internal/model"

// Slugs returns every item slug in cache order.
func (x *Indexer) Slugs() []string {
	out := make([]string, len(x.items))
	for i := range x.items {
		out[i] = x.items[i].Slug
	}
	return out
}

// HasSlug reports whether any cached item uses slug.
func (x *Indexer) HasSlug(slug string) bool {
	_, ok := x.LinkForSlug(slug)
	return ok
}

// Links returns every item permalink in cache order.
func (x *Indexer) Links() []string {
	out := make([]string, len(x.items))
	for i := range x.items {
		out[i] = x.items[i].Link
	}
	return out
}

// LinkForSlug returns the permalink of the first item with slug.
func (x *Indexer) LinkForSlug(slug string) (string, bool) {
	for i := range x.items {
		if x.items[i].Slug == slug {
			return x.items[i].Link, true
		}
	}
	return "", false
}

// PostSlugs maps item ids to slugs, or to "<site>/<slug>" with withHost.
func (x *Indexer) PostSlugs(withHost bool) map[int]string {
	out := make(map[int]string, len(x.items))
	for i := range x.items {
		out[x.items[i].ID] = x.slugRef(x.items[i].Slug, withHost)
	}
	return out
}

// LabelSlugs maps each label of t to the slugs (or site URLs) of the items
// carrying it.
func (x *Indexer) LabelSlugs(t model.Taxonomy, withHost bool) map[string][]string {
	out := make(map[string][]string)
	for i := range x.items {
		it := &x.items[i]
		ref := x.slugRef(it.Slug, withHost)
		for _, l := range x.labels(it, t) {
			out[l] = append(out[l], ref)
		}
	}
	return out
}

func (x *Indexer) slugRef(slug string, withHost bool) string {
	if !withHost || x.siteURL == "" {
		return slug
	}
	return x.siteURL + "/" + slug
}

// Titles returns the plain-text titles in cache order.
func (x *Indexer) Titles() []string {
	out := make([]string, len(x.items))
	for i := range x.items {
		out[i] = model.PlainText(x.items[i].Title)
	}
	return out
}

// Excerpts returns the plain-text excerpts in cache order.
func (x *Indexer) Excerpts() []string {
	out := make([]string, len(x.items))
	for i := range x.items {
		out[i] = model.PlainText(x.items[i].Excerpt)
	}
	return out
}
