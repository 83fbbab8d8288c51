// Package taxonomy reads the taxonomy labels WordPress embeds in each item's
// class_list and relates them to the numeric term ids carried alongside.
//
// An [Indexer] works on a snapshot of the cache. It never talks to the
// network; creating missing terms is the caller's job (see [Resolve]).
package taxonomy

import (
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/njoerd114/wpmirror/internal/model"
)

// Indexer answers taxonomy and listing queries over a slice of cached items.
type Indexer struct {
	items   []model.CachedItem
	siteURL string
	title   cases.Caser
}

// New returns an Indexer over items. siteURL prefixes slugs when a caller
// asks for absolute URLs; it may be empty.
func New(items []model.CachedItem, siteURL string) *Indexer {
	return &Indexer{
		items:   items,
		siteURL: strings.TrimRight(siteURL, "/"),
		title:   cases.Title(language.Und),
	}
}

// Len returns the number of indexed items.
func (x *Indexer) Len() int { return len(x.items) }

// label turns "tag-foo-bar" into "Foo Bar" when marker is "tag". ok is false
// for entries of another taxonomy.
func (x *Indexer) label(entry, marker string) (string, bool) {
	rest, ok := strings.CutPrefix(entry, marker+"-")
	if !ok || rest == "" {
		return "", false
	}
	return x.titleWords(strings.ReplaceAll(rest, "-", " ")), true
}

// titleWords upper-cases the first letter of every run of letters and
// lower-cases the rest, so "o'neil" becomes "O'Neil" and "2nd act" becomes
// "2Nd Act". Any non-letter starts a new run.
func (x *Indexer) titleWords(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	start := -1
	for i, r := range s {
		switch {
		case unicode.IsLetter(r):
			if start < 0 {
				start = i
			}
		default:
			if start >= 0 {
				b.WriteString(x.title.String(s[start:i]))
				start = -1
			}
			b.WriteRune(r)
		}
	}
	if start >= 0 {
		b.WriteString(x.title.String(s[start:]))
	}
	return b.String()
}

// labels extracts the labels of taxonomy t from one item, in class_list order.
func (x *Indexer) labels(it *model.CachedItem, t model.Taxonomy) []string {
	marker := t.Marker()
	var out []string
	for _, entry := range it.ClassList {
		if l, ok := x.label(entry, marker); ok {
			out = append(out, l)
		}
	}
	return out
}

// MapMarkerToID maps each label of t to a term id.
//
// The i-th label of an item is paired with the i-th id of its value array.
// WordPress does not promise the two lists line up; nothing here can verify
// it. Items whose lists differ in length are paired up to the shorter one.
// The first occurrence of a label wins.
func (x *Indexer) MapMarkerToID(t model.Taxonomy) map[string]int {
	out := make(map[string]int)
	for i := range x.items {
		it := &x.items[i]
		ids := it.TermIDs(t)
		for j, l := range x.labels(it, t) {
			if j >= len(ids) {
				break
			}
			if _, seen := out[l]; !seen {
				out[l] = ids[j]
			}
		}
	}
	return out
}

// CountMarker returns how many items carry each label of t.
func (x *Indexer) CountMarker(t model.Taxonomy) map[string]int {
	out := make(map[string]int)
	for i := range x.items {
		for _, l := range x.labels(&x.items[i], t) {
			out[l]++
		}
	}
	return out
}

// GroupPostsByLabel returns the item ids carrying each label of t, in cache
// order.
func (x *Indexer) GroupPostsByLabel(t model.Taxonomy) map[string][]int {
	out := make(map[string][]int)
	for i := range x.items {
		it := &x.items[i]
		for _, l := range x.labels(it, t) {
			out[l] = append(out[l], it.ID)
		}
	}
	return out
}

// GroupLabelsByPost returns the labels of t for every item id. Items without
// any label of t map to an empty slice.
func (x *Indexer) GroupLabelsByPost(t model.Taxonomy) map[int][]string {
	out := make(map[int][]string, len(x.items))
	for i := range x.items {
		it := &x.items[i]
		ls := x.labels(it, t)
		if ls == nil {
			ls = []string{}
		}
		out[it.ID] = ls
	}
	return out
}

// Labels returns every label of t in cache order. With unique set, repeated
// labels are dropped and the result is sorted.
func (x *Indexer) Labels(t model.Taxonomy, unique bool) []string {
	var out []string
	for i := range x.items {
		out = append(out, x.labels(&x.items[i], t)...)
	}
	if unique {
		slices.Sort(out)
		out = slices.Compact(out)
	}
	return out
}

// TermIDCount counts how often each numeric id of t appears.
func (x *Indexer) TermIDCount(t model.Taxonomy) map[int]int {
	out := make(map[int]int)
	for i := range x.items {
		for _, id := range x.items[i].TermIDs(t) {
			out[id]++
		}
	}
	return out
}

// CoOccurrence maps every label of compare to the set of match labels seen on
// the same items, e.g. which tags each model has been posted with.
func (x *Indexer) CoOccurrence(match, compare model.Taxonomy) map[string][]string {
	sets := make(map[string]map[string]struct{})
	for i := range x.items {
		it := &x.items[i]
		matched := x.labels(it, match)
		for _, c := range x.labels(it, compare) {
			set, ok := sets[c]
			if !ok {
				set = make(map[string]struct{})
				sets[c] = set
			}
			for _, m := range matched {
				set[m] = struct{}{}
			}
		}
	}

	out := make(map[string][]string, len(sets))
	for c, set := range sets {
		labels := make([]string, 0, len(set))
		for m := range set {
			labels = append(labels, m)
		}
		slices.Sort(labels)
		out[c] = labels
	}
	return out
}
