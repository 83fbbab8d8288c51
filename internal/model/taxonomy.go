package model

import "fmt"

// Taxonomy is the closed set of taxonomy kinds embedded in an item's
// classification markers.
type Taxonomy int

const (
	TaxonomyTag Taxonomy = iota
	TaxonomyCategory
	TaxonomyModel
	TaxonomyPhotoTag
)

// taxonomyDefs is indexed by Taxonomy. marker is the class_list prefix and
// valuesKey the JSON key of the parallel numeric id array (also the REST
// route used to create terms).
var taxonomyDefs = [...]struct {
	name      string
	marker    string
	valuesKey string
}{
	TaxonomyTag:      {"tag", "tag", "tags"},
	TaxonomyCategory: {"category", "category", "categories"},
	TaxonomyModel:    {"model", "pornstars", "pornstars"},
	TaxonomyPhotoTag: {"photo-tag", "photos_tag", "photos_tag"},
}

// Taxonomies lists every variant in declaration order.
func Taxonomies() []Taxonomy {
	return []Taxonomy{TaxonomyTag, TaxonomyCategory, TaxonomyModel, TaxonomyPhotoTag}
}

func (t Taxonomy) valid() bool { return t >= 0 && int(t) < len(taxonomyDefs) }

// String returns the variant name.
func (t Taxonomy) String() string {
	if !t.valid() {
		return fmt.Sprintf("Taxonomy(%d)", int(t))
	}
	return taxonomyDefs[t].name
}

// Marker returns the class_list prefix, e.g. "tag" for "tag-foo-bar".
func (t Taxonomy) Marker() string {
	if !t.valid() {
		return ""
	}
	return taxonomyDefs[t].marker
}

// ValuesKey returns the JSON key of the numeric id array, e.g. "tags".
func (t Taxonomy) ValuesKey() string {
	if !t.valid() {
		return ""
	}
	return taxonomyDefs[t].valuesKey
}

// ParseTaxonomy accepts a variant name, a marker prefix or a values key.
func ParseTaxonomy(s string) (Taxonomy, error) {
	for i, d := range taxonomyDefs {
		if s == d.name || s == d.marker || s == d.valuesKey {
			return Taxonomy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown taxonomy %q", s)
}
