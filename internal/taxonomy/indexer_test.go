package taxonomy

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"testing"

	"github.com/njoerd114/wpmirror/internal/model"
	"github.com/njoerd114/wpmirror/internal/wordpress"
)

func mustItem(t *testing.T, raw string) model.CachedItem {
	t.Helper()
	var it model.CachedItem
	if err := it.UnmarshalJSON([]byte(raw)); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	return it
}

func fixture(t *testing.T) *Indexer {
	t.Helper()
	items := []model.CachedItem{
		mustItem(t, `{"id":3,"slug":"third","link":"https://example.com/third/",
			"class_list":["post-3","type-post","tag-foo","tag-bar-baz","category-videos","pornstars-jane-doe"],
			"tags":[11,12],"categories":[5],"pornstars":[40],
			"title":{"rendered":"Third &amp; last"},"excerpt":{"rendered":"<p>Three</p>\n"}}`),
		mustItem(t, `{"id":2,"slug":"second","link":"https://example.com/second/",
			"class_list":["post-2","tag-foo","category-videos","pornstars-jane-doe","pornstars-john-roe"],
			"tags":[99],"categories":[5],"pornstars":[40,41],
			"title":{"rendered":"Second"},"excerpt":{"rendered":"<p>Two</p>"}}`),
		mustItem(t, `{"id":1,"slug":"first","link":"https://example.com/first/",
			"class_list":["post-1","category-photos"],
			"tags":[],"categories":[6],
			"title":{"rendered":"First"},"excerpt":{"rendered":""}}`),
	}
	return New(items, "https://example.com/")
}

func TestCountMarker(t *testing.T) {
	x := New([]model.CachedItem{
		mustItem(t, `{"id":1,"class_list":["tag-foo","tag-bar"],"tags":[1,2]}`),
		mustItem(t, `{"id":2,"class_list":["tag-foo"],"tags":[1]}`),
	}, "")

	got := x.CountMarker(model.TaxonomyTag)
	want := map[string]int{"Foo": 2, "Bar": 1}
	if !maps.Equal(got, want) {
		t.Errorf("CountMarker = %v, want %v", got, want)
	}
}

func TestMapMarkerToID_FirstOccurrenceWins(t *testing.T) {
	x := fixture(t)

	got := x.MapMarkerToID(model.TaxonomyTag)
	want := map[string]int{"Foo": 11, "Bar Baz": 12}
	if !maps.Equal(got, want) {
		t.Errorf("tags = %v, want %v", got, want)
	}

	models := x.MapMarkerToID(model.TaxonomyModel)
	if models["Jane Doe"] != 40 || models["John Roe"] != 41 {
		t.Errorf("models = %v", models)
	}
}

func TestMapMarkerToID_ShortValueArray(t *testing.T) {
	x := New([]model.CachedItem{
		mustItem(t, `{"id":1,"class_list":["tag-a","tag-b"],"tags":[7]}`),
	}, "")
	got := x.MapMarkerToID(model.TaxonomyTag)
	if len(got) != 1 || got["A"] != 7 {
		t.Errorf("got %v, want only A→7", got)
	}
}

func TestLabel_OnlyExactMarkerPrefix(t *testing.T) {
	x := New([]model.CachedItem{
		mustItem(t, `{"id":1,"class_list":["tag-ok","post_tag-nope","tagged","tag-"]}`),
	}, "")
	if got := x.Labels(model.TaxonomyTag, false); !slices.Equal(got, []string{"Ok"}) {
		t.Errorf("Labels = %v, want [Ok]", got)
	}
}

func TestLabel_TitleCaseAfterNonLetter(t *testing.T) {
	x := New([]model.CachedItem{
		mustItem(t, `{"id":1,"class_list":["tag-o'neil","tag-mcDONALD-farm","tag-2nd-act","tag-x"],"tags":[1,2,3,4]}`),
	}, "")
	want := []string{"O'Neil", "Mcdonald Farm", "2Nd Act", "X"}
	if got := x.Labels(model.TaxonomyTag, false); !slices.Equal(got, want) {
		t.Errorf("Labels = %q, want %q", got, want)
	}
	if id := x.MapMarkerToID(model.TaxonomyTag)["O'Neil"]; id != 1 {
		t.Errorf("O'Neil id = %d, want 1", id)
	}
}

func TestGrouping(t *testing.T) {
	x := fixture(t)

	byLabel := x.GroupPostsByLabel(model.TaxonomyCategory)
	if !slices.Equal(byLabel["Videos"], []int{3, 2}) || !slices.Equal(byLabel["Photos"], []int{1}) {
		t.Errorf("GroupPostsByLabel = %v", byLabel)
	}

	byPost := x.GroupLabelsByPost(model.TaxonomyModel)
	if !slices.Equal(byPost[2], []string{"Jane Doe", "John Roe"}) {
		t.Errorf("post 2 models = %v", byPost[2])
	}
	if ls, ok := byPost[1]; !ok || len(ls) != 0 {
		t.Errorf("post 1 models = %v, %v; want empty entry", ls, ok)
	}
}

func TestLabelsAndCounts(t *testing.T) {
	x := fixture(t)

	if got := x.Labels(model.TaxonomyTag, false); !slices.Equal(got, []string{"Foo", "Bar Baz", "Foo"}) {
		t.Errorf("Labels = %v", got)
	}
	if got := x.Labels(model.TaxonomyTag, true); !slices.Equal(got, []string{"Bar Baz", "Foo"}) {
		t.Errorf("unique Labels = %v", got)
	}
	ids := x.TermIDCount(model.TaxonomyCategory)
	if ids[5] != 2 || ids[6] != 1 {
		t.Errorf("TermIDCount = %v", ids)
	}
}

func TestCoOccurrence_UnionsAcrossItems(t *testing.T) {
	x := fixture(t)

	got := x.CoOccurrence(model.TaxonomyTag, model.TaxonomyModel)
	if !slices.Equal(got["Jane Doe"], []string{"Bar Baz", "Foo"}) {
		t.Errorf("Jane Doe = %v", got["Jane Doe"])
	}
	if !slices.Equal(got["John Roe"], []string{"Foo"}) {
		t.Errorf("John Roe = %v", got["John Roe"])
	}
}

func TestListing(t *testing.T) {
	x := fixture(t)

	if got := x.Slugs(); !slices.Equal(got, []string{"third", "second", "first"}) {
		t.Errorf("Slugs = %v", got)
	}
	if link, ok := x.LinkForSlug("second"); !ok || link != "https://example.com/second/" {
		t.Errorf("LinkForSlug = %q, %v", link, ok)
	}
	if x.HasSlug("missing") {
		t.Error("HasSlug(missing) = true")
	}
	if got := x.PostSlugs(true)[1]; got != "https://example.com/first" {
		t.Errorf("PostSlugs(true)[1] = %q", got)
	}
	if got := x.LabelSlugs(model.TaxonomyTag, false)["Foo"]; !slices.Equal(got, []string{"third", "second"}) {
		t.Errorf("LabelSlugs[Foo] = %v", got)
	}
	if got := x.Titles(); got[0] != "Third & last" {
		t.Errorf("Titles[0] = %q", got[0])
	}
	if got := x.Excerpts(); !slices.Equal(got, []string{"Three", "Two", ""}) {
		t.Errorf("Excerpts = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Missing labels
// ---------------------------------------------------------------------------

func TestIdentifyMissing(t *testing.T) {
	tests := []struct {
		name      string
		known     map[string]int
		requested []string
		resolved  []int
		fold      bool
		want      []string
	}{
		{"one gap", map[string]int{"foo": 1}, []string{"foo", "bar"}, []int{1}, false, []string{"bar"}},
		{"all resolved", map[string]int{"foo": 1, "bar": 2}, []string{"foo", "bar"}, []int{1, 2}, false, nil},
		{"case sensitive", map[string]int{"Foo": 1}, []string{"foo", "Bar"}, nil, false, []string{"foo", "Bar"}},
		{"case folded keeps spelling", map[string]int{"Foo": 1}, []string{"FOO", "Bar"}, []int{1}, true, []string{"Bar"}},
		{"gap elsewhere", map[string]int{"foo": 1}, []string{"foo"}, nil, false, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IdentifyMissing(tt.known, tt.requested, tt.resolved, tt.fold)
			if (got == nil) != (tt.want == nil) || !slices.Equal(got, tt.want) {
				t.Errorf("IdentifyMissing = %#v, want %#v", got, tt.want)
			}
		})
	}
}

type fakeCreator struct {
	next  int
	fail  map[string]bool
	calls []string
}

func (f *fakeCreator) CreateTerm(_ context.Context, _ model.Taxonomy, term wordpress.Term) (int, error) {
	f.calls = append(f.calls, term.Name)
	if f.fail[term.Name] {
		return 0, fmt.Errorf("rejected")
	}
	f.next++
	return 100 + f.next, nil
}

func TestResolve(t *testing.T) {
	known := map[string]int{"Foo": 1}
	creator := &fakeCreator{fail: map[string]bool{"Bad": true}}

	res, err := Resolve(context.Background(), model.TaxonomyTag, known, []string{"Foo", "New", "Bad"}, creator, false)
	if err == nil {
		t.Fatal("expected error for the failed label")
	}
	if !slices.Equal(res.IDs, []int{1, 101}) {
		t.Errorf("IDs = %v, want [1 101]", res.IDs)
	}
	if res.Created["New"] != 101 || !slices.Equal(res.Failed, []string{"Bad"}) {
		t.Errorf("res = %+v", res)
	}
	if len(known) != 1 {
		t.Error("known map was modified")
	}
}

func TestResolve_NothingMissingSkipsCreator(t *testing.T) {
	creator := &fakeCreator{}
	res, err := Resolve(context.Background(), model.TaxonomyTag, map[string]int{"foo": 3}, []string{"FOO"}, creator, true)
	if err != nil || !slices.Equal(res.IDs, []int{3}) {
		t.Fatalf("Resolve = %+v, %v", res, err)
	}
	if len(creator.calls) != 0 {
		t.Errorf("creator called for %v", creator.calls)
	}
}

func TestResolve_EmptyKnownCreatesAll(t *testing.T) {
	creator := &fakeCreator{}
	res, err := Resolve(context.Background(), model.TaxonomyModel, nil, []string{"Jane Doe", "Jane Doe"}, creator, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !slices.Equal(creator.calls, []string{"Jane Doe"}) || !slices.Equal(res.IDs, []int{101}) {
		t.Errorf("calls = %v, IDs = %v", creator.calls, res.IDs)
	}
}

func TestResolve_CaseInsensitiveCreatesOnce(t *testing.T) {
	creator := &fakeCreator{}
	res, err := Resolve(context.Background(), model.TaxonomyTag, map[string]int{"Bar": 2}, []string{"Foo", "foo", "Bar"}, creator, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !slices.Equal(creator.calls, []string{"Foo"}) {
		t.Errorf("creator calls = %v, want [Foo]", creator.calls)
	}
	if !slices.Equal(res.IDs, []int{2, 101}) {
		t.Errorf("IDs = %v, want [2 101]", res.IDs)
	}
}
