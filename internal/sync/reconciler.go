package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/njoerd114/wpmirror/internal/model"
	"github.com/njoerd114/wpmirror/internal/wordpress"
)

// incremental fetches page 1 (the head, where new items land, and the
// pagination headers), then walks forward from RewindPages before the last
// cached page until the collection ends. Items not already cached, by full
// value equality, are collected in server order.
//
// With diff = total - len(cache), the first diff collected items are
// prepended. The server lists newest first and page 1 is read first, so those
// are the newest items in their server order; this is the same result as
// reversing the batch and inserting each at index 0.
//
// The merge is persisted only if it holds exactly total items with unique
// ids. Otherwise it is dropped and one full rebuild runs instead.
func (e *Engine) incremental(ctx context.Context) (Result, error) {
	e.state = StateSyncing
	res := Result{Mode: ModeIncremental}

	first, err := e.fetcher.FetchFirstPage(ctx, e.collection)
	if err != nil {
		e.settle()
		return res, fmt.Errorf("incremental sync: %w", err)
	}
	res.Pages = 1
	res.Total = first.Total

	cached := model.NewItemSet(e.items)
	seen := model.NewItemSet(nil)
	var fresh []model.CachedItem
	collect := func(items []model.CachedItem) {
		for _, it := range items {
			if cached.Contains(it) || !seen.Add(it) {
				continue
			}
			fresh = append(fresh, it)
		}
	}
	collect(first.Items)

	start := max(e.meta.CachedPages-e.rewind, 2)
	for page := start; page <= first.TotalPages; page++ {
		p, err := e.fetcher.FetchPage(ctx, e.collection, page)
		if errors.Is(err, wordpress.ErrNoMorePages) {
			break
		}
		if err != nil {
			e.settle()
			return res, fmt.Errorf("incremental sync: %w", err)
		}
		res.Pages++
		collect(p.Items)
	}

	merged := e.items
	if diff := first.Total - len(e.items); diff > 0 {
		n := min(diff, len(fresh))
		merged = make([]model.CachedItem, 0, n+len(e.items))
		merged = append(merged, fresh[:n]...)
		merged = append(merged, e.items...)
		res.Added = n
	}

	if err := validateMerge(merged, first.Total); err != nil {
		e.log.Warn("CacheSync failed, rebuilding",
			"reason", err, "cached", len(e.items), "candidates", len(fresh), "total", first.Total)
		rebuilt, rerr := e.fullBuild(ctx, ModeRebuild)
		rebuilt.Pages += res.Pages
		return rebuilt, rerr
	}

	if res.Added == 0 && first.TotalPages == e.meta.CachedPages {
		e.state = StateReady
		e.log.Info("cache up to date", "items", len(e.items), "pages_checked", res.Pages)
		return res, nil
	}

	meta := model.Metadata{
		CachedPages: first.TotalPages,
		TotalItems:  first.Total,
		LastUpdated: model.Today(e.now()),
	}
	if err := e.store.Save(ctx, merged, meta); err != nil {
		e.settle()
		return res, fmt.Errorf("saving cache: %w", err)
	}
	e.items, e.meta = merged, meta
	e.state = StateReady
	res.Persisted = true

	e.log.Info("cache synced", "added", res.Added, "items", len(merged), "pages_checked", res.Pages)
	return res, nil
}

func validateMerge(items []model.CachedItem, total int) error {
	if len(items) != total {
		return fmt.Errorf("merged %d items, server reports %d", len(items), total)
	}
	ids := make(map[int]struct{}, len(items))
	for _, it := range items {
		if _, dup := ids[it.ID]; dup {
			return fmt.Errorf("duplicate id %d after merge", it.ID)
		}
		ids[it.ID] = struct{}{}
	}
	return nil
}
