package sync

import (
	"context"
	"fmt"

	"github.com/njoerd114/wpmirror/internal/model"
)

// fullBuild discards whatever is cached and fetches the whole collection.
// The result is persisted only if the fetched count equals the total the
// server reported; otherwise ErrIntegrity is returned and the store is left
// as it was.
func (e *Engine) fullBuild(ctx context.Context, mode Mode) (Result, error) {
	if mode == ModeRebuild {
		e.state = StateRebuilding
	} else {
		e.state = StateBuilding
	}
	res := Result{Mode: mode}

	items, first, err := e.fetcher.FetchAll(ctx, e.collection)
	if err != nil {
		e.settle()
		return res, fmt.Errorf("full build: %w", err)
	}
	res.Pages = max(first.TotalPages, 1)
	res.Total = first.Total

	if len(items) != first.Total {
		e.settle()
		return res, fmt.Errorf("full build: %w: fetched %d, server reports %d",
			ErrIntegrity, len(items), first.Total)
	}

	meta := model.Metadata{
		CachedPages: first.TotalPages,
		TotalItems:  first.Total,
		LastUpdated: model.Today(e.now()),
	}
	if err := e.store.Save(ctx, items, meta); err != nil {
		e.settle()
		return res, fmt.Errorf("saving cache: %w", err)
	}

	res.Added = len(items)
	res.Persisted = true
	e.items, e.meta, e.loaded = items, meta, true
	e.state = StateReady

	e.log.Info("cache built", "mode", mode, "items", len(items), "pages", first.TotalPages)
	return res, nil
}
