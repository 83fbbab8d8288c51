package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/njoerd114/wpmirror/internal/cache"
	"github.com/njoerd114/wpmirror/internal/model"
	"github.com/njoerd114/wpmirror/internal/state"
)

const (
	otelScope     = "wpmirror/sync"
	spanSync      = "sync.run"
	metricAdded   = "wpmirror.sync.items.added"
	metricPages   = "wpmirror.sync.pages.fetched"
	metricRebuild = "wpmirror.sync.rebuilds"
	metricErrors  = "wpmirror.sync.errors"
)

// DefaultRewindPages is how many already-cached pages an incremental sync
// re-reads, to catch items that slid across a page boundary since the last
// run. The value is inherited; no measurement backs it.
const DefaultRewindPages = 2

// ErrIntegrity is returned when a full build fetched a different number of
// items than the server reported. Nothing is persisted in that case.
var ErrIntegrity = errors.New("fetched item count does not match reported total")

// State is the engine's position in its lifecycle.
type State int

const (
	StateCold State = iota
	StateBuilding
	StateReady
	StateSyncing
	StateRebuilding
)

func (s State) String() string {
	switch s {
	case StateCold:
		return "cold"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	case StateSyncing:
		return "syncing"
	case StateRebuilding:
		return "rebuilding"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Mode names the kind of sync that produced a Result.
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
	ModeRebuild     Mode = "rebuild"
)

// Result summarises one Sync call.
type Result struct {
	Mode  Mode
	Added int
	Pages int
	Total int

	// Persisted is false when nothing changed and the store was not touched.
	Persisted bool
}

// Options tune an Engine. Zero values take defaults.
type Options struct {
	Collection model.Collection

	// RewindPages overrides DefaultRewindPages. Negative means zero.
	RewindPages int

	// Now is the clock used for Metadata.LastUpdated.
	Now func() time.Time
}

// Engine owns one cache instance. Create one with [NewEngine].
type Engine struct {
	fetcher    Fetcher
	store      CacheStore
	ledger     Ledger
	collection model.Collection
	rewind     int
	now        func() time.Time
	log        *slog.Logger

	state  State
	loaded bool
	items  []model.CachedItem
	meta   model.Metadata

	// OTel instruments, never nil (no-op when telemetry is disabled).
	tracer      trace.Tracer
	cntAdded    metric.Int64Counter
	cntPages    metric.Int64Counter
	cntRebuilds metric.Int64Counter
	cntErrors   metric.Int64Counter
}

// NewEngine creates an Engine. ledger may be nil.
func NewEngine(fetcher Fetcher, store CacheStore, ledger Ledger, opts Options, logger *slog.Logger) *Engine {
	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	if opts.Collection == "" {
		opts.Collection = model.CollectionPosts
	}
	rewind := opts.RewindPages
	if rewind == 0 {
		rewind = DefaultRewindPages
	}
	rewind = max(rewind, 0)
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Engine{
		fetcher:    fetcher,
		store:      store,
		ledger:     ledger,
		collection: opts.Collection,
		rewind:     rewind,
		now:        opts.Now,
		log:        logger.With("collection", string(opts.Collection)),

		tracer:      tracer,
		cntAdded:    mustCounter(metricAdded, "Number of items added to the cache"),
		cntPages:    mustCounter(metricPages, "Number of collection pages fetched"),
		cntRebuilds: mustCounter(metricRebuild, "Number of incremental syncs replaced by a full rebuild"),
		cntErrors:   mustCounter(metricErrors, "Number of failed sync runs"),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State { return e.state }

// Items returns the cached items, newest first. The slice must not be
// modified.
func (e *Engine) Items() []model.CachedItem { return e.items }

// Metadata returns the metadata of the cache as last loaded or saved.
func (e *Engine) Metadata() model.Metadata { return e.meta }

// Load reads the persisted cache without touching the network. On a cold
// cache it returns [cache.ErrColdStart] and the engine stays cold.
func (e *Engine) Load(ctx context.Context) error {
	if e.loaded {
		return nil
	}
	items, meta, err := e.store.Load(ctx)
	if errors.Is(err, cache.ErrColdStart) {
		e.state = StateCold
		return err
	}
	if err != nil {
		return fmt.Errorf("loading cache: %w", err)
	}
	e.items, e.meta, e.loaded = items, meta, true
	e.state = StateReady
	return nil
}

// Sync brings the cache up to date. A cold cache, or force, runs a full
// build; otherwise an incremental sync runs and falls back to one full
// rebuild if its merge does not validate.
func (e *Engine) Sync(ctx context.Context, force bool) (Result, error) {
	ctx, span := e.tracer.Start(ctx, spanSync)
	defer span.End()

	run := &state.SyncRun{
		ID:         uuid.NewString(),
		Collection: string(e.collection),
		StartedAt:  e.now(),
	}

	res, err := e.sync(ctx, force)

	if res.Added > 0 {
		e.cntAdded.Add(ctx, int64(res.Added))
	}
	if res.Pages > 0 {
		e.cntPages.Add(ctx, int64(res.Pages))
	}
	if res.Mode == ModeRebuild {
		e.cntRebuilds.Add(ctx, 1)
	}
	span.SetAttributes(
		attribute.String("sync.mode", string(res.Mode)),
		attribute.Int("sync.added", res.Added),
		attribute.Int("sync.pages", res.Pages),
		attribute.Int("sync.total", res.Total),
	)
	if err != nil {
		e.cntErrors.Add(ctx, 1)
		span.RecordError(err)
	}

	if e.ledger != nil {
		run.Mode = string(res.Mode)
		run.FinishedAt = e.now()
		run.Added = res.Added
		run.Items = len(e.items)
		run.Pages = res.Pages
		run.Persisted = res.Persisted
		if err != nil {
			run.Error = err.Error()
		}
		if lerr := e.ledger.RecordSyncRun(ctx, run); lerr != nil {
			e.log.Warn("recording sync run", "error", lerr)
		}
	}

	return res, err
}

func (e *Engine) sync(ctx context.Context, force bool) (Result, error) {
	if err := e.Load(ctx); err != nil && !errors.Is(err, cache.ErrColdStart) {
		return Result{}, err
	}

	if force || e.state == StateCold {
		if e.state == StateCold {
			e.log.Info("no cache found, building from scratch")
		}
		return e.fullBuild(ctx, ModeFull)
	}
	return e.incremental(ctx)
}

// settle puts the engine back in a resting state after a failed transition.
// The previously persisted cache is still valid, if there was one.
func (e *Engine) settle() {
	if e.loaded {
		e.state = StateReady
	} else {
		e.state = StateCold
	}
}
