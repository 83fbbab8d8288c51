package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"

	"github.com/njoerd114/wpmirror/internal/cache"
	"github.com/njoerd114/wpmirror/internal/config"
	"github.com/njoerd114/wpmirror/internal/lifecycle"
	"github.com/njoerd114/wpmirror/internal/model"
	"github.com/njoerd114/wpmirror/internal/state"
	wpsync "github.com/njoerd114/wpmirror/internal/sync"
	"github.com/njoerd114/wpmirror/internal/telemetry"
	"github.com/njoerd114/wpmirror/internal/wordpress"
)

// appContext carries the global flags and everything derived from them.
type appContext struct {
	configPath     string
	verbose        bool
	collectionFlag string

	logger      *slog.Logger
	cfg         *config.Config
	collection  model.Collection
	telShutdown telemetry.ShutdownFunc
}

// setupLogger picks tint for terminals and a text handler otherwise.
func (a *appContext) setupLogger(w io.Writer) {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}

	var h slog.Handler
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		h = tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.Kitchen})
	} else {
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	a.logger = slog.New(h)
	slog.SetDefault(a.logger)
}

func (a *appContext) resolvedConfigPath() (string, error) {
	if a.configPath != "" {
		return a.configPath, nil
	}
	return config.DefaultPath()
}

// loadConfig loads the config, applies --collection and starts telemetry.
func (a *appContext) loadConfig(ctx context.Context) error {
	path, err := a.resolvedConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config from %q: %w\n\nRun 'wpmirror setup' to create one", path, err)
	}

	collection, err := model.ParseCollection(cfg.Collection)
	if err != nil {
		return err
	}
	if a.collectionFlag != "" {
		override, err := model.ParseCollection(a.collectionFlag)
		if err != nil {
			return err
		}
		// A defaulted cache path follows the collection.
		if def, _ := config.DefaultCachePath(cfg.Collection); def == cfg.CachePath {
			cfg.CachePath, _ = config.DefaultCachePath(string(override))
		}
		collection = override
		cfg.Collection = string(override)
	}
	a.cfg, a.collection = cfg, collection
	a.logger.Debug("config loaded", "path", path, "site", cfg.SiteURL, "collection", collection)

	if telCfg, ok := telemetry.FromConfig(cfg.Telemetry, version); ok {
		shutdown, err := telemetry.Setup(ctx, telCfg)
		if err != nil {
			a.logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
			return nil
		}
		a.telShutdown = shutdown
		a.logger = slog.New(telemetry.NewLogHandler(a.logger.Handler(), "wpmirror"))
		slog.SetDefault(a.logger)
		a.logger.Debug("telemetry enabled", "endpoint", telCfg.OTLPEndpoint)
	}
	return nil
}

// shutdown flushes telemetry. It runs after the command, whatever its result.
func (a *appContext) shutdown() {
	if a.telShutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.telShutdown(ctx); err != nil {
		a.logger.Error("telemetry shutdown error", "error", err)
	}
}

// services holds the components a command works with. Close releases them.
type services struct {
	client  *wordpress.Client
	store   cache.Store
	ledger  *state.Store
	engine  *wpsync.Engine
	manager *lifecycle.Manager
	lock    *flock.Flock
	log     *slog.Logger
}

// openOptions says what a command needs.
type openOptions struct {
	// remote resolves credentials; offline commands skip it.
	remote bool
	// lock takes the cross-process cache lock.
	lock bool
}

func (a *appContext) open(ctx context.Context, opts openOptions) (_ *services, err error) {
	cfg := a.cfg
	svc := &services{log: a.logger}
	defer func() {
		if err != nil {
			_ = svc.Close()
		}
	}()

	if opts.lock {
		lockPath := cfg.CachePath + ".lock"
		if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		svc.lock = flock.New(lockPath)
		ok, err := svc.lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire cache lock: %w", err)
		}
		if !ok {
			svc.lock = nil
			return nil, fmt.Errorf("another wpmirror process is using %s (lock %s)", cfg.CachePath, lockPath)
		}
	}

	var creds config.Credentials
	if opts.remote {
		creds, err = cfg.CredentialProvider().Credentials()
		if err != nil {
			return nil, err
		}
	}
	svc.client = wordpress.NewClient(wordpress.Config{
		SiteURL:     cfg.SiteURL,
		Username:    creds.Username,
		Password:    creds.Password,
		Concurrency: cfg.Concurrency,
		Timeout:     cfg.HTTPTimeout,
	}, a.logger)

	switch cfg.CacheBackend {
	case config.BackendRedis:
		prefix := cfg.Redis.Prefix
		if prefix == "" {
			prefix = "wpmirror:" + string(a.collection)
		}
		rs, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			URL:    cfg.Redis.URL,
			Prefix: prefix,
			TTL:    cfg.Redis.TTL,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		svc.store = rs
	default:
		svc.store = cache.NewFileStore(cfg.CachePath, a.logger)
	}

	dbPath := cfg.StateDB
	if dbPath == "" {
		if dbPath, err = state.DefaultDBPath(); err != nil {
			return nil, err
		}
	}
	ledger, err := state.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening state DB at %q: %w", dbPath, err)
	}
	svc.ledger = ledger

	svc.engine = wpsync.NewEngine(svc.client, svc.store, svc.ledger, wpsync.Options{
		Collection:  a.collection,
		RewindPages: cfg.EngineRewind(),
	}, a.logger)
	svc.manager = lifecycle.NewManager(svc.client, svc.engine, svc.ledger, lifecycle.Options{
		Collection: a.collection,
	}, a.logger)
	return svc, nil
}

// loadCache reads the cache from the store. A cold cache is an error here;
// offline commands cannot build it.
func (s *services) loadCache(ctx context.Context) error {
	err := s.engine.Load(ctx)
	if errors.Is(err, cache.ErrColdStart) {
		return fmt.Errorf("%w: run 'wpmirror sync' first", err)
	}
	return err
}

func (s *services) Close() error {
	var errs []error
	if s.ledger != nil {
		errs = append(errs, s.ledger.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.lock != nil {
		errs = append(errs, s.lock.Unlock())
	}
	return errors.Join(errs...)
}
