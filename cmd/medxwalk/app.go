package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/medxwalk/internal/adapter"
	"github.com/ehr/medxwalk/internal/adapter/catalog"
	"github.com/ehr/medxwalk/internal/adapter/pgstore"
	"github.com/ehr/medxwalk/internal/config"
	"github.com/ehr/medxwalk/internal/domain/codesystem"
	"github.com/ehr/medxwalk/internal/domain/crosswalk"
	"github.com/ehr/medxwalk/internal/domain/loader"
	"github.com/ehr/medxwalk/internal/domain/medication"
	"github.com/ehr/medxwalk/internal/domain/registry"
	"github.com/ehr/medxwalk/internal/platform/db"
	"github.com/ehr/medxwalk/internal/platform/metrics"
)

// app holds the wired services shared by every command.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	pool    *pgxpool.Pool
	metrics *metrics.Metrics

	meds   *medication.Service
	xwalk  *crosswalk.Service
	loader *loader.Loader
}

// backend is a source of per-provider adapters plus a universal
// translator.
type backend interface {
	adapter(system codesystem.System, provider string) medication.Adapter
	translator() crosswalk.Translator
}

type catalogBackend struct{ cat *catalog.Catalog }

func (b catalogBackend) adapter(_ codesystem.System, provider string) medication.Adapter {
	return b.cat.Provider(provider)
}

func (b catalogBackend) translator() crosswalk.Translator { return b.cat }

type postgresBackend struct{ store *pgstore.Store }

func (b postgresBackend) adapter(system codesystem.System, provider string) medication.Adapter {
	return b.store.Adapter(system, provider)
}

func (b postgresBackend) translator() crosswalk.Translator { return b.store }

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}

	var be backend
	switch cfg.TerminologyBackend {
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		be = postgresBackend{store: pgstore.New(pool)}
		logger.Info().Msg("connected to terminology database")
	default:
		cat, err := catalog.Load(cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
		be = catalogBackend{cat: cat}
		logger.Info().Str("path", cfg.CatalogPath).Msg("terminology catalog loaded")
	}

	var rec adapter.Recorder
	if cfg.MetricsEnabled {
		rec = a.metrics
	}
	wrap := func(provider string, interval time.Duration) medication.Adapter {
		system, _ := catalog.SystemOf(provider)
		throttled := adapter.Throttle(be.adapter(system, provider), adapter.Options{
			MinInterval: interval,
			Timeout:     cfg.AdapterTimeout,
		})
		return adapter.Instrument(throttled, system, provider, rec)
	}

	rx := wrap(catalog.ProviderRxNorm, cfg.RxNormMinInterval)
	ndc := wrap(catalog.ProviderNDC, cfg.NDCMinInterval)
	ndcSecondary := wrap(catalog.ProviderNDCSecondary, cfg.NDCSecondaryMinInterval)
	umls := wrap(catalog.ProviderUMLS, cfg.UMLSMinInterval)

	a.meds = medication.NewService(registry.New[medication.Entity](), medication.Adapters{
		codesystem.Normalized: rx,
		codesystem.NDC:        adapter.Fallback(ndc, ndcSecondary),
		codesystem.Universal:  umls,
	}, logger)
	if cfg.MetricsEnabled {
		if err := a.metrics.WatchRegistry(a.meds.Registry()); err != nil {
			a.Close()
			return nil, fmt.Errorf("register registry metrics: %w", err)
		}
	}

	engine := crosswalk.NewEngine(logger)
	crosswalk.RegisterDefaults(engine, crosswalk.Providers{
		NDCToNormalized: []crosswalk.Linker{ndc, ndcSecondary},
		NormalizedToNDC: []crosswalk.Linker{
			adapter.Reverse(ndc, codesystem.Normalized),
			adapter.Reverse(ndcSecondary, codesystem.Normalized),
		},
		Universal: be.translator(),
	})
	a.xwalk = crosswalk.NewService(engine, a.meds, logger)

	opts := loader.Options{Workers: cfg.LoaderWorkers}
	if cfg.MetricsEnabled {
		opts.Observer = a.metrics
	}
	a.loader = loader.New(a.meds, opts, logger)
	return a, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
