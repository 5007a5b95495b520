// Package app connects the configured stores and builds the statistics core
// shared by the api and ingest binaries.
package app

import (
	"context"
	"errors"

	"matchstats/internal/archive"
	"matchstats/internal/cache"
	"matchstats/internal/config"
	"matchstats/internal/counters"
	"matchstats/internal/database"
	"matchstats/internal/dimension"
	"matchstats/internal/ingest"
	"matchstats/internal/matchconfig"
	"matchstats/internal/retry"
	"matchstats/internal/statistics"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type App struct {
	Config config.Config

	DB       database.Database
	Cache    cache.Cache
	Archive  *archive.MongoArchive
	Counters *counters.Cache

	Resolver     *dimension.Resolver
	Ingestor     *ingest.Ingestor
	Reports      *ingest.ReportProcessor
	Statistics   *statistics.Service
	MatchConfigs *matchconfig.Store

	closers []func() error
}

// RetryPolicy builds the serializable-write retry policy from cfg
func RetryPolicy(cfg config.StatisticsConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts: cfg.RetryAttempts,
		MinBackoff:  cfg.RetryMinBackoff(),
		MaxBackoff:  cfg.RetryMaxBackoff(),
		Retryable:   database.IsRetryable,
	}
}

// New connects every enabled store. Optional stores that fail to connect are
// logged and left out; only the database is required.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, DB: db}
	a.closers = append(a.closers, db.Close)

	clock := clockwork.NewRealClock()
	counterOpts := counters.Options{
		TTL:              cfg.Statistics.CounterTTL(),
		PrefetchFraction: cfg.Statistics.CounterPrefetch,
		Clock:            clock,
	}

	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisCache(cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, counters stay process-local")
		} else {
			a.Cache = redisCache
			a.closers = append(a.closers, redisCache.Close)
			counterOpts.Mirror = cache.NewCounterMirror(redisCache)
		}
	}

	var archiver ingest.Archiver
	if cfg.MongoDB.Enabled {
		reports, err := archive.NewMongoArchive(ctx, cfg.MongoDB)
		if err != nil {
			log.Warn().Err(err).Msg("Report archive unavailable, reports will not be archived")
		} else {
			a.Archive = reports
			archiver = reports
			a.closers = append(a.closers, func() error { return reports.Close(context.Background()) })
		}
	}

	policy := RetryPolicy(cfg.Statistics)
	gdb := db.Gorm()

	a.Counters = counters.New(counterOpts)
	a.Resolver = dimension.NewResolver(gdb, dimension.NewCache(), policy)
	a.Ingestor = ingest.NewIngestor(gdb, a.Resolver, ingest.Options{
		ChunkSize:      cfg.Statistics.IngestChunkSize,
		MaxConcurrency: cfg.Statistics.IngestMaxConcurrency,
	})
	a.Reports = ingest.NewReportProcessor(a.Ingestor, archiver)
	a.Statistics = statistics.NewService(gdb, a.Counters, clock)
	a.MatchConfigs = matchconfig.NewStore(gdb, policy)

	return a, nil
}

// Close releases every connection New opened, newest first
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
