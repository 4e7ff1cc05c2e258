package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/towerguard/site-health/internal/adapter/fetch"
	"github.com/towerguard/site-health/internal/adapter/fixtures"
	kafkaadapter "github.com/towerguard/site-health/internal/adapter/kafka"
	"github.com/towerguard/site-health/internal/adapter/nasapower"
	"github.com/towerguard/site-health/internal/adapter/ndvi"
	"github.com/towerguard/site-health/internal/adapter/soilgrids"
	"github.com/towerguard/site-health/internal/adapter/sqlite"
	"github.com/towerguard/site-health/internal/cache"
	"github.com/towerguard/site-health/internal/config"
	"github.com/towerguard/site-health/internal/domain"
	"github.com/towerguard/site-health/internal/features"
	"github.com/towerguard/site-health/internal/model"
	"github.com/towerguard/site-health/internal/observability"
	"github.com/towerguard/site-health/internal/pipeline"
	"github.com/towerguard/site-health/internal/scoring"
)

// app holds the components shared by every command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	bounds   domain.Bounds
	store    *sqlite.Store
	pipeline *pipeline.Pipeline
	closers  []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// newApp wires the service from configuration. The caller must call close.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  observability.NewLogger(cfg),
		metrics: observability.NewMetrics(),
		bounds: domain.Bounds{
			MinLat: cfg.BoundsMinLat,
			MaxLat: cfg.BoundsMaxLat,
			MinLon: cfg.BoundsMinLon,
			MaxLon: cfg.BoundsMaxLon,
		},
	}

	store, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, namedCloser{"sqlite", store})

	sources, err := a.buildSources()
	if err != nil {
		a.close()
		return nil, err
	}
	extractor := features.NewAggregator(sources, a.bounds, a.logger, a.metrics)

	sinks := []pipeline.RecordSink{store}
	if cfg.KafkaEnabled() {
		pub := kafkaadapter.NewPublisher(cfg, a.logger)
		a.closers = append(a.closers, namedCloser{"kafka", pub})
		sinks = append(sinks, pub)
		a.logger.Info("kafka publication enabled", "brokers", cfg.KafkaBrokers)
	}
	sink := pipeline.NewMultiSink(a.logger, a.metrics, sinks...)

	a.pipeline = pipeline.New(store, extractor, a.buildScorer(), sink, a.logger, a.metrics,
		pipeline.WithSchedule(cfg.EnrichInterval, cfg.EnrichWindowDays),
	)
	return a, nil
}

func (a *app) buildSources() (features.Sources, error) {
	cfg := a.cfg

	newCache, err := a.cacheFactory()
	if err != nil {
		return features.Sources{}, err
	}

	policy := fetch.Policy{
		MaxAttempts: cfg.FetchMaxAttempts,
		BaseDelay:   cfg.FetchBaseDelay,
		Multiplier:  cfg.FetchBackoffMultiplier,
		Timeout:     cfg.FetchTimeout,
	}
	newFetch := func(provider string) *fetch.Client {
		return fetch.New(provider, policy,
			fetch.WithLogger(a.logger),
			fetch.WithMetrics(a.metrics),
		)
	}

	fx := fixtures.New(cfg.FixturesDir)

	power := nasapower.NewClient(nasapower.Config{
		BaseURL:   cfg.NASAPowerURL,
		APIKey:    cfg.NASAPowerAPIKey,
		Community: cfg.NASAPowerCommunity,
		StartYear: cfg.NASAPowerStartYear,
		EndYear:   cfg.NASAPowerEndYear,
	}, newFetch(nasapower.Provider), a.logger,
		nasapower.WithCaches(
			newCache(domain.PillarRainfall, cfg.CacheTTLRainfall),
			newCache(domain.PillarTemperature, cfg.CacheTTLTemperature),
		),
		nasapower.WithFixtures(fx),
	)

	soil := soilgrids.NewClient(cfg.SoilGridsURL, newFetch(soilgrids.Provider),
		newCache(domain.PillarSoil, cfg.CacheTTLSoil), fx, a.logger)

	var veg domain.VegetationIndexSource = ndvi.Disabled{}
	if cfg.NDVIEnabled {
		veg = ndvi.NewClient(cfg.NDVIURL, cfg.NDVIToken, newFetch(ndvi.Provider),
			newCache(domain.PillarNDVI, cfg.CacheTTLNDVI), a.logger)
		a.logger.Info("vegetation index provider enabled", "url", cfg.NDVIURL)
	} else {
		a.logger.Info("vegetation index provider disabled")
	}

	return features.Sources{NDVI: veg, Rainfall: power, Temperature: power, Soil: soil}, nil
}

// cacheFactory returns a constructor for per-source caches. All caches share
// one backing store; keys are namespaced by source.
func (a *app) cacheFactory() (func(name string, ttl time.Duration) *cache.Cache, error) {
	if !a.cfg.CacheEnabled {
		a.logger.Info("source caching disabled")
		return func(string, time.Duration) *cache.Cache { return nil }, nil
	}

	var store cache.Store = cache.NewMemoryStore()
	if a.cfg.CacheDir != "" {
		fs, err := cache.NewFileStore(a.cfg.CacheDir)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, namedCloser{"cache", fs})
		store = fs
	}
	a.logger.Info("source caching enabled", "dir", a.cfg.CacheDir)

	return func(name string, ttl time.Duration) *cache.Cache {
		return cache.New(name, store, ttl, cache.WithLogger(a.logger), cache.WithMetrics(a.metrics))
	}, nil
}

func (a *app) buildScorer() pipeline.Scorer {
	if a.cfg.ScoringStrategy == "model" {
		m := model.New(a.cfg.ModelPath, a.logger, a.metrics)
		a.logger.Info("scoring with learned model", "state", m.Load().String(), "version", m.Version())
		return m
	}
	a.logger.Info("scoring with rule engine", "version", scoring.RuleVersion)
	return scoring.NewRuleBased()
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Error("shutdown error", "error", err)
	}
}
