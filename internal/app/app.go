// Package app assembles the discovery pipeline from configuration. The
// server and the CLI share it.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/shoplens/backend/config"
	"github.com/shoplens/backend/internal/domain"
	"github.com/shoplens/backend/internal/infrastructure/aggregator"
	"github.com/shoplens/backend/internal/infrastructure/cache"
	"github.com/shoplens/backend/internal/infrastructure/embedding"
	"github.com/shoplens/backend/internal/infrastructure/extract"
	"github.com/shoplens/backend/internal/infrastructure/indexer"
	"github.com/shoplens/backend/internal/infrastructure/llm"
	"github.com/shoplens/backend/internal/infrastructure/scrape"
	"github.com/shoplens/backend/internal/infrastructure/sources"
	"github.com/shoplens/backend/internal/infrastructure/vectorindex"
	"github.com/shoplens/backend/internal/logging"
	"github.com/shoplens/backend/internal/usecase"
)

// App holds the wired pipeline and everything that must be closed with it
type App struct {
	Registry  *sources.Registry
	Status    *scrape.StatusTracker
	Indexer   *indexer.Indexer
	Discovery *usecase.DiscoveryService

	closers []io.Closer
	logger  zerolog.Logger
}

// Build wires every component named in cfg. On error, anything already
// opened is closed.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (_ *App, err error) {
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.Registry, err = LoadRegistry(cfg.Sources.File)
	if err != nil {
		return nil, err
	}
	logger.Info().Int("sources", a.Registry.Len()).Msg("Source registry loaded")

	responseCache, err := newCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, responseCache)

	index, err := newIndex(ctx, cfg.Index, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, index)

	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}

	extractor := extract.NewExtractor(extract.Config{
		MaxListings: cfg.Scrape.MaxListingsPerSource,
		PriceMin:    cfg.Scrape.PriceMin,
		PriceMax:    cfg.Scrape.PriceMax,
	}, logging.Component(logger, "extract"))

	fetcher := scrape.NewFetcher(scrape.FetcherConfig{
		Timeout:      cfg.Scrape.PerSourceTimeout,
		ReaderURL:    cfg.Scrape.ReaderURL,
		ReaderAPIKey: cfg.Scrape.ReaderAPIKey,
		Limiter:      scrape.NewFetchLimiter(cfg.Scrape.RequestsPerSecond, cfg.Scrape.RequestBurst),
	}, logging.Component(logger, "fetch"))

	a.Status = scrape.NewStatusTracker()

	maxConcurrency := cfg.Scrape.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = a.Registry.Len() + 4
	}
	orchestrator := scrape.NewOrchestrator(a.Registry, fetcher, extractor, a.Status, scrape.OrchestratorConfig{
		MaxConcurrency: maxConcurrency,
		CeilingTimeout: cfg.Scrape.CeilingTimeout,
	}, logging.Component(logger, "scrape"))

	a.Indexer = indexer.New(embedder, index, indexer.Config{
		QueueSize: cfg.Index.QueueSize,
	}, logging.Component(logger, "indexer"))

	deps := usecase.DiscoveryDeps{
		Parser:  usecase.NewIntentParser(logging.Component(logger, "intent")),
		Lookup:  usecase.NewCacheLookup(embedder, index, cfg.Pipeline.ConfidenceThreshold, logging.Component(logger, "lookup")),
		Scraper: orchestrator,
		Filter:  usecase.NewRelevanceFilter(logging.Component(logger, "filter")),
		Scorer:  usecase.NewScoringService(logging.Component(logger, "scoring")),
		Indexer: a.Indexer,
		Guard:   a.Status,
	}

	// Optional capabilities are only assigned when configured so the
	// interfaces stay nil otherwise
	if cfg.Aggregator.APIKey != "" {
		deps.Aggregator = aggregator.NewClient(aggregator.Config{
			APIKey:          cfg.Aggregator.APIKey,
			BaseURL:         cfg.Aggregator.BaseURL,
			RequestsPerHour: cfg.Aggregator.RequestsPerHour,
			CacheTTL:        cfg.Cache.TTL,
		}, extractor, responseCache, logging.Component(logger, "aggregator"))
	} else {
		logger.Warn().Msg("Aggregator API key not set, external fallback tier disabled")
	}

	if refiner := llm.NewRefiner(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, logging.Component(logger, "refiner")); refiner != nil {
		deps.Refiner = refiner
	}

	a.Discovery = usecase.NewDiscoveryService(deps, usecase.DiscoveryConfig{
		MinViableCount:     cfg.Pipeline.MinViableCount,
		CacheSkipThreshold: cfg.Pipeline.CacheSkipThreshold,
		CacheLookupLimit:   cfg.Pipeline.CacheLookupLimit,
		DefaultMaxResults:  cfg.Pipeline.DefaultMaxResults,
		DemoSamples:        cfg.Pipeline.DemoSamples,
		RefreshQueries:     cfg.Pipeline.RefreshQueries,
	}, logging.Component(logger, "discovery"))

	logger.Info().
		Str("cache", cfg.Cache.Type).
		Str("index", cfg.Index.Type).
		Str("embedding", cfg.Embedding.Provider).
		Int("max_concurrency", maxConcurrency).
		Dur("ceiling_timeout", cfg.Scrape.CeilingTimeout).
		Float64("fetch_rps", cfg.Scrape.RequestsPerSecond).
		Bool("refiner", deps.Refiner != nil).
		Bool("aggregator", deps.Aggregator != nil).
		Msg("Discovery pipeline ready")

	return a, nil
}

// Close stops background refreshes, drains the indexer and releases
// storage connections
func (a *App) Close() {
	if a.Discovery != nil {
		a.Discovery.Close()
	}
	if a.Indexer != nil {
		if err := a.Indexer.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Indexer close failed")
		}
	}
	if a.Status != nil {
		a.Status.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Close failed")
		}
	}
}

// LoadRegistry returns the embedded catalog, or the one at path when set
func LoadRegistry(path string) (*sources.Registry, error) {
	if path == "" {
		return sources.NewDefaultRegistry()
	}
	registry, err := sources.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load sources from %s: %w", path, err)
	}
	return registry, nil
}

type closingCache interface {
	domain.CacheRepository
	io.Closer
}

func newCache(cfg config.CacheConfig) (closingCache, error) {
	if cfg.Type == "redis" {
		c, err := cache.NewRedisCache(cfg.RedisURL, "shoplens:")
		if err != nil {
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		return c, nil
	}
	return cache.NewMemoryCache(), nil
}

type closingIndex interface {
	domain.VectorIndex
	io.Closer
}

func newIndex(ctx context.Context, cfg config.IndexConfig, logger zerolog.Logger) (closingIndex, error) {
	if cfg.Type == "pgvector" {
		idx, err := vectorindex.NewPGVectorIndex(ctx, cfg.DatabaseURL, cfg.Collection, logging.Component(logger, "vectorindex"))
		if err != nil {
			return nil, fmt.Errorf("open pgvector index: %w", err)
		}
		return idx, nil
	}
	return vectorindex.NewMemoryIndex(), nil
}

func newEmbedder(cfg config.EmbeddingConfig) (domain.Embedder, error) {
	if cfg.Provider == "http" {
		client, err := embedding.NewClient(embedding.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			Dimension: cfg.Dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("create embedding client: %w", err)
		}
		return client, nil
	}
	return embedding.NewHashEmbedder(cfg.Dimension), nil
}
