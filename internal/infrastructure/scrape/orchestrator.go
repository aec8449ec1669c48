package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shoplens/backend/internal/domain"
	"golang.org/x/sync/semaphore"
)

// Extra permits above the registry size when no concurrency limit is configured
const concurrencyHeadroom = 4

const defaultCeilingTimeout = 45 * time.Second

// SourceFetcher retrieves raw content for a source
type SourceFetcher interface {
	Fetch(ctx context.Context, src domain.SourceDescriptor, query string) (string, bool)
}

// ListingExtractor parses raw content into listings
type ListingExtractor interface {
	Extract(content string, src domain.SourceDescriptor) []domain.RawListing
}

// OrchestratorConfig holds fan-out settings
type OrchestratorConfig struct {
	MaxConcurrency int
	CeilingTimeout time.Duration
}

// Orchestrator scrapes every registered source for a query in parallel
type Orchestrator struct {
	registry  domain.SourceRegistry
	fetcher   SourceFetcher
	extractor ListingExtractor
	status    *StatusTracker
	cfg       OrchestratorConfig
	logger    zerolog.Logger
}

// NewOrchestrator creates an orchestrator. status may be nil.
func NewOrchestrator(
	registry domain.SourceRegistry,
	fetcher SourceFetcher,
	extractor ListingExtractor,
	status *StatusTracker,
	cfg OrchestratorConfig,
	logger zerolog.Logger,
) *Orchestrator {
	if cfg.CeilingTimeout <= 0 {
		cfg.CeilingTimeout = defaultCeilingTimeout
	}
	return &Orchestrator{
		registry:  registry,
		fetcher:   fetcher,
		extractor: extractor,
		status:    status,
		cfg:       cfg,
		logger:    logger,
	}
}

// Scrape fans query out to all sources and returns whatever listings arrive
// before every task reports or the ceiling timeout fires. Tasks still running
// at the ceiling are cancelled and their output dropped. Listing order is
// unspecified.
func (o *Orchestrator) Scrape(ctx context.Context, query string) ([]domain.RawListing, []domain.SourceResult) {
	sources := o.registry.List()
	if len(sources) == 0 {
		return nil, nil
	}

	runID := 0
	if o.status != nil {
		runID = o.status.Begin(query, len(sources))
		defer o.status.Finish(runID)
	}

	limit := o.cfg.MaxConcurrency
	if limit <= 0 {
		limit = len(sources) + concurrencyHeadroom
	}
	sem := semaphore.NewWeighted(int64(limit))

	ctx, cancel := context.WithTimeout(ctx, o.cfg.CeilingTimeout)
	defer cancel()

	start := time.Now()
	// buffered so abandoned tasks can always deliver and exit
	results := make(chan domain.SourceResult, len(sources))
	for _, src := range sources {
		go o.scrapeSource(ctx, sem, src, query, results)
	}

	var listings []domain.RawListing
	outcomes := make([]domain.SourceResult, 0, len(sources))
	for len(outcomes) < len(sources) {
		select {
		case res := <-results:
			if o.status != nil {
				o.status.Record(runID, res)
			}
			listings = append(listings, res.Listings...)
			outcomes = append(outcomes, res)
		case <-ctx.Done():
			o.logger.Warn().
				Str("query", query).
				Int("reported", len(outcomes)).
				Int("abandoned", len(sources)-len(outcomes)).
				Dur("elapsed", time.Since(start)).
				Msg("scrape ceiling reached")
			return listings, outcomes
		}
	}

	o.logger.Info().
		Str("query", query).
		Int("sources", len(sources)).
		Int("listings", len(listings)).
		Dur("elapsed", time.Since(start)).
		Msg("scrape complete")

	return listings, outcomes
}

func (o *Orchestrator) scrapeSource(ctx context.Context, sem *semaphore.Weighted, src domain.SourceDescriptor, query string, results chan<- domain.SourceResult) {
	start := time.Now()
	res := domain.SourceResult{SourceID: src.ID}

	defer func() {
		if r := recover(); r != nil {
			res = domain.SourceResult{SourceID: src.ID, Error: fmt.Sprintf("panic: %v", r)}
			o.logger.Error().Str("source", src.ID).Interface("panic", r).Msg("source task panicked")
		}
		res.Elapsed = time.Since(start)
		results <- res
	}()

	if err := sem.Acquire(ctx, 1); err != nil {
		res.Error = "cancelled before start"
		return
	}
	defer sem.Release(1)

	content, ok := o.fetcher.Fetch(ctx, src, query)
	if !ok {
		res.Error = "fetch failed"
		return
	}

	res.Listings = o.extractor.Extract(content, src)
	res.Count = len(res.Listings)
	res.OK = true
}
