package usecase

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shoplens/backend/internal/domain"
	"github.com/shoplens/backend/internal/infrastructure/extract"
)

// Discovery defaults
const (
	DefaultMaxResults     = 5
	MaxResultsLimit       = 50
	MinViableCount        = 2
	aggregatorSearchLimit = 10
	refreshTimeout        = 10 * time.Minute
)

// DefaultRefreshQueries seed an inventory refresh when none are given
var DefaultRefreshQueries = []string{"trending fashion", "popular clothing", "best sellers", "new arrivals"}

// RefreshGuard grants exclusive access to inventory refreshes
type RefreshGuard interface {
	TryStartRefresh() bool
	EndRefresh()
}

// DiscoveryConfig holds configuration for the discovery service
type DiscoveryConfig struct {
	MinViableCount     int
	CacheSkipThreshold int
	CacheLookupLimit   int
	DefaultMaxResults  int
	DemoSamples        bool
	RefreshQueries     []string
}

// DiscoveryDeps are the collaborators of the discovery service. Refiner,
// Aggregator, Indexer and Guard may be nil.
type DiscoveryDeps struct {
	Parser     *IntentParser
	Lookup     *CacheLookup
	Scraper    domain.Scraper
	Aggregator domain.AggregatorClient
	Filter     *RelevanceFilter
	Scorer     *ScoringService
	Refiner    domain.Refiner
	Indexer    domain.ListingIndexer
	Guard      RefreshGuard
}

// DiscoveryService runs the tiered discovery pipeline
type DiscoveryService struct {
	deps   DiscoveryDeps
	cfg    DiscoveryConfig
	logger zerolog.Logger
	now    func() time.Time

	refreshing atomic.Bool
	background sync.WaitGroup
	stopCtx    context.Context
	stop       context.CancelFunc
}

// NewDiscoveryService creates a new discovery service with dependencies
func NewDiscoveryService(deps DiscoveryDeps, cfg DiscoveryConfig, logger zerolog.Logger) *DiscoveryService {
	if cfg.MinViableCount <= 0 {
		cfg.MinViableCount = MinViableCount
	}
	if cfg.CacheSkipThreshold <= 0 {
		cfg.CacheSkipThreshold = CacheSkipThreshold
	}
	if cfg.CacheLookupLimit <= 0 {
		cfg.CacheLookupLimit = defaultLookupLimit
	}
	if cfg.DefaultMaxResults <= 0 {
		cfg.DefaultMaxResults = DefaultMaxResults
	}
	if len(cfg.RefreshQueries) == 0 {
		cfg.RefreshQueries = DefaultRefreshQueries
	}
	if deps.Parser == nil {
		deps.Parser = NewIntentParser(logger)
	}
	if deps.Filter == nil {
		deps.Filter = NewRelevanceFilter(logger)
	}
	if deps.Scorer == nil {
		deps.Scorer = NewScoringService(logger)
	}

	stopCtx, stop := context.WithCancel(context.Background())
	return &DiscoveryService{
		deps:    deps,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		stopCtx: stopCtx,
		stop:    stop,
	}
}

// tierOutcome tracks the candidates gathered so far and how they were produced
type tierOutcome struct {
	candidates []domain.RawListing
	fresh      []domain.RawListing
	label      domain.SourceLabel
	confidence domain.ConfidenceLevel
	disclaimer string
}

// Discover finds, filters and ranks listings for a query.
// Flow: refine -> parse intent -> cache lookup -> scrape -> aggregator ->
// samples -> dedup -> filter -> score -> paginate -> index fresh listings.
// Only an empty query is an error; every tier failure degrades to the next.
func (s *DiscoveryService) Discover(ctx context.Context, req domain.DiscoverRequest) (*domain.DiscoverResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.ErrInvalidRequest
	}
	start := s.now()

	query = s.refine(ctx, query, req.History)
	intent := s.resolveIntent(query, req.Intent)

	outcome := s.gather(ctx, query, intent)

	deduped := Deduplicate(outcome.candidates)
	accepted := s.deps.Filter.Filter(deduped, intent)
	scored := s.deps.Scorer.Score(accepted, intent)

	s.index(accepted, outcome.fresh, intent)

	result := &domain.DiscoverResult{
		Query:           query,
		Intent:          intent,
		Listings:        paginate(scored, req.Offset, s.pageSize(req.MaxResults)),
		TotalConsidered: len(scored),
		SourceLabel:     outcome.label,
		ConfidenceLevel: outcome.confidence,
		Disclaimer:      outcome.disclaimer,
		ElapsedMS:       s.now().Sub(start).Milliseconds(),
	}

	s.logger.Info().
		Str("query", query).
		Str("label", string(result.SourceLabel)).
		Int("candidates", len(outcome.candidates)).
		Int("unique", len(deduped)).
		Int("accepted", len(accepted)).
		Int("returned", len(result.Listings)).
		Int64("elapsed_ms", result.ElapsedMS).
		Msg("Discovery complete")

	return result, nil
}

// gather walks the tiers until enough candidates are found
func (s *DiscoveryService) gather(ctx context.Context, query string, intent domain.QueryIntent) tierOutcome {
	hits := s.deps.Lookup.Lookup(ctx, intent, s.cfg.CacheLookupLimit)
	if len(hits) > s.cfg.CacheSkipThreshold {
		return tierOutcome{
			candidates: hits,
			label:      domain.LabelIndexed,
			confidence: domain.ConfidenceHigh,
		}
	}

	out := tierOutcome{confidence: domain.ConfidenceMedium}
	if s.deps.Scraper != nil {
		scraped, _ := s.deps.Scraper.Scrape(ctx, query)
		out.fresh = scraped
	}
	out.candidates = append(append(out.candidates, out.fresh...), hits...)
	switch {
	case len(out.fresh) > 0 && len(hits) > 0:
		out.label = domain.LabelHybrid
	case len(hits) > 0:
		out.label = domain.LabelIndexed
	default:
		out.label = domain.LabelScraped
	}

	if len(Deduplicate(out.candidates)) >= s.cfg.MinViableCount {
		return out
	}

	if s.deps.Aggregator != nil {
		external, err := s.deps.Aggregator.Search(ctx, query, aggregatorSearchLimit)
		if err != nil {
			s.logger.Warn().Err(err).Str("query", query).Msg("Aggregator tier failed")
		} else if len(external) > 0 {
			out.candidates = append(out.candidates, external...)
			out.fresh = append(out.fresh, external...)
			out.label = domain.LabelExternalAPI
			out.disclaimer = domain.DisclaimerExternal
		}
	}

	if len(Deduplicate(out.candidates)) >= s.cfg.MinViableCount {
		return out
	}

	var samples []domain.RawListing
	if s.cfg.DemoSamples {
		samples = SampleListings(intent)
	}
	out.candidates = append(out.candidates, samples...)
	out.label = domain.LabelDemo
	out.confidence = domain.ConfidenceLow
	out.disclaimer = domain.DisclaimerDemo
	if len(samples) == 0 {
		out.disclaimer = domain.DisclaimerEmpty
	}
	s.logger.Info().Str("query", query).Int("samples", len(samples)).Msg("Falling back to sample listings")
	return out
}

// refine rewrites a follow-up query using chat history; failures keep the
// original text
func (s *DiscoveryService) refine(ctx context.Context, query string, history []domain.ChatTurn) string {
	if len(history) == 0 || s.deps.Refiner == nil {
		return query
	}
	refined, err := s.deps.Refiner.Refine(ctx, query, history)
	if err != nil {
		s.logger.Warn().Err(err).Str("query", query).Msg("Query refinement failed, using original")
		return query
	}
	if refined = strings.TrimSpace(refined); refined == "" {
		return query
	}
	if refined != query {
		s.logger.Debug().Str("original", query).Str("refined", refined).Msg("Refined query")
	}
	return refined
}

// resolveIntent uses a caller-supplied intent when present, otherwise parses
// the query
func (s *DiscoveryService) resolveIntent(query string, supplied *domain.QueryIntent) domain.QueryIntent {
	if supplied == nil {
		return s.deps.Parser.Parse(query)
	}
	intent := *supplied
	if strings.TrimSpace(intent.RawText) == "" {
		intent.RawText = query
	}
	return intent.Normalize()
}

// index hands accepted listings that came from a live source to the
// background indexer
func (s *DiscoveryService) index(accepted, fresh []domain.RawListing, intent domain.QueryIntent) {
	if s.deps.Indexer == nil || len(fresh) == 0 {
		return
	}
	freshURLs := make(map[string]bool, len(fresh))
	for _, l := range fresh {
		freshURLs[l.ProductURL] = true
	}

	var batch []domain.RawListing
	for _, l := range accepted {
		if l.SourceID == SampleSourceID || !freshURLs[l.ProductURL] {
			continue
		}
		batch = append(batch, prepareForIndex(l, intent))
	}
	if len(batch) == 0 {
		return
	}
	if !s.deps.Indexer.Enqueue(batch) {
		s.logger.Warn().Int("listings", len(batch)).Msg("Indexer rejected batch")
	}
}

func prepareForIndex(l domain.RawListing, intent domain.QueryIntent) domain.RawListing {
	if l.Category == "" {
		l.Category = intent.Category
	}
	if l.ID == "" {
		l.ID = domain.ListingID(l.ProductURL)
	}
	return l
}

func (s *DiscoveryService) pageSize(requested int) int {
	switch {
	case requested <= 0:
		return s.cfg.DefaultMaxResults
	case requested > MaxResultsLimit:
		return MaxResultsLimit
	}
	return requested
}

func paginate(scored []domain.ScoredListing, offset, size int) []domain.ScoredListing {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(scored) {
		return []domain.ScoredListing{}
	}
	end := offset + size
	if end > len(scored) {
		end = len(scored)
	}
	return scored[offset:end]
}

// Refresh scrapes every refresh query and indexes the unique results. Only
// one refresh runs at a time; a concurrent call gets ErrScrapeInProgress.
func (s *DiscoveryService) Refresh(ctx context.Context, queries []string) (*domain.RefreshSummary, error) {
	if !s.beginRefresh() {
		return nil, domain.ErrScrapeInProgress
	}
	defer s.endRefresh()
	return s.runRefresh(ctx, queries), nil
}

// StartRefresh claims the refresh slot and runs the refresh in the
// background, detached from the caller's context
func (s *DiscoveryService) StartRefresh(queries []string) error {
	if !s.beginRefresh() {
		return domain.ErrScrapeInProgress
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer s.endRefresh()
		ctx, cancel := context.WithTimeout(s.stopCtx, refreshTimeout)
		defer cancel()
		s.runRefresh(ctx, queries)
	}()
	return nil
}

// Wait blocks until background refreshes finish
func (s *DiscoveryService) Wait() {
	s.background.Wait()
}

// Close cancels background refreshes and waits for them to stop
func (s *DiscoveryService) Close() {
	s.stop()
	s.background.Wait()
}

func (s *DiscoveryService) beginRefresh() bool {
	if s.deps.Guard != nil {
		return s.deps.Guard.TryStartRefresh()
	}
	return s.refreshing.CompareAndSwap(false, true)
}

func (s *DiscoveryService) endRefresh() {
	if s.deps.Guard != nil {
		s.deps.Guard.EndRefresh()
		return
	}
	s.refreshing.Store(false)
}

func (s *DiscoveryService) runRefresh(ctx context.Context, queries []string) *domain.RefreshSummary {
	if len(queries) == 0 {
		queries = s.cfg.RefreshQueries
	}
	summary := &domain.RefreshSummary{Queries: queries, StartedAt: s.now().UTC()}
	s.logger.Info().Strs("queries", queries).Msg("Inventory refresh started")

	var all []domain.RawListing
	for _, q := range queries {
		if ctx.Err() != nil {
			s.logger.Warn().Err(ctx.Err()).Msg("Inventory refresh interrupted")
			break
		}
		if s.deps.Scraper == nil {
			break
		}
		listings, _ := s.deps.Scraper.Scrape(ctx, q)
		summary.Scraped += len(listings)
		all = append(all, listings...)
	}

	var unique []domain.RawListing
	for _, l := range Deduplicate(all) {
		if extract.IsAbsoluteHTTPURL(l.ProductURL) {
			unique = append(unique, prepareForIndex(l, domain.QueryIntent{}))
		}
	}
	summary.Unique = len(unique)
	if s.deps.Indexer != nil && len(unique) > 0 {
		summary.Enqueued = s.deps.Indexer.Enqueue(unique)
	}
	summary.CompletedAt = s.now().UTC()

	s.logger.Info().
		Int("scraped", summary.Scraped).
		Int("unique", summary.Unique).
		Bool("enqueued", summary.Enqueued).
		Dur("elapsed", summary.CompletedAt.Sub(summary.StartedAt)).
		Msg("Inventory refresh complete")

	return summary
}
