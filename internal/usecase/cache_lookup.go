package usecase

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shoplens/backend/internal/domain"
)

// Cache lookup defaults
const (
	// ConfidenceThreshold is the minimum similarity for an indexed listing
	// to be reused instead of scraping again
	ConfidenceThreshold = 0.7

	// CacheSkipThreshold is the number of confident hits above which
	// scraping is skipped entirely
	CacheSkipThreshold = 3

	defaultLookupLimit = 20
)

// CacheLookup finds previously indexed listings similar to a query
type CacheLookup struct {
	embedder  domain.Embedder
	index     domain.VectorIndex
	threshold float64
	logger    zerolog.Logger
}

// NewCacheLookup creates a cache lookup; a threshold of zero uses
// ConfidenceThreshold. A nil embedder or index disables lookups.
func NewCacheLookup(embedder domain.Embedder, index domain.VectorIndex, threshold float64, logger zerolog.Logger) *CacheLookup {
	if threshold <= 0 {
		threshold = ConfidenceThreshold
	}
	return &CacheLookup{
		embedder:  embedder,
		index:     index,
		threshold: threshold,
		logger:    logger,
	}
}

// Lookup returns up to limit indexed listings scoring at least the
// confidence threshold for the intent's raw text, filtered by category and
// budget. Embedding and index failures degrade to an empty result.
func (c *CacheLookup) Lookup(ctx context.Context, intent domain.QueryIntent, limit int) []domain.RawListing {
	if c == nil || c.embedder == nil || c.index == nil {
		return nil
	}
	if limit <= 0 {
		limit = defaultLookupLimit
	}
	text := strings.TrimSpace(intent.RawText)
	if text == "" {
		return nil
	}

	vectors, err := c.embedder.Embed(ctx, []string{text})
	if err != nil || len(vectors) == 0 {
		c.logger.Warn().Err(err).Str("query", text).Msg("Cache lookup embedding failed")
		return nil
	}

	filter := domain.IndexFilter{Category: intent.Category}
	if intent.HasBudget() {
		filter.MaxPrice = intent.BudgetMax
	}

	hits, err := c.index.Query(ctx, vectors[0], filter, limit)
	if err != nil {
		c.logger.Warn().Err(err).Str("query", text).Msg("Cache lookup query failed")
		return nil
	}

	var listings []domain.RawListing
	for _, hit := range hits {
		if hit.Score >= c.threshold {
			listings = append(listings, hit.Listing)
		}
	}

	c.logger.Debug().
		Str("query", text).
		Int("hits", len(hits)).
		Int("confident", len(listings)).
		Msg("Cache lookup complete")

	return listings
}
