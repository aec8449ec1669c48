// Package extract turns fetched source content into validated listings.
package extract

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shoplens/backend/internal/domain"
)

// Limits applied when no configuration is supplied
const (
	DefaultMaxListings = 12
	HardMaxListings    = 15
	DefaultPriceMin    = 10.0
	DefaultPriceMax    = 3000.0
)

// Config holds extraction limits
type Config struct {
	MaxListings int
	PriceMin    float64
	PriceMax    float64
}

// strategyFunc pulls unvalidated candidates out of raw content
type strategyFunc func(content string, src domain.SourceDescriptor) []domain.RawListing

// Extractor dispatches content to the strategy named by each source descriptor
type Extractor struct {
	cfg        Config
	strategies map[domain.ExtractionStrategy]strategyFunc
	logger     zerolog.Logger
	now        func() time.Time
}

// NewExtractor creates an extractor with the built-in strategies
func NewExtractor(cfg Config, logger zerolog.Logger) *Extractor {
	if cfg.MaxListings <= 0 {
		cfg.MaxListings = DefaultMaxListings
	}
	if cfg.MaxListings > HardMaxListings {
		cfg.MaxListings = HardMaxListings
	}
	if cfg.PriceMin <= 0 {
		cfg.PriceMin = DefaultPriceMin
	}
	if cfg.PriceMax <= cfg.PriceMin {
		cfg.PriceMax = DefaultPriceMax
	}

	return &Extractor{
		cfg: cfg,
		strategies: map[domain.ExtractionStrategy]strategyFunc{
			domain.StrategyMarkdownPattern: extractMarkdown,
			domain.StrategyHTMLSelector:    extractHTML,
			domain.StrategyStructuredAPI:   extractStructured,
		},
		logger: logger,
		now:    time.Now,
	}
}

// Extract returns the valid listings found in content. Malformed content
// yields an empty result; this method never panics.
func (e *Extractor) Extract(content string, src domain.SourceDescriptor) (listings []domain.RawListing) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn().Str("source", src.ID).Interface("panic", r).Msg("extraction aborted")
			listings = nil
		}
	}()

	strategy, ok := e.strategies[src.ExtractionStrategy]
	if !ok || strings.TrimSpace(content) == "" {
		return nil
	}

	now := e.now().UTC()
	seen := make(map[string]bool)
	candidates := strategy(content, src)
	for _, c := range candidates {
		l, ok := e.normalize(c, src, now)
		if !ok {
			continue
		}
		fp := l.Fingerprint()
		if seen[fp] {
			continue
		}
		seen[fp] = true
		listings = append(listings, l)
		if len(listings) >= e.cfg.MaxListings {
			break
		}
	}

	e.logger.Debug().
		Str("source", src.ID).
		Str("strategy", string(src.ExtractionStrategy)).
		Int("candidates", len(candidates)).
		Int("accepted", len(listings)).
		Msg("extracted listings")

	return listings
}

// normalize validates a candidate and fills the fields owned by the extractor
func (e *Extractor) normalize(c domain.RawListing, src domain.SourceDescriptor, now time.Time) (domain.RawListing, bool) {
	c.Title = collapseSpace(c.Title)
	if !validTitle(c.Title) {
		return c, false
	}

	if c.Price < e.cfg.PriceMin || c.Price > e.cfg.PriceMax {
		return c, false
	}

	c.ProductURL = resolveURL(c.ProductURL, src)
	if c.ProductURL == "" {
		return c, false
	}
	// Aggregators link to many retailers, so only scraped sources are domain-bound
	if src.ExtractionStrategy != domain.StrategyStructuredAPI && !onSourceDomain(c.ProductURL, src) {
		return c, false
	}

	if c.ImageURL != "" {
		c.ImageURL = resolveURL(c.ImageURL, src)
	}
	if c.Rating != nil && (*c.Rating < 0 || *c.Rating > 5) {
		c.Rating = nil
	}
	if c.ReviewCount != nil && *c.ReviewCount < 0 {
		c.ReviewCount = nil
	}
	c.Description = truncate(collapseSpace(c.Description), 200)
	if strings.EqualFold(c.Description, c.Title) {
		c.Description = ""
	}

	c.ID = domain.ListingID(c.ProductURL)
	c.SourceID = src.ID
	if c.SourceName == "" {
		c.SourceName = src.DisplayName
	}
	c.FetchedAt = now
	return c, true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
