// Package aggregator queries the SerpAPI Google Shopping engine as the
// fallback tier when scraping yields too little.
package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shoplens/backend/internal/domain"
	"golang.org/x/time/rate"
)

const (
	maxAttempts     = 3
	maxResponseSize = 4 << 20
	defaultCacheTTL = time.Hour
	cacheKeyPrefix  = "aggregator:"
)

// Source describes aggregator results to the extractor. Links point at
// many merchants, so relative links resolve against google.com.
var Source = domain.SourceDescriptor{
	ID:                 "google_shopping",
	DisplayName:        "Google Shopping",
	Domain:             "google.com",
	QueryURLTemplate:   "https://serpapi.com/search.json?engine=google_shopping&q={query}",
	ExtractionStrategy: domain.StrategyStructuredAPI,
}

// ListingExtractor turns a JSON payload into listings
type ListingExtractor interface {
	Extract(content string, src domain.SourceDescriptor) []domain.RawListing
}

// Client handles communication with the SerpAPI shopping endpoint
type Client struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	rateLimiter *rate.Limiter
	extractor   ListingExtractor
	cache       domain.CacheRepository
	cacheTTL    time.Duration
	backoff     func(attempt int) time.Duration
	logger      zerolog.Logger
}

// Config holds aggregator client configuration
type Config struct {
	APIKey          string
	BaseURL         string
	RequestsPerHour int
	CacheTTL        time.Duration
	Timeout         time.Duration
}

// NewClient creates a new aggregator client; cache may be nil
func NewClient(cfg Config, extractor ListingExtractor, cache domain.CacheRepository, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://serpapi.com"
	}
	if cfg.RequestsPerHour <= 0 {
		cfg.RequestsPerHour = 100
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	// rate.Limit is requests per second
	burst := cfg.RequestsPerHour
	if burst > 10 {
		burst = 10
	}
	limiter := rate.NewLimiter(rate.Every(time.Hour/time.Duration(cfg.RequestsPerHour)), burst)

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		rateLimiter: limiter,
		extractor:   extractor,
		cache:       cache,
		cacheTTL:    cfg.CacheTTL,
		backoff:     exponentialBackoff,
		logger:      logger,
	}
}

// exponentialBackoff returns 500ms, 1s, 2s for attempts 1, 2, 3
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}

// readLimitedBody reads at most limit bytes
func readLimitedBody(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}

type errorEnvelope struct {
	Error string `json:"error"`
}

// Search returns up to limit listings for query. Responses are cached so
// repeated queries do not spend API quota.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.RawListing, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrInvalidRequest
	}
	if limit <= 0 {
		limit = 10
	}
	key := cacheKeyPrefix + strings.ToLower(query)

	if payload, ok := c.cached(ctx, key); ok {
		listings := c.extractor.Extract(payload, Source)
		if len(listings) > 0 {
			c.logger.Debug().Str("query", query).Int("listings", len(listings)).Msg("Aggregator cache hit")
			return truncate(listings, limit), nil
		}
	}

	payload, err := c.fetch(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	listings := c.extractor.Extract(payload, Source)
	if len(listings) == 0 {
		c.logger.Info().Str("query", query).Msg("Aggregator returned no usable listings")
		return nil, domain.ErrNoResults
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, payload, c.cacheTTL); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache aggregator response")
		}
	}

	c.logger.Info().Str("query", query).Int("listings", len(listings)).Msg("Aggregator search complete")
	return truncate(listings, limit), nil
}

func (c *Client) cached(ctx context.Context, key string) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	value, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			c.logger.Warn().Err(err).Msg("Aggregator cache read failed")
		}
		return "", false
	}
	payload, ok := value.(string)
	return payload, ok && payload != ""
}

// fetch performs the request with up to three attempts. Server errors and
// 429 are retried; other client errors are not.
func (c *Client) fetch(ctx context.Context, query string, limit int) (string, error) {
	params := url.Values{}
	params.Add("engine", "google_shopping")
	params.Add("q", query)
	params.Add("api_key", c.apiKey)
	params.Add("google_domain", "google.com")
	params.Add("hl", "en")
	params.Add("gl", "us")
	params.Add("num", strconv.Itoa(limit))
	reqURL := fmt.Sprintf("%s/search.json?%s", c.baseURL, params.Encode())

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(c.backoff(attempt - 1)):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", domain.ErrAggregatorFailure, ctx.Err())
			}
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Aggregator rate limiter refused request")
			return "", fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", "ShopLens/1.0")
		req.Header.Set("Accept", "application/json")

		c.logger.Debug().Str("query", query).Int("attempt", attempt).Msg("Aggregator request")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("Aggregator request error")
			lastErr = fmt.Errorf("%w: %v", domain.ErrAggregatorFailure, err)
			if ctx.Err() != nil {
				return "", lastErr
			}
			continue
		}

		body, err := readLimitedBody(resp.Body, maxResponseSize)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("%w: read body: %v", domain.ErrAggregatorFailure, err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			c.logger.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Msg("Aggregator API error")
			lastErr = fmt.Errorf("%w: status %d", domain.ErrAggregatorFailure, resp.StatusCode)
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return "", lastErr
			}
			continue
		}

		var envelope errorEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			return "", fmt.Errorf("%w: failed to decode response: %v", domain.ErrAggregatorFailure, err)
		}
		if envelope.Error != "" {
			return "", fmt.Errorf("%w: %s", domain.ErrAggregatorFailure, envelope.Error)
		}

		return string(body), nil
	}

	c.logger.Warn().Str("query", query).Msg("All aggregator retries failed")
	return "", lastErr
}

func truncate(listings []domain.RawListing, limit int) []domain.RawListing {
	if len(listings) > limit {
		return listings[:limit]
	}
	return listings
}
