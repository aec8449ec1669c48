// Package scrape fetches every registered source in parallel and extracts
// listings from whatever comes back.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shoplens/backend/internal/domain"
	"golang.org/x/time/rate"
)

// DefaultUserAgents rotate across calls
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

const (
	defaultFetchTimeout = 15 * time.Second
	defaultMaxBodyBytes = 4 << 20
)

// UserAgentRotator hands out user agents round-robin; safe for concurrent use
type UserAgentRotator struct {
	agents []string
	next   atomic.Uint64
}

// NewUserAgentRotator creates a rotator, falling back to DefaultUserAgents
func NewUserAgentRotator(agents []string) *UserAgentRotator {
	if len(agents) == 0 {
		agents = DefaultUserAgents
	}
	return &UserAgentRotator{agents: agents}
}

// Next returns the next identity
func (r *UserAgentRotator) Next() string {
	n := r.next.Add(1) - 1
	return r.agents[n%uint64(len(r.agents))]
}

// FetchStrategy is one way of retrieving a source's search page
type FetchStrategy struct {
	Name         string
	BuildRequest func(ctx context.Context, targetURL, userAgent string) (*http.Request, error)
}

// ReaderProxyStrategy fetches through a reader service that returns the page as markdown
func ReaderProxyStrategy(readerURL, apiKey string) FetchStrategy {
	base := strings.TrimRight(readerURL, "/")
	return FetchStrategy{
		Name: "reader-proxy",
		BuildRequest: func(ctx context.Context, targetURL, userAgent string) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/"+targetURL, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Accept", "text/plain")
			req.Header.Set("X-Return-Format", "markdown")
			req.Header.Set("User-Agent", userAgent)
			if apiKey != "" {
				req.Header.Set("Authorization", "Bearer "+apiKey)
			}
			return req, nil
		},
	}
}

// BrowserHeadersStrategy requests the page directly with a full browser header set
func BrowserHeadersStrategy() FetchStrategy {
	return FetchStrategy{
		Name: "browser-headers",
		BuildRequest: func(ctx context.Context, targetURL, userAgent string) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("User-Agent", userAgent)
			req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
			req.Header.Set("Accept-Language", "en-US,en;q=0.9")
			req.Header.Set("Cache-Control", "no-cache")
			req.Header.Set("Upgrade-Insecure-Requests", "1")
			req.Header.Set("Sec-Fetch-Dest", "document")
			req.Header.Set("Sec-Fetch-Mode", "navigate")
			req.Header.Set("Sec-Fetch-Site", "none")
			return req, nil
		},
	}
}

// PlainStrategy requests the page with only a user agent
func PlainStrategy() FetchStrategy {
	return FetchStrategy{
		Name: "plain",
		BuildRequest: func(ctx context.Context, targetURL, userAgent string) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("User-Agent", userAgent)
			return req, nil
		},
	}
}

// JSONStrategy requests a JSON search endpoint
func JSONStrategy() FetchStrategy {
	return FetchStrategy{
		Name: "json",
		BuildRequest: func(ctx context.Context, targetURL, userAgent string) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("User-Agent", userAgent)
			req.Header.Set("Accept", "application/json")
			return req, nil
		},
	}
}

// DefaultChains maps each extraction strategy to its ordered fetch strategies
func DefaultChains(readerURL, readerAPIKey string) map[domain.ExtractionStrategy][]FetchStrategy {
	return map[domain.ExtractionStrategy][]FetchStrategy{
		domain.StrategyMarkdownPattern: {ReaderProxyStrategy(readerURL, readerAPIKey), BrowserHeadersStrategy()},
		domain.StrategyHTMLSelector:    {BrowserHeadersStrategy(), PlainStrategy()},
		domain.StrategyStructuredAPI:   {JSONStrategy()},
	}
}

// FetcherConfig holds fetcher settings
type FetcherConfig struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	ReaderURL    string
	ReaderAPIKey string
	UserAgents   []string
	Chains       map[domain.ExtractionStrategy][]FetchStrategy
	// Limiter throttles every outbound request across sources; nil is unlimited
	Limiter      *rate.Limiter
}

// NewFetchLimiter returns a limiter for perSecond requests, or nil when
// perSecond is not positive
func NewFetchLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Fetcher retrieves a source's search page, walking its strategy chain
type Fetcher struct {
	httpClient *http.Client
	chains     map[domain.ExtractionStrategy][]FetchStrategy
	agents     *UserAgentRotator
	timeout    time.Duration
	maxBody    int64
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewFetcher creates a fetcher
func NewFetcher(cfg FetcherConfig, logger zerolog.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFetchTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Chains == nil {
		cfg.Chains = DefaultChains(cfg.ReaderURL, cfg.ReaderAPIKey)
	}

	return &Fetcher{
		// per-call deadlines come from the context
		httpClient: &http.Client{},
		chains:     cfg.Chains,
		agents:     NewUserAgentRotator(cfg.UserAgents),
		timeout:    cfg.Timeout,
		maxBody:    cfg.MaxBodyBytes,
		limiter:    cfg.Limiter,
		logger:     logger,
	}
}

// Fetch returns the content of the source's search page for query. Any
// failure is reported as ok=false; it never returns an error.
func (f *Fetcher) Fetch(ctx context.Context, src domain.SourceDescriptor, query string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	targetURL := src.SearchURL(query)
	userAgent := f.agents.Next()

	for _, strategy := range f.chains[src.ExtractionStrategy] {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				f.logger.Debug().Err(err).Str("source", src.ID).Msg("fetch rate limiter refused request")
				return "", false
			}
		}
		body, err := f.try(ctx, strategy, targetURL, userAgent)
		if err == nil {
			f.logger.Debug().Str("source", src.ID).Str("strategy", strategy.Name).Int("bytes", len(body)).Msg("fetched")
			return body, true
		}
		f.logger.Debug().Err(err).Str("source", src.ID).Str("strategy", strategy.Name).Msg("fetch strategy failed")
		if ctx.Err() != nil {
			break
		}
	}
	return "", false
}

func (f *Fetcher) try(ctx context.Context, strategy FetchStrategy, targetURL, userAgent string) (string, error) {
	req, err := strategy.BuildRequest(ctx, targetURL, userAgent)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return "", fmt.Errorf("empty body")
	}
	return string(body), nil
}
