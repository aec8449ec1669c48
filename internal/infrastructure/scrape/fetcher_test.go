package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shoplens/backend/internal/domain"
	"github.com/shoplens/backend/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sourceFor(serverURL string, strategy domain.ExtractionStrategy) domain.SourceDescriptor {
	return domain.SourceDescriptor{
		ID:                 "test_shop",
		DisplayName:        "Test Shop",
		Domain:             strings.TrimPrefix(serverURL, "http://"),
		QueryURLTemplate:   serverURL + "/search?q={query}",
		ExtractionStrategy: strategy,
	}
}

func TestUserAgentRotator(t *testing.T) {
	r := NewUserAgentRotator([]string{"a", "b", "c"})

	got := []string{r.Next(), r.Next(), r.Next(), r.Next()}
	assert.Equal(t, []string{"a", "b", "c", "a"}, got)

	assert.Equal(t, DefaultUserAgents[0], NewUserAgentRotator(nil).Next())
}

func TestFetcher_DirectHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "slim jeans", r.URL.Query().Get("q"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.Contains(t, r.Header.Get("Accept"), "text/html")
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer server.Close()

	f := NewFetcher(FetcherConfig{Timeout: time.Second}, logging.Nop())

	body, ok := f.Fetch(context.Background(), sourceFor(server.URL, domain.StrategyHTMLSelector), "slim jeans")
	require.True(t, ok)
	assert.Contains(t, body, "ok")
}

func TestFetcher_FallsBackThroughChain(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.URL.Path)
		mu.Unlock()

		if strings.HasPrefix(r.URL.Path, "/reader/") {
			assert.Equal(t, "markdown", r.Header.Get("X-Return-Format"))
			assert.Equal(t, "Bearer reader-key", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("[Straight leg jeans in light wash](http://example.com/p/1) $45.00"))
	}))
	defer server.Close()

	f := NewFetcher(FetcherConfig{
		Timeout:      time.Second,
		ReaderURL:    server.URL + "/reader",
		ReaderAPIKey: "reader-key",
	}, logging.Nop())

	body, ok := f.Fetch(context.Background(), sourceFor(server.URL, domain.StrategyMarkdownPattern), "jeans")
	require.True(t, ok)
	assert.Contains(t, body, "Straight leg jeans")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.True(t, strings.HasPrefix(seen[0], "/reader/"))
	assert.Equal(t, "/search", seen[1])
}

func TestFetcher_FailuresReturnNotOK(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"forbidden", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusForbidden) }},
		{"empty body", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("   ")) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			f := NewFetcher(FetcherConfig{Timeout: time.Second}, logging.Nop())
			body, ok := f.Fetch(context.Background(), sourceFor(server.URL, domain.StrategyHTMLSelector), "jeans")
			assert.False(t, ok)
			assert.Empty(t, body)
		})
	}
}

func TestFetcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	f := NewFetcher(FetcherConfig{Timeout: 100 * time.Millisecond}, logging.Nop())

	start := time.Now()
	_, ok := f.Fetch(context.Background(), sourceFor(server.URL, domain.StrategyHTMLSelector), "jeans")
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second, "the timeout covers the whole chain")
}

func TestFetcher_RotatesUserAgents(t *testing.T) {
	var mu sync.Mutex
	agents := map[string]int{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents[r.Header.Get("User-Agent")]++
		mu.Unlock()
		w.Write([]byte(`{"products": []}`))
	}))
	defer server.Close()

	f := NewFetcher(FetcherConfig{Timeout: time.Second, UserAgents: []string{"ua-1", "ua-2"}}, logging.Nop())
	src := sourceFor(server.URL, domain.StrategyStructuredAPI)
	for i := 0; i < 4; i++ {
		_, ok := f.Fetch(context.Background(), src, "tee")
		require.True(t, ok)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"ua-1": 2, "ua-2": 2}, agents)
}

func TestFetcher_UnknownStrategy(t *testing.T) {
	f := NewFetcher(FetcherConfig{}, logging.Nop())

	_, ok := f.Fetch(context.Background(), domain.SourceDescriptor{ID: "x", QueryURLTemplate: "http://127.0.0.1:1/{query}", ExtractionStrategy: "ocr"}, "q")
	assert.False(t, ok)
}

func TestNewFetchLimiter(t *testing.T) {
	assert.Nil(t, NewFetchLimiter(0, 5))
	assert.Nil(t, NewFetchLimiter(-2, 5))

	limiter := NewFetchLimiter(4, 0)
	require.NotNil(t, limiter)
	assert.Equal(t, 1, limiter.Burst())
}

func TestFetcher_RateLimited(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"products": []}`))
	}))
	defer server.Close()

	src := sourceFor(server.URL, domain.StrategyStructuredAPI)

	t.Run("spaces requests out", func(t *testing.T) {
		hits.Store(0)
		f := NewFetcher(FetcherConfig{Timeout: 2 * time.Second, Limiter: NewFetchLimiter(20, 1)}, logging.Nop())

		start := time.Now()
		for i := 0; i < 4; i++ {
			_, ok := f.Fetch(context.Background(), src, "jeans")
			require.True(t, ok)
		}

		// the burst covers the first request, the other three wait 50ms each
		assert.GreaterOrEqual(t, time.Since(start), 140*time.Millisecond)
		assert.Equal(t, int32(4), hits.Load())
	})

	t.Run("refuses when the wait outlasts the timeout", func(t *testing.T) {
		hits.Store(0)
		f := NewFetcher(FetcherConfig{Timeout: 100 * time.Millisecond, Limiter: NewFetchLimiter(0.01, 1)}, logging.Nop())

		_, ok := f.Fetch(context.Background(), src, "jeans")
		require.True(t, ok)

		start := time.Now()
		_, ok = f.Fetch(context.Background(), src, "jeans")
		assert.False(t, ok)
		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, int32(1), hits.Load())
	})
}
