package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shoplens/backend/config"
	"github.com/shoplens/backend/internal/domain"
	"github.com/shoplens/backend/internal/infrastructure/scrape"
	"github.com/shoplens/backend/internal/infrastructure/sources"
	"github.com/shoplens/backend/internal/logging"
	"github.com/shoplens/backend/internal/usecase"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"https://preview-*", "http://localhost:3000"},
		},
		Cache: config.CacheConfig{
			Type: "memory",
		},
	}
}

// mockDiscoverer records calls and returns canned results
type mockDiscoverer struct {
	mu         sync.Mutex
	result     *domain.DiscoverResult
	err        error
	refreshErr error
	requests   []domain.DiscoverRequest
	refreshes  [][]string
}

func (m *mockDiscoverer) Discover(ctx context.Context, req domain.DiscoverRequest) (*domain.DiscoverResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockDiscoverer) StartRefresh(queries []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes = append(m.refreshes, queries)
	return m.refreshErr
}

type mockStatus struct {
	status domain.ScrapeStatus
}

func (m mockStatus) Snapshot() domain.ScrapeStatus { return m.status }

// setupTestRouter creates a router with no dependencies configured
func setupTestRouter() *gin.Engine {
	handler := NewHandler(nil, nil, nil, logging.Nop())
	return SetupRouter(testConfig(), handler, logging.Nop())
}

func setupTestRouterWith(discovery Discoverer, registry domain.SourceRegistry, status StatusReader) *gin.Engine {
	handler := NewHandler(discovery, registry, status, logging.Nop())
	return SetupRouter(testConfig(), handler, logging.Nop())
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (%s)", err, w.Body.String())
	}
	return response
}

func postJSON(router *gin.Engine, path, payload string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", path, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthCheckEndpoint(t *testing.T) {
	t.Run("returns healthy status", func(t *testing.T) {
		registry, err := sources.NewDefaultRegistry()
		if err != nil {
			t.Fatalf("registry: %v", err)
		}
		router := setupTestRouterWith(nil, registry, nil)

		req, _ := http.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}

		response := decode(t, w)
		if response["status"] != "healthy" {
			t.Errorf("status = %v, want healthy", response["status"])
		}
		if response["service"] != "shoplens-backend" {
			t.Errorf("service = %v, want shoplens-backend", response["service"])
		}
		if response["sources"] != float64(registry.Len()) {
			t.Errorf("sources = %v, want %d", response["sources"], registry.Len())
		}
	})

	t.Run("accepts GET requests only", func(t *testing.T) {
		router := setupTestRouter()

		for _, method := range []string{"POST", "PUT", "DELETE", "PATCH"} {
			req, _ := http.NewRequest(method, "/health", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusNotFound {
				t.Errorf("Method %s: Status = %d, want %d", method, w.Code, http.StatusNotFound)
			}
		}
	})
}

func TestDiscoverEndpoint(t *testing.T) {
	t.Run("returns ranked listings", func(t *testing.T) {
		mock := &mockDiscoverer{result: &domain.DiscoverResult{
			Query: "men's jeans under $50",
			Listings: []domain.ScoredListing{{
				RawListing: domain.RawListing{Title: "Men's Slim Fit Jeans", Price: 40, ProductURL: "https://shop.test/p/1"},
				Scores:     domain.ScoreBreakdown{PriceScore: 68, FinalScore: 77.7},
				Rank:       1,
			}},
			TotalConsidered: 1,
			SourceLabel:     domain.LabelScraped,
			ConfidenceLevel: domain.ConfidenceMedium,
		}}
		router := setupTestRouterWith(mock, nil, nil)

		w := postJSON(router, "/api/v1/discover", `{"query":"men's jeans under $50","max_results":10,"offset":2}`)
		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d (%s)", w.Code, http.StatusOK, w.Body.String())
		}

		response := decode(t, w)
		if response["source_label"] != "scraped" {
			t.Errorf("source_label = %v, want scraped", response["source_label"])
		}
		listings, ok := response["listings"].([]interface{})
		if !ok || len(listings) != 1 {
			t.Fatalf("listings = %v, want one listing", response["listings"])
		}

		if len(mock.requests) != 1 {
			t.Fatalf("Discover called %d times, want 1", len(mock.requests))
		}
		got := mock.requests[0]
		if got.Query != "men's jeans under $50" || got.MaxResults != 10 || got.Offset != 2 {
			t.Errorf("request = %+v, want query/max_results/offset forwarded", got)
		}
	})

	t.Run("forwards history and intent", func(t *testing.T) {
		mock := &mockDiscoverer{result: &domain.DiscoverResult{Listings: []domain.ScoredListing{}}}
		router := setupTestRouterWith(mock, nil, nil)

		payload := `{"query":"cheaper ones","history":[{"role":"user","content":"levi's jeans"}],"intent":{"category":"jeans","gender":"men"}}`
		if w := postJSON(router, "/api/v1/discover", payload); w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
		}

		got := mock.requests[0]
		if len(got.History) != 1 || got.History[0].Content != "levi's jeans" {
			t.Errorf("history = %+v, want one turn", got.History)
		}
		if got.Intent == nil || got.Intent.Category != "jeans" || got.Intent.Gender != domain.GenderMen {
			t.Errorf("intent = %+v, want jeans/men", got.Intent)
		}
	})

	tests := []struct {
		name       string
		payload    string
		err        error
		wantStatus int
	}{
		{"missing query", `{"max_results":5}`, nil, http.StatusBadRequest},
		{"invalid JSON", `{invalid json}`, nil, http.StatusBadRequest},
		{"negative offset", `{"query":"jeans","offset":-1}`, nil, http.StatusBadRequest},
		{"invalid request from service", `{"query":"   "}`, fmt.Errorf("discover: %w", domain.ErrInvalidRequest), http.StatusBadRequest},
		{"refresh conflict", `{"query":"jeans"}`, domain.ErrScrapeInProgress, http.StatusConflict},
		{"unexpected failure", `{"query":"jeans"}`, errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouterWith(&mockDiscoverer{err: tt.err}, nil, nil)

			w := postJSON(router, "/api/v1/discover", tt.payload)
			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			if response := decode(t, w); response["error"] == nil {
				t.Error("expected error field in response")
			}
		})
	}

	t.Run("internal errors are not leaked", func(t *testing.T) {
		router := setupTestRouterWith(&mockDiscoverer{err: errors.New("pg: password authentication failed")}, nil, nil)

		w := postJSON(router, "/api/v1/discover", `{"query":"jeans"}`)
		if strings.Contains(w.Body.String(), "password") {
			t.Errorf("response leaks internal error: %s", w.Body.String())
		}
	})

	t.Run("returns 503 when not configured", func(t *testing.T) {
		w := postJSON(setupTestRouter(), "/api/v1/discover", `{"query":"jeans"}`)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
		errorMsg, _ := decode(t, w)["error"].(string)
		if !strings.Contains(errorMsg, "not configured") {
			t.Errorf("error = %q, want to contain 'not configured'", errorMsg)
		}
	})
}

// TestDiscoverWithService runs the endpoint against a real pipeline with a
// scripted scraper
func TestDiscoverWithService(t *testing.T) {
	scraper := scraperFunc(func(ctx context.Context, query string) ([]domain.RawListing, []domain.SourceResult) {
		return []domain.RawListing{
			{SourceID: "levi", Title: "Men's Slim Fit Jeans", Price: 40, ProductURL: "https://levi.test/p/1", Rating: domain.Float64Ptr(4.5)},
			{SourceID: "gap", Title: "Women's High Rise Jeans", Price: 60, ProductURL: "https://gap.test/p/2"},
			{SourceID: "gap", Title: "Men's Straight Jeans", Price: 35, ProductURL: "https://gap.test/p/3"},
		}, nil
	})
	service := usecase.NewDiscoveryService(usecase.DiscoveryDeps{Scraper: scraper}, usecase.DiscoveryConfig{}, logging.Nop())
	router := setupTestRouterWith(service, nil, nil)

	w := postJSON(router, "/api/v1/discover", `{"query":"men's jeans under $50"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d (%s)", w.Code, http.StatusOK, w.Body.String())
	}

	var result domain.DiscoverResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to unmarshal result: %v", err)
	}
	if result.SourceLabel != domain.LabelScraped {
		t.Errorf("source_label = %v, want scraped", result.SourceLabel)
	}
	if len(result.Listings) != 2 {
		t.Fatalf("listings = %d, want 2 men's jeans", len(result.Listings))
	}
	for i, l := range result.Listings {
		if strings.Contains(l.Title, "Women") {
			t.Errorf("listing %q should have been filtered", l.Title)
		}
		if l.Rank != i+1 {
			t.Errorf("rank = %d, want %d", l.Rank, i+1)
		}
	}
}

type scraperFunc func(ctx context.Context, query string) ([]domain.RawListing, []domain.SourceResult)

func (f scraperFunc) Scrape(ctx context.Context, query string) ([]domain.RawListing, []domain.SourceResult) {
	return f(ctx, query)
}

func TestSourcesEndpoint(t *testing.T) {
	registry, err := sources.New([]domain.SourceDescriptor{
		{ID: "levi", DisplayName: "Levi's", Domain: "levi.com", QueryURLTemplate: "https://www.levi.com/search?q={query}", ExtractionStrategy: domain.StrategyMarkdownPattern},
		{ID: "gap", DisplayName: "Gap", Domain: "gap.com", QueryURLTemplate: "https://www.gap.com/browse/search.do?searchText={query}", ExtractionStrategy: domain.StrategyHTMLSelector},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	router := setupTestRouterWith(nil, registry, nil)

	req, _ := http.NewRequest("GET", "/api/v1/sources", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	response := decode(t, w)
	if response["count"] != float64(2) {
		t.Errorf("count = %v, want 2", response["count"])
	}
	if list, ok := response["sources"].([]interface{}); !ok || len(list) != 2 {
		t.Errorf("sources = %v, want two entries", response["sources"])
	}

	t.Run("single source", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/api/v1/sources/gap", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		response := decode(t, w)
		if response["id"] != "gap" || response["strategy"] != "html-selector" {
			t.Errorf("source = %v, want gap/html-selector", response)
		}
	})

	t.Run("unknown source", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/api/v1/sources/nordstrom", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestScrapeStatusEndpoint(t *testing.T) {
	t.Run("returns snapshot", func(t *testing.T) {
		status := mockStatus{status: domain.ScrapeStatus{
			Running:    true,
			ActiveRuns: 1,
			Current:    &domain.ScrapeRun{Query: "jeans", TotalSources: 35, SuccessfulSources: 4},
			TotalRuns:  7,
		}}
		router := setupTestRouterWith(nil, nil, status)

		req, _ := http.NewRequest("GET", "/api/v1/scrape/status", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		response := decode(t, w)
		if response["running"] != true {
			t.Errorf("running = %v, want true", response["running"])
		}
		if response["total_runs"] != float64(7) {
			t.Errorf("total_runs = %v, want 7", response["total_runs"])
		}
	})

	t.Run("reads a live tracker", func(t *testing.T) {
		tracker := scrape.NewStatusTracker()
		defer tracker.Close()
		if !tracker.TryStartRefresh() {
			t.Fatal("TryStartRefresh should succeed on a fresh tracker")
		}
		router := setupTestRouterWith(nil, nil, tracker)

		req, _ := http.NewRequest("GET", "/api/v1/scrape/status", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if response := decode(t, w); response["refreshing"] != true {
			t.Errorf("refreshing = %v, want true", response["refreshing"])
		}
	})
}

func TestRefreshEndpoint(t *testing.T) {
	t.Run("accepts refresh with queries", func(t *testing.T) {
		mock := &mockDiscoverer{}
		router := setupTestRouterWith(mock, nil, nil)

		w := postJSON(router, "/api/v1/inventory/refresh", `{"queries":["linen shirts","rain jackets"]}`)
		if w.Code != http.StatusAccepted {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusAccepted)
		}
		if len(mock.refreshes) != 1 || len(mock.refreshes[0]) != 2 {
			t.Errorf("refreshes = %v, want one call with two queries", mock.refreshes)
		}
	})

	t.Run("accepts empty body", func(t *testing.T) {
		mock := &mockDiscoverer{}
		router := setupTestRouterWith(mock, nil, nil)

		req, _ := http.NewRequest("POST", "/api/v1/inventory/refresh", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusAccepted {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusAccepted)
		}
		if len(mock.refreshes) != 1 || mock.refreshes[0] != nil {
			t.Errorf("refreshes = %v, want one call with default queries", mock.refreshes)
		}
	})

	t.Run("returns 409 while a refresh is running", func(t *testing.T) {
		router := setupTestRouterWith(&mockDiscoverer{refreshErr: domain.ErrScrapeInProgress}, nil, nil)

		w := postJSON(router, "/api/v1/inventory/refresh", `{}`)
		if w.Code != http.StatusConflict {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		router := setupTestRouterWith(&mockDiscoverer{}, nil, nil)

		w := postJSON(router, "/api/v1/inventory/refresh", `{"queries":"not-a-list"}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestCORSIntegration tests CORS headers work end-to-end with full router
func TestCORSIntegration(t *testing.T) {
	t.Run("health endpoint has CORS for preview deployments", func(t *testing.T) {
		router := setupTestRouter()

		req, _ := http.NewRequest("GET", "/health", nil)
		req.Header.Set("Origin", "https://preview-7.shoplens.dev")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://preview-7.shoplens.dev" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "https://preview-7.shoplens.dev")
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Access-Control-Allow-Credentials = %q, want %q", got, "true")
		}
	})

	t.Run("discover endpoint has CORS for localhost", func(t *testing.T) {
		router := setupTestRouter()

		req, _ := http.NewRequest("POST", "/api/v1/discover", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "http://localhost:3000")
		}
	})
}

// TestRecoveryMiddleware tests panic recovery
func TestRecoveryMiddleware(t *testing.T) {
	router := setupTestRouter()
	router.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	req, _ := http.NewRequest("GET", "/panic", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

// TestAPIVersioning tests that API v1 routes are correctly versioned
func TestAPIVersioning(t *testing.T) {
	router := setupTestRouter()

	for _, path := range []string{"/api/discover", "/discover", "/api/v2/discover", "/api/v1/discover/"} {
		req, _ := http.NewRequest("POST", path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound && w.Code != http.StatusTemporaryRedirect && w.Code != http.StatusPermanentRedirect {
			t.Errorf("Path %s: Status = %d, want not found", path, w.Code)
		}
	}
}

// TestJSONResponses tests that all responses are valid JSON
func TestJSONResponses(t *testing.T) {
	endpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"POST", "/api/v1/discover"},
		{"GET", "/api/v1/sources"},
		{"GET", "/api/v1/scrape/status"},
		{"POST", "/api/v1/inventory/refresh"},
	}

	for _, endpoint := range endpoints {
		t.Run(endpoint.method+" "+endpoint.path, func(t *testing.T) {
			router := setupTestRouter()

			req, _ := http.NewRequest(endpoint.method, endpoint.path, nil)
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
				t.Errorf("Content-Type = %q, want application/json; charset=utf-8", got)
			}
			var response map[string]interface{}
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Errorf("Response should be valid JSON, got error: %v", err)
			}
		})
	}
}
