package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shoplens/backend/internal/domain"
)

// Discoverer runs discovery and inventory refreshes
type Discoverer interface {
	Discover(ctx context.Context, req domain.DiscoverRequest) (*domain.DiscoverResult, error)
	StartRefresh(queries []string) error
}

// StatusReader exposes scrape activity
type StatusReader interface {
	Snapshot() domain.ScrapeStatus
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	discovery Discoverer
	registry  domain.SourceRegistry
	status    StatusReader
	logger    zerolog.Logger
}

// NewHandler creates a new HTTP handler. Any dependency may be nil, in
// which case its endpoints answer 503.
func NewHandler(discovery Discoverer, registry domain.SourceRegistry, status StatusReader, logger zerolog.Logger) *Handler {
	return &Handler{
		discovery: discovery,
		registry:  registry,
		status:    status,
		logger:    logger,
	}
}

type discoverRequest struct {
	Query      string              `json:"query" binding:"required"`
	History    []domain.ChatTurn   `json:"history"`
	Intent     *domain.QueryIntent `json:"intent"`
	MaxResults int                 `json:"max_results" binding:"min=0"`
	Offset     int                 `json:"offset" binding:"min=0"`
}

type refreshRequest struct {
	Queries []string `json:"queries"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	sources := 0
	if h.registry != nil {
		sources = len(h.registry.List())
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "shoplens-backend",
		"version": "1.0.0",
		"sources": sources,
	})
}

// Discover handles listing discovery requests
func (h *Handler) Discover(c *gin.Context) {
	if h.discovery == nil {
		h.unavailable(c, "discovery")
		return
	}

	var req discoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	result, err := h.discovery.Discover(c.Request.Context(), domain.DiscoverRequest{
		Query:      req.Query,
		History:    req.History,
		Intent:     req.Intent,
		MaxResults: req.MaxResults,
		Offset:     req.Offset,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListSources returns the registered retail sources
func (h *Handler) ListSources(c *gin.Context) {
	if h.registry == nil {
		h.unavailable(c, "source registry")
		return
	}
	sources := h.registry.List()
	c.JSON(http.StatusOK, gin.H{
		"sources": sources,
		"count":   len(sources),
	})
}

// GetSource returns a single registered source
func (h *Handler) GetSource(c *gin.Context) {
	if h.registry == nil {
		h.unavailable(c, "source registry")
		return
	}
	id := c.Param("id")
	source, ok := h.registry.Get(id)
	if !ok {
		h.respondError(c, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, id))
		return
	}
	c.JSON(http.StatusOK, source)
}

// ScrapeStatus returns a snapshot of scrape activity
func (h *Handler) ScrapeStatus(c *gin.Context) {
	if h.status == nil {
		h.unavailable(c, "scrape status")
		return
	}
	c.JSON(http.StatusOK, h.status.Snapshot())
}

// RefreshInventory starts a background inventory refresh
func (h *Handler) RefreshInventory(c *gin.Context) {
	if h.discovery == nil {
		h.unavailable(c, "discovery")
		return
	}

	// The body is optional; without one the default queries are used
	var req refreshRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
	}

	if err := h.discovery.StartRefresh(req.Queries); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "accepted",
		"queries": req.Queries,
	})
}

// respondError maps domain errors onto HTTP status codes
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrSourceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrScrapeInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func (h *Handler) unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": what + " not configured"})
}
