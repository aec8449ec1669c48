package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// SourceRegistry is the read-only catalog of retail sources
type SourceRegistry interface {
	List() []SourceDescriptor
	Get(id string) (SourceDescriptor, bool)
}

// Scraper fans a query out to every registered source
type Scraper interface {
	Scrape(ctx context.Context, query string) ([]RawListing, []SourceResult)
}

// AggregatorClient queries a third-party shopping aggregator
type AggregatorClient interface {
	Search(ctx context.Context, query string, limit int) ([]RawListing, error)
}

// Embedder turns texts into fixed-dimension vectors
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Refiner rewrites a follow-up query into a standalone one using chat history
type Refiner interface {
	Refine(ctx context.Context, query string, history []ChatTurn) (string, error)
}

// IndexEntry is a listing persisted in the similarity index
type IndexEntry struct {
	ID        string
	Vector    []float32
	Listing   RawListing
	IndexedAt time.Time
}

// IndexHit is a similarity query match
type IndexHit struct {
	Listing   RawListing
	Score     float64
	IndexedAt time.Time
}

// IndexFilter narrows a similarity query
type IndexFilter struct {
	Category string
	MaxPrice *float64
}

// VectorIndex is the similarity index holding previously accepted listings
type VectorIndex interface {
	// EnsureCollection creates the collection when absent and recreates it
	// when its vector dimension differs from dim.
	EnsureCollection(ctx context.Context, dim int) error
	Upsert(ctx context.Context, entries []IndexEntry) error
	Query(ctx context.Context, vector []float32, filter IndexFilter, limit int) ([]IndexHit, error)
}

// ListingIndexer accepts listings for background indexing
type ListingIndexer interface {
	// Enqueue never blocks; it reports whether the batch was accepted.
	Enqueue(listings []RawListing) bool
}
