package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shoplens/backend/internal/domain"
)

type storedEntry struct {
	entry  domain.IndexEntry
	vector []float32
}

// MemoryIndex is an in-process VectorIndex. Reads run concurrently with
// each other; writes take the exclusive lock.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]storedEntry
}

// NewMemoryIndex creates an empty index with no collection
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]storedEntry)}
}

// EnsureCollection creates the collection, or drops every entry when the
// requested dimension differs from the current one
func (m *MemoryIndex) EnsureCollection(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", domain.ErrDimensionMismatch, dim)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dimension != dim {
		m.dimension = dim
		m.entries = make(map[string]storedEntry)
	}
	return nil
}

// Upsert inserts or replaces entries by ID
func (m *MemoryIndex) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dimension == 0 {
		return fmt.Errorf("%w: collection not created", domain.ErrIndexUnavailable)
	}

	for _, e := range entries {
		if len(e.Vector) != m.dimension {
			return fmt.Errorf("%w: expected %d, got %d for id %s", domain.ErrDimensionMismatch, m.dimension, len(e.Vector), e.ID)
		}
	}
	for _, e := range entries {
		m.entries[e.ID] = storedEntry{entry: e, vector: normalize(e.Vector)}
	}
	return nil
}

// Query returns the closest entries passing the filter, best first. A
// missing collection yields no hits.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, filter domain.IndexFilter, limit int) ([]domain.IndexHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.dimension == 0 || len(m.entries) == 0 {
		return []domain.IndexHit{}, nil
	}
	if len(vector) != m.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, m.dimension, len(vector))
	}

	q := normalize(vector)
	hits := make([]domain.IndexHit, 0, len(m.entries))
	for _, se := range m.entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !matches(se.entry.Listing, filter) {
			continue
		}
		hits = append(hits, domain.IndexHit{
			Listing:   se.entry.Listing,
			Score:     cosine(q, se.vector),
			IndexedAt: se.entry.IndexedAt,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Listing.ID < hits[j].Listing.ID
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Len returns the number of stored entries
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Dimension returns the current collection dimension, 0 when absent
func (m *MemoryIndex) Dimension() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimension
}

// Close is a no-op
func (m *MemoryIndex) Close() error {
	return nil
}
