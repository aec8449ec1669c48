package vectorindex

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shoplens/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id, category string, price float64, vec ...float32) domain.IndexEntry {
	return domain.IndexEntry{
		ID:     id,
		Vector: vec,
		Listing: domain.RawListing{
			ID:       id,
			Title:    "listing " + id,
			Price:    price,
			Category: category,
		},
		IndexedAt: time.Unix(1700000000, 0),
	}
}

func TestMemoryIndex_QueryRanksByCosine(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx, 2))

	require.NoError(t, idx.Upsert(ctx, []domain.IndexEntry{
		entry("a", "jeans", 40, 1, 0),
		entry("b", "jeans", 60, 1, 1),
		entry("c", "jeans", 80, 0, 1),
	}))

	hits, err := idx.Query(ctx, []float32{2, 0}, domain.IndexFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "a", hits[0].Listing.ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, "b", hits[1].Listing.ID)
	assert.InDelta(t, 0.7071, hits[1].Score, 1e-3)
	assert.Equal(t, "c", hits[2].Listing.ID)
	assert.InDelta(t, 0.0, hits[2].Score, 1e-6)
}

func TestMemoryIndex_Filter(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx, 2))
	require.NoError(t, idx.Upsert(ctx, []domain.IndexEntry{
		entry("a", "jeans", 40, 1, 0),
		entry("b", "jeans", 90, 1, 0),
		entry("c", "dresses", 30, 1, 0),
	}))

	tests := []struct {
		name   string
		filter domain.IndexFilter
		want   []string
	}{
		{"no filter", domain.IndexFilter{}, []string{"a", "b", "c"}},
		{"category", domain.IndexFilter{Category: "Jeans"}, []string{"a", "b"}},
		{"max price", domain.IndexFilter{MaxPrice: domain.Float64Ptr(50)}, []string{"a", "c"}},
		{"both", domain.IndexFilter{Category: "jeans", MaxPrice: domain.Float64Ptr(50)}, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := idx.Query(ctx, []float32{1, 0}, tt.filter, 10)
			require.NoError(t, err)
			var ids []string
			for _, h := range hits {
				ids = append(ids, h.Listing.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestMemoryIndex_Limit(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx, 1))

	var entries []domain.IndexEntry
	for i := 0; i < 10; i++ {
		entries = append(entries, entry(fmt.Sprintf("id%02d", i), "", 20, 1))
	}
	require.NoError(t, idx.Upsert(ctx, entries))

	hits, err := idx.Query(ctx, []float32{1}, domain.IndexFilter{}, 4)
	require.NoError(t, err)
	assert.Len(t, hits, 4)
}

func TestMemoryIndex_UpsertOverwrites(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx, 2))

	require.NoError(t, idx.Upsert(ctx, []domain.IndexEntry{entry("a", "jeans", 40, 1, 0)}))
	require.NoError(t, idx.Upsert(ctx, []domain.IndexEntry{entry("a", "jeans", 35, 1, 0)}))

	assert.Equal(t, 1, idx.Len())
	hits, err := idx.Query(ctx, []float32{1, 0}, domain.IndexFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 35.0, hits[0].Listing.Price)
}

func TestMemoryIndex_DimensionChangeRecreates(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.EnsureCollection(ctx, 2))
	require.NoError(t, idx.Upsert(ctx, []domain.IndexEntry{entry("a", "", 40, 1, 0)}))

	require.NoError(t, idx.EnsureCollection(ctx, 2))
	assert.Equal(t, 1, idx.Len(), "same dimension keeps entries")

	require.NoError(t, idx.EnsureCollection(ctx, 3))
	assert.Equal(t, 0, idx.Len())
	assert.Equal(t, 3, idx.Dimension())
}

func TestMemoryIndex_Errors(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	hits, err := idx.Query(ctx, []float32{1, 0}, domain.IndexFilter{}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "missing collection yields no hits")

	err = idx.Upsert(ctx, []domain.IndexEntry{entry("a", "", 40, 1, 0)})
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)

	assert.ErrorIs(t, idx.EnsureCollection(ctx, 0), domain.ErrDimensionMismatch)

	require.NoError(t, idx.EnsureCollection(ctx, 2))
	err = idx.Upsert(ctx, []domain.IndexEntry{entry("a", "", 40, 1, 0, 0)})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	require.NoError(t, idx.Upsert(ctx, []domain.IndexEntry{entry("a", "", 40, 1, 0)}))
	_, err = idx.Query(ctx, []float32{1, 0, 0}, domain.IndexFilter{}, 10)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestMemoryIndex_ConcurrentReadsAndWrites(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()
	require.NoError(t, idx.EnsureCollection(ctx, 2))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, idx.Upsert(ctx, []domain.IndexEntry{entry(fmt.Sprintf("id%d", i%5), "", 40, 1, float32(i))}))
		}(i)
		go func() {
			defer wg.Done()
			_, err := idx.Query(ctx, []float32{1, 1}, domain.IndexFilter{}, 5)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, idx.Len())
}

func TestFormatVector(t *testing.T) {
	assert.Equal(t, "[1,0.5,-0.25]", formatVector([]float32{1, 0.5, -0.25}))
	assert.Equal(t, "[]", formatVector(nil))
}

func TestNormalize(t *testing.T) {
	got := normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, got[0], 1e-6)
	assert.InDelta(t, 0.8, got[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, normalize(zero))
}
