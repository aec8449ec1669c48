//go:build integration

package vectorindex

import (
	"context"
	"testing"
	"time"

	"github.com/shoplens/backend/internal/domain"
	"github.com/shoplens/backend/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPGVector(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"pgvector/pgvector:pg17",
		postgres.WithDatabase("shoplens_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPGVectorIndex_Lifecycle(t *testing.T) {
	ctx := context.Background()
	idx, err := NewPGVectorIndex(ctx, startPGVector(t), "listings_test", logging.Nop())
	require.NoError(t, err)
	defer idx.Close()

	hits, err := idx.Query(ctx, []float32{1, 0, 0}, domain.IndexFilter{}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "missing collection yields no hits")

	require.NoError(t, idx.EnsureCollection(ctx, 3))
	require.NoError(t, idx.EnsureCollection(ctx, 3))

	a := domain.ListingID("https://shop.test/p/a")
	b := domain.ListingID("https://shop.test/p/b")
	require.NoError(t, idx.Upsert(ctx, []domain.IndexEntry{
		entry(a, "jeans", 40, 1, 0, 0),
		entry(b, "dresses", 90, 0, 1, 0),
	}))
	require.NoError(t, idx.Upsert(ctx, []domain.IndexEntry{entry(a, "jeans", 35, 1, 0, 0)}))

	hits, err = idx.Query(ctx, []float32{1, 0, 0}, domain.IndexFilter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, a, hits[0].Listing.ID)
	assert.Equal(t, 35.0, hits[0].Listing.Price)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)

	hits, err = idx.Query(ctx, []float32{1, 0, 0}, domain.IndexFilter{Category: "dresses"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, b, hits[0].Listing.ID)

	hits, err = idx.Query(ctx, []float32{0, 1, 0}, domain.IndexFilter{MaxPrice: domain.Float64Ptr(50)}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, a, hits[0].Listing.ID)

	_, err = idx.Query(ctx, []float32{1, 0}, domain.IndexFilter{}, 10)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	require.NoError(t, idx.EnsureCollection(ctx, 2))
	hits, err = idx.Query(ctx, []float32{1, 0}, domain.IndexFilter{}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "dimension change recreates the collection")
}
