package vectorindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shoplens/backend/internal/domain"
)

var collectionNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// PGVectorIndex is a VectorIndex backed by PostgreSQL with the pgvector
// extension. Each collection is one table keyed by listing ID.
type PGVectorIndex struct {
	pool       *pgxpool.Pool
	collection string
	table      string
	logger     zerolog.Logger
}

// NewPGVectorIndex connects to dbURL and verifies the connection
func NewPGVectorIndex(ctx context.Context, dbURL, collection string, logger zerolog.Logger) (*PGVectorIndex, error) {
	if !collectionNamePattern.MatchString(collection) {
		return nil, fmt.Errorf("invalid collection name %q", collection)
	}

	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping failed: %v", domain.ErrIndexUnavailable, err)
	}

	return &PGVectorIndex{
		pool:       pool,
		collection: collection,
		table:      pgx.Identifier{collection}.Sanitize(),
		logger:     logger.With().Str("collection", collection).Logger(),
	}, nil
}

// Close releases the connection pool
func (p *PGVectorIndex) Close() error {
	p.pool.Close()
	return nil
}

// EnsureCollection creates the table when absent and recreates it when the
// embedding column was declared with another dimension
func (p *PGVectorIndex) EnsureCollection(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", domain.ErrDimensionMismatch, dim)
	}

	if _, err := p.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("%w: enable pgvector: %v", domain.ErrIndexUnavailable, err)
	}

	current, err := p.currentDimension(ctx)
	if err != nil {
		return err
	}

	switch {
	case current == dim:
		return nil
	case current > 0:
		p.logger.Warn().
			Int("current_dimension", current).
			Int("dimension", dim).
			Msg("Embedding dimension changed, recreating collection")
		if _, err := p.pool.Exec(ctx, `DROP TABLE IF EXISTS `+p.table); err != nil {
			return fmt.Errorf("%w: drop collection: %v", domain.ErrIndexUnavailable, err)
		}
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id UUID PRIMARY KEY,
		embedding vector(%d) NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		price DOUBLE PRECISION NOT NULL,
		listing JSONB NOT NULL,
		indexed_at TIMESTAMPTZ NOT NULL
	)`, p.table, dim)
	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("%w: create collection: %v", domain.ErrIndexUnavailable, err)
	}

	p.logger.Info().Int("dimension", dim).Msg("Collection ready")
	return nil
}

// currentDimension reads the declared vector dimension, 0 when the table
// does not exist
func (p *PGVectorIndex) currentDimension(ctx context.Context) (int, error) {
	var typmod int
	err := p.pool.QueryRow(ctx, `
		SELECT a.atttypmod
		FROM pg_attribute a
		WHERE a.attrelid = to_regclass($1) AND a.attname = 'embedding' AND NOT a.attisdropped`,
		p.collection,
	).Scan(&typmod)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: inspect collection: %v", domain.ErrIndexUnavailable, err)
	}
	return typmod, nil
}

// Upsert writes entries in one batch; an existing ID is overwritten
func (p *PGVectorIndex) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for _, e := range entries {
		payload, err := json.Marshal(e.Listing)
		if err != nil {
			return fmt.Errorf("encode listing %s: %w", e.ID, err)
		}
		indexedAt := e.IndexedAt
		if indexedAt.IsZero() {
			indexedAt = time.Now().UTC()
		}
		b.Queue(
			`INSERT INTO `+p.table+` (id, embedding, category, price, listing, indexed_at)
			VALUES ($1, $2::vector, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				embedding = EXCLUDED.embedding,
				category = EXCLUDED.category,
				price = EXCLUDED.price,
				listing = EXCLUDED.listing,
				indexed_at = EXCLUDED.indexed_at`,
			e.ID, formatVector(e.Vector), e.Listing.Category, e.Listing.Price, payload, indexedAt,
		)
	}

	br := p.pool.SendBatch(ctx, b)
	for range entries {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("%w: upsert: %v", domain.ErrIndexUnavailable, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("%w: upsert: %v", domain.ErrIndexUnavailable, err)
	}
	return nil
}

// Query returns the nearest listings by cosine similarity, best first. A
// missing collection yields no hits.
func (p *PGVectorIndex) Query(ctx context.Context, vector []float32, filter domain.IndexFilter, limit int) ([]domain.IndexHit, error) {
	current, err := p.currentDimension(ctx)
	if err != nil {
		return nil, err
	}
	if current == 0 {
		return []domain.IndexHit{}, nil
	}
	if current != len(vector) {
		return nil, fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, current, len(vector))
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := p.pool.Query(ctx, `
		SELECT listing, 1 - (embedding <=> $1::vector) AS score, indexed_at
		FROM `+p.table+`
		WHERE ($2 = '' OR lower(category) = lower($2))
		  AND ($3::float8 IS NULL OR price <= $3)
		ORDER BY embedding <=> $1::vector
		LIMIT $4`,
		formatVector(vector), filter.Category, filter.MaxPrice, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", domain.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	hits := []domain.IndexHit{}
	for rows.Next() {
		var (
			payload []byte
			hit     domain.IndexHit
		)
		if err := rows.Scan(&payload, &hit.Score, &hit.IndexedAt); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", domain.ErrIndexUnavailable, err)
		}
		if err := json.Unmarshal(payload, &hit.Listing); err != nil {
			p.logger.Warn().Err(err).Msg("Skipping undecodable listing")
			continue
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	return hits, nil
}
