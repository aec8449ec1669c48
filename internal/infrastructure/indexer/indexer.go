// Package indexer writes accepted listings into the similarity index on a
// background worker, decoupled from request lifetimes.
package indexer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shoplens/backend/internal/domain"
)

const (
	DefaultQueueSize    = 64
	DefaultBatchTimeout = 30 * time.Second
	DefaultChunkSize    = 100
)

// Config holds indexer settings
type Config struct {
	QueueSize    int
	BatchTimeout time.Duration
	ChunkSize    int
}

// Stats counts indexer activity
type Stats struct {
	Batches  int
	Indexed  int
	Dropped  int
	Failures int
}

// Indexer owns a single worker goroutine fed by a buffered channel
type Indexer struct {
	embedder domain.Embedder
	index    domain.VectorIndex
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time

	queue     chan []domain.RawListing
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	batches  atomic.Int64
	indexed  atomic.Int64
	dropped  atomic.Int64
	failures atomic.Int64
}

// New starts an indexer worker
func New(embedder domain.Embedder, index domain.VectorIndex, cfg Config, logger zerolog.Logger) *Indexer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}

	ix := &Indexer{
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		queue:    make(chan []domain.RawListing, cfg.QueueSize),
		done:     make(chan struct{}),
	}
	go ix.run()
	return ix
}

// Enqueue hands a batch to the worker without blocking. A full queue or a
// closed indexer drops the batch.
func (ix *Indexer) Enqueue(listings []domain.RawListing) bool {
	if len(listings) == 0 {
		return true
	}
	batch := make([]domain.RawListing, len(listings))
	copy(batch, listings)

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.closed {
		return false
	}

	select {
	case ix.queue <- batch:
		return true
	default:
		ix.dropped.Add(1)
		ix.logger.Warn().Int("listings", len(batch)).Msg("Index queue full, dropping batch")
		return false
	}
}

// Close stops accepting batches, drains the queue and waits for the worker
func (ix *Indexer) Close() error {
	ix.closeOnce.Do(func() {
		ix.mu.Lock()
		ix.closed = true
		close(ix.queue)
		ix.mu.Unlock()
	})
	<-ix.done
	return nil
}

// Stats returns a copy of the activity counters
func (ix *Indexer) Stats() Stats {
	return Stats{
		Batches:  int(ix.batches.Load()),
		Indexed:  int(ix.indexed.Load()),
		Dropped:  int(ix.dropped.Load()),
		Failures: int(ix.failures.Load()),
	}
}

func (ix *Indexer) run() {
	defer close(ix.done)
	for batch := range ix.queue {
		n, err := ix.process(batch)
		ix.batches.Add(1)
		ix.indexed.Add(int64(n))
		if err != nil {
			ix.failures.Add(1)
			ix.logger.Warn().Err(err).Int("listings", len(batch)).Msg("Indexing batch failed")
			continue
		}
		ix.logger.Debug().Int("indexed", n).Msg("Indexed batch")
	}
}

// process embeds and upserts one batch under its own deadline
func (ix *Indexer) process(batch []domain.RawListing) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), ix.cfg.BatchTimeout)
	defer cancel()

	listings := make([]domain.RawListing, 0, len(batch))
	seen := make(map[string]bool, len(batch))
	for _, l := range batch {
		if l.ProductURL == "" {
			continue
		}
		if l.ID == "" {
			l.ID = domain.ListingID(l.ProductURL)
		}
		if seen[l.ID] {
			continue
		}
		seen[l.ID] = true
		listings = append(listings, l)
	}
	if len(listings) == 0 {
		return 0, nil
	}

	texts := make([]string, len(listings))
	for i, l := range listings {
		texts[i] = l.EmbeddingText()
	}
	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) != len(listings) {
		return 0, fmt.Errorf("%w: got %d vectors for %d listings", domain.ErrEmbeddingFailure, len(vectors), len(listings))
	}

	dim := ix.embedder.Dimension()
	if len(vectors[0]) > 0 {
		dim = len(vectors[0])
	}
	if err := ix.index.EnsureCollection(ctx, dim); err != nil {
		return 0, fmt.Errorf("ensure collection: %w", err)
	}

	now := ix.now().UTC()
	indexed := 0
	for start := 0; start < len(listings); start += ix.cfg.ChunkSize {
		end := start + ix.cfg.ChunkSize
		if end > len(listings) {
			end = len(listings)
		}
		entries := make([]domain.IndexEntry, 0, end-start)
		for i := start; i < end; i++ {
			entries = append(entries, domain.IndexEntry{
				ID:        listings[i].ID,
				Vector:    vectors[i],
				Listing:   listings[i],
				IndexedAt: now,
			})
		}
		if err := ix.index.Upsert(ctx, entries); err != nil {
			return indexed, fmt.Errorf("upsert: %w", err)
		}
		indexed += len(entries)
	}
	return indexed, nil
}
