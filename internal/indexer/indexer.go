package indexer

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"pdfrag/internal/domain"
	"pdfrag/internal/logger"
)

// DefaultBatchSize is the number of records per upsert request.
const DefaultBatchSize = 128

// Indexer embeds chunks and writes them to a vector store in ordered batches.
type Indexer struct {
	embedder  domain.Embedder
	store     domain.VectorStore
	batchSize int
	metric    domain.Metric
	onBatch   func(records int)
}

type Option func(*Indexer)

// WithBatchSize sets the upsert batch size. Values < 1 are ignored.
func WithBatchSize(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.batchSize = n
		}
	}
}

// WithMetric sets the metric used when an index is created.
func WithMetric(m domain.Metric) Option {
	return func(ix *Indexer) {
		if m != "" {
			ix.metric = m
		}
	}
}

// WithBatchHook registers a callback run after every committed batch.
func WithBatchHook(fn func(records int)) Option {
	return func(ix *Indexer) { ix.onBatch = fn }
}

func New(embedder domain.Embedder, store domain.VectorStore, opts ...Option) *Indexer {
	ix := &Indexer{
		embedder:  embedder,
		store:     store,
		batchSize: DefaultBatchSize,
		metric:    domain.MetricCosine,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// BatchSize returns the configured upsert batch size.
func (ix *Indexer) BatchSize() int { return ix.batchSize }

// EnsureIndex creates the index if it does not exist and reports whether it
// did so.
func (ix *Indexer) EnsureIndex(ctx context.Context, name string, dimension int) (bool, error) {
	ok, err := ix.store.IndexExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("%w: check index %s: %w", domain.ErrStore, name, err)
	}
	if ok {
		return false, nil
	}
	if err := ix.store.CreateIndex(ctx, name, dimension, ix.metric); err != nil {
		return false, fmt.Errorf("%w: create index %s: %w", domain.ErrStore, name, err)
	}
	logger.Infof("created index %s (dimension %d, %s)", name, dimension, ix.metric)
	return true, nil
}

// EmbedChunks embeds every chunk text with one embedder call.
func (ix *Indexer) EmbedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		if errors.Is(err, domain.ErrEmbedding) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d vectors for %d chunks", domain.ErrEmbedding, len(vectors), len(chunks))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty vector for chunk %d", domain.ErrEmbedding, i)
		}
	}
	return vectors, nil
}

// RecordID returns the ID of the n-th record of a run. An empty run ID
// yields the bare sequence "0", "1", ...
func RecordID(runID string, n int) string {
	if runID == "" {
		return strconv.Itoa(n)
	}
	return runID + "-" + strconv.Itoa(n)
}

// UpsertResult describes what reached the store. On failure it counts the
// records and batches committed before the failing batch.
type UpsertResult struct {
	Records int
	Batches int
}

// Upsert writes vectors paired with their chunk texts, one batch at a time.
// A batch is only sent after the previous one succeeded; the first failure
// stops the run.
func (ix *Indexer) Upsert(ctx context.Context, name, runID string, vectors [][]float32, chunks []domain.Chunk) (UpsertResult, error) {
	var res UpsertResult
	if len(vectors) != len(chunks) {
		return res, fmt.Errorf("%w: %d vectors for %d chunks", domain.ErrEmbedding, len(vectors), len(chunks))
	}
	for start := 0; start < len(chunks); start += ix.batchSize {
		end := start + ix.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := make([]domain.Record, 0, end-start)
		for i := start; i < end; i++ {
			batch = append(batch, domain.Record{
				ID:       RecordID(runID, i),
				Vector:   vectors[i],
				Metadata: map[string]string{domain.MetadataText: chunks[i].Text},
			})
		}
		if err := ix.store.Upsert(ctx, name, batch); err != nil {
			return res, fmt.Errorf("%w: upsert batch %d (records %d-%d): %w", domain.ErrStore, res.Batches+1, start, end-1, err)
		}
		res.Records += len(batch)
		res.Batches++
		logger.Debugf("upserted batch %d: %d records", res.Batches, len(batch))
		if ix.onBatch != nil {
			ix.onBatch(len(batch))
		}
	}
	return res, nil
}
