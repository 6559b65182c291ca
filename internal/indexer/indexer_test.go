package indexer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/domain"
	"pdfrag/internal/vectorstore/memory"
)

type fakeEmbedder struct {
	calls int
	dim   int
	short bool
	err   error
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	n := len(texts)
	if f.short && n > 0 {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, f.dim)
		if f.dim > 0 {
			out[i][0] = float32(i + 1)
		}
	}
	return out, nil
}

// recordingStore wraps the memory store and records upsert batches.
type recordingStore struct {
	*memory.Storage
	batches [][]string
	failAt  int
	creates int
}

func (r *recordingStore) CreateIndex(ctx context.Context, name string, dim int, m domain.Metric) error {
	r.creates++
	return r.Storage.CreateIndex(ctx, name, dim, m)
}

func (r *recordingStore) Upsert(ctx context.Context, name string, records []domain.Record) error {
	if r.failAt > 0 && len(r.batches)+1 == r.failAt {
		return errors.New("request too large")
	}
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	r.batches = append(r.batches, ids)
	return r.Storage.Upsert(ctx, name, records)
}

func chunks(n int) []domain.Chunk {
	out := make([]domain.Chunk, n)
	for i := range out {
		out[i] = domain.Chunk{Text: fmt.Sprintf("chunk %d", i)}
	}
	return out
}

func vectors(n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = make([]float32, dim)
		out[i][i%dim] = 1
	}
	return out
}

func TestRecordID(t *testing.T) {
	assert.Equal(t, "0", RecordID("", 0))
	assert.Equal(t, "41", RecordID("", 41))
	assert.Equal(t, "run-7", RecordID("run", 7))
}

func TestEnsureIndex_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{Storage: memory.NewStorage()}
	ix := New(&fakeEmbedder{dim: 4}, store)

	created, err := ix.EnsureIndex(ctx, "docs", 4)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = ix.EnsureIndex(ctx, "docs", 4)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, store.creates)
}

func TestEmbedChunks(t *testing.T) {
	ctx := context.Background()

	t.Run("one call", func(t *testing.T) {
		emb := &fakeEmbedder{dim: 3}
		vecs, err := New(emb, memory.NewStorage()).EmbedChunks(ctx, chunks(300))
		require.NoError(t, err)
		assert.Len(t, vecs, 300)
		assert.Equal(t, 1, emb.calls)
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, err := New(&fakeEmbedder{dim: 3, short: true}, memory.NewStorage()).EmbedChunks(ctx, chunks(2))
		assert.ErrorIs(t, err, domain.ErrEmbedding)
	})

	t.Run("empty vectors", func(t *testing.T) {
		_, err := New(&fakeEmbedder{dim: 0}, memory.NewStorage()).EmbedChunks(ctx, chunks(1))
		assert.ErrorIs(t, err, domain.ErrEmbedding)
	})

	t.Run("model error is wrapped", func(t *testing.T) {
		_, err := New(&fakeEmbedder{err: errors.New("quota exceeded")}, memory.NewStorage()).EmbedChunks(ctx, chunks(1))
		assert.ErrorIs(t, err, domain.ErrEmbedding)
		assert.Contains(t, err.Error(), "quota exceeded")
	})
}

func TestUpsert_BatchesInOrder(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{Storage: memory.NewStorage()}
	var hooked []int
	ix := New(&fakeEmbedder{}, store, WithBatchHook(func(n int) { hooked = append(hooked, n) }))
	require.NoError(t, store.Storage.CreateIndex(ctx, "docs", 4, domain.MetricCosine))

	res, err := ix.Upsert(ctx, "docs", "", vectors(300, 4), chunks(300))
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Records: 300, Batches: 3}, res)
	assert.Equal(t, []int{128, 128, 44}, hooked)

	require.Len(t, store.batches, 3)
	assert.Equal(t, "0", store.batches[0][0])
	assert.Equal(t, "127", store.batches[0][127])
	assert.Equal(t, "128", store.batches[1][0])
	assert.Equal(t, "256", store.batches[2][0])
	assert.Equal(t, "299", store.batches[2][43])
	assert.Equal(t, 300, store.Count("docs"))

	matches, err := store.Query(ctx, "docs", []float32{0, 0, 1, 0}, 1, true)
	require.NoError(t, err)
	assert.Equal(t, "chunk "+matches[0].ID, matches[0].Text())
}

func TestUpsert_RunPrefixedIDs(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{Storage: memory.NewStorage()}
	require.NoError(t, store.Storage.CreateIndex(ctx, "docs", 2, domain.MetricCosine))
	ix := New(&fakeEmbedder{}, store, WithBatchSize(2))

	_, err := ix.Upsert(ctx, "docs", "a", vectors(3, 2), chunks(3))
	require.NoError(t, err)
	_, err = ix.Upsert(ctx, "docs", "b", vectors(3, 2), chunks(3))
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a-0", "a-1"}, {"a-2"}, {"b-0", "b-1"}, {"b-2"}}, store.batches)
	assert.Equal(t, 6, store.Count("docs"), "a second run does not overwrite the first")
}

func TestUpsert_StopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	store := &recordingStore{Storage: memory.NewStorage(), failAt: 2}
	require.NoError(t, store.Storage.CreateIndex(ctx, "docs", 4, domain.MetricCosine))
	ix := New(&fakeEmbedder{}, store)

	res, err := ix.Upsert(ctx, "docs", "", vectors(300, 4), chunks(300))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.Equal(t, UpsertResult{Records: 128, Batches: 1}, res)
	assert.Len(t, store.batches, 1, "no batch after the failing one is sent")
	assert.Equal(t, 128, store.Count("docs"))
}

func TestUpsert_LengthMismatch(t *testing.T) {
	_, err := New(&fakeEmbedder{}, memory.NewStorage()).Upsert(context.Background(), "docs", "", vectors(2, 2), chunks(3))
	assert.Error(t, err)
}

func TestNew_Options(t *testing.T) {
	ix := New(&fakeEmbedder{}, memory.NewStorage(), WithBatchSize(0), WithMetric(""))
	assert.Equal(t, DefaultBatchSize, ix.BatchSize())
	assert.Equal(t, domain.MetricCosine, ix.metric)

	ix = New(&fakeEmbedder{}, memory.NewStorage(), WithBatchSize(10), WithMetric(domain.MetricEuclidean))
	assert.Equal(t, 10, ix.BatchSize())
	assert.Equal(t, domain.MetricEuclidean, ix.metric)
}
