package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/domain"
)

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingItem struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// reversedHandler answers with one vector per input, [len(text), position],
// listed in reverse order to exercise index based reassembly.
func reversedHandler(t *testing.T, calls *int32, batches *[][]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*batches = append(*batches, req.Input)
		data := make([]embeddingItem, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, embeddingItem{Object: "embedding", Embedding: []float32{float32(len(req.Input[i])), float32(i)}, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}
}

func newTestClient(t *testing.T, url string, cfg Config) *Client {
	t.Helper()
	cfg.BaseURL = url + "/v1"
	cfg.APIKey = "test-key"
	c, err := NewClient(cfg)
	require.NoError(t, err)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestNewClient_RequiresKey(t *testing.T) {
	t.Setenv("PDFRAG_TEST_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "PDFRAG_TEST_KEY"})
	assert.Error(t, err)

	t.Setenv("PDFRAG_TEST_KEY", "k")
	c, err := NewClient(Config{APIKeyEnv: "PDFRAG_TEST_KEY"})
	require.NoError(t, err)
	assert.Equal(t, "openai:"+DefaultModel, c.Name())
	assert.Equal(t, DefaultBatchSize, c.batchSize)
}

func TestClient_EmbedBatchesAndReordersByIndex(t *testing.T) {
	var calls int32
	var batches [][]string
	srv := httptest.NewServer(reversedHandler(t, &calls, &batches))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Config{BatchSize: 2})
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := c.Embed(context.Background(), texts)
	require.NoError(t, err)

	assert.EqualValues(t, 3, calls)
	assert.Equal(t, [][]string{{"a", "bb"}, {"ccc", "dddd"}, {"eeeee"}}, batches)
	require.Len(t, vecs, len(texts))
	for i, v := range vecs {
		assert.Equal(t, float32(len(texts[i])), v[0], "vector %d out of order", i)
	}
}

func TestClient_RetriesRateLimit(t *testing.T) {
	var calls int32
	var batches [][]string
	ok := reversedHandler(t, new(int32), &batches)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		ok(w, r)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Config{MaxRetries: 3})
	vecs, err := c.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.EqualValues(t, 3, calls)
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad input","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Config{MaxRetries: 3})
	_, err := c.Embed(context.Background(), []string{"hello"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbedding)
	assert.EqualValues(t, 1, calls)
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, Config{MaxRetries: 2})
	_, err := c.Embed(context.Background(), []string{"hello"})
	assert.ErrorIs(t, err, domain.ErrEmbedding)
	assert.EqualValues(t, 3, calls)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 200*time.Millisecond, retryDelay(0))
	assert.Equal(t, 400*time.Millisecond, retryDelay(1))
	assert.Equal(t, 5*time.Second, retryDelay(10))
	assert.Equal(t, 5*time.Second, retryDelay(100))
}
