package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/domain"
)

type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]map[string]any
	points      []map[string]any
	keys        []string
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *httptest.Server) {
	f := &fakeQdrant{collections: map[string]map[string]any{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/collections/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.keys = append(f.keys, r.Header.Get("api-key"))
		name := r.PathValue("name")
		switch r.Method {
		case http.MethodGet:
			if _, ok := f.collections[name]; !ok {
				http.Error(w, `{"status":{"error":"not found"}}`, http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(`{"result":{"status":"green"}}`))
		case http.MethodPut:
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.collections[name] = body["vectors"].(map[string]any)
			_, _ = w.Write([]byte(`{"result":true}`))
		case http.MethodDelete:
			if _, ok := f.collections[name]; !ok {
				http.Error(w, "missing", http.StatusNotFound)
				return
			}
			delete(f.collections, name)
			_, _ = w.Write([]byte(`{"result":true}`))
		}
	})
	mux.HandleFunc("PUT /collections/{name}/points", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		assert.Equal(t, "true", r.URL.Query().Get("wait"))
		var body struct {
			Points []map[string]any `json:"points"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.points = append(f.points, body.Points...)
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	})
	mux.HandleFunc("POST /collections/{name}/points/search", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("name") == "missing" {
			http.Error(w, "missing", http.StatusNotFound)
			return
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 2, body["limit"])
		_, _ = w.Write([]byte(`{"result":[
			{"id":"x","score":0.9,"payload":{"record_id":"run-1","text":"best"}},
			{"id":"y","score":0.4,"payload":{"record_id":"run-0","text":"second"}}
		]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func TestStorage_CollectionLifecycle(t *testing.T) {
	ctx := context.Background()
	f, srv := newFakeQdrant(t)
	s := NewStorage(Config{URL: srv.URL + "/", APIKey: "secret"})

	ok, err := s.IndexExists(ctx, "docs")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.CreateIndex(ctx, "docs", 8, domain.MetricDotProduct))
	assert.Equal(t, map[string]any{"size": float64(8), "distance": "Dot"}, f.collections["docs"])

	ok, err = s.IndexExists(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.DeleteIndex(ctx, "docs"))
	assert.ErrorIs(t, s.DeleteIndex(ctx, "docs"), domain.ErrIndexNotFound)

	for _, k := range f.keys {
		assert.Equal(t, "secret", k)
	}
}

func TestStorage_UpsertMapsIDs(t *testing.T) {
	f, srv := newFakeQdrant(t)
	s := NewStorage(Config{URL: srv.URL})

	err := s.Upsert(context.Background(), "docs", []domain.Record{
		{ID: "run-0", Vector: []float32{1, 0}, Metadata: map[string]string{domain.MetadataText: "hello"}},
	})
	require.NoError(t, err)
	require.Len(t, f.points, 1)
	p := f.points[0]
	assert.Equal(t, PointID("run-0"), p["id"])
	payload := p["payload"].(map[string]any)
	assert.Equal(t, "run-0", payload[recordIDKey])
	assert.Equal(t, "hello", payload[domain.MetadataText])

	assert.Error(t, s.Upsert(context.Background(), "docs", []domain.Record{{ID: ""}}))
}

func TestStorage_Query(t *testing.T) {
	_, srv := newFakeQdrant(t)
	s := NewStorage(Config{URL: srv.URL})

	matches, err := s.Query(context.Background(), "docs", []float32{1, 0}, 2, true)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "run-1", matches[0].ID)
	assert.Equal(t, "best", matches[0].Text())
	assert.NotContains(t, matches[0].Metadata, recordIDKey)
	assert.Equal(t, "run-0", matches[1].ID)

	_, err = s.Query(context.Background(), "missing", []float32{1, 0}, 2, true)
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}

func TestPointID_IsStable(t *testing.T) {
	assert.Equal(t, PointID("a-1"), PointID("a-1"))
	assert.NotEqual(t, PointID("a-1"), PointID("a-2"))
}
