package memory

import (
	"context"
	"fmt"
	"sync"

	"pdfrag/internal/domain"
	"pdfrag/internal/vectorstore"
)

// Storage is an in-memory vector store with brute-force similarity search.
// Indexes are addressed by name; upserting an existing ID overwrites it.
type Storage struct {
	mu      sync.RWMutex
	indexes map[string]*index
}

type index struct {
	dimension int
	metric    domain.Metric
	ids       []string
	positions map[string]int
	vectors   [][]float32
	metadata  []map[string]string
}

// NewStorage creates an empty store.
func NewStorage() *Storage { return &Storage{indexes: make(map[string]*index)} }

// IndexExists reports whether an index with name exists.
func (s *Storage) IndexExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indexes[name]
	return ok, nil
}

// CreateIndex creates a new index. Creating an existing index is an error.
func (s *Storage) CreateIndex(_ context.Context, name string, dimension int, metric domain.Metric) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexes[name]; ok {
		return fmt.Errorf("index %q already exists", name)
	}
	s.indexes[name] = &index{dimension: dimension, metric: metric, positions: make(map[string]int)}
	return nil
}

// DeleteIndex drops an index and all of its records.
func (s *Storage) DeleteIndex(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexes[name]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrIndexNotFound, name)
	}
	delete(s.indexes, name)
	return nil
}

// Upsert inserts or replaces records. The batch is validated before any
// record is written.
func (s *Storage) Upsert(_ context.Context, name string, records []domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexes[name]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrIndexNotFound, name)
	}
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record with empty id")
		}
		if len(r.Vector) != idx.dimension {
			return fmt.Errorf("vector dimension mismatch for %s: got %d, want %d", r.ID, len(r.Vector), idx.dimension)
		}
	}
	for _, r := range records {
		vec := append([]float32(nil), r.Vector...)
		meta := vectorstore.CopyMetadata(r.Metadata)
		if pos, ok := idx.positions[r.ID]; ok {
			idx.vectors[pos] = vec
			idx.metadata[pos] = meta
			continue
		}
		idx.positions[r.ID] = len(idx.ids)
		idx.ids = append(idx.ids, r.ID)
		idx.vectors = append(idx.vectors, vec)
		idx.metadata = append(idx.metadata, meta)
	}
	return nil
}

// Query returns the topK records closest to vector, best first.
func (s *Storage) Query(_ context.Context, name string, vector []float32, topK int, includeMetadata bool) ([]domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indexes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrIndexNotFound, name)
	}
	if len(vector) != idx.dimension {
		return nil, fmt.Errorf("query dimension mismatch: got %d, want %d", len(vector), idx.dimension)
	}
	matches := make([]domain.Match, len(idx.ids))
	for i, id := range idx.ids {
		matches[i] = domain.Match{ID: id, Score: vectorstore.Score(idx.metric, idx.vectors[i], vector)}
		if includeMetadata {
			matches[i].Metadata = vectorstore.CopyMetadata(idx.metadata[i])
		}
	}
	return vectorstore.TopK(matches, topK), nil
}

// Count returns the number of records in an index.
func (s *Storage) Count(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx, ok := s.indexes[name]; ok {
		return len(idx.ids)
	}
	return 0
}
