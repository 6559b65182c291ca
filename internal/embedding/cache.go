// Package embedding holds embedder decorators shared by the concrete
// embedding clients in its subpackages.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"pdfrag/internal/domain"
	"pdfrag/internal/logger"
	"pdfrag/internal/vecenc"
)

// Store is a key/value backend for cached vectors. GetMany returns a slice
// aligned with keys; absent keys are nil.
type Store interface {
	GetMany(ctx context.Context, keys []string) ([][]float32, error)
	SetMany(ctx context.Context, keys []string, vectors [][]float32) error
}

// CachedEmbedder wraps an Embedder and skips texts whose vectors are cached.
type CachedEmbedder struct {
	next  domain.Embedder
	store Store
}

// NewCachedEmbedder decorates next with store.
func NewCachedEmbedder(next domain.Embedder, store Store) *CachedEmbedder {
	return &CachedEmbedder{next: next, store: store}
}

// Name returns the wrapped embedder's name.
func (c *CachedEmbedder) Name() string { return c.next.Name() }

// Key returns the cache key for text embedded by model.
func Key(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return "pdfrag:emb:" + hex.EncodeToString(sum[:])
}

// Embed serves cached vectors and sends every miss to the wrapped embedder
// in one call. Cache failures are logged and treated as misses.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	model := c.next.Name()
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = Key(model, t)
	}

	out, err := c.store.GetMany(ctx, keys)
	if err != nil || len(out) != len(texts) {
		if err != nil {
			logger.Warnf("embedding cache read failed: %v", err)
		}
		out = make([][]float32, len(texts))
	}

	var missIdx []int
	var missTexts []string
	for i, v := range out {
		if v == nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, texts[i])
		}
	}
	if len(missIdx) == 0 {
		logger.Debugf("embedding cache: %d hits", len(texts))
		return out, nil
	}

	fresh, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", domain.ErrEmbedding, len(fresh), len(missTexts))
	}
	missKeys := make([]string, len(missIdx))
	for j, i := range missIdx {
		out[i] = fresh[j]
		missKeys[j] = keys[i]
	}
	if err := c.store.SetMany(ctx, missKeys, fresh); err != nil {
		logger.Warnf("embedding cache write failed: %v", err)
	}
	logger.Debugf("embedding cache: %d hits, %d misses", len(texts)-len(missIdx), len(missIdx))
	return out, nil
}

// MemoryCache is an in-process Store.
type MemoryCache struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{vectors: make(map[string][]float32)}
}

func (m *MemoryCache) GetMany(_ context.Context, keys []string) ([][]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]float32, len(keys))
	for i, k := range keys {
		if v, ok := m.vectors[k]; ok {
			out[i] = append([]float32(nil), v...)
		}
	}
	return out, nil
}

func (m *MemoryCache) SetMany(_ context.Context, keys []string, vectors [][]float32) error {
	if len(keys) != len(vectors) {
		return fmt.Errorf("cache set: %d keys for %d vectors", len(keys), len(vectors))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, k := range keys {
		m.vectors[k] = append([]float32(nil), vectors[i]...)
	}
	return nil
}

// Len returns the number of cached vectors.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

// RedisCache stores vectors in Redis as little-endian float32 blobs.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisCache uses client with the given entry TTL; zero keeps entries forever.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (r *RedisCache) GetMany(ctx context.Context, keys []string) ([][]float32, error) {
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(keys))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		vec, err := vecenc.Decode([]byte(s))
		if err != nil {
			logger.Warnf("dropping corrupt cache entry %s: %v", keys[i], err)
			continue
		}
		out[i] = vec
	}
	return out, nil
}

func (r *RedisCache) SetMany(ctx context.Context, keys []string, vectors [][]float32) error {
	if len(keys) != len(vectors) {
		return fmt.Errorf("cache set: %d keys for %d vectors", len(keys), len(vectors))
	}
	pipe := r.client.Pipeline()
	for i, k := range keys {
		pipe.Set(ctx, k, vecenc.Encode(vectors[i]), r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
