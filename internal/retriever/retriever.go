package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"pdfrag/internal/domain"
	"pdfrag/internal/logger"
)

// DefaultParallelism bounds concurrent store queries per Retrieve call.
const DefaultParallelism = 4

// Retriever answers several queries against one index.
type Retriever struct {
	embedder    domain.Embedder
	store       domain.VectorStore
	index       string
	parallelism int
}

type Option func(*Retriever)

// WithParallelism sets how many store queries may be in flight. Values < 1
// are ignored.
func WithParallelism(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

func New(embedder domain.Embedder, store domain.VectorStore, index string, opts ...Option) *Retriever {
	r := &Retriever{embedder: embedder, store: store, index: index, parallelism: DefaultParallelism}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CleanQueries trims queries, drops blank ones and collapses duplicates onto
// their first occurrence.
func CleanQueries(queries []string) []string {
	seen := make(map[string]struct{}, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}

// Retrieve embeds all queries in one call and returns the k nearest chunks
// of each, in input order. Each query is searched independently.
func (r *Retriever) Retrieve(ctx context.Context, queries []string, k int) (*domain.Report, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: top-k must be at least 1, got %d", domain.ErrValidation, k)
	}
	queries = CleanQueries(queries)
	if len(queries) == 0 {
		return nil, fmt.Errorf("%w: no non-empty queries", domain.ErrValidation)
	}

	vectors, err := r.embedder.Embed(ctx, queries)
	if err != nil {
		if errors.Is(err, domain.ErrEmbedding) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbedding, err)
	}
	if len(vectors) != len(queries) {
		return nil, fmt.Errorf("%w: got %d vectors for %d queries", domain.ErrEmbedding, len(vectors), len(queries))
	}

	results := make([]domain.QueryResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i := range queries {
		g.Go(func() error {
			matches, err := r.store.Query(gctx, r.index, vectors[i], k, true)
			if err != nil {
				return fmt.Errorf("%w: query %q: %w", domain.ErrStore, queries[i], err)
			}
			if len(matches) > k {
				matches = matches[:k]
			}
			results[i] = domain.QueryResult{Query: queries[i], Matches: matches}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := domain.NewReport(len(results))
	for _, res := range results {
		report.Add(res)
	}
	logger.Debugf("retrieved %d queries against %s (k=%d)", len(results), r.index, k)
	return report, nil
}
