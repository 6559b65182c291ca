package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pdfrag/internal/domain"
	"pdfrag/internal/indexer"
	"pdfrag/internal/logger"
	"pdfrag/internal/metrics"
	"pdfrag/internal/retriever"
)

// QuerySeparator splits one input line into several queries.
const QuerySeparator = "||"

var (
	errNoPath  = fmt.Errorf("%w: no document given", domain.ErrValidation)
	errNoQuery = fmt.Errorf("%w: no valid query", domain.ErrValidation)
)

// Chunker turns extracted pages into the chunks worth indexing.
type Chunker interface {
	Chunk(pages []domain.Page) []domain.Chunk
}

// Deps are the collaborators a Controller sequences.
type Deps struct {
	Extractor  domain.Extractor
	Chunker    Chunker
	Indexer    *indexer.Indexer
	Retriever  *retriever.Retriever
	Store      domain.VectorStore
	Summarizer domain.Summarizer
	Metrics    *metrics.Metrics
}

// Options tune a Controller.
type Options struct {
	IndexName        string
	TopK             int
	SummarySentences int
	// NewRunID returns the ID prefix of an ingestion run. Returning ""
	// yields bare sequential IDs.
	NewRunID func() string
}

// Controller sequences ingestion, owns the index lifecycle and routes
// queries. Ingest and Clear are serialised; Search runs concurrently.
type Controller struct {
	deps Deps
	opts Options

	mu    sync.Mutex
	state Lifecycle
}

// ShortRunID returns the first eight hex digits of a random UUID.
func ShortRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func NewController(deps Deps, opts Options) *Controller {
	if opts.TopK < 1 {
		opts.TopK = 1
	}
	if opts.NewRunID == nil {
		opts.NewRunID = ShortRunID
	}
	return &Controller{
		deps:  deps,
		opts:  opts,
		state: Lifecycle{State: StateAbsent, IndexName: opts.IndexName},
	}
}

// Status returns a snapshot of the index lifecycle.
func (c *Controller) Status() Lifecycle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Resume aligns the lifecycle with the store, so an index written by an
// earlier process is treated as populated.
func (c *Controller) Resume(ctx context.Context) (Lifecycle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok, err := c.deps.Store.IndexExists(ctx, c.opts.IndexName)
	if err != nil {
		return c.state, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	switch {
	case ok && c.state.State == StateAbsent:
		c.state.State = StatePopulated
	case !ok:
		c.state = Lifecycle{State: StateAbsent, IndexName: c.opts.IndexName}
	}
	return c.state, nil
}

// Ingest extracts, segments, embeds and indexes one document. Failures are
// reported in the status, never returned.
func (c *Controller) Ingest(ctx context.Context, path string) (st IngestStatus) {
	st.Path = path
	defer func() {
		c.deps.Metrics.ObserveIngest(string(st.Outcome))
		if st.Err != nil {
			logger.Warnf("ingest %s: %s: %v", path, st.Outcome, st.Err)
		}
	}()
	if strings.TrimSpace(path) == "" {
		st.Outcome, st.Err = OutcomeRejected, errNoPath
		return st
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	logger.Section("Ingest " + path)
	pages, err := c.deps.Extractor.ExtractPages(ctx, path)
	if err != nil {
		st.Outcome, st.Err = OutcomeFailed, err
		return st
	}
	st.Pages = len(pages)

	chunks := c.deps.Chunker.Chunk(pages)
	st.Chunks = len(chunks)
	logger.Infof("%d pages -> %d chunks", st.Pages, st.Chunks)
	if len(chunks) == 0 {
		st.Outcome = OutcomeRejected
		st.Err = fmt.Errorf("%w: document produced no chunks above the token threshold", domain.ErrValidation)
		return st
	}

	vectors, err := c.deps.Indexer.EmbedChunks(ctx, chunks)
	if err != nil {
		st.Outcome, st.Err = OutcomeFailed, err
		return st
	}

	created, err := c.deps.Indexer.EnsureIndex(ctx, c.opts.IndexName, len(vectors[0]))
	if err != nil {
		st.Outcome, st.Err = OutcomeFailed, err
		return st
	}
	if created {
		c.state = Lifecycle{State: StateEmpty, IndexName: c.opts.IndexName}
	} else if c.state.State == StateAbsent {
		c.state.State = StateEmpty
	}
	if c.state.State == StatePopulated || c.state.State == StatePartial {
		logger.Warnf("index %s already holds %d records; adding this run on top", c.opts.IndexName, c.state.Records)
	}

	st.RunID = c.opts.NewRunID()
	res, err := c.deps.Indexer.Upsert(ctx, c.opts.IndexName, st.RunID, vectors, chunks)
	st.Records, st.Batches = res.Records, res.Batches
	c.state.Records += res.Records
	if err != nil {
		st.Err = err
		if res.Records > 0 {
			st.Outcome = OutcomePartial
			c.state.State = StatePartial
			c.state.LastRunID = st.RunID
		} else {
			st.Outcome = OutcomeFailed
			if created {
				c.dropCreatedIndex(ctx)
			}
		}
		return st
	}

	if c.state.State != StatePartial {
		c.state.State = StatePopulated
	}
	c.state.Runs++
	c.state.LastRunID = st.RunID
	st.Outcome = OutcomeIndexed
	st.Summary = c.summarize(chunks)
	logger.Infof("indexed %d records in %d batches (run %q)", st.Records, st.Batches, st.RunID)
	return st
}

// dropCreatedIndex removes an index this run created but left without
// records, so no empty index outlives a failed first run.
func (c *Controller) dropCreatedIndex(ctx context.Context) {
	err := c.deps.Store.DeleteIndex(context.WithoutCancel(ctx), c.opts.IndexName)
	if err != nil && !errors.Is(err, domain.ErrIndexNotFound) {
		logger.Warnf("drop empty index %s: %v", c.opts.IndexName, err)
		return
	}
	c.state = Lifecycle{State: StateAbsent, IndexName: c.opts.IndexName}
}

func (c *Controller) summarize(chunks []domain.Chunk) string {
	if c.deps.Summarizer == nil {
		return ""
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	summary, err := c.deps.Summarizer.Summarize(strings.Join(texts, " "), c.opts.SummarySentences)
	if err != nil {
		logger.Warnf("summarize: %v", err)
		return ""
	}
	return summary
}

// Clear deletes the index if this controller populated it.
func (c *Controller) Clear(ctx context.Context) ClearStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Clearable() {
		return ClearStatus{Outcome: OutcomeNoop}
	}
	err := c.deps.Store.DeleteIndex(ctx, c.opts.IndexName)
	if err != nil && !errors.Is(err, domain.ErrIndexNotFound) {
		err = fmt.Errorf("%w: delete index %s: %w", domain.ErrStore, c.opts.IndexName, err)
		logger.Errorf("%v", err)
		return ClearStatus{Outcome: OutcomeFailed, Err: err}
	}
	c.state = Lifecycle{State: StateAbsent, IndexName: c.opts.IndexName}
	logger.Infof("cleared index %s", c.opts.IndexName)
	return ClearStatus{Outcome: OutcomeCleared}
}

// SplitQueries splits raw on QuerySeparator and drops blank segments.
func SplitQueries(raw string) []string {
	return retriever.CleanQueries(strings.Split(raw, QuerySeparator))
}

// Search answers every query in raw with the configured top-k.
func (c *Controller) Search(ctx context.Context, raw string) SearchResponse {
	return c.SearchTopK(ctx, raw, c.opts.TopK)
}

// SearchTopK answers every query in raw with k matches each.
func (c *Controller) SearchTopK(ctx context.Context, raw string, k int) SearchResponse {
	queries := SplitQueries(raw)
	if len(queries) == 0 {
		return SearchResponse{Outcome: OutcomeRejected, Err: errNoQuery}
	}
	if k < 1 {
		return SearchResponse{Outcome: OutcomeRejected, Queries: queries,
			Err: fmt.Errorf("%w: top-k must be at least 1", domain.ErrValidation)}
	}
	start := time.Now()
	report, err := c.deps.Retriever.Retrieve(ctx, queries, k)
	if err != nil {
		outcome := OutcomeFailed
		if errors.Is(err, domain.ErrValidation) {
			outcome = OutcomeRejected
		}
		logger.Warnf("search: %v", err)
		return SearchResponse{Outcome: outcome, Queries: queries, Err: err}
	}
	c.deps.Metrics.ObserveSearch(report.Len(), time.Since(start))
	return SearchResponse{Outcome: OutcomeAnswered, Queries: report.Queries(), Report: report}
}
