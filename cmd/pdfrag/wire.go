package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"pdfrag/internal/chunker"
	"pdfrag/internal/config"
	"pdfrag/internal/domain"
	"pdfrag/internal/embedding"
	"pdfrag/internal/embedding/hashing"
	"pdfrag/internal/embedding/openai"
	"pdfrag/internal/extract"
	"pdfrag/internal/indexer"
	"pdfrag/internal/logger"
	"pdfrag/internal/metrics"
	"pdfrag/internal/retriever"
	"pdfrag/internal/service"
	"pdfrag/internal/summarizer"
	"pdfrag/internal/vectorstore"
	"pdfrag/internal/vectorstore/memory"
	"pdfrag/internal/vectorstore/qdrant"
	"pdfrag/internal/vectorstore/sqlite"
)

// app holds the assembled pipeline and whatever must be released on exit.
type app struct {
	cfg     *config.AppConfig
	ctrl    *service.Controller
	metrics *metrics.Metrics
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warnf("close: %v", err)
		}
	}
}

// build assembles every component named by cfg and aligns the controller
// with any index left by an earlier run.
func build(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	a := &app{cfg: cfg, metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	splitter, err := buildSplitter(cfg.Chunker)
	if err != nil {
		return nil, err
	}
	ch := chunker.NewSentenceChunker(
		chunker.WithSentencesPerChunk(cfg.Chunker.SentencesPerChunk),
		chunker.WithMinTokenCount(cfg.Chunker.MinTokenCount),
		chunker.WithSplitter(splitter),
	)

	emb, err := a.buildEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	st, err := a.buildStore(cfg.VectorStore)
	if err != nil {
		return nil, err
	}
	metric, _ := vectorstore.ParseMetric(cfg.VectorStore.Metric)

	var sum domain.Summarizer
	switch cfg.Summarizer.Type {
	case "frequency", "":
		sum = summarizer.NewFrequencySummarizer(splitter)
	case "none":
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}

	ix := indexer.New(emb, st,
		indexer.WithBatchSize(cfg.Indexer.BatchSize),
		indexer.WithMetric(metric),
		indexer.WithBatchHook(a.metrics.ObserveBatch),
	)
	rt := retriever.New(emb, st, cfg.VectorStore.IndexName,
		retriever.WithParallelism(cfg.Retriever.Parallelism))

	a.ctrl = service.NewController(service.Deps{
		Extractor:  buildExtractor(cfg.Extractor),
		Chunker:    ch,
		Indexer:    ix,
		Retriever:  rt,
		Store:      st,
		Summarizer: sum,
		Metrics:    a.metrics,
	}, service.Options{
		IndexName:        cfg.VectorStore.IndexName,
		TopK:             cfg.Retriever.TopK,
		SummarySentences: cfg.Summarizer.MaxSentences,
	})
	if _, err := a.ctrl.Resume(ctx); err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

func buildExtractor(cfg config.ExtractorConfig) domain.Extractor {
	var opts []extract.PDFOption
	if cfg.PDFToText != "" {
		opts = append(opts, extract.WithBinary(cfg.PDFToText))
	}
	pdf := extract.NewPDFExtractor(opts...)
	switch cfg.Type {
	case "pdf":
		return pdf
	case "text":
		return extract.NewTextExtractor()
	default:
		return extract.NewAutoExtractor(pdf, extract.NewTextExtractor())
	}
}

func buildSplitter(cfg config.ChunkerConfig) (domain.SentenceSplitter, error) {
	switch cfg.Splitter {
	case "regexp":
		return chunker.NewRegexpSplitter(), nil
	case "punkt", "":
		s, err := chunker.NewPunktSplitter()
		if err != nil {
			return nil, fmt.Errorf("punkt splitter: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown sentence splitter: %s", cfg.Splitter)
	}
}

func (a *app) buildEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	var emb domain.Embedder
	switch cfg.Type {
	case "hashing", "":
		dim := 0
		if cfg.Hashing != nil {
			dim = cfg.Hashing.Dimension
		}
		emb = hashing.NewEmbedder(dim)
	case "openai":
		o := cfg.OpenAI
		if o == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:           o.BaseURL,
			APIKeyEnv:         o.APIKeyEnv,
			Model:             o.Model,
			Dimensions:        o.Dimensions,
			BatchSize:         o.BatchSize,
			MaxRetries:        o.MaxRetries,
			RequestsPerSecond: o.RequestsPerSecond,
			Timeout:           time.Duration(o.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		emb = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}

	ttl := time.Duration(cfg.Cache.TTLSecs) * time.Second
	switch cfg.Cache.Type {
	case "none", "":
		return emb, nil
	case "memory":
		return embedding.NewCachedEmbedder(emb, embedding.NewMemoryCache()), nil
	case "redis":
		rc := cfg.Cache.Redis
		client := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
		a.closers = append(a.closers, client.Close)
		return embedding.NewCachedEmbedder(emb, embedding.NewRedisCache(client, ttl)), nil
	default:
		return nil, fmt.Errorf("unknown embedding cache: %s", cfg.Cache.Type)
	}
}

func (a *app) buildStore(cfg config.VectorStoreConfig) (domain.VectorStore, error) {
	switch cfg.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "sqlite", "":
		path := ""
		if cfg.SQLite != nil {
			path = cfg.SQLite.Path
		}
		if path == "" {
			path = filepath.Join(config.DataDir(), "vectors.db")
		}
		db, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: open sqlite store: %w", domain.ErrStore, err)
		}
		a.closers = append(a.closers, db.Close)
		return db, nil
	case "qdrant":
		q := cfg.Qdrant
		return qdrant.NewStorage(qdrant.Config{
			URL:     q.URL,
			APIKey:  q.APIKey,
			Timeout: time.Duration(q.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}
