package domain

import "context"

// Page is one page of raw text produced by an Extractor.
// Index is 0-based and assigned by the extractor.
type Page struct {
	Index int
	Text  string
}

// Chunk is a group of consecutive sentences from a single page.
type Chunk struct {
	SourcePage    int
	Text          string
	CharCount     int
	WordCount     int
	TokenCount    float64
	SentenceCount int
}

// Record is a vector ready to be written to a VectorStore.
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// Match is a single nearest-neighbour hit returned by a VectorStore.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// Text returns the chunk text stored in the match metadata.
func (m Match) Text() string { return m.Metadata[MetadataText] }

// MetadataText is the metadata key holding the chunk text.
const MetadataText = "text"

// Metric is the similarity function an index is configured with.
type Metric string

const (
	MetricCosine     Metric = "cosine"
	MetricDotProduct Metric = "dotproduct"
	MetricEuclidean  Metric = "euclidean"
)

// Extractor turns a document on disk into ordered pages of text.
type Extractor interface {
	ExtractPages(ctx context.Context, path string) ([]Page, error)
}

// SentenceSplitter splits text into an ordered sequence of sentences.
type SentenceSplitter interface {
	Split(text string) []string
}

// Embedder converts texts into vectors. The result has the same length and
// order as the input.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists vectors in named indexes and supports similarity search.
type VectorStore interface {
	IndexExists(ctx context.Context, name string) (bool, error)
	CreateIndex(ctx context.Context, name string, dimension int, metric Metric) error
	DeleteIndex(ctx context.Context, name string) error
	Upsert(ctx context.Context, name string, records []Record) error
	Query(ctx context.Context, name string, vector []float32, topK int, includeMetadata bool) ([]Match, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
