package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"pdfrag/internal/domain"
)

const (
	// DefaultSentencesPerChunk is the number of sentences grouped into one chunk.
	DefaultSentencesPerChunk = 10

	// DefaultMinTokenCount is the estimated token count a chunk must exceed
	// to be kept.
	DefaultMinTokenCount = 30.0

	// charsPerToken is the divisor of the chars/4 token estimate.
	charsPerToken = 4.0
)

// missingSpaceRe matches a period glued to the next sentence, as in "end.Next".
var missingSpaceRe = regexp.MustCompile(`\.([A-Z])`)

// SentenceChunker groups consecutive sentences of a page into chunks and
// drops chunks that fall under the token budget.
type SentenceChunker struct {
	sentencesPerChunk int
	minTokenCount     float64
	splitter          domain.SentenceSplitter
}

// Option configures a SentenceChunker.
type Option func(*SentenceChunker)

// WithSentencesPerChunk sets the group size. Non-positive values are ignored.
func WithSentencesPerChunk(n int) Option {
	return func(c *SentenceChunker) {
		if n > 0 {
			c.sentencesPerChunk = n
		}
	}
}

// WithMinTokenCount sets the filter threshold. Chunks with an estimated
// token count at or below it are dropped. Negative values are ignored.
func WithMinTokenCount(t float64) Option {
	return func(c *SentenceChunker) {
		if t >= 0 {
			c.minTokenCount = t
		}
	}
}

// WithSplitter sets the sentence boundary detector.
func WithSplitter(s domain.SentenceSplitter) Option {
	return func(c *SentenceChunker) {
		if s != nil {
			c.splitter = s
		}
	}
}

// NewSentenceChunker creates a chunker. Without WithSplitter it falls back
// to the punctuation based RegexpSplitter.
func NewSentenceChunker(opts ...Option) *SentenceChunker {
	c := &SentenceChunker{
		sentencesPerChunk: DefaultSentencesPerChunk,
		minTokenCount:     DefaultMinTokenCount,
		splitter:          NewRegexpSplitter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SentencesPerChunk returns the configured group size.
func (c *SentenceChunker) SentencesPerChunk() int { return c.sentencesPerChunk }

// MinTokenCount returns the configured filter threshold.
func (c *SentenceChunker) MinTokenCount() float64 { return c.minTokenCount }

// Chunk segments every page and returns the chunks that pass the token
// filter, in page order and then group order.
func (c *SentenceChunker) Chunk(pages []domain.Page) []domain.Chunk {
	var out []domain.Chunk
	for _, p := range pages {
		for _, ch := range c.Segment(p) {
			if ch.TokenCount > c.minTokenCount {
				out = append(out, ch)
			}
		}
	}
	return out
}

// Segment splits a single page into unfiltered chunks. Groups never cross
// the page boundary; the last group may hold fewer sentences.
func (c *SentenceChunker) Segment(page domain.Page) []domain.Chunk {
	if strings.TrimSpace(page.Text) == "" {
		return nil
	}
	sentences := c.splitter.Split(page.Text)
	if len(sentences) == 0 {
		return nil
	}
	chunks := make([]domain.Chunk, 0, (len(sentences)+c.sentencesPerChunk-1)/c.sentencesPerChunk)
	for i := 0; i < len(sentences); i += c.sentencesPerChunk {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		text := assemble(sentences[i:end])
		if text == "" {
			continue
		}
		chunks = append(chunks, newChunk(page.Index, text, end-i))
	}
	return chunks
}

func assemble(sentences []string) string {
	text := strings.Join(sentences, "")
	text = strings.ReplaceAll(text, "  ", " ")
	text = strings.TrimSpace(text)
	return missingSpaceRe.ReplaceAllString(text, ". $1")
}

func newChunk(page int, text string, sentences int) domain.Chunk {
	chars := utf8.RuneCountInString(text)
	return domain.Chunk{
		SourcePage:    page,
		Text:          text,
		CharCount:     chars,
		WordCount:     len(strings.Split(text, " ")),
		TokenCount:    float64(chars) / charsPerToken,
		SentenceCount: sentences,
	}
}
