package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

// SplitterFunc adapts a plain function to domain.SentenceSplitter.
type SplitterFunc func(text string) []string

// Split calls f(text).
func (f SplitterFunc) Split(text string) []string { return f(text) }

// PunktSplitter detects sentence boundaries with the Punkt English model,
// which knows about abbreviations, initials and ordinal numbers.
type PunktSplitter struct {
	tokenizer *sentences.DefaultSentenceTokenizer
}

// NewPunktSplitter loads the bundled English model.
func NewPunktSplitter() (*PunktSplitter, error) {
	tok, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, fmt.Errorf("load punkt english model: %w", err)
	}
	return &PunktSplitter{tokenizer: tok}, nil
}

// Split returns the sentences of text in order.
func (s *PunktSplitter) Split(text string) []string {
	toks := s.tokenizer.Tokenize(text)
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		out = append(out, t.Text)
	}
	return out
}

// RegexpSplitter splits on terminal punctuation. Text after the last
// terminator is kept as a final sentence.
type RegexpSplitter struct {
	re *regexp.Regexp
}

// NewRegexpSplitter creates a punctuation based splitter.
func NewRegexpSplitter() *RegexpSplitter {
	return &RegexpSplitter{re: regexp.MustCompile(`[^.!?]+[.!?]+`)}
}

// Split returns the sentences of text in order, each with its leading
// whitespace preserved so that concatenation restores the original spacing.
func (s *RegexpSplitter) Split(text string) []string {
	locs := s.re.FindAllStringIndex(text, -1)
	out := make([]string, 0, len(locs)+1)
	last := 0
	for _, loc := range locs {
		if strings.TrimSpace(text[loc[0]:loc[1]]) != "" {
			out = append(out, text[loc[0]:loc[1]])
		}
		last = loc[1]
	}
	if rest := text[last:]; strings.TrimSpace(rest) != "" {
		out = append(out, rest)
	}
	return out
}
