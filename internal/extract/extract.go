// Package extract turns documents on disk into ordered, whitespace
// normalised pages of text.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pdfrag/internal/domain"
)

// pageBreak separates pages in pdftotext output and in plain text files.
const pageBreak = "\f"

// NormalizePage replaces every newline with a space and trims the result.
func NormalizePage(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
}

// splitPages cuts raw text on form feeds. A trailing form feed does not
// open an extra page.
func splitPages(raw string) []domain.Page {
	parts := strings.Split(raw, pageBreak)
	if len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	pages := make([]domain.Page, len(parts))
	for i, p := range parts {
		pages[i] = domain.Page{Index: i, Text: NormalizePage(p)}
	}
	return pages
}

func checkReadable(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: empty document path", domain.ErrExtraction)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrExtraction, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", domain.ErrExtraction, path)
	}
	return nil
}

// TextExtractor reads plain text files. Form feeds split pages; a file
// without them is a single page.
type TextExtractor struct{}

// NewTextExtractor creates a plain text extractor.
func NewTextExtractor() *TextExtractor { return &TextExtractor{} }

// ExtractPages reads the file at path.
func (e *TextExtractor) ExtractPages(ctx context.Context, path string) ([]domain.Page, error) {
	if err := checkReadable(path); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrExtraction, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrExtraction, path, err)
	}
	return splitPages(string(data)), nil
}

// AutoExtractor picks an extractor by file extension.
type AutoExtractor struct {
	pdf  domain.Extractor
	text domain.Extractor
}

// NewAutoExtractor routes .pdf files to pdf and everything else to text.
func NewAutoExtractor(pdf, text domain.Extractor) *AutoExtractor {
	return &AutoExtractor{pdf: pdf, text: text}
}

// ExtractPages delegates to the extractor registered for the extension.
func (e *AutoExtractor) ExtractPages(ctx context.Context, path string) ([]domain.Page, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return e.pdf.ExtractPages(ctx, path)
	}
	return e.text.ExtractPages(ctx, path)
}
