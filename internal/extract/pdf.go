package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"pdfrag/internal/domain"
)

// DefaultPDFToText is the poppler binary used to extract PDF text.
const DefaultPDFToText = "pdftotext"

// ErrPDFToolNotFound indicates pdftotext is not installed.
var ErrPDFToolNotFound = errors.New("pdftotext not found in PATH")

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

// PDFExtractor extracts page text with pdftotext. Pages come back separated
// by form feeds.
type PDFExtractor struct {
	binary   string
	runner   CommandRunner
	lookPath func(string) (string, error)
}

// PDFOption configures a PDFExtractor.
type PDFOption func(*PDFExtractor)

// WithBinary overrides the pdftotext binary path.
func WithBinary(path string) PDFOption {
	return func(e *PDFExtractor) {
		if path != "" {
			e.binary = path
		}
	}
}

// WithRunner injects the command runner. Passing a runner also disables the
// PATH lookup, so tests can run without poppler installed.
func WithRunner(r CommandRunner) PDFOption {
	return func(e *PDFExtractor) {
		if r != nil {
			e.runner = r
			e.lookPath = func(name string) (string, error) { return name, nil }
		}
	}
}

// NewPDFExtractor creates a PDF extractor.
func NewPDFExtractor(opts ...PDFOption) *PDFExtractor {
	e := &PDFExtractor{
		binary:   DefaultPDFToText,
		runner:   execRunner{},
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckAvailable reports whether the configured binary can be found.
func (e *PDFExtractor) CheckAvailable() error {
	if _, err := e.lookPath(e.binary); err != nil {
		return ErrPDFToolNotFound
	}
	return nil
}

// ExtractPages runs pdftotext on path and returns one page per form feed.
func (e *PDFExtractor) ExtractPages(ctx context.Context, path string) ([]domain.Page, error) {
	if err := checkReadable(path); err != nil {
		return nil, err
	}
	if err := e.CheckAvailable(); err != nil {
		return nil, fmt.Errorf("%w: %v (%s)", domain.ErrExtraction, err, InstallInstructions())
	}
	out, err := e.runner.Run(ctx, e.binary, "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, fmt.Errorf("%w: pdftotext %s: %v", domain.ErrExtraction, path, err)
	}
	return splitPages(string(out)), nil
}

// InstallInstructions tells the user how to get pdftotext.
func InstallInstructions() string {
	return "install pdftotext from poppler: brew install poppler (macOS) or apt install poppler-utils (Debian/Ubuntu)"
}
