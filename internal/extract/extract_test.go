package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/domain"
)

// mockRunner is a test double for CommandRunner.
type mockRunner struct {
	output []byte
	err    error
	name   string
	args   []string
}

func (m *mockRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	m.name = name
	m.args = args
	return m.output, m.err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"newlines become spaces", "line one\nline two", "line one line two"},
		{"crlf", "a\r\nb", "a b"},
		{"trim", "  \n padded \n ", "padded"},
		{"double newline keeps two spaces", "a\n\nb", "a  b"},
		{"empty", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizePage(tc.in))
		})
	}
}

func TestTextExtractor(t *testing.T) {
	path := writeFile(t, "doc.txt", "Page one\ntext.\fPage two.\f")
	pages, err := NewTextExtractor().ExtractPages(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []domain.Page{
		{Index: 0, Text: "Page one text."},
		{Index: 1, Text: "Page two."},
	}, pages)
}

func TestTextExtractor_SinglePage(t *testing.T) {
	path := writeFile(t, "doc.md", "just one page\n")
	pages, err := NewTextExtractor().ExtractPages(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []domain.Page{{Index: 0, Text: "just one page"}}, pages)
}

func TestTextExtractor_Errors(t *testing.T) {
	ctx := context.Background()
	e := NewTextExtractor()

	_, err := e.ExtractPages(ctx, "")
	assert.ErrorIs(t, err, domain.ErrExtraction)

	_, err = e.ExtractPages(ctx, filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, domain.ErrExtraction)

	_, err = e.ExtractPages(ctx, t.TempDir())
	assert.ErrorIs(t, err, domain.ErrExtraction)
}

func TestPDFExtractor_WithMockRunner(t *testing.T) {
	path := writeFile(t, "doc.pdf", "%PDF-1.4 fake")
	runner := &mockRunner{output: []byte("Title\nintro text.\fSecond\npage.\f")}
	e := NewPDFExtractor(WithRunner(runner), WithBinary("/opt/bin/pdftotext"))

	pages, err := e.ExtractPages(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []domain.Page{
		{Index: 0, Text: "Title intro text."},
		{Index: 1, Text: "Second page."},
	}, pages)
	assert.Equal(t, "/opt/bin/pdftotext", runner.name)
	assert.Equal(t, []string{"-enc", "UTF-8", path, "-"}, runner.args)
}

func TestPDFExtractor_RunnerFailure(t *testing.T) {
	path := writeFile(t, "broken.pdf", "not a pdf")
	e := NewPDFExtractor(WithRunner(&mockRunner{err: errors.New("exit status 1: Syntax Error")}))

	_, err := e.ExtractPages(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExtraction)
	assert.Contains(t, err.Error(), "Syntax Error")
}

func TestPDFExtractor_ToolMissing(t *testing.T) {
	path := writeFile(t, "doc.pdf", "%PDF")
	e := NewPDFExtractor(WithBinary("definitely-not-a-real-pdftotext-binary"))

	_, err := e.ExtractPages(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExtraction)
	assert.Contains(t, err.Error(), "poppler")
}

func TestAutoExtractor_RoutesByExtension(t *testing.T) {
	runner := &mockRunner{output: []byte("from pdf")}
	auto := NewAutoExtractor(NewPDFExtractor(WithRunner(runner)), NewTextExtractor())
	ctx := context.Background()

	pdfPages, err := auto.ExtractPages(ctx, writeFile(t, "a.PDF", "%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "from pdf", pdfPages[0].Text)

	txtPages, err := auto.ExtractPages(ctx, writeFile(t, "a.txt", "from text"))
	require.NoError(t, err)
	assert.Equal(t, "from text", txtPages[0].Text)
}

func TestInstallInstructions(t *testing.T) {
	instructions := InstallInstructions()
	assert.Contains(t, instructions, "pdftotext")
	assert.Contains(t, instructions, "brew install poppler")
	assert.Contains(t, instructions, "apt install poppler-utils")
}
