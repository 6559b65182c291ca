package domain

import "errors"

// Error kinds. Components wrap these with fmt.Errorf("%w: ...") so callers
// can classify failures with errors.Is.
var (
	// ErrExtraction indicates the document could not be read or parsed.
	ErrExtraction = errors.New("extraction failed")

	// ErrEmbedding indicates the embedding model rejected or failed a request.
	ErrEmbedding = errors.New("embedding failed")

	// ErrStore indicates a vector store create, upsert, delete or query failed.
	ErrStore = errors.New("vector store failed")

	// ErrValidation indicates the caller supplied nothing usable,
	// e.g. an empty query set or a document that produced no chunks.
	ErrValidation = errors.New("invalid input")

	// ErrIndexNotFound is returned by stores when the named index does not exist.
	ErrIndexNotFound = errors.New("index not found")
)
