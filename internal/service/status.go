package service

import (
	"errors"
	"fmt"
	"strings"

	"pdfrag/internal/domain"
)

// Outcome classifies the result of a controller call.
type Outcome string

const (
	OutcomeIndexed  Outcome = "indexed"
	OutcomePartial  Outcome = "partial"
	OutcomeFailed   Outcome = "failed"
	OutcomeRejected Outcome = "rejected"
	OutcomeNoop     Outcome = "noop"
	OutcomeCleared  Outcome = "cleared"
	OutcomeAnswered Outcome = "answered"
)

const (
	msgNoFile       = "Please upload a PDF file."
	msgIndexed      = "PDF processed and indexed successfully!"
	msgNothingClear = "Nothing to clear. Please upload and process a PDF first."
	msgCleared      = "Index cleared successfully!"
	msgNoQuery      = "Please enter at least one valid query."
	msgNoIndex      = "No index found. Please upload and process a PDF first."
)

// IngestStatus reports one ingestion run.
type IngestStatus struct {
	Outcome Outcome `json:"outcome"`
	Path    string  `json:"path,omitempty"`
	RunID   string  `json:"run_id,omitempty"`
	Pages   int     `json:"pages"`
	Chunks  int     `json:"chunks"`
	Records int     `json:"records"`
	Batches int     `json:"batches"`
	Summary string  `json:"summary,omitempty"`
	Err     error   `json:"-"`
}

// Message renders the status for people.
func (s IngestStatus) Message() string {
	switch s.Outcome {
	case OutcomeIndexed:
		return fmt.Sprintf("%s Indexed %d chunks from %d pages.", msgIndexed, s.Records, s.Pages)
	case OutcomePartial:
		return fmt.Sprintf("Partially indexed: %d of %d chunks were written before the run failed (%v). Clear the index and retry.",
			s.Records, s.Chunks, s.Err)
	case OutcomeRejected:
		if s.Err == nil || errors.Is(s.Err, errNoPath) {
			return msgNoFile
		}
		return fmt.Sprintf("Nothing was indexed: %v", s.Err)
	default:
		return fmt.Sprintf("Error processing PDF: %v", s.Err)
	}
}

// ClearStatus reports a clear request.
type ClearStatus struct {
	Outcome Outcome `json:"outcome"`
	Err     error   `json:"-"`
}

func (s ClearStatus) Message() string {
	switch s.Outcome {
	case OutcomeNoop:
		return msgNothingClear
	case OutcomeCleared:
		return msgCleared
	default:
		return fmt.Sprintf("Error clearing index: %v", s.Err)
	}
}

// SearchResponse carries the report of a search request.
type SearchResponse struct {
	Outcome Outcome        `json:"outcome"`
	Queries []string       `json:"queries"`
	Report  *domain.Report `json:"-"`
	Err     error          `json:"-"`
}

// Message returns the rendered report or an explanation of the failure.
func (s SearchResponse) Message() string {
	switch s.Outcome {
	case OutcomeAnswered:
		return RenderReport(s.Report)
	case OutcomeRejected:
		if s.Err == nil || errors.Is(s.Err, errNoQuery) {
			return msgNoQuery
		}
		return s.Err.Error()
	default:
		if errors.Is(s.Err, domain.ErrIndexNotFound) {
			return msgNoIndex
		}
		return fmt.Sprintf("Error searching index: %v", s.Err)
	}
}

// RenderReport formats a report as plain text: a header per query, each
// match followed by a dashed rule, and a double rule after each query.
func RenderReport(r *domain.Report) string {
	var b strings.Builder
	for _, res := range r.Results() {
		fmt.Fprintf(&b, "Results for Query: %s\n\n", res.Query)
		for _, m := range res.Matches {
			fmt.Fprintf(&b, "%s\n%s\n\n", m.Text(), strings.Repeat("-", 50))
		}
		fmt.Fprintf(&b, "\n%s\n\n", strings.Repeat("=", 100))
	}
	return b.String()
}
