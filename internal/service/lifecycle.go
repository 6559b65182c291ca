package service

// IndexState is the lifecycle state of the controller's index.
type IndexState string

const (
	// StateAbsent means no index exists.
	StateAbsent IndexState = "absent"
	// StateEmpty means the index exists but holds no records from this controller.
	StateEmpty IndexState = "empty"
	// StatePopulated means at least one ingestion run completed.
	StatePopulated IndexState = "populated"
	// StatePartial means a run failed after some batches were written.
	StatePartial IndexState = "partial"
)

// Lifecycle is a snapshot of the index state.
type Lifecycle struct {
	State     IndexState `json:"state"`
	IndexName string     `json:"index_name"`
	Runs      int        `json:"runs"`
	Records   int        `json:"records"`
	LastRunID string     `json:"last_run_id,omitempty"`
}

// Clearable reports whether clearing would delete anything.
func (l Lifecycle) Clearable() bool {
	return l.State == StatePopulated || l.State == StatePartial
}
