package model

import "time"

// Pipeline stage names used in run results, metrics and the audit log.
const (
	StageIngest   = "ingest"
	StageExtract  = "extract"
	StageLinks    = "links"
	StageListings = "listings"
)

// Review checkpoints used as Decision.Stage.
const (
	ReviewIntake    = 1 // triage of raw notices; gate for extraction
	ReviewExtracted = 2 // approval of extracted attributes; gate for link generation
	ReviewLinked    = 3 // approval of the search URL; gate for listing collection
)

// StageResult is the structured outcome of one orchestrator call.
// Per-record problems land in Errors and never abort the batch.
type StageResult struct {
	RunID      string         `json:"run_id"`
	Stage      string         `json:"stage"`
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data"`
	Errors     []string       `json:"errors"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Duration returns how long the run took.
func (r *StageResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// StageRun is the persisted audit row for a StageResult.
type StageRun struct {
	ID         string    `json:"id" db:"id"`
	Stage      string    `json:"stage" db:"stage"`
	UserID     *int64    `json:"user_id,omitempty" db:"user_id"`
	Success    bool      `json:"success" db:"success"`
	Message    string    `json:"message" db:"message"`
	Data       string    `json:"data" db:"data"`
	Errors     string    `json:"errors" db:"errors"`
	StartedAt  time.Time `json:"started_at" db:"started_at"`
	FinishedAt time.Time `json:"finished_at" db:"finished_at"`
}

// Statistics is the pipeline-wide row count summary.
type Statistics struct {
	Records           int `json:"records"`
	ExtractionResults int `json:"extraction_results"`
	Listings          int `json:"listings"`
}
