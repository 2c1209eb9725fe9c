package model

import "time"

// RunStatus represents the state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning     RunStatus = "running"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
	RunStatusInterrupted RunStatus = "interrupted"
)

// Run is a persisted record of one end-to-end pipeline execution.
type Run struct {
	ID        string         `json:"id"`
	Status    RunStatus      `json:"status"`
	Stats     *PipelineStats `json:"stats,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
}

// FetchStats summarizes one fetch phase across all requested categories.
type FetchStats struct {
	Categories       []string       `json:"categories"`
	MaxPerCategory   int            `json:"max_papers_per_category"`
	DaysBack         int            `json:"days_back"`
	PapersByCategory map[string]int `json:"papers_by_category"`
	TotalPapers      int            `json:"total_papers"`
	StartedAt        time.Time      `json:"started_at"`
	DurationSeconds  float64        `json:"duration_seconds"`
	Errors           []string       `json:"errors,omitempty"`
}

// ProcessStats summarizes one process phase over a batch of papers.
type ProcessStats struct {
	TotalPapers     int       `json:"total_papers"`
	Duplicates      int       `json:"papers_duplicate"`
	Processed       int       `json:"papers_processed"`
	Stored          int       `json:"papers_stored"`
	Failed          int       `json:"papers_failed"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	Errors          []string  `json:"errors,omitempty"`
}

// PipelineStats aggregates a full fetch→dedupe→enrich→persist run. A run
// always produces one of these, even when it dies mid-flight.
type PipelineStats struct {
	Fetched         int       `json:"fetched"`
	New             int       `json:"new"`
	Duplicates      int       `json:"duplicates"`
	Processed       int       `json:"processed"`
	Stored          int       `json:"stored"`
	Failed          int       `json:"failed"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	Errors          []string  `json:"errors,omitempty"`
}

// InsertResult reports bulk-insert outcomes. Inserted + Duplicates + Errors
// always equals the size of the input batch.
type InsertResult struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}

// Total returns the number of papers the result accounts for.
func (r InsertResult) Total() int {
	return r.Inserted + r.Duplicates + r.Errors
}
