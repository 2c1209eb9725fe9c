package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/brainscroll/paper-cli/internal/model"
)

// ErrDuplicatePaper is returned by InsertPaper when the arXiv ID already exists.
var ErrDuplicatePaper = eris.New("store: duplicate paper")

// ErrNotFound is returned when a paper or run does not exist.
var ErrNotFound = eris.New("store: not found")

// PaperFilter specifies criteria for listing papers.
type PaperFilter struct {
	Category  string `json:"category,omitempty"`
	Processed *bool  `json:"processed,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the paper pipeline.
type Store interface {
	// Papers
	ExistsPaper(ctx context.Context, arxivID string) (bool, error)
	ExistingIDs(ctx context.Context, arxivIDs []string) (map[string]struct{}, error)
	InsertPaper(ctx context.Context, paper model.Paper) error
	// BulkInsertPapers attempts every row even when individual rows collide
	// with the uniqueness constraint. It reports how many rows were inserted
	// and how many were skipped as duplicates; err is non-nil only when the
	// bulk mechanism itself failed part-way. On error the counts must not be
	// trusted: a driver may have rolled back the whole batch, so callers
	// retry every row individually.
	BulkInsertPapers(ctx context.Context, papers []model.Paper) (inserted, duplicates int, err error)
	UpdatePaper(ctx context.Context, arxivID string, fields map[string]any) error
	GetPaper(ctx context.Context, arxivID string) (*model.Paper, error)
	ListPapers(ctx context.Context, filter PaperFilter) ([]model.Paper, error)

	// Engagement counters
	IncrementLikes(ctx context.Context, arxivID string) (int, error)
	IncrementViews(ctx context.Context, arxivID string) (int, error)

	// Pipeline runs
	CreateRun(ctx context.Context) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, stats *model.PipelineStats) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// paperUpdateColumns whitelists the columns UpdatePaper may touch.
var paperUpdateColumns = map[string]bool{
	"summary":           true,
	"why_it_matters":    true,
	"applications":      true,
	"processed":         true,
	"processed_at":      true,
	"processing_errors": true,
	"likes_count":       true,
	"views_count":       true,
}
