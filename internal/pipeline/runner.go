package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brainscroll/paper-cli/internal/dedup"
	"github.com/brainscroll/paper-cli/internal/fetch"
	"github.com/brainscroll/paper-cli/internal/model"
	"github.com/brainscroll/paper-cli/internal/store"
	"github.com/brainscroll/paper-cli/internal/workflow"
)

// Options controls one pipeline run.
type Options struct {
	Categories     []string
	MaxPerCategory int
	DaysBack       int
}

// Runner composes fetch, deduplication, enrichment, and persistence into one
// sequential end-to-end run. Categories are fetched one at a time and papers
// are enriched one at a time; there is no fan-out.
type Runner struct {
	fetcher  *fetch.Fetcher
	dedup    *dedup.Deduplicator
	workflow *workflow.Workflow
	store    store.Store
}

// New creates a Runner with all phase dependencies.
func New(fetcher *fetch.Fetcher, dd *dedup.Deduplicator, wf *workflow.Workflow, st store.Store) *Runner {
	return &Runner{fetcher: fetcher, dedup: dd, workflow: wf, store: st}
}

// Run executes the full pipeline. It always returns statistics, even when
// the run dies part-way: panics are caught at this level and folded into the
// result, and a context cancellation between papers stops the loop with an
// interrupted status. The run record in the store is completed either way.
func (r *Runner) Run(ctx context.Context, opts Options) (stats *model.PipelineStats, status model.RunStatus) {
	stats = &model.PipelineStats{StartedAt: time.Now().UTC()}
	status = model.RunStatusComplete

	log := zap.L()
	log.Info("pipeline: starting run",
		zap.Strings("categories", opts.Categories),
		zap.Int("max_per_category", opts.MaxPerCategory),
	)

	var runID string
	if run, err := r.store.CreateRun(ctx); err != nil {
		log.Warn("pipeline: create run record failed", zap.Error(err))
	} else {
		runID = run.ID
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("pipeline: run panicked", zap.Any("panic", rec))
			stats.Errors = append(stats.Errors, fmt.Sprintf("pipeline error: %v", rec))
			status = model.RunStatusFailed
		}
		stats.DurationSeconds = time.Since(stats.StartedAt).Seconds()

		if runID != "" {
			// The run context may already be canceled on interrupt.
			completeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := r.store.CompleteRun(completeCtx, runID, status, stats); err != nil {
				log.Warn("pipeline: complete run record failed", zap.Error(err))
			}
		}

		log.Info("pipeline: run finished",
			zap.String("status", string(status)),
			zap.Int("fetched", stats.Fetched),
			zap.Int("new", stats.New),
			zap.Int("duplicates", stats.Duplicates),
			zap.Int("processed", stats.Processed),
			zap.Int("stored", stats.Stored),
			zap.Int("failed", stats.Failed),
			zap.Float64("duration_seconds", stats.DurationSeconds),
		)
	}()

	papers, fetchStats := r.fetcher.FetchAll(ctx, opts.Categories, opts.MaxPerCategory, opts.DaysBack)
	stats.Fetched = fetchStats.TotalPapers
	stats.Errors = append(stats.Errors, fetchStats.Errors...)

	fresh, duplicates := r.dedup.FilterNew(ctx, papers)
	stats.New = len(fresh)
	stats.Duplicates = duplicates

	for i, paper := range fresh {
		if ctx.Err() != nil {
			log.Warn("pipeline: interrupted",
				zap.Int("completed", i),
				zap.Int("remaining", len(fresh)-i),
			)
			status = model.RunStatusInterrupted
			return stats, status
		}

		enriched := r.workflow.Process(ctx, paper)
		if enriched.Processed {
			stats.Processed++
		} else {
			stats.Failed++
			for _, e := range enriched.ProcessingErrors {
				stats.Errors = append(stats.Errors, enriched.ArxivID+": "+e)
			}
		}

		if err := r.storePaper(ctx, enriched); err != nil {
			stats.Errors = append(stats.Errors, "storage error for "+enriched.ArxivID+": "+err.Error())
			if enriched.Processed {
				stats.Failed++
			}
		} else {
			stats.Stored++
		}
	}

	return stats, status
}

func (r *Runner) storePaper(ctx context.Context, paper model.Paper) error {
	err := r.store.InsertPaper(ctx, paper)
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrDuplicatePaper) {
		// Raced in after the dedupe pass; update the enrichment fields instead.
		return r.store.UpdatePaper(ctx, paper.ArxivID, map[string]any{
			"summary":           paper.Summary,
			"why_it_matters":    paper.WhyItMatters,
			"applications":      paper.Applications,
			"processed":         paper.Processed,
			"processed_at":      paper.ProcessedAt,
			"processing_errors": paper.ProcessingErrors,
		})
	}
	return err
}
