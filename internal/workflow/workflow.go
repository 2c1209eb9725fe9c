package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/brainscroll/paper-cli/internal/model"
)

// StageOutcome reports how a single stage left the paper.
type StageOutcome int

const (
	// StageContinue means the stage did its work.
	StageContinue StageOutcome = iota
	// StageSkipped means the stage declined to run because an earlier
	// stage already recorded an error.
	StageSkipped
	// StageFailed means the stage ran and recorded an error.
	StageFailed
)

func (o StageOutcome) String() string {
	switch o {
	case StageContinue:
		return "continue"
	case StageSkipped:
		return "skipped"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// minSummaryLength is the shortest summary the validation stage accepts,
// counted in runes.
const minSummaryLength = 50

// Workflow runs each paper through the fixed enrichment stage sequence:
// ingestion, summary, why-it-matters, applications, validation. Once a stage
// records an error the generation stages skip themselves; validation always
// runs and decides whether the paper counts as processed.
type Workflow struct {
	gen Generator
}

// New creates a Workflow backed by the given Generator.
func New(gen Generator) *Workflow {
	return &Workflow{gen: gen}
}

type stage struct {
	name string
	run  func(ctx context.Context, p *model.Paper) StageOutcome
}

func (w *Workflow) stages() []stage {
	return []stage{
		{"ingestion", w.ingestion},
		{"summary_generation", w.summaryGeneration},
		{"why_it_matters", w.whyItMatters},
		{"applications", w.applications},
		{"quality_validation", w.qualityValidation},
	}
}

// Process runs one paper through every stage and returns the enriched copy.
// It is total: any failure, including a panic, is folded into the returned
// paper's ProcessingErrors rather than escaping.
func (w *Workflow) Process(ctx context.Context, paper model.Paper) (result model.Paper) {
	result = paper
	result.Summary = ""
	result.WhyItMatters = ""
	result.Applications = nil
	result.Processed = false
	result.ProcessedAt = nil
	result.ProcessingErrors = nil

	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("workflow panic",
				zap.String("arxiv_id", paper.ArxivID),
				zap.Any("panic", r),
			)
			result.Processed = false
			result.ProcessingErrors = append(result.ProcessingErrors, fmt.Sprintf("Workflow error: %v", r))
		}
	}()

	log := zap.L().With(zap.String("arxiv_id", paper.ArxivID))
	for _, st := range w.stages() {
		outcome := st.run(ctx, &result)
		log.Debug("workflow stage done",
			zap.String("stage", st.name),
			zap.String("outcome", outcome.String()),
		)
	}

	log.Info("workflow complete",
		zap.Bool("processed", result.Processed),
		zap.Int("errors", len(result.ProcessingErrors)),
	)
	return result
}

// ProcessBatch runs papers sequentially, preserving input order. Every input
// produces exactly one output.
func (w *Workflow) ProcessBatch(ctx context.Context, papers []model.Paper) []model.Paper {
	out := make([]model.Paper, 0, len(papers))
	for i, paper := range papers {
		zap.L().Info("processing paper",
			zap.Int("index", i+1),
			zap.Int("total", len(papers)),
			zap.String("arxiv_id", paper.ArxivID),
		)
		out = append(out, w.Process(ctx, paper))
	}
	zap.L().Info("batch processing complete", zap.Int("papers", len(out)))
	return out
}

func (w *Workflow) ingestion(_ context.Context, p *model.Paper) StageOutcome {
	var missing []string
	if p.ArxivID == "" {
		missing = append(missing, "arxiv_id")
	}
	if p.Title == "" {
		missing = append(missing, "title")
	}
	if p.Abstract == "" {
		missing = append(missing, "abstract")
	}
	if len(missing) > 0 {
		p.ProcessingErrors = append(p.ProcessingErrors,
			fmt.Sprintf("Missing required fields: %s", strings.Join(missing, ", ")))
		return StageFailed
	}
	return StageContinue
}

func (w *Workflow) summaryGeneration(ctx context.Context, p *model.Paper) StageOutcome {
	if len(p.ProcessingErrors) > 0 {
		return StageSkipped
	}

	text, err := w.gen.Generate(ctx, fmt.Sprintf(summaryPrompt, p.Title, p.Abstract))
	if err != nil {
		p.ProcessingErrors = append(p.ProcessingErrors,
			fmt.Sprintf("Summary generation error: %v", err))
		return StageFailed
	}
	p.Summary = strings.TrimSpace(text)
	return StageContinue
}

func (w *Workflow) whyItMatters(ctx context.Context, p *model.Paper) StageOutcome {
	if len(p.ProcessingErrors) > 0 {
		return StageSkipped
	}

	text, err := w.gen.Generate(ctx, fmt.Sprintf(whyItMattersPrompt, p.Title, p.Abstract, p.Summary))
	if err != nil {
		p.ProcessingErrors = append(p.ProcessingErrors,
			fmt.Sprintf("Why it matters error: %v", err))
		return StageFailed
	}
	p.WhyItMatters = strings.TrimSpace(text)
	return StageContinue
}

func (w *Workflow) applications(ctx context.Context, p *model.Paper) StageOutcome {
	if len(p.ProcessingErrors) > 0 {
		return StageSkipped
	}

	text, err := w.gen.Generate(ctx, fmt.Sprintf(applicationsPrompt, p.Title, p.Abstract, p.Summary))
	if err != nil {
		p.ProcessingErrors = append(p.ProcessingErrors,
			fmt.Sprintf("Applications error: %v", err))
		return StageFailed
	}
	p.Applications = parseApplications(text)
	return StageContinue
}

func (w *Workflow) qualityValidation(_ context.Context, p *model.Paper) StageOutcome {
	var validationErrors []string

	switch {
	case p.Summary == "":
		validationErrors = append(validationErrors, "Summary is missing")
	case utf8.RuneCountInString(p.Summary) < minSummaryLength:
		validationErrors = append(validationErrors, "Summary is too short")
	}
	if p.WhyItMatters == "" {
		validationErrors = append(validationErrors, "Why it matters is missing")
	}
	if len(p.Applications) == 0 {
		validationErrors = append(validationErrors, "Applications are missing")
	}

	if len(validationErrors) > 0 {
		p.ProcessingErrors = append(p.ProcessingErrors, validationErrors...)
		p.Processed = false
		return StageFailed
	}

	p.Processed = true
	now := time.Now().UTC()
	p.ProcessedAt = &now
	return StageContinue
}
