package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brainscroll/paper-cli/internal/dedup"
	"github.com/brainscroll/paper-cli/internal/handoff"
	"github.com/brainscroll/paper-cli/internal/model"
	"github.com/brainscroll/paper-cli/internal/store"
	"github.com/brainscroll/paper-cli/internal/workflow"
	"github.com/brainscroll/paper-cli/pkg/anthropic"
)

var (
	processOutput  string
	processNoDB    bool
	processNoDedup bool
)

var processCmd = &cobra.Command{
	Use:   "process <input-file>",
	Short: "Enrich papers from a handoff file through the LLM workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		doc, err := handoff.Read(args[0])
		if err != nil {
			return err
		}
		if len(doc.Papers) == 0 {
			return eris.Errorf("no papers found in %s", args[0])
		}
		zap.L().Info("loaded handoff file",
			zap.String("path", args[0]),
			zap.Int("papers", len(doc.Papers)),
		)

		wf, err := newWorkflow()
		if err != nil {
			return err
		}

		var st store.Store
		if !processNoDB {
			st, err = openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
		}

		stats := &model.ProcessStats{
			TotalPapers: len(doc.Papers),
			StartedAt:   time.Now().UTC(),
		}

		papers := doc.Papers
		if st != nil && !processNoDedup {
			fresh, duplicates := dedup.New(st).FilterNew(ctx, papers)
			stats.Duplicates = duplicates
			papers = fresh
		}

		var processed []model.Paper
		for i, paper := range papers {
			if ctx.Err() != nil {
				zap.L().Warn("process interrupted",
					zap.Int("completed", i),
					zap.Int("remaining", len(papers)-i),
				)
				return errInterrupted
			}

			enriched := wf.Process(ctx, paper)
			processed = append(processed, enriched)
			stats.Processed++

			if !enriched.Processed {
				stats.Failed++
			}
			if st != nil {
				if err := storeProcessed(ctx, st, enriched); err != nil {
					stats.Failed++
					stats.Errors = append(stats.Errors,
						"storage error for "+enriched.ArxivID+": "+err.Error())
					continue
				}
				stats.Stored++
			}
		}

		stats.DurationSeconds = time.Since(stats.StartedAt).Seconds()

		outPath := processOutput
		if outPath != "" {
			err = handoff.Write(outPath, handoff.Document{Metadata: handoff.Metadata(stats), Papers: processed})
		} else {
			outPath, err = handoff.WriteProcessed(cfg.Output.Dir, processed, stats)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Processed %d papers (%d stored, %d duplicate, %d failed) -> %s\n",
			stats.Processed, stats.Stored, stats.Duplicates, stats.Failed, outPath)

		if len(stats.Errors) > 0 {
			return eris.Errorf("process completed with %d errors", len(stats.Errors))
		}
		return nil
	},
}

func newWorkflow() (*workflow.Workflow, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic API key is required (PAPERCLI_ANTHROPIC_KEY)")
	}
	client := anthropic.NewClient(cfg.Anthropic.Key)
	gen := workflow.NewAnthropicGenerator(client, cfg.Anthropic)
	return workflow.New(gen), nil
}

// storeProcessed inserts an enriched paper, updating the enrichment fields
// in place if the row already exists.
func storeProcessed(ctx context.Context, st store.Store, paper model.Paper) error {
	err := st.InsertPaper(ctx, paper)
	if !errors.Is(err, store.ErrDuplicatePaper) {
		return err
	}
	return st.UpdatePaper(ctx, paper.ArxivID, map[string]any{
		"summary":           paper.Summary,
		"why_it_matters":    paper.WhyItMatters,
		"applications":      paper.Applications,
		"processed":         paper.Processed,
		"processed_at":      paper.ProcessedAt,
		"processing_errors": paper.ProcessingErrors,
	})
}

func init() {
	processCmd.Flags().StringVar(&processOutput, "output", "", "output file path (default auto-named in output dir)")
	processCmd.Flags().BoolVar(&processNoDB, "no-db", false, "skip database storage and deduplication")
	processCmd.Flags().BoolVar(&processNoDedup, "no-dedup", false, "process every paper even if already stored")
	rootCmd.AddCommand(processCmd)
}
