package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/brainscroll/paper-cli/internal/dedup"
	"github.com/brainscroll/paper-cli/internal/fetch"
	"github.com/brainscroll/paper-cli/internal/model"
	"github.com/brainscroll/paper-cli/internal/pipeline"
)

var (
	runCategories []string
	runMaxPapers  int
	runDaysBack   int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full fetch, deduplicate, enrich, and store pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		wf, err := newWorkflow()
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		opts := pipeline.Options{
			Categories:     runCategories,
			MaxPerCategory: runMaxPapers,
			DaysBack:       runDaysBack,
		}
		if len(opts.Categories) == 0 {
			opts.Categories = cfg.Fetch.Categories
		}
		if opts.MaxPerCategory <= 0 {
			opts.MaxPerCategory = cfg.Fetch.MaxPerCategory
		}
		if opts.DaysBack <= 0 {
			opts.DaysBack = cfg.Fetch.DaysBack
		}

		runner := pipeline.New(fetch.New(newArxivClient()), dedup.New(st), wf, st)
		stats, status := runner.Run(ctx, opts)

		fmt.Printf("Run %s: %d fetched, %d new, %d duplicate, %d processed, %d stored, %d failed in %.1fs\n",
			status, stats.Fetched, stats.New, stats.Duplicates,
			stats.Processed, stats.Stored, stats.Failed, stats.DurationSeconds)

		switch {
		case status == model.RunStatusInterrupted:
			return errInterrupted
		case status == model.RunStatusFailed:
			return eris.New("pipeline run failed")
		case len(stats.Errors) > 0:
			return eris.Errorf("pipeline run completed with %d errors", len(stats.Errors))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runCategories, "categories", nil, "arXiv categories to fetch (default from config)")
	runCmd.Flags().IntVar(&runMaxPapers, "max-papers", 0, "maximum papers per category (default from config)")
	runCmd.Flags().IntVar(&runDaysBack, "days-back", 0, "lookback window in days (default from config)")
	rootCmd.AddCommand(runCmd)
}
