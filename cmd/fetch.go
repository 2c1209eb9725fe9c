package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brainscroll/paper-cli/internal/fetch"
	"github.com/brainscroll/paper-cli/internal/handoff"
	"github.com/brainscroll/paper-cli/pkg/arxiv"
)

var (
	fetchCategories []string
	fetchMaxPapers  int
	fetchDaysBack   int
	fetchOutput     string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch recent papers from arXiv and write a handoff file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		categories := fetchCategories
		if len(categories) == 0 {
			categories = cfg.Fetch.Categories
		}
		maxPapers := fetchMaxPapers
		if maxPapers <= 0 {
			maxPapers = cfg.Fetch.MaxPerCategory
		}
		daysBack := fetchDaysBack
		if daysBack <= 0 {
			daysBack = cfg.Fetch.DaysBack
		}

		fetcher := fetch.New(newArxivClient())
		papers, stats := fetcher.FetchAll(ctx, categories, maxPapers, daysBack)

		if ctx.Err() != nil {
			return errInterrupted
		}

		outPath := fetchOutput
		var err error
		if outPath != "" {
			err = handoff.Write(outPath, handoff.Document{Metadata: handoff.Metadata(stats), Papers: papers})
		} else {
			outPath, err = handoff.WriteFetched(cfg.Output.Dir, papers, stats)
		}
		if err != nil {
			return err
		}

		fmt.Printf("Fetched %d papers across %d categories -> %s\n",
			stats.TotalPapers, len(categories), outPath)

		if len(stats.Errors) > 0 {
			zap.L().Warn("fetch finished with errors", zap.Strings("errors", stats.Errors))
			return eris.Errorf("fetch completed with %d category errors", len(stats.Errors))
		}
		return nil
	},
}

func newArxivClient() arxiv.Client {
	return arxiv.NewClient(
		arxiv.WithBaseURL(cfg.Arxiv.BaseURL),
		arxiv.WithUserAgent(cfg.Arxiv.UserAgent),
		arxiv.WithRateLimit(cfg.Arxiv.RequestsPerSec),
		arxiv.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Arxiv.TimeoutSecs) * time.Second,
		}),
	)
}

func init() {
	fetchCmd.Flags().StringSliceVar(&fetchCategories, "categories", nil, "arXiv categories to fetch (default from config)")
	fetchCmd.Flags().IntVar(&fetchMaxPapers, "max-papers", 0, "maximum papers per category (default from config)")
	fetchCmd.Flags().IntVar(&fetchDaysBack, "days-back", 0, "lookback window in days (default from config)")
	fetchCmd.Flags().StringVar(&fetchOutput, "output", "", "output file path (default auto-named in output dir)")
	rootCmd.AddCommand(fetchCmd)
}
