package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brainscroll/paper-cli/internal/config"
)

var cfg *config.Config

// errInterrupted signals that a command stopped on a user interrupt; main
// translates it to exit code 130.
var errInterrupted = errors.New("interrupted")

var rootCmd = &cobra.Command{
	Use:   "paper-cli",
	Short: "arXiv paper enrichment pipeline",
	Long:  "Fetches recent arXiv papers by category, deduplicates against the store, enriches each paper with LLM-generated summaries and insights, and serves the resulting feed.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errInterrupted) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}
