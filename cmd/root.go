package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/1992jhlee/agent-vi/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "agent-vi",
	Short: "Korean corporate filing collection and valuation pipeline",
	Long:  "Collects DART financial filings, normalizes them into standalone quarterly facts, and derives PER/PBR valuation metrics against market data.",
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
		os.Exit(1)
	}
}
