package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/1992jhlee/agent-vi/internal/collect"
)

var (
	collectStockCode string
	collectForce     bool
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect financial statements from DART",
	Long:  "Fetches annual and quarterly filings for registered companies, falling back to annual-report scraping when the structured API has no data.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		client, err := newDARTClient()
		if err != nil {
			return err
		}

		collector := collect.New(client, newScraper(client), st, collect.Options{
			Workers:  cfg.Collect.Workers,
			Force:    collectForce,
			Years:    cfg.Collect.Years,
			Quarters: cfg.Collect.Quarters,
		})

		res, err := collector.Run(ctx, collectStockCode)
		if err != nil {
			return err
		}

		zap.L().Info("collection finished",
			zap.String("run_id", res.RunID),
			zap.Int("collected", res.Collected),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed))
		return nil
	},
}

func init() {
	collectCmd.Flags().StringVar(&collectStockCode, "stock-code", "", "limit to one company by stock code")
	collectCmd.Flags().BoolVar(&collectForce, "force", false, "re-collect periods that already exist")
	rootCmd.AddCommand(collectCmd)
}
