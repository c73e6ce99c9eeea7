package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/1992jhlee/agent-vi/internal/reconcile"
)

var (
	reconcileStockCode string
	reconcileDryRun    bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Convert cumulative cash flows and synthesize Q4 records",
	Long:  "Rewrites cumulative quarterly cash-flow figures as standalone amounts and derives fourth-quarter records from annual filings minus the first three quarters.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var opts []reconcile.Option
		if reconcileDryRun {
			opts = append(opts, reconcile.WithDryRun())
		}

		sum, err := reconcile.New(st, opts...).Run(ctx, reconcileStockCode)
		if err != nil {
			return err
		}

		for _, w := range sum.Warnings {
			zap.L().Warn("reconcile warning", zap.String("detail", w))
		}
		zap.L().Info("reconcile finished",
			zap.Int("converted", sum.Converted),
			zap.Int("synthesized", sum.Synthesized),
			zap.Int("skipped", sum.Skipped),
			zap.Bool("dry_run", reconcileDryRun))
		return nil
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileStockCode, "stock-code", "", "limit to one company by stock code")
	reconcileCmd.Flags().BoolVar(&reconcileDryRun, "dry-run", false, "report what would change without writing")
	rootCmd.AddCommand(reconcileCmd)
}
