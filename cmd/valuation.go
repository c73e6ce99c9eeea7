package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/1992jhlee/agent-vi/internal/valuation"
)

var valuationStockCode string

var valuationCmd = &cobra.Command{
	Use:   "valuation",
	Short: "Compute PER and PBR for stored statements",
	Long:  "Derives price-to-earnings and price-to-book ratios from market capitalization at each period end, cascading across market data sources.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		calc, err := newCalculator()
		if err != nil {
			return err
		}

		sum, err := valuation.NewUpdater(st, calc).Run(ctx, valuationStockCode)
		if err != nil {
			return err
		}

		for _, r := range sum.Reasons {
			zap.L().Warn("valuation unresolved", zap.String("detail", r))
		}
		zap.L().Info("valuation finished",
			zap.Int("updated", sum.Updated),
			zap.Int("unresolved", sum.Unresolved))
		return nil
	},
}

func init() {
	valuationCmd.Flags().StringVar(&valuationStockCode, "stock-code", "", "limit to one company by stock code")
	rootCmd.AddCommand(valuationCmd)
}
