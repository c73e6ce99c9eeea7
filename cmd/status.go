package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-company statement coverage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		rows, err := st.CoverageReport(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STOCK\tNAME\tANNUAL\tQUARTERS\tQ4\tLATEST")
		for _, c := range rows {
			latest := "-"
			if c.LatestYear > 0 {
				latest = fmt.Sprintf("%d", c.LatestYear)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
				c.Company.StockCode, c.Company.Name,
				c.AnnualYears, c.QuarterCount, c.Q4Synthesized, latest)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
