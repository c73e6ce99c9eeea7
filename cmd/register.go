package main

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/1992jhlee/agent-vi/internal/store"
)

var (
	registerStockCode string
	registerCorpCode  string
	registerName      string
	registerSector    string
	registerCSV       string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register companies to collect",
	Long:  "Adds a single company by flags, or loads a universe from a CSV file with columns stock_code,corp_code,name,sector.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if registerCSV != "" {
			companies, err := readCompanyCSV(registerCSV)
			if err != nil {
				return err
			}
			n, err := st.BulkUpsertCompanies(ctx, companies)
			if err != nil {
				return err
			}
			zap.L().Info("companies loaded", zap.Int64("count", n), zap.String("file", registerCSV))
			return nil
		}

		if registerStockCode == "" || registerCorpCode == "" || registerName == "" {
			return eris.New("register: --stock-code, --corp-code, and --name are required without --csv")
		}
		id, err := st.UpsertCompany(ctx, store.Company{
			StockCode: registerStockCode,
			CorpCode:  registerCorpCode,
			Name:      registerName,
			Sector:    registerSector,
		})
		if err != nil {
			return err
		}
		zap.L().Info("company registered", zap.Int64("id", id), zap.String("stock_code", registerStockCode))
		return nil
	},
}

func readCompanyCSV(path string) ([]store.Company, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "register: open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var companies []store.Company
	for line := 1; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "register: read %s", path)
		}
		if line == 1 && rec[0] == "stock_code" {
			continue
		}
		if len(rec) < 3 {
			return nil, eris.Errorf("register: %s line %d: want at least stock_code,corp_code,name", path, line)
		}
		c := store.Company{StockCode: rec[0], CorpCode: rec[1], Name: rec[2]}
		if len(rec) > 3 {
			c.Sector = rec[3]
		}
		companies = append(companies, c)
	}
	if len(companies) == 0 {
		return nil, eris.Errorf("register: %s has no companies", path)
	}
	return companies, nil
}

func init() {
	registerCmd.Flags().StringVar(&registerStockCode, "stock-code", "", "six-digit stock code")
	registerCmd.Flags().StringVar(&registerCorpCode, "corp-code", "", "eight-digit DART corp code")
	registerCmd.Flags().StringVar(&registerName, "name", "", "company name")
	registerCmd.Flags().StringVar(&registerSector, "sector", "", "sector label")
	registerCmd.Flags().StringVar(&registerCSV, "csv", "", "CSV file of companies to bulk load")
	rootCmd.AddCommand(registerCmd)
}
