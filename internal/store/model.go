// Package store persists companies, periodized financial statements and
// collection-run bookkeeping in PostgreSQL.
package store

import (
	"time"

	"github.com/1992jhlee/agent-vi/internal/statement"
)

// Company is one listed company under collection.
type Company struct {
	ID        int64
	StockCode string // 6-digit KRX ticker
	CorpCode  string // 8-digit DART corporation code
	Name      string
	Sector    string
	CreatedAt time.Time
}

// ReportType distinguishes the annual filing from quarterly filings.
type ReportType string

const (
	ReportAnnual    ReportType = "annual"
	ReportQuarterly ReportType = "quarterly"
)

// Provenance records where a period's facts came from and how scraped
// amounts were unit-converted. Stored as JSONB alongside the facts.
type Provenance struct {
	Source      string            `json:"source"`                 // "api", "scrape" or "synthesized"
	FsDiv       string            `json:"fs_div,omitempty"`       // "CFS" or "OFS"
	Units       map[string]string `json:"units,omitempty"`        // fact -> unit source, scrape only
	CollectedAt time.Time         `json:"collected_at,omitempty"`
}

// Statement is one persisted reporting period. FiscalQuarter is 0 for
// the annual record. Facts holds only the facts that resolved; absent
// facts persist as NULL, never as zero.
type Statement struct {
	ID                int64
	CompanyID         int64
	FiscalYear        int
	FiscalQuarter     int
	ReportType        ReportType
	Facts             statement.FactSet
	CashflowConverted bool
	PER               *float64
	PBR               *float64
	Provenance        Provenance
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CollectionRun is one batch execution's bookkeeping record.
type CollectionRun struct {
	ID         string // uuid
	StockCode  string // empty for all-company runs
	Collected  int
	Skipped    int
	Failed     int
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Coverage summarizes how many periods are stored for one company.
type Coverage struct {
	Company      Company
	AnnualYears  int
	QuarterCount int
	Q4Synthesized int
	LatestYear   int
}

// factColumns maps canonical facts to their statement-table columns in
// a fixed order used by both reads and writes.
var factColumns = []struct {
	fact statement.Fact
	col  string
}{
	{statement.Revenue, "revenue"},
	{statement.OperatingIncome, "operating_income"},
	{statement.NetIncome, "net_income"},
	{statement.TotalAssets, "total_assets"},
	{statement.TotalLiabilities, "total_liabilities"},
	{statement.TotalEquity, "total_equity"},
	{statement.CurrentAssets, "current_assets"},
	{statement.CurrentLiabilities, "current_liabilities"},
	{statement.Inventories, "inventories"},
	{statement.OperatingCashFlow, "operating_cash_flow"},
	{statement.InvestingCashFlow, "investing_cash_flow"},
	{statement.FinancingCashFlow, "financing_cash_flow"},
	{statement.Capex, "capex"},
}

// factArgs converts a FactSet into nullable column values in
// factColumns order.
func factArgs(fs statement.FactSet) []any {
	args := make([]any, 0, len(factColumns))
	for _, fc := range factColumns {
		if v, ok := fs[fc.fact]; ok {
			args = append(args, v)
		} else {
			args = append(args, nil)
		}
	}
	return args
}

// factsFromScan rebuilds a FactSet from scanned nullable columns in
// factColumns order.
func factsFromScan(vals []*int64) statement.FactSet {
	fs := make(statement.FactSet, len(factColumns))
	for i, fc := range factColumns {
		if vals[i] != nil {
			fs[fc.fact] = *vals[i]
		}
	}
	return fs
}
