// Package statement normalizes heterogeneous DART filing rows into a
// canonical set of financial facts via priority-ordered fallback strategies.
package statement

// Fact identifies a canonical financial-statement quantity.
type Fact string

const (
	Revenue           Fact = "revenue"
	OperatingIncome   Fact = "operating_income"
	NetIncome         Fact = "net_income"
	TotalAssets       Fact = "total_assets"
	TotalLiabilities  Fact = "total_liabilities"
	TotalEquity       Fact = "total_equity"
	CurrentAssets     Fact = "current_assets"
	CurrentLiabilities Fact = "current_liabilities"
	Inventories       Fact = "inventories"
	OperatingCashFlow Fact = "operating_cash_flow"
	InvestingCashFlow Fact = "investing_cash_flow"
	FinancingCashFlow Fact = "financing_cash_flow"
	Capex             Fact = "capex"
)

// AllFacts lists every canonical fact in resolution order.
var AllFacts = []Fact{
	Revenue,
	OperatingIncome,
	NetIncome,
	TotalAssets,
	TotalLiabilities,
	TotalEquity,
	CurrentAssets,
	CurrentLiabilities,
	Inventories,
	OperatingCashFlow,
	InvestingCashFlow,
	FinancingCashFlow,
	Capex,
}

// IncomeFacts are standalone-per-quarter in quarterly filings.
var IncomeFacts = []Fact{Revenue, OperatingIncome, NetIncome}

// BalanceFacts are point-in-time levels, never summed across periods.
var BalanceFacts = []Fact{
	TotalAssets, TotalLiabilities, TotalEquity,
	CurrentAssets, CurrentLiabilities, Inventories,
}

// CashFlowFacts are reported cumulative-from-fiscal-year-start in
// quarterly filings and need standalone conversion.
var CashFlowFacts = []Fact{
	OperatingCashFlow, InvestingCashFlow, FinancingCashFlow, Capex,
}

// FactSet maps resolved facts to values in won. A missing key means the
// fact could not be resolved; zero is a legitimate resolved value.
type FactSet map[Fact]int64

// Get returns the value and whether the fact is present.
func (fs FactSet) Get(f Fact) (int64, bool) {
	v, ok := fs[f]
	return v, ok
}

// Clone returns an independent copy of the set.
func (fs FactSet) Clone() FactSet {
	out := make(FactSet, len(fs))
	for k, v := range fs {
		out[k] = v
	}
	return out
}

// Division identifies which financial statement a filing row belongs to.
type Division string

const (
	BalanceSheet        Division = "BS"
	IncomeStatement     Division = "IS"
	ComprehensiveIncome Division = "CIS"
	CashFlow            Division = "CF"
)

// RawRow is one line of a structured filing response. Rows are consumed
// during parsing and never persisted.
type RawRow struct {
	AccountID   string   // XBRL account tag, or NonStandardTag
	AccountName string   // free-text label as filed
	Division    Division // sj_div
	Amount      string   // thstrm_amount, raw string as returned
	Source      string   // "CFS" (consolidated) or "OFS" (separate)
}
