package statement

// NonStandardTag is the sentinel DART emits when a filer does not map a
// line item to a standard account code. Label-keyword strategies only
// consider rows carrying this tag.
const NonStandardTag = "-표준계정코드 미사용-"

// Method selects how a strategy extracts a value from filing rows.
type Method int

const (
	// ExactTag looks up a single account tag and takes the first row
	// with a parseable amount.
	ExactTag Method = iota

	// SumTags sums the first parseable amount found for each tag in the
	// list. Partial sums are acceptable; the strategy fails only when no
	// tag resolves at all.
	SumTags

	// LabelMatch scans non-standard rows whose label contains any of
	// the keywords.
	LabelMatch
)

// Strategy is one extraction attempt for a fact. Strategies for a fact
// are tried in ascending Priority until one yields a value.
type Strategy struct {
	Method    Method
	Tags      []string // account tags (one for ExactTag, several for SumTags)
	Keywords  []string // label keywords for LabelMatch
	Divisions []Division
	Priority  int

	// TakeLast selects the last matching row instead of the first.
	// Issuers list income lines as a hierarchy and the most deeply
	// nested one is the true bottom-line figure.
	TakeLast bool

	// Absolute normalizes the resolved value to its absolute value.
	// Capex sign convention varies by issuer on free-text labels.
	Absolute bool

	Note string
}

var incomeDivs = []Division{IncomeStatement, ComprehensiveIncome}

// accountTable maps each canonical fact to its ordered extraction
// strategies. The table is static configuration: adding a fact or a
// strategy must not require touching the evaluator.
var accountTable = map[Fact][]Strategy{
	Revenue: {
		{
			Method:    ExactTag,
			Tags:      []string{"ifrs-full_Revenue"},
			Divisions: incomeDivs,
			Priority:  1,
			Note:      "manufacturing revenue",
		},
		{
			Method: SumTags,
			Tags: []string{
				"ifrs-full_FeeAndCommissionIncome",
				"ifrs-full_RevenueFromInterest",
			},
			Divisions: incomeDivs,
			Priority:  2,
			Note:      "financial-sector revenue (fee + interest)",
		},
	},

	OperatingIncome: {
		{
			Method:    ExactTag,
			Tags:      []string{"dart_OperatingIncomeLoss"},
			Divisions: incomeDivs,
			Priority:  1,
		},
		{
			Method:    LabelMatch,
			Keywords:  []string{"순영업손익"},
			Divisions: incomeDivs,
			Priority:  2,
			Note:      "financial-sector net operating income",
		},
	},

	NetIncome: {
		{
			Method:    ExactTag,
			Tags:      []string{"ifrs-full_ProfitLoss"},
			Divisions: incomeDivs,
			Priority:  1,
		},
		{
			Method:    ExactTag,
			Tags:      []string{"ifrs-full_ProfitLossBeforeTax"},
			Divisions: incomeDivs,
			Priority:  2,
			Note:      "pre-tax income fallback",
		},
		{
			Method:    LabelMatch,
			Keywords:  []string{"분기순이익", "당기순이익", "반기순이익"},
			Divisions: incomeDivs,
			Priority:  3,
			TakeLast:  true,
			Note:      "non-standard net income, deepest line wins",
		},
	},

	TotalAssets: {
		{Method: ExactTag, Tags: []string{"ifrs-full_Assets"}, Divisions: []Division{BalanceSheet}, Priority: 1},
	},
	TotalLiabilities: {
		{Method: ExactTag, Tags: []string{"ifrs-full_Liabilities"}, Divisions: []Division{BalanceSheet}, Priority: 1},
	},
	TotalEquity: {
		{Method: ExactTag, Tags: []string{"ifrs-full_Equity"}, Divisions: []Division{BalanceSheet}, Priority: 1},
	},
	CurrentAssets: {
		{Method: ExactTag, Tags: []string{"ifrs-full_CurrentAssets"}, Divisions: []Division{BalanceSheet}, Priority: 1},
	},
	CurrentLiabilities: {
		{Method: ExactTag, Tags: []string{"ifrs-full_CurrentLiabilities"}, Divisions: []Division{BalanceSheet}, Priority: 1},
	},
	Inventories: {
		{Method: ExactTag, Tags: []string{"ifrs-full_Inventories"}, Divisions: []Division{BalanceSheet}, Priority: 1},
	},

	OperatingCashFlow: {
		{Method: ExactTag, Tags: []string{"ifrs-full_CashFlowsFromUsedInOperatingActivities"}, Divisions: []Division{CashFlow}, Priority: 1},
	},
	InvestingCashFlow: {
		{Method: ExactTag, Tags: []string{"ifrs-full_CashFlowsFromUsedInInvestingActivities"}, Divisions: []Division{CashFlow}, Priority: 1},
	},
	FinancingCashFlow: {
		{Method: ExactTag, Tags: []string{"ifrs-full_CashFlowsFromUsedInFinancingActivities"}, Divisions: []Division{CashFlow}, Priority: 1},
	},

	Capex: {
		{
			Method:    ExactTag,
			Tags:      []string{"ifrs-full_PurchaseOfPropertyPlantAndEquipmentClassifiedAsInvestingActivities"},
			Divisions: []Division{CashFlow},
			Priority:  1,
		},
		{
			Method: SumTags,
			Tags: []string{
				"dart_PurchaseOfLand",
				"dart_PurchaseOfMachinery",
				"dart_PurchaseOfStructure",
				"dart_PurchaseOfVehicles",
				"dart_PurchaseOfOtherPropertyPlantAndEquipment",
				"dart_PurchaseOfConstructionInProgress",
				"dart_PurchaseOfBuildings",
			},
			Divisions: []Division{CashFlow},
			Priority:  2,
			Note:      "itemized PP&E acquisitions",
		},
		{
			Method:    LabelMatch,
			Keywords:  []string{"유형자산 취득", "유형자산의 취득"},
			Divisions: []Division{CashFlow},
			Priority:  3,
			Absolute:  true,
			Note:      "non-standard capex label",
		},
	},
}

// sectorFallbacks fill revenue and operating income for financial-sector
// issuers whose filings carry neither the standard tags nor the fee and
// interest tags. The pass only fills gaps, never overwrites.
var sectorFallbacks = map[Fact][]Strategy{
	Revenue: {
		{
			Method:    LabelMatch,
			Keywords:  []string{"영업수익", "수수료수익"},
			Divisions: incomeDivs,
			Priority:  1,
			Note:      "financial-sector operating revenue label",
		},
	},
	OperatingIncome: {
		{
			Method:    LabelMatch,
			Keywords:  []string{"순영업손익", "순영업이익"},
			Divisions: incomeDivs,
			Priority:  1,
		},
	},
}
