package collect

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1992jhlee/agent-vi/internal/dart"
	"github.com/1992jhlee/agent-vi/internal/scrape"
	"github.com/1992jhlee/agent-vi/internal/statement"
	"github.com/1992jhlee/agent-vi/internal/store"
)

func TestPlanTargets(t *testing.T) {
	now := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	targets := PlanTargets(now, 3, 4)
	require.Len(t, targets, 7)

	assert.Equal(t, Target{Year: 2025, Type: store.ReportAnnual}, targets[0])
	assert.Equal(t, Target{Year: 2024, Type: store.ReportAnnual}, targets[1])
	assert.Equal(t, Target{Year: 2023, Type: store.ReportAnnual}, targets[2])

	// Current quarter is Q3 2026; most recent filed quarters walking
	// back, skipping Q4.
	assert.Equal(t, Target{Year: 2026, Quarter: 2, Type: store.ReportQuarterly}, targets[3])
	assert.Equal(t, Target{Year: 2026, Quarter: 1, Type: store.ReportQuarterly}, targets[4])
	assert.Equal(t, Target{Year: 2025, Quarter: 3, Type: store.ReportQuarterly}, targets[5])
	assert.Equal(t, Target{Year: 2025, Quarter: 2, Type: store.ReportQuarterly}, targets[6])
}

func TestTargetReportCode(t *testing.T) {
	assert.Equal(t, dart.ReportAnnual, Target{Year: 2023, Type: store.ReportAnnual}.ReportCode())
	assert.Equal(t, dart.ReportQ2, Target{Year: 2023, Quarter: 2, Type: store.ReportQuarterly}.ReportCode())
}

type fakeFilings struct {
	rows map[string][]statement.RawRow // key year|code
	err  error
}

func filingKey(year int, code dart.ReportCode) string {
	return fmt.Sprintf("%d|%s", year, code)
}

func (f *fakeFilings) FetchStatement(ctx context.Context, corpCode string, year int, report dart.ReportCode) ([]statement.RawRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[filingKey(year, report)], nil
}

type fakeFallback struct {
	result *scrape.Result
	err    error
	calls  int
}

func (f *fakeFallback) ScrapeAnnual(ctx context.Context, corpCode string, year int) (*scrape.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeCollectStore struct {
	mu        sync.Mutex
	companies []store.Company
	existing  map[string]bool
	upserts   []*store.Statement
	finished  []int
}

func (f *fakeCollectStore) ListCompanies(ctx context.Context) ([]store.Company, error) {
	return f.companies, nil
}

func (f *fakeCollectStore) GetCompanyByStockCode(ctx context.Context, stockCode string) (*store.Company, error) {
	for i := range f.companies {
		if f.companies[i].StockCode == stockCode {
			return &f.companies[i], nil
		}
	}
	return nil, nil
}

func (f *fakeCollectStore) HasStatement(ctx context.Context, companyID int64, year, quarter int, rt store.ReportType) (bool, error) {
	return f.existing[statementKey(year, quarter, rt)], nil
}

func (f *fakeCollectStore) UpsertStatement(ctx context.Context, st *store.Statement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, st)
	return nil
}

func (f *fakeCollectStore) CreateCollectionRun(ctx context.Context, stockCode string) (*store.CollectionRun, error) {
	return &store.CollectionRun{ID: "run-1", StockCode: stockCode}, nil
}

func (f *fakeCollectStore) FinishCollectionRun(ctx context.Context, id string, collected, skipped, failed int) error {
	f.finished = []int{collected, skipped, failed}
	return nil
}

func statementKey(year, quarter int, rt store.ReportType) string {
	return Target{Year: year, Quarter: quarter, Type: rt}.String()
}

func apiRows() []statement.RawRow {
	return []statement.RawRow{
		{AccountID: "ifrs-full_Revenue", Division: statement.IncomeStatement, Amount: "1000", Source: "CFS"},
	}
}

func newCollector(fs *fakeCollectStore, filings Filings, fb Fallback, opts Options) *Collector {
	c := New(filings, fb, fs, opts)
	c.now = func() time.Time { return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC) }
	return c
}

func TestCollectorRun(t *testing.T) {
	fs := &fakeCollectStore{
		companies: []store.Company{{ID: 1, StockCode: "005930", CorpCode: "00126380"}},
	}
	filings := &fakeFilings{rows: map[string][]statement.RawRow{
		filingKey(2025, dart.ReportAnnual): apiRows(),
		filingKey(2026, dart.ReportQ2):     apiRows(),
	}}
	c := newCollector(fs, filings, nil, Options{Years: 1, Quarters: 1})

	res, err := c.Run(context.Background(), "005930")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Collected)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, []int{2, 0, 0}, fs.finished)

	require.Len(t, fs.upserts, 2)
	assert.Equal(t, "api", fs.upserts[0].Provenance.Source)
	assert.Equal(t, "CFS", fs.upserts[0].Provenance.FsDiv)
}

func TestCollectorSkipsExisting(t *testing.T) {
	fs := &fakeCollectStore{
		companies: []store.Company{{ID: 1, StockCode: "005930", CorpCode: "00126380"}},
		existing: map[string]bool{
			statementKey(2025, 0, store.ReportAnnual): true,
		},
	}
	filings := &fakeFilings{rows: map[string][]statement.RawRow{
		filingKey(2026, dart.ReportQ2): apiRows(),
	}}
	c := newCollector(fs, filings, nil, Options{Years: 1, Quarters: 1})

	res, err := c.Run(context.Background(), "005930")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Collected)
	assert.Equal(t, 1, res.Skipped)
}

func TestCollectorForceRecollects(t *testing.T) {
	fs := &fakeCollectStore{
		companies: []store.Company{{ID: 1, StockCode: "005930", CorpCode: "00126380"}},
		existing: map[string]bool{
			statementKey(2025, 0, store.ReportAnnual): true,
		},
	}
	filings := &fakeFilings{rows: map[string][]statement.RawRow{
		filingKey(2025, dart.ReportAnnual): apiRows(),
		filingKey(2026, dart.ReportQ2):     apiRows(),
	}}
	c := newCollector(fs, filings, nil, Options{Years: 1, Quarters: 1, Force: true})

	res, err := c.Run(context.Background(), "005930")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Collected)
	assert.Equal(t, 0, res.Skipped)
}

func TestCollectorScrapeFallbackForAnnual(t *testing.T) {
	fs := &fakeCollectStore{
		companies: []store.Company{{ID: 1, StockCode: "005930", CorpCode: "00126380"}},
	}
	filings := &fakeFilings{} // API returns nothing
	fb := &fakeFallback{result: &scrape.Result{
		Facts: statement.FactSet{statement.Revenue: 1_234_000_000},
		Units: map[statement.Fact]scrape.UnitSource{statement.Revenue: scrape.UnitDetected},
	}}
	c := newCollector(fs, filings, fb, Options{Years: 1, Quarters: 1})

	res, err := c.Run(context.Background(), "005930")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Collected, "annual via scrape")
	assert.Equal(t, 1, res.Failed, "quarterly has no scrape fallback")
	assert.Equal(t, 1, fb.calls)

	require.Len(t, fs.upserts, 1)
	assert.Equal(t, "scrape", fs.upserts[0].Provenance.Source)
	assert.Equal(t, "detected", fs.upserts[0].Provenance.Units["revenue"])
}

func TestCollectorPartialFailureContinues(t *testing.T) {
	fs := &fakeCollectStore{
		companies: []store.Company{{ID: 1, StockCode: "005930", CorpCode: "00126380"}},
	}
	filings := &fakeFilings{err: eris.New("upstream down")}
	c := newCollector(fs, filings, nil, Options{Years: 2, Quarters: 2})

	res, err := c.Run(context.Background(), "005930")
	require.NoError(t, err, "period failures never abort the run")
	assert.Equal(t, 0, res.Collected)
	assert.Equal(t, 4, res.Failed)
	assert.Equal(t, []int{0, 0, 4}, fs.finished)
}

func TestCollectorUnknownStockCode(t *testing.T) {
	c := newCollector(&fakeCollectStore{}, &fakeFilings{}, nil, Options{})
	_, err := c.Run(context.Background(), "999999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stock code")
}

func TestCollectorParallelCompanies(t *testing.T) {
	fs := &fakeCollectStore{
		companies: []store.Company{
			{ID: 1, StockCode: "005930", CorpCode: "00126380"},
			{ID: 2, StockCode: "000660", CorpCode: "00164779"},
		},
	}
	filings := &fakeFilings{rows: map[string][]statement.RawRow{
		filingKey(2025, dart.ReportAnnual): apiRows(),
	}}
	c := newCollector(fs, filings, nil, Options{Years: 1, Quarters: 1, Workers: 2})

	res, err := c.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Collected, "one annual per company")
	assert.Equal(t, 2, res.Failed, "missing quarterly per company")
}
