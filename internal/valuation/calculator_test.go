package valuation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1992jhlee/agent-vi/internal/market"
	"github.com/1992jhlee/agent-vi/internal/statement"
	"github.com/1992jhlee/agent-vi/internal/store"
)

type fakeCapSource struct {
	snap  market.Snapshot
	err   error
	calls int
}

func (f *fakeCapSource) GetMarketCap(ctx context.Context, ticker string, date time.Time) (market.Snapshot, error) {
	f.calls++
	return f.snap, f.err
}

func stmt(year, quarter int, rt store.ReportType, facts statement.FactSet) *store.Statement {
	return &store.Statement{
		CompanyID:     1,
		FiscalYear:    year,
		FiscalQuarter: quarter,
		ReportType:    rt,
		Facts:         facts,
	}
}

func TestComputeNegativePER(t *testing.T) {
	// Loss of 500M won against a 10B won market cap: PER is exactly
	// -20, not unresolved.
	src := &fakeCapSource{snap: market.Snapshot{MarketCap: 10_000_000_000}}
	calc := NewCalculator(src, nil)

	target := stmt(2023, 4, store.ReportQuarterly, statement.FactSet{
		statement.NetIncome:   -500_000_000,
		statement.TotalEquity: 5_000_000_000,
	})
	history := []*store.Statement{
		stmt(2023, 1, store.ReportQuarterly, statement.FactSet{statement.NetIncome: 0}),
		stmt(2023, 2, store.ReportQuarterly, statement.FactSet{statement.NetIncome: 0}),
		stmt(2023, 3, store.ReportQuarterly, statement.FactSet{statement.NetIncome: 0}),
	}

	m := calc.Compute(context.Background(), "005930", target, history)
	require.NotNil(t, m.PER)
	assert.Equal(t, -20.0, *m.PER)
}

func TestComputePBR(t *testing.T) {
	src := &fakeCapSource{snap: market.Snapshot{MarketCap: 15_000_000_000}}
	calc := NewCalculator(src, nil)

	target := stmt(2023, 0, store.ReportAnnual, statement.FactSet{
		statement.NetIncome:   1_000_000_000,
		statement.TotalEquity: 10_000_000_000,
	})

	m := calc.Compute(context.Background(), "005930", target, nil)
	require.NotNil(t, m.PBR)
	assert.Equal(t, 1.5, *m.PBR)
	require.NotNil(t, m.PER)
	assert.Equal(t, 15.0, *m.PER)
	assert.Equal(t, "public_data", m.CapSource)
}

func TestComputePBRRequiresPositiveEquity(t *testing.T) {
	src := &fakeCapSource{snap: market.Snapshot{MarketCap: 10_000_000_000}}
	calc := NewCalculator(src, nil)

	target := stmt(2023, 0, store.ReportAnnual, statement.FactSet{
		statement.NetIncome:   1_000_000_000,
		statement.TotalEquity: -2_000_000_000,
	})

	m := calc.Compute(context.Background(), "005930", target, nil)
	assert.Nil(t, m.PBR)
	assert.Contains(t, m.Unresolved, "pbr: total equity not positive")
	assert.NotNil(t, m.PER, "PER is independent of the equity precondition")
}

func TestComputeZeroNetIncomeUnresolved(t *testing.T) {
	src := &fakeCapSource{snap: market.Snapshot{MarketCap: 10_000_000_000}}
	calc := NewCalculator(src, nil)

	target := stmt(2023, 0, store.ReportAnnual, statement.FactSet{
		statement.NetIncome:   0,
		statement.TotalEquity: 5_000_000_000,
	})

	m := calc.Compute(context.Background(), "005930", target, nil)
	assert.Nil(t, m.PER)
	assert.Contains(t, m.Unresolved, "per: net income is zero")
}

func TestComputeQuarterlyPERAnnualizes(t *testing.T) {
	// Cumulative income through Q2 is 400, annualized 400*4/2 = 800.
	// PER = 8000/800 = 10.
	src := &fakeCapSource{snap: market.Snapshot{MarketCap: 8000}}
	calc := NewCalculator(src, nil)

	target := stmt(2023, 2, store.ReportQuarterly, statement.FactSet{
		statement.NetIncome: 150,
	})
	history := []*store.Statement{
		stmt(2023, 1, store.ReportQuarterly, statement.FactSet{statement.NetIncome: 250}),
	}

	m := calc.Compute(context.Background(), "005930", target, history)
	require.NotNil(t, m.PER)
	assert.Equal(t, 10.0, *m.PER)
}

func TestComputeQuarterlyPERNeedsAllPriorQuarters(t *testing.T) {
	src := &fakeCapSource{snap: market.Snapshot{MarketCap: 8000}}
	calc := NewCalculator(src, nil)

	target := stmt(2023, 3, store.ReportQuarterly, statement.FactSet{
		statement.NetIncome: 150,
	})
	// Q2 missing entirely.
	history := []*store.Statement{
		stmt(2023, 1, store.ReportQuarterly, statement.FactSet{statement.NetIncome: 250}),
	}

	m := calc.Compute(context.Background(), "005930", target, history)
	assert.Nil(t, m.PER, "left unresolved, never approximated")
	assert.Contains(t, m.Unresolved, "per: Q2 net income missing for cumulative figure")
}

func TestMarketCapCascadeFallsBackToKRX(t *testing.T) {
	primary := &fakeCapSource{err: market.ErrNoTradingData}
	secondary := &fakeCapSource{snap: market.Snapshot{MarketCap: 9_000_000_000}}
	calc := NewCalculator(primary, secondary)

	target := stmt(2023, 0, store.ReportAnnual, statement.FactSet{
		statement.NetIncome:   1_000_000_000,
		statement.TotalEquity: 3_000_000_000,
	})

	m := calc.Compute(context.Background(), "005930", target, nil)
	assert.Equal(t, int64(9_000_000_000), m.MarketCap)
	assert.Equal(t, "krx", m.CapSource)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestMarketCapImpliedFromPriorPBR(t *testing.T) {
	primary := &fakeCapSource{err: market.ErrNoTradingData}
	secondary := &fakeCapSource{err: market.ErrNoTradingData}
	calc := NewCalculator(primary, secondary)

	prior := stmt(2023, 1, store.ReportQuarterly, statement.FactSet{statement.NetIncome: 100})
	pbr := 2.0
	prior.PBR = &pbr

	target := stmt(2023, 2, store.ReportQuarterly, statement.FactSet{
		statement.NetIncome:   100,
		statement.TotalEquity: 4_000_000_000,
	})

	m := calc.Compute(context.Background(), "005930", target, []*store.Statement{prior})
	assert.Equal(t, int64(8_000_000_000), m.MarketCap, "prior PBR 2.0 times equity 4B")
	assert.Equal(t, "implied", m.CapSource)
}

func TestMarketCapUnavailableEverywhere(t *testing.T) {
	primary := &fakeCapSource{err: market.ErrNoTradingData}
	calc := NewCalculator(primary, nil)

	target := stmt(2023, 0, store.ReportAnnual, statement.FactSet{statement.NetIncome: 1})

	m := calc.Compute(context.Background(), "005930", target, nil)
	assert.Nil(t, m.PER)
	assert.Nil(t, m.PBR)
	assert.Contains(t, m.Unresolved, "market cap unavailable from any source")
}

func TestPeriodEnd(t *testing.T) {
	assert.Equal(t, time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC), PeriodEnd(2023, 1))
	assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), PeriodEnd(2023, 4))
	assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), PeriodEnd(2023, 0))
}
