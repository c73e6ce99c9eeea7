package valuation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1992jhlee/agent-vi/internal/market"
	"github.com/1992jhlee/agent-vi/internal/statement"
	"github.com/1992jhlee/agent-vi/internal/store"
)

type fakeValStore struct {
	companies  []store.Company
	stmts      []*store.Statement
	valuations map[int64][2]*float64
}

func (f *fakeValStore) ListCompanies(ctx context.Context) ([]store.Company, error) {
	return f.companies, nil
}

func (f *fakeValStore) GetCompanyByStockCode(ctx context.Context, stockCode string) (*store.Company, error) {
	for i := range f.companies {
		if f.companies[i].StockCode == stockCode {
			return &f.companies[i], nil
		}
	}
	return nil, nil
}

func (f *fakeValStore) ListStatements(ctx context.Context, companyID int64) ([]*store.Statement, error) {
	return f.stmts, nil
}

func (f *fakeValStore) SetValuation(ctx context.Context, statementID int64, per, pbr *float64) error {
	if f.valuations == nil {
		f.valuations = make(map[int64][2]*float64)
	}
	f.valuations[statementID] = [2]*float64{per, pbr}
	return nil
}

func TestUpdaterRun(t *testing.T) {
	annual := stmt(2023, 0, store.ReportAnnual, statement.FactSet{
		statement.NetIncome:   1_000_000_000,
		statement.TotalEquity: 10_000_000_000,
	})
	annual.ID = 1

	fs := &fakeValStore{
		companies: []store.Company{{ID: 1, StockCode: "005930"}},
		stmts:     []*store.Statement{annual},
	}
	src := &fakeCapSource{snap: market.Snapshot{MarketCap: 15_000_000_000}}
	u := NewUpdater(fs, NewCalculator(src, nil))

	sum, err := u.Run(context.Background(), "005930")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Updated)

	v, ok := fs.valuations[1]
	require.True(t, ok)
	require.NotNil(t, v[0])
	assert.Equal(t, 15.0, *v[0])
	require.NotNil(t, v[1])
	assert.Equal(t, 1.5, *v[1])
}

func TestUpdaterCountsUnresolved(t *testing.T) {
	bare := stmt(2023, 0, store.ReportAnnual, statement.FactSet{})
	bare.ID = 2

	fs := &fakeValStore{
		companies: []store.Company{{ID: 1, StockCode: "005930"}},
		stmts:     []*store.Statement{bare},
	}
	src := &fakeCapSource{err: market.ErrNoTradingData}
	u := NewUpdater(fs, NewCalculator(src, nil))

	sum, err := u.Run(context.Background(), "005930")
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Updated)
	assert.Equal(t, 1, sum.Unresolved)
	assert.Empty(t, fs.valuations)
}

func TestUpdaterUnknownStockCode(t *testing.T) {
	u := NewUpdater(&fakeValStore{}, NewCalculator(nil, nil))
	_, err := u.Run(context.Background(), "999999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stock code")
}
