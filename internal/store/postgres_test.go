package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1992jhlee/agent-vi/internal/statement"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetCompanyByStockCode_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, stock_code, corp_code, name, sector, created_at`).
		WithArgs("999999").
		WillReturnError(pgx.ErrNoRows)

	c, err := s.GetCompanyByStockCode(context.Background(), "999999")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCompany(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO companies .* ON CONFLICT \(stock_code\)`).
		WithArgs("005930", "00126380", "삼성전자", "전기전자").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := s.UpsertCompany(context.Background(), Company{
		StockCode: "005930",
		CorpCode:  "00126380",
		Name:      "삼성전자",
		Sector:    "전기전자",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertStatement_NullsAbsentFacts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	st := &Statement{
		CompanyID:     7,
		FiscalYear:    2023,
		FiscalQuarter: 1,
		ReportType:    ReportQuarterly,
		Facts: statement.FactSet{
			statement.Revenue:   2000,
			statement.NetIncome: 200,
		},
		Provenance: Provenance{Source: "api", FsDiv: "CFS"},
	}

	mock.ExpectQuery(`INSERT INTO financial_statements .* ON CONFLICT \(company_id, fiscal_year, fiscal_quarter, report_type\)`).
		WithArgs(
			int64(7), 2023, 1, "quarterly",
			int64(2000), nil, int64(200),
			nil, nil, nil,
			nil, nil, nil,
			nil, nil, nil, nil,
			false, pgxmock.AnyArg(),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	require.NoError(t, s.UpsertStatement(context.Background(), st))
	assert.Equal(t, int64(42), st.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetStatement_RoundTrip(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now()
	rows := pgxmock.NewRows([]string{
		"id", "company_id", "fiscal_year", "fiscal_quarter", "report_type",
		"revenue", "operating_income", "net_income",
		"total_assets", "total_liabilities", "total_equity",
		"current_assets", "current_liabilities", "inventories",
		"operating_cash_flow", "investing_cash_flow", "financing_cash_flow", "capex",
		"cashflow_converted", "per", "pbr", "provenance", "created_at", "updated_at",
	}).AddRow(
		int64(42), int64(7), 2023, 2, "quarterly",
		ptr(int64(3000)), nil, ptr(int64(300)),
		nil, nil, nil,
		nil, nil, nil,
		ptr(int64(150)), nil, nil, nil,
		true, nil, nil, []byte(`{"source":"api","fs_div":"CFS"}`), now, now,
	)

	mock.ExpectQuery(`SELECT .* FROM financial_statements`).
		WithArgs(int64(7), 2023, 2, "quarterly").
		WillReturnRows(rows)

	st, err := s.GetStatement(context.Background(), 7, 2023, 2, ReportQuarterly)
	require.NoError(t, err)
	require.NotNil(t, st)

	rev, ok := st.Facts.Get(statement.Revenue)
	require.True(t, ok)
	assert.Equal(t, int64(3000), rev)

	_, ok = st.Facts.Get(statement.OperatingIncome)
	assert.False(t, ok, "NULL column never becomes a zero fact")

	assert.True(t, st.CashflowConverted)
	assert.Equal(t, "CFS", st.Provenance.FsDiv)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetStatement_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM financial_statements`).
		WithArgs(int64(7), 2019, 4, "quarterly").
		WillReturnError(pgx.ErrNoRows)

	st, err := s.GetStatement(context.Background(), 7, 2019, 4, ReportQuarterly)
	require.NoError(t, err)
	assert.Nil(t, st)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_HasStatement(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(int64(7), 2023, 0, "annual").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.HasStatement(context.Background(), 7, 2023, 0, ReportAnnual)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetValuation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	per := -20.0
	pbr := 1.5
	mock.ExpectExec(`UPDATE financial_statements SET per = \$1, pbr = \$2`).
		WithArgs(&per, &pbr, int64(42)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.SetValuation(context.Background(), 42, &per, &pbr))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CollectionRunLifecycle(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO collection_runs`).
		WithArgs(pgxmock.AnyArg(), "005930", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE collection_runs`).
		WithArgs(10, 3, 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	run, err := s.CreateCollectionRun(context.Background(), "005930")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)

	require.NoError(t, s.FinishCollectionRun(context.Background(), run.ID, 10, 3, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func ptr[T any](v T) *T { return &v }
