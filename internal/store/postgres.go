package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/1992jhlee/agent-vi/internal/db"
)

// PostgresStore persists the collection state using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id         BIGSERIAL PRIMARY KEY,
	stock_code TEXT NOT NULL UNIQUE,
	corp_code  TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	sector     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS financial_statements (
	id                  BIGSERIAL PRIMARY KEY,
	company_id          BIGINT NOT NULL REFERENCES companies(id),
	fiscal_year         INT NOT NULL,
	fiscal_quarter      INT NOT NULL DEFAULT 0,
	report_type         TEXT NOT NULL,
	revenue             BIGINT,
	operating_income    BIGINT,
	net_income          BIGINT,
	total_assets        BIGINT,
	total_liabilities   BIGINT,
	total_equity        BIGINT,
	current_assets      BIGINT,
	current_liabilities BIGINT,
	inventories         BIGINT,
	operating_cash_flow BIGINT,
	investing_cash_flow BIGINT,
	financing_cash_flow BIGINT,
	capex               BIGINT,
	cashflow_converted  BOOLEAN NOT NULL DEFAULT FALSE,
	per                 DOUBLE PRECISION,
	pbr                 DOUBLE PRECISION,
	provenance          JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (company_id, fiscal_year, fiscal_quarter, report_type)
);

CREATE INDEX IF NOT EXISTS idx_statements_company_year
	ON financial_statements (company_id, fiscal_year);

CREATE TABLE IF NOT EXISTS collection_runs (
	id          TEXT PRIMARY KEY,
	stock_code  TEXT NOT NULL DEFAULT '',
	collected   INT NOT NULL DEFAULT 0,
	skipped     INT NOT NULL DEFAULT 0,
	failed      INT NOT NULL DEFAULT 0,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);
`

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// UpsertCompany inserts or updates a company keyed by stock code and
// returns its id.
func (s *PostgresStore) UpsertCompany(ctx context.Context, c Company) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO companies (stock_code, corp_code, name, sector)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (stock_code) DO UPDATE
		 SET corp_code = EXCLUDED.corp_code, name = EXCLUDED.name, sector = EXCLUDED.sector
		 RETURNING id`,
		c.StockCode, c.CorpCode, c.Name, c.Sector,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert company %s", c.StockCode)
	}
	return id, nil
}

// BulkUpsertCompanies loads a company universe in one round trip.
func (s *PostgresStore) BulkUpsertCompanies(ctx context.Context, companies []Company) (int64, error) {
	rows := make([][]any, 0, len(companies))
	for _, c := range companies {
		rows = append(rows, []any{c.StockCode, c.CorpCode, c.Name, c.Sector})
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "companies",
		Columns:      []string{"stock_code", "corp_code", "name", "sector"},
		ConflictKeys: []string{"stock_code"},
	}, rows)
}

// GetCompanyByStockCode returns the company, or nil when unknown.
func (s *PostgresStore) GetCompanyByStockCode(ctx context.Context, stockCode string) (*Company, error) {
	var c Company
	err := s.pool.QueryRow(ctx,
		`SELECT id, stock_code, corp_code, name, sector, created_at
		 FROM companies WHERE stock_code = $1`,
		stockCode,
	).Scan(&c.ID, &c.StockCode, &c.CorpCode, &c.Name, &c.Sector, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company %s", stockCode)
	}
	return &c, nil
}

// ListCompanies returns every company ordered by stock code.
func (s *PostgresStore) ListCompanies(ctx context.Context) ([]Company, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, stock_code, corp_code, name, sector, created_at
		 FROM companies ORDER BY stock_code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var out []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.StockCode, &c.CorpCode, &c.Name, &c.Sector, &c.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const statementColumns = `id, company_id, fiscal_year, fiscal_quarter, report_type,
	revenue, operating_income, net_income,
	total_assets, total_liabilities, total_equity,
	current_assets, current_liabilities, inventories,
	operating_cash_flow, investing_cash_flow, financing_cash_flow, capex,
	cashflow_converted, per, pbr, provenance, created_at, updated_at`

// UpsertStatement writes one reporting period, replacing facts and
// provenance on conflict. Valuation columns are preserved on update so
// a re-collection does not wipe computed metrics.
func (s *PostgresStore) UpsertStatement(ctx context.Context, st *Statement) error {
	prov, err := json.Marshal(st.Provenance)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal provenance")
	}

	args := []any{st.CompanyID, st.FiscalYear, st.FiscalQuarter, string(st.ReportType)}
	args = append(args, factArgs(st.Facts)...)
	args = append(args, st.CashflowConverted, prov)

	err = s.pool.QueryRow(ctx,
		`INSERT INTO financial_statements (
			company_id, fiscal_year, fiscal_quarter, report_type,
			revenue, operating_income, net_income,
			total_assets, total_liabilities, total_equity,
			current_assets, current_liabilities, inventories,
			operating_cash_flow, investing_cash_flow, financing_cash_flow, capex,
			cashflow_converted, provenance
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (company_id, fiscal_year, fiscal_quarter, report_type) DO UPDATE SET
			revenue = EXCLUDED.revenue,
			operating_income = EXCLUDED.operating_income,
			net_income = EXCLUDED.net_income,
			total_assets = EXCLUDED.total_assets,
			total_liabilities = EXCLUDED.total_liabilities,
			total_equity = EXCLUDED.total_equity,
			current_assets = EXCLUDED.current_assets,
			current_liabilities = EXCLUDED.current_liabilities,
			inventories = EXCLUDED.inventories,
			operating_cash_flow = EXCLUDED.operating_cash_flow,
			investing_cash_flow = EXCLUDED.investing_cash_flow,
			financing_cash_flow = EXCLUDED.financing_cash_flow,
			capex = EXCLUDED.capex,
			cashflow_converted = EXCLUDED.cashflow_converted,
			provenance = EXCLUDED.provenance,
			updated_at = now()
		RETURNING id`,
		args...,
	).Scan(&st.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert statement %d/%dQ%d", st.CompanyID, st.FiscalYear, st.FiscalQuarter)
	}
	return nil
}

// GetStatement returns one period, or nil when absent.
func (s *PostgresStore) GetStatement(ctx context.Context, companyID int64, year, quarter int, rt ReportType) (*Statement, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+statementColumns+`
		 FROM financial_statements
		 WHERE company_id = $1 AND fiscal_year = $2 AND fiscal_quarter = $3 AND report_type = $4`,
		companyID, year, quarter, string(rt))

	st, err := scanStatement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get statement %d/%dQ%d", companyID, year, quarter)
	}
	return st, nil
}

// ListStatements returns every period of one company ordered by year
// and quarter.
func (s *PostgresStore) ListStatements(ctx context.Context, companyID int64) ([]*Statement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+statementColumns+`
		 FROM financial_statements
		 WHERE company_id = $1
		 ORDER BY fiscal_year, fiscal_quarter`,
		companyID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list statements %d", companyID)
	}
	return collectStatements(rows)
}

// HasStatement reports whether a period is already collected.
func (s *PostgresStore) HasStatement(ctx context.Context, companyID int64, year, quarter int, rt ReportType) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM financial_statements
			WHERE company_id = $1 AND fiscal_year = $2 AND fiscal_quarter = $3 AND report_type = $4
		)`,
		companyID, year, quarter, string(rt),
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: has statement %d/%dQ%d", companyID, year, quarter)
	}
	return exists, nil
}

// SetValuation records computed PER and PBR for one period. Nil clears
// the metric.
func (s *PostgresStore) SetValuation(ctx context.Context, statementID int64, per, pbr *float64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE financial_statements SET per = $1, pbr = $2, updated_at = now() WHERE id = $3`,
		per, pbr, statementID)
	if err != nil {
		return eris.Wrapf(err, "postgres: set valuation %d", statementID)
	}
	return nil
}

// CreateCollectionRun opens a bookkeeping record for a batch run.
func (s *PostgresStore) CreateCollectionRun(ctx context.Context, stockCode string) (*CollectionRun, error) {
	run := &CollectionRun{
		ID:        uuid.NewString(),
		StockCode: stockCode,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO collection_runs (id, stock_code, started_at) VALUES ($1, $2, $3)`,
		run.ID, run.StockCode, run.StartedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create collection run")
	}
	return run, nil
}

// FinishCollectionRun closes a run with its final counts.
func (s *PostgresStore) FinishCollectionRun(ctx context.Context, id string, collected, skipped, failed int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE collection_runs
		 SET collected = $1, skipped = $2, failed = $3, finished_at = now()
		 WHERE id = $4`,
		collected, skipped, failed, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish collection run %s", id)
	}
	return nil
}

// CoverageReport aggregates stored periods per company.
func (s *PostgresStore) CoverageReport(ctx context.Context) ([]Coverage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.stock_code, c.corp_code, c.name, c.sector, c.created_at,
			COUNT(*) FILTER (WHERE fs.report_type = 'annual'),
			COUNT(*) FILTER (WHERE fs.report_type = 'quarterly'),
			COUNT(*) FILTER (WHERE fs.fiscal_quarter = 4),
			COALESCE(MAX(fs.fiscal_year), 0)
		 FROM companies c
		 LEFT JOIN financial_statements fs ON fs.company_id = c.id
		 GROUP BY c.id
		 ORDER BY c.stock_code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: coverage report")
	}
	defer rows.Close()

	var out []Coverage
	for rows.Next() {
		var cov Coverage
		err := rows.Scan(
			&cov.Company.ID, &cov.Company.StockCode, &cov.Company.CorpCode,
			&cov.Company.Name, &cov.Company.Sector, &cov.Company.CreatedAt,
			&cov.AnnualYears, &cov.QuarterCount, &cov.Q4Synthesized, &cov.LatestYear)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan coverage")
		}
		out = append(out, cov)
	}
	return out, rows.Err()
}

func scanStatement(row pgx.Row) (*Statement, error) {
	var st Statement
	var rt string
	facts := make([]*int64, len(factColumns))
	dests := []any{&st.ID, &st.CompanyID, &st.FiscalYear, &st.FiscalQuarter, &rt}
	for i := range facts {
		dests = append(dests, &facts[i])
	}
	var prov []byte
	dests = append(dests, &st.CashflowConverted, &st.PER, &st.PBR, &prov, &st.CreatedAt, &st.UpdatedAt)

	if err := row.Scan(dests...); err != nil {
		return nil, err
	}
	st.ReportType = ReportType(rt)
	st.Facts = factsFromScan(facts)
	if len(prov) > 0 {
		if err := json.Unmarshal(prov, &st.Provenance); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal provenance")
		}
	}
	return &st, nil
}

func collectStatements(rows pgx.Rows) ([]*Statement, error) {
	defer rows.Close()
	var out []*Statement
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan statement")
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
