// Package reconcile converts raw per-filing facts into
// standalone-per-quarter facts and synthesizes the unreported fourth
// quarter from the annual filing.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/1992jhlee/agent-vi/internal/statement"
	"github.com/1992jhlee/agent-vi/internal/store"
)

// Store is the persistence surface the engine needs.
type Store interface {
	ListCompanies(ctx context.Context) ([]store.Company, error)
	GetCompanyByStockCode(ctx context.Context, stockCode string) (*store.Company, error)
	ListStatements(ctx context.Context, companyID int64) ([]*store.Statement, error)
	UpsertStatement(ctx context.Context, st *store.Statement) error
}

// Summary reports what one reconciliation pass did.
type Summary struct {
	Converted   int // periods whose cash-flow facts became standalone
	Synthesized int // Q4 records written
	Skipped     int // periods skipped with a warning
	Warnings    []string
}

func (s *Summary) warnf(format string, args ...any) {
	s.Skipped++
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

// Engine owns the standalone-normalized representation of cash-flow
// facts. No other component writes converted or synthesized periods.
type Engine struct {
	store  Store
	dryRun bool
	log    *zap.Logger
}

type Option func(*Engine)

// WithDryRun computes and reports every change without writing.
func WithDryRun() Option {
	return func(e *Engine) { e.dryRun = true }
}

func New(st Store, opts ...Option) *Engine {
	e := &Engine{
		store: st,
		log:   zap.L().With(zap.String("component", "reconcile")),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run reconciles one company when stockCode is set, otherwise every
// company. Companies are processed sequentially; both passes here
// read-then-write the same period rows, so there is exactly one writer
// per company.
func (e *Engine) Run(ctx context.Context, stockCode string) (*Summary, error) {
	var companies []store.Company
	if stockCode != "" {
		c, err := e.store.GetCompanyByStockCode(ctx, stockCode)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, eris.Errorf("reconcile: unknown stock code %s", stockCode)
		}
		companies = []store.Company{*c}
	} else {
		var err error
		companies, err = e.store.ListCompanies(ctx)
		if err != nil {
			return nil, err
		}
	}

	total := &Summary{}
	for _, c := range companies {
		sum, err := e.ReconcileCompany(ctx, c)
		if err != nil {
			return nil, eris.Wrapf(err, "reconcile: company %s", c.StockCode)
		}
		total.Converted += sum.Converted
		total.Synthesized += sum.Synthesized
		total.Skipped += sum.Skipped
		total.Warnings = append(total.Warnings, sum.Warnings...)
	}
	return total, nil
}

// ReconcileCompany runs both passes over every stored fiscal year of
// one company: cumulative-to-standalone conversion first, then Q4
// synthesis against the converted quarters.
func (e *Engine) ReconcileCompany(ctx context.Context, c store.Company) (*Summary, error) {
	stmts, err := e.store.ListStatements(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	byYear := make(map[int]*fiscalYear)
	var years []int
	for _, st := range stmts {
		fy, ok := byYear[st.FiscalYear]
		if !ok {
			fy = &fiscalYear{year: st.FiscalYear}
			byYear[st.FiscalYear] = fy
			years = append(years, st.FiscalYear)
		}
		switch {
		case st.ReportType == store.ReportAnnual:
			fy.annual = st
		case st.FiscalQuarter >= 1 && st.FiscalQuarter <= 4:
			fy.quarters[st.FiscalQuarter-1] = st
		}
	}

	sum := &Summary{}
	for _, year := range years {
		fy := byYear[year]
		if err := e.convertYear(ctx, c, fy, sum); err != nil {
			return nil, err
		}
		if err := e.synthesizeQ4(ctx, c, fy, sum); err != nil {
			return nil, err
		}
	}
	return sum, nil
}

type fiscalYear struct {
	year     int
	annual   *store.Statement
	quarters [4]*store.Statement
}

// convertYear rewrites cumulative cash-flow facts as standalone values
// for quarters 2 and 3. Baselines come from a snapshot taken before any
// write, so converting Q2 cannot corrupt Q3's subtraction. Already
// converted quarters contribute their standalone values to the
// reconstructed baseline, which makes a rerun subtract the same
// cumulative totals and change nothing.
func (e *Engine) convertYear(ctx context.Context, c store.Company, fy *fiscalYear, sum *Summary) error {
	// Cumulative value through quarter q, per fact, as of the start of
	// this pass. For an unconverted quarter that is its stored value;
	// for a converted one it is the standalone sum through q.
	cumulative := func(q int, f statement.Fact) (int64, bool) {
		st := fy.quarters[q-1]
		if st == nil {
			return 0, false
		}
		if !st.CashflowConverted {
			return st.Facts.Get(f)
		}
		var total int64
		for i := 1; i <= q; i++ {
			prev := fy.quarters[i-1]
			if prev == nil {
				return 0, false
			}
			v, ok := prev.Facts.Get(f)
			if !ok {
				return 0, false
			}
			total += v
		}
		return total, true
	}

	type baseline map[statement.Fact]int64
	baselines := make(map[int]baseline, 3)
	for q := 1; q <= 3; q++ {
		b := make(baseline)
		for _, f := range statement.CashFlowFacts {
			if v, ok := cumulative(q, f); ok {
				b[f] = v
			}
		}
		baselines[q] = b
	}

	// Q1 cumulative equals standalone, only the flag changes.
	if q1 := fy.quarters[0]; q1 != nil && !q1.CashflowConverted {
		q1.CashflowConverted = true
		if err := e.write(ctx, q1); err != nil {
			return err
		}
		sum.Converted++
	}

	for q := 2; q <= 3; q++ {
		st := fy.quarters[q-1]
		if st == nil || st.CashflowConverted {
			continue
		}
		if fy.quarters[q-2] == nil {
			sum.warnf("%s %dQ%d: previous quarter missing, cash flow kept cumulative", c.StockCode, fy.year, q)
			continue
		}
		for _, f := range statement.CashFlowFacts {
			cur, ok := st.Facts.Get(f)
			if !ok {
				continue
			}
			base, ok := baselines[q-1][f]
			if !ok {
				continue
			}
			st.Facts[f] = cur - base
		}
		st.CashflowConverted = true
		if err := e.write(ctx, st); err != nil {
			return err
		}
		sum.Converted++
	}
	return nil
}

// synthesizeQ4 derives the unreported fourth quarter from the annual
// filing. Income and cash-flow facts are annual minus the standalone
// sum of the first three quarters, balance-sheet levels are copied.
// All of Q1 through Q3 plus the annual filing must be present, a
// missing quarter skips the year with a warning and writes nothing.
func (e *Engine) synthesizeQ4(ctx context.Context, c store.Company, fy *fiscalYear, sum *Summary) error {
	if fy.annual == nil {
		return nil
	}
	if fy.quarters[3] != nil {
		return nil
	}
	for q := 1; q <= 3; q++ {
		if fy.quarters[q-1] == nil {
			sum.warnf("%s %d: Q%d missing, Q4 not synthesized", c.StockCode, fy.year, q)
			return nil
		}
	}

	facts := make(statement.FactSet)

	// annual − (Q1+Q2+Q3), each term required per fact
	deduct := func(f statement.Fact) {
		annual, ok := fy.annual.Facts.Get(f)
		if !ok {
			return
		}
		var through int64
		for q := 1; q <= 3; q++ {
			v, ok := fy.quarters[q-1].Facts.Get(f)
			if !ok {
				return
			}
			through += v
		}
		facts[f] = annual - through
	}
	for _, f := range statement.IncomeFacts {
		deduct(f)
	}
	for _, f := range statement.CashFlowFacts {
		deduct(f)
	}
	for _, f := range statement.BalanceFacts {
		if v, ok := fy.annual.Facts.Get(f); ok {
			facts[f] = v
		}
	}

	q4 := &store.Statement{
		CompanyID:         c.ID,
		FiscalYear:        fy.year,
		FiscalQuarter:     4,
		ReportType:        store.ReportQuarterly,
		Facts:             facts,
		CashflowConverted: true,
		Provenance: store.Provenance{
			Source:      "synthesized",
			CollectedAt: time.Now().UTC(),
		},
	}
	if err := e.write(ctx, q4); err != nil {
		return err
	}
	fy.quarters[3] = q4
	sum.Synthesized++
	e.log.Info("q4 synthesized",
		zap.String("stock_code", c.StockCode),
		zap.Int("year", fy.year),
		zap.Int("facts", len(facts)))
	return nil
}

func (e *Engine) write(ctx context.Context, st *store.Statement) error {
	if e.dryRun {
		e.log.Info("dry run, skipping write",
			zap.Int64("company_id", st.CompanyID),
			zap.Int("year", st.FiscalYear),
			zap.Int("quarter", st.FiscalQuarter))
		return nil
	}
	return e.store.UpsertStatement(ctx, st)
}
