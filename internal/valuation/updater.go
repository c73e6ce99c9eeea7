package valuation

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/1992jhlee/agent-vi/internal/store"
)

// Store is the persistence surface the updater needs.
type Store interface {
	ListCompanies(ctx context.Context) ([]store.Company, error)
	GetCompanyByStockCode(ctx context.Context, stockCode string) (*store.Company, error)
	ListStatements(ctx context.Context, companyID int64) ([]*store.Statement, error)
	SetValuation(ctx context.Context, statementID int64, per, pbr *float64) error
}

// Summary reports one valuation pass.
type Summary struct {
	Updated    int
	Unresolved int
	Reasons    []string
}

// Updater computes and persists PER/PBR for every stored period.
type Updater struct {
	store Store
	calc  *Calculator
	log   *zap.Logger
}

func NewUpdater(st Store, calc *Calculator) *Updater {
	return &Updater{
		store: st,
		calc:  calc,
		log:   zap.L().With(zap.String("component", "valuation")),
	}
}

// Run updates one company when stockCode is set, otherwise all.
func (u *Updater) Run(ctx context.Context, stockCode string) (*Summary, error) {
	var companies []store.Company
	if stockCode != "" {
		c, err := u.store.GetCompanyByStockCode(ctx, stockCode)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, eris.Errorf("valuation: unknown stock code %s", stockCode)
		}
		companies = []store.Company{*c}
	} else {
		var err error
		companies, err = u.store.ListCompanies(ctx)
		if err != nil {
			return nil, err
		}
	}

	sum := &Summary{}
	for _, c := range companies {
		if err := u.updateCompany(ctx, c, sum); err != nil {
			return nil, eris.Wrapf(err, "valuation: company %s", c.StockCode)
		}
	}
	return sum, nil
}

// updateCompany walks periods oldest first so that an earlier period's
// freshly stored PBR can seed the implied-cap fallback of later ones.
func (u *Updater) updateCompany(ctx context.Context, c store.Company, sum *Summary) error {
	stmts, err := u.store.ListStatements(ctx, c.ID)
	if err != nil {
		return err
	}

	for _, target := range stmts {
		m := u.calc.Compute(ctx, c.StockCode, target, stmts)
		if m.PER == nil && m.PBR == nil {
			sum.Unresolved++
			sum.Reasons = append(sum.Reasons, m.Unresolved...)
			continue
		}
		if err := u.store.SetValuation(ctx, target.ID, m.PER, m.PBR); err != nil {
			return err
		}
		target.PER = m.PER
		target.PBR = m.PBR
		sum.Updated++
		u.log.Debug("valuation updated",
			zap.String("stock_code", c.StockCode),
			zap.Int("year", target.FiscalYear),
			zap.Int("quarter", target.FiscalQuarter),
			zap.String("cap_source", m.CapSource))
	}
	return nil
}
