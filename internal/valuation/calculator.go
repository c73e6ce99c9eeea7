// Package valuation derives PER and PBR for stored reporting periods
// by combining standalone financial facts with market capitalization.
package valuation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/1992jhlee/agent-vi/internal/market"
	"github.com/1992jhlee/agent-vi/internal/statement"
	"github.com/1992jhlee/agent-vi/internal/store"
)

// MarketCapSource yields a market snapshot for a ticker on or near a
// date. Both the public data portal and KRX clients satisfy it.
type MarketCapSource interface {
	GetMarketCap(ctx context.Context, ticker string, date time.Time) (market.Snapshot, error)
}

// Metrics is the valuation outcome for one period. A nil ratio is
// unresolved, never zero; Unresolved carries the reason for each one.
type Metrics struct {
	PER        *float64
	PBR        *float64
	MarketCap  int64
	CapSource  string // "public_data", "krx" or "implied"
	Unresolved []string
}

// Calculator computes metrics with a market-cap source cascade:
// public data portal first, KRX second, and as a last resort a market
// cap implied from a previously computed PBR times current equity.
type Calculator struct {
	primary   MarketCapSource
	secondary MarketCapSource
	log       *zap.Logger
}

func NewCalculator(primary, secondary MarketCapSource) *Calculator {
	return &Calculator{
		primary:   primary,
		secondary: secondary,
		log:       zap.L().With(zap.String("component", "valuation")),
	}
}

// PeriodEnd returns the date whose market close prices a period. Using
// the period's own end keeps the ratio free of look-ahead.
func PeriodEnd(year, quarter int) time.Time {
	switch quarter {
	case 1:
		return time.Date(year, 3, 31, 0, 0, 0, 0, time.UTC)
	case 2:
		return time.Date(year, 6, 30, 0, 0, 0, 0, time.UTC)
	case 3:
		return time.Date(year, 9, 30, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC)
	}
}

// Compute derives PER and PBR for target. history holds the company's
// other periods: the same year's earlier quarters feed the cumulative
// net income for quarterly PER, and earlier periods with a stored PBR
// feed the implied market cap fallback.
func (c *Calculator) Compute(ctx context.Context, ticker string, target *store.Statement, history []*store.Statement) *Metrics {
	m := &Metrics{}
	asOf := PeriodEnd(target.FiscalYear, target.FiscalQuarter)

	equity, hasEquity := target.Facts.Get(statement.TotalEquity)

	mcap, capSource := c.marketCap(ctx, ticker, asOf, equity, hasEquity, history)
	if mcap == 0 {
		m.Unresolved = append(m.Unresolved, "market cap unavailable from any source")
		return m
	}
	m.MarketCap = mcap
	m.CapSource = capSource

	// PBR needs positive equity.
	switch {
	case !hasEquity:
		m.Unresolved = append(m.Unresolved, "pbr: total equity missing")
	case equity <= 0:
		m.Unresolved = append(m.Unresolved, "pbr: total equity not positive")
	default:
		pbr := float64(mcap) / float64(equity)
		m.PBR = &pbr
	}

	income, reason := annualizedNetIncome(target, history)
	switch {
	case reason != "":
		m.Unresolved = append(m.Unresolved, "per: "+reason)
	case income == 0:
		m.Unresolved = append(m.Unresolved, "per: net income is zero")
	default:
		// Negative income keeps its sign, a loss-making company has a
		// negative PER rather than none.
		per := float64(mcap) / income
		m.PER = &per
	}
	return m
}

// marketCap runs the source cascade.
func (c *Calculator) marketCap(ctx context.Context, ticker string, asOf time.Time, equity int64, hasEquity bool, history []*store.Statement) (int64, string) {
	if c.primary != nil {
		if snap, err := c.primary.GetMarketCap(ctx, ticker, asOf); err == nil && snap.MarketCap > 0 {
			return snap.MarketCap, "public_data"
		} else if err != nil {
			c.log.Debug("primary market cap failed", zap.String("ticker", ticker), zap.Error(err))
		}
	}
	if c.secondary != nil {
		if snap, err := c.secondary.GetMarketCap(ctx, ticker, asOf); err == nil && snap.MarketCap > 0 {
			return snap.MarketCap, "krx"
		} else if err != nil {
			c.log.Debug("secondary market cap failed", zap.String("ticker", ticker), zap.Error(err))
		}
	}
	if hasEquity && equity > 0 {
		if pbr := latestPBR(history, asOf); pbr > 0 {
			return int64(pbr * float64(equity)), "implied"
		}
	}
	return 0, ""
}

// latestPBR returns the most recent stored PBR from periods ending
// before asOf.
func latestPBR(history []*store.Statement, asOf time.Time) float64 {
	var best *store.Statement
	var bestEnd time.Time
	for _, st := range history {
		if st.PBR == nil || *st.PBR <= 0 {
			continue
		}
		end := PeriodEnd(st.FiscalYear, st.FiscalQuarter)
		if !end.Before(asOf) {
			continue
		}
		if best == nil || end.After(bestEnd) {
			best, bestEnd = st, end
		}
	}
	if best == nil {
		return 0
	}
	return *best.PBR
}

// annualizedNetIncome returns the net income figure PER divides into.
// Annual and Q4 periods use the whole-year income. Q1 through Q3
// annualize the cumulative income through that quarter; a single
// quarter's income alone would bake seasonal distortion into the
// ratio. A non-empty reason means the figure cannot be produced.
func annualizedNetIncome(target *store.Statement, history []*store.Statement) (float64, string) {
	if target.ReportType == store.ReportAnnual {
		ni, ok := target.Facts.Get(statement.NetIncome)
		if !ok {
			return 0, "net income missing"
		}
		return float64(ni), ""
	}

	q := target.FiscalQuarter
	total, reason := cumulativeNetIncome(target, history, q)
	if reason != "" {
		return 0, reason
	}
	// For Q4 the factor is 1 and this is exactly the whole-year income.
	return total * 4 / float64(q), ""
}

// cumulativeNetIncome sums standalone net income for quarters 1..q of
// the target's fiscal year. Every quarter must be present.
func cumulativeNetIncome(target *store.Statement, history []*store.Statement, q int) (float64, string) {
	byQuarter := make(map[int]*store.Statement, 4)
	byQuarter[target.FiscalQuarter] = target
	for _, st := range history {
		if st.FiscalYear == target.FiscalYear && st.ReportType == store.ReportQuarterly {
			byQuarter[st.FiscalQuarter] = st
		}
	}

	var total int64
	for i := 1; i <= q; i++ {
		st, ok := byQuarter[i]
		if !ok {
			return 0, fmt.Sprintf("Q%d net income missing for cumulative figure", i)
		}
		ni, ok := st.Facts.Get(statement.NetIncome)
		if !ok {
			return 0, fmt.Sprintf("Q%d net income missing for cumulative figure", i)
		}
		total += ni
	}
	return float64(total), ""
}
