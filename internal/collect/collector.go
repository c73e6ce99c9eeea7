package collect

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/1992jhlee/agent-vi/internal/dart"
	"github.com/1992jhlee/agent-vi/internal/scrape"
	"github.com/1992jhlee/agent-vi/internal/statement"
	"github.com/1992jhlee/agent-vi/internal/store"
)

// Filings fetches structured statement rows from DART.
type Filings interface {
	FetchStatement(ctx context.Context, corpCode string, year int, report dart.ReportCode) ([]statement.RawRow, error)
}

// Fallback recovers facts from the annual-report document body when the
// structured API has nothing.
type Fallback interface {
	ScrapeAnnual(ctx context.Context, corpCode string, year int) (*scrape.Result, error)
}

// Store is the persistence surface the collector needs.
type Store interface {
	ListCompanies(ctx context.Context) ([]store.Company, error)
	GetCompanyByStockCode(ctx context.Context, stockCode string) (*store.Company, error)
	HasStatement(ctx context.Context, companyID int64, year, quarter int, rt store.ReportType) (bool, error)
	UpsertStatement(ctx context.Context, st *store.Statement) error
	CreateCollectionRun(ctx context.Context, stockCode string) (*store.CollectionRun, error)
	FinishCollectionRun(ctx context.Context, id string, collected, skipped, failed int) error
}

// Options tunes a collection run.
type Options struct {
	Workers  int  // concurrent companies
	Force    bool // re-collect periods that already exist
	Years    int  // annual filings to target
	Quarters int  // non-Q4 quarterly filings to target
}

// Result is the outcome of one run.
type Result struct {
	RunID     string
	Collected int
	Skipped   int
	Failed    int
}

// Collector runs the per-company ingest pipeline. Companies proceed in
// parallel under a bounded worker pool; within one company periods are
// strictly sequential.
type Collector struct {
	filings  Filings
	fallback Fallback
	store    Store
	opts     Options
	now      func() time.Time
	log      *zap.Logger
}

func New(filings Filings, fallback Fallback, st Store, opts Options) *Collector {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Years <= 0 {
		opts.Years = 8
	}
	if opts.Quarters <= 0 {
		opts.Quarters = 8
	}
	return &Collector{
		filings:  filings,
		fallback: fallback,
		store:    st,
		opts:     opts,
		now:      time.Now,
		log:      zap.L().With(zap.String("component", "collect")),
	}
}

// Run collects one company when stockCode is set, otherwise every
// company. A period's failure is counted and logged but never aborts
// the rest of the run.
func (c *Collector) Run(ctx context.Context, stockCode string) (*Result, error) {
	var companies []store.Company
	if stockCode != "" {
		comp, err := c.store.GetCompanyByStockCode(ctx, stockCode)
		if err != nil {
			return nil, err
		}
		if comp == nil {
			return nil, eris.Errorf("collect: unknown stock code %s", stockCode)
		}
		companies = []store.Company{*comp}
	} else {
		var err error
		companies, err = c.store.ListCompanies(ctx)
		if err != nil {
			return nil, err
		}
	}

	run, err := c.store.CreateCollectionRun(ctx, stockCode)
	if err != nil {
		return nil, err
	}

	targets := PlanTargets(c.now(), c.opts.Years, c.opts.Quarters)
	res := &Result{RunID: run.ID}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for _, comp := range companies {
		g.Go(func() error {
			collected, skipped, failed := c.collectCompany(gctx, comp, targets)
			mu.Lock()
			res.Collected += collected
			res.Skipped += skipped
			res.Failed += failed
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return res, eris.Wrap(err, "collect: run aborted")
	}

	if err := c.store.FinishCollectionRun(ctx, run.ID, res.Collected, res.Skipped, res.Failed); err != nil {
		return res, err
	}
	c.log.Info("collection run finished",
		zap.String("run_id", run.ID),
		zap.Int("collected", res.Collected),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed))
	return res, nil
}

func (c *Collector) collectCompany(ctx context.Context, comp store.Company, targets []Target) (collected, skipped, failed int) {
	log := c.log.With(zap.String("stock_code", comp.StockCode))

	for _, t := range targets {
		if ctx.Err() != nil {
			return
		}

		if !c.opts.Force {
			exists, err := c.store.HasStatement(ctx, comp.ID, t.Year, t.Quarter, t.Type)
			if err != nil {
				log.Warn("existence check failed", zap.Stringer("target", t), zap.Error(err))
				failed++
				continue
			}
			if exists {
				skipped++
				continue
			}
		}

		if err := c.collectPeriod(ctx, comp, t); err != nil {
			log.Warn("period failed", zap.Stringer("target", t), zap.Error(err))
			failed++
			continue
		}
		collected++
	}
	return
}

// errNoData means neither the structured API nor the document scrape
// produced any facts for the period.
var errNoData = eris.New("collect: no data for period")

func (c *Collector) collectPeriod(ctx context.Context, comp store.Company, t Target) error {
	rows, err := c.filings.FetchStatement(ctx, comp.CorpCode, t.Year, t.ReportCode())
	if err != nil {
		return err
	}

	st := &store.Statement{
		CompanyID:     comp.ID,
		FiscalYear:    t.Year,
		FiscalQuarter: t.Quarter,
		ReportType:    t.Type,
	}

	if len(rows) > 0 {
		st.Facts = statement.Parse(rows)
		st.Provenance = store.Provenance{
			Source:      "api",
			FsDiv:       rows[0].Source,
			CollectedAt: time.Now().UTC(),
		}
	}

	// Older and smaller filers publish statements only as document
	// tables. The scrape fallback covers annual periods only; the
	// annual report is the one document with complete statements.
	if len(st.Facts) == 0 && t.Type == store.ReportAnnual && c.fallback != nil {
		res, serr := c.fallback.ScrapeAnnual(ctx, comp.CorpCode, t.Year)
		if serr != nil {
			if eris.Is(serr, scrape.ErrReportNotFound) {
				return errNoData
			}
			return serr
		}
		if len(res.Facts) > 0 {
			units := make(map[string]string, len(res.Units))
			for f, src := range res.Units {
				units[string(f)] = string(src)
			}
			st.Facts = res.Facts
			st.Provenance = store.Provenance{
				Source:      "scrape",
				Units:       units,
				CollectedAt: time.Now().UTC(),
			}
		}
	}

	if len(st.Facts) == 0 {
		return errNoData
	}
	return c.store.UpsertStatement(ctx, st)
}
