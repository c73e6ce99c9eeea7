package scrape

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/1992jhlee/agent-vi/internal/dart"
)

// DocumentSource provides disclosure listings and raw filing documents.
type DocumentSource interface {
	FetchList(ctx context.Context, corpCode, begin, end, kind string) ([]dart.Disclosure, error)
	FetchDocument(ctx context.Context, receiptNo string) ([]byte, error)
}

// Scraper resolves a company's annual report and extracts facts from
// its document body.
type Scraper struct {
	src DocumentSource
	log *zap.Logger
}

func NewScraper(src DocumentSource) *Scraper {
	return &Scraper{
		src: src,
		log: zap.L().With(zap.String("component", "scrape")),
	}
}

// ErrReportNotFound means no annual report for the fiscal year exists
// in the disclosure list.
var ErrReportNotFound = eris.New("scrape: annual report not found")

// FindAnnualReport returns the receipt number of the annual report
// covering the given fiscal year. Annual reports for year N are filed
// in the first half of year N+1.
func (s *Scraper) FindAnnualReport(ctx context.Context, corpCode string, year int) (string, error) {
	begin := fmt.Sprintf("%d0101", year+1)
	end := fmt.Sprintf("%d0630", year+1)

	disclosures, err := s.src.FetchList(ctx, corpCode, begin, end, "A")
	if err != nil {
		return "", eris.Wrap(err, "scrape: list annual reports")
	}

	want := fmt.Sprintf("(%d.12)", year)
	for _, d := range disclosures {
		if strings.Contains(d.ReportName, "사업보고서") && strings.Contains(d.ReportName, want) {
			return d.ReceiptNo, nil
		}
	}
	return "", ErrReportNotFound
}

// ScrapeAnnual locates the annual report for the fiscal year and parses
// its statement sections.
func (s *Scraper) ScrapeAnnual(ctx context.Context, corpCode string, year int) (*Result, error) {
	receiptNo, err := s.FindAnnualReport(ctx, corpCode, year)
	if err != nil {
		return nil, err
	}

	raw, err := s.src.FetchDocument(ctx, receiptNo)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: fetch document %s", receiptNo)
	}

	res, err := ParseDocument(raw)
	if err != nil {
		return nil, err
	}
	s.log.Info("annual report scraped",
		zap.String("corp_code", corpCode),
		zap.Int("year", year),
		zap.String("receipt_no", receiptNo),
		zap.Int("facts", len(res.Facts)))
	return res, nil
}
