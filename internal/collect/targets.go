// Package collect orchestrates batch ingestion: it plans which
// reporting periods each company needs, fetches and parses them, and
// persists the results.
package collect

import (
	"fmt"
	"time"

	"github.com/1992jhlee/agent-vi/internal/dart"
	"github.com/1992jhlee/agent-vi/internal/store"
)

// Target is one reporting period to collect. Quarter is 0 for annual
// targets.
type Target struct {
	Year    int
	Quarter int
	Type    store.ReportType
}

func (t Target) String() string {
	if t.Type == store.ReportAnnual {
		return fmt.Sprintf("%d annual", t.Year)
	}
	return fmt.Sprintf("%dQ%d", t.Year, t.Quarter)
}

// ReportCode returns the DART filing code covering the target.
func (t Target) ReportCode() dart.ReportCode {
	if t.Type == store.ReportAnnual {
		return dart.ReportAnnual
	}
	code, _ := dart.ReportCodeForQuarter(t.Quarter)
	return code
}

// PlanTargets lists the periods worth collecting as of now: the most
// recent completed fiscal years' annual filings plus the most recent
// first-to-third quarter filings. Q4 is never fetched, it does not
// exist as a filing and is synthesized during reconciliation.
func PlanTargets(now time.Time, years, quarters int) []Target {
	var targets []Target

	latestYear := now.Year() - 1
	for y := latestYear; y > latestYear-years; y-- {
		targets = append(targets, Target{Year: y, Type: store.ReportAnnual})
	}

	// Quarterly filings lag about 45 days; the most recent plausibly
	// filed quarter is the one before the current calendar quarter.
	year := now.Year()
	quarter := (int(now.Month())-1)/3 + 1
	for len(targets) < years+quarters {
		quarter--
		if quarter < 1 {
			quarter = 4
			year--
		}
		if quarter == 4 {
			continue
		}
		targets = append(targets, Target{Year: year, Quarter: quarter, Type: store.ReportQuarterly})
	}
	return targets
}
