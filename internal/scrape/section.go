package scrape

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/1992jhlee/agent-vi/internal/statement"
)

type factPattern struct {
	fact statement.Fact
	re   *regexp.Regexp
	// absolute forces a positive sign. Capex rows carry the cash-outflow
	// sign in the filing but the fact is reported as a magnitude.
	absolute bool
}

// sectionSpec describes how to find one financial-statement section in a
// filing document and which row labels carry facts. Fact patterns are
// ordered by specificity so that, for example, the parent-company net
// income row wins over the generic one when both appear.
type sectionSpec struct {
	name    string
	heading *regexp.Regexp
	exclude *regexp.Regexp
	// required keywords validate a candidate table during the fallback
	// scan when no heading matched.
	required []string
	// siblingMinRows filters footnote tables during the sibling pass.
	// forwardMinRows is stricter because the wider pass sees more of the
	// document and false positives get likelier.
	siblingMinRows int
	forwardMinRows int
	facts          []factPattern
}

var excludeHeading = regexp.MustCompile(`요약|주석|상세`)

var sections = []sectionSpec{
	{
		name:           "income",
		heading:        regexp.MustCompile(`(연결\s*)?(포괄\s*)?손익계산서`),
		exclude:        excludeHeading,
		required:       []string{"영업이익"},
		siblingMinRows: 10,
		forwardMinRows: 15,
		facts: []factPattern{
			{fact: statement.Revenue, re: regexp.MustCompile(`매출액|영업수익|수수료수익`)},
			{fact: statement.OperatingIncome, re: regexp.MustCompile(`영업이익|순영업손익`)},
			{fact: statement.NetIncome, re: regexp.MustCompile(`(지배기업|당사).*(당기순이익|분기순이익|연결총당기순이익)`)},
			{fact: statement.NetIncome, re: regexp.MustCompile(`당기순이익|분기순이익|반기순이익`)},
		},
	},
	{
		name:           "balance",
		heading:        regexp.MustCompile(`(연결\s*)?재무상태표|(연결\s*)?대차대조표`),
		exclude:        excludeHeading,
		required:       []string{"자산총계", "부채총계"},
		siblingMinRows: 10,
		forwardMinRows: 15,
		facts: []factPattern{
			{fact: statement.TotalAssets, re: regexp.MustCompile(`^자산총계`)},
			{fact: statement.TotalLiabilities, re: regexp.MustCompile(`^부채총계`)},
			{fact: statement.TotalEquity, re: regexp.MustCompile(`^자본총계`)},
			{fact: statement.CurrentAssets, re: regexp.MustCompile(`^유동자산`)},
			{fact: statement.CurrentLiabilities, re: regexp.MustCompile(`^유동부채`)},
			{fact: statement.Inventories, re: regexp.MustCompile(`^재고자산`)},
		},
	},
	{
		name:           "cashflow",
		heading:        regexp.MustCompile(`(연결\s*)?현금흐름표`),
		exclude:        excludeHeading,
		required:       []string{"영업활동"},
		siblingMinRows: 10,
		forwardMinRows: 15,
		facts: []factPattern{
			{fact: statement.OperatingCashFlow, re: regexp.MustCompile(`영업활동.*현금흐름`)},
			{fact: statement.InvestingCashFlow, re: regexp.MustCompile(`투자활동.*현금흐름`)},
			{fact: statement.FinancingCashFlow, re: regexp.MustCompile(`재무활동.*현금흐름`)},
			{fact: statement.Capex, re: regexp.MustCompile(`유형자산의?\s*취득`), absolute: true},
		},
	},
}

// locateSection finds the statement table for a section. It first looks
// for a matching heading and takes the nearest following table that is
// large enough, then falls back to scanning every table in the document
// for one that validates against the section's keywords.
func locateSection(doc *goquery.Document, spec sectionSpec) (heading, table *goquery.Selection) {
	doc.Find("p,h1,h2,h3,h4,span,div").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.TrimSpace(sel.Text())
		if len(text) > 80 || !spec.heading.MatchString(text) || spec.exclude.MatchString(text) {
			return true
		}
		if t := tableAfter(sel, spec.siblingMinRows, spec.forwardMinRows); t != nil {
			heading, table = sel, t
			return false
		}
		return true
	})
	if table != nil {
		return heading, table
	}

	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		if validateTable(t, spec.required) {
			table = t
			return false
		}
		return true
	})
	return nil, table
}

// tableAfter returns the first sufficiently large table following the
// heading: siblings first, then a bounded forward walk through the rest
// of the document.
func tableAfter(heading *goquery.Selection, siblingMinRows, forwardMinRows int) *goquery.Selection {
	var found *goquery.Selection
	heading.NextAll().EachWithBreak(func(i int, sib *goquery.Selection) bool {
		if i >= 20 {
			return false
		}
		candidate := sib
		if !sib.Is("table") {
			candidate = sib.Find("table").First()
			if candidate.Length() == 0 {
				return true
			}
		}
		if candidate.Find("tr").Length() > siblingMinRows {
			found = candidate
			return false
		}
		return true
	})
	if found != nil {
		return found
	}

	heading.Parent().NextAll().EachWithBreak(func(i int, sib *goquery.Selection) bool {
		if i >= 40 {
			return false
		}
		sib.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
			if t.Find("tr").Length() > forwardMinRows {
				found = t
				return false
			}
			return true
		})
		return found == nil
	})
	return found
}

// validateTable checks whether a table plausibly holds a financial
// statement: enough rows, a plausible column count, comma-grouped
// numbers in its leading rows, and the section's keywords in its text.
func validateTable(table *goquery.Selection, required []string) bool {
	rows := table.Find("tr")
	if rows.Length() < 6 {
		return false
	}

	cols := rows.Eq(0).Find("td,th,tu,te").Length()
	if cols < 2 || cols > 12 {
		return false
	}

	numeric := 0
	limit := rows.Length()
	if limit > 15 {
		limit = 15
	}
	for i := 0; i < limit; i++ {
		if hasGroupedNumber(rows.Eq(i).Text()) {
			numeric++
		}
	}
	if numeric < 3 {
		return false
	}

	text := table.Text()
	for _, kw := range required {
		if !strings.Contains(text, kw) {
			return false
		}
	}
	return true
}
