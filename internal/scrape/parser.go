// Package scrape recovers financial facts from the annual-report
// document body when the structured statement API returns nothing.
// Older and smaller filers publish statements only as document tables.
package scrape

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/1992jhlee/agent-vi/internal/statement"
)

// Result holds facts scraped from a filing document plus the unit
// provenance of each one, so downstream consumers can tell apart
// declared units from magnitude guesses.
type Result struct {
	Facts statement.FactSet
	Units map[statement.Fact]UnitSource
}

// ParseDocument extracts financial facts from a raw annual-report
// document. Sections that cannot be located are skipped; an empty
// result is not an error, only an unreadable document is.
func ParseDocument(raw []byte) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, eris.Wrap(err, "scrape: parse document")
	}

	log := zap.L().With(zap.String("component", "scrape"))
	res := &Result{
		Facts: make(statement.FactSet),
		Units: make(map[statement.Fact]UnitSource),
	}

	for _, spec := range sections {
		heading, table := locateSection(doc, spec)
		if table == nil {
			log.Debug("section not found", zap.String("section", spec.name))
			continue
		}
		multiplier, detected := detectUnit(heading, table)
		extractSection(table, spec, multiplier, detected, res)
		log.Debug("section scraped",
			zap.String("section", spec.name),
			zap.Bool("unit_detected", detected),
			zap.Int64("multiplier", multiplier))
	}
	return res, nil
}

// extractSection scans the section table once per fact pattern, in
// specificity order, taking the first matching row for each fact.
func extractSection(table *goquery.Selection, spec sectionSpec, multiplier int64, detected bool, res *Result) {
	rows := table.Find("tr")
	for _, fp := range spec.facts {
		if _, ok := res.Facts[fp.fact]; ok {
			continue
		}
		rows.EachWithBreak(func(_ int, row *goquery.Selection) bool {
			cells := row.Find("td,th,tu,te")
			if cells.Length() < 2 {
				return true
			}
			label := normalizeLabel(cells.Eq(0).Text())
			if !fp.re.MatchString(label) {
				return true
			}
			raw, ok := parseAmount(valueCell(cells))
			if !ok {
				return true
			}
			value, source := scaleAmount(raw, multiplier, detected)
			if fp.absolute && value < 0 {
				value = -value
			}
			res.Facts[fp.fact] = value
			res.Units[fp.fact] = source
			return false
		})
	}
}

// valueCell picks the current-period column. Statement tables carry the
// current period second to last, with the prior period in the final
// column; two-column tables have only label and value.
func valueCell(cells *goquery.Selection) string {
	n := cells.Length()
	if n >= 3 {
		return cells.Eq(n - 2).Text()
	}
	return cells.Eq(n - 1).Text()
}

// normalizeLabel collapses whitespace and strips list numbering from a
// row label so anchored patterns match. Filings letter-space labels and
// prefix totals inconsistently with roman or arabic numerals.
func normalizeLabel(text string) string {
	var b []rune
	for _, r := range text {
		switch r {
		case ' ', '\t', '\n', '\r', ' ':
			continue
		}
		b = append(b, r)
	}
	start := 0
	for start < len(b) {
		switch r := b[start]; {
		case r >= '0' && r <= '9', r == '.', r == ')', r == '(',
			r == 'I', r == 'V', r == 'X',
			r == 'Ⅰ', r == 'Ⅱ', r == 'Ⅲ', r == 'Ⅳ', r == 'Ⅴ',
			r == 'Ⅵ', r == 'Ⅶ', r == 'Ⅷ', r == 'Ⅸ', r == 'Ⅹ':
			start++
		default:
			return string(b[start:])
		}
	}
	return ""
}
