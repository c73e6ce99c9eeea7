package scrape

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// UnitSource records how a scraped amount was converted to won.
type UnitSource string

const (
	// UnitDetected means the table or its preamble declared the unit.
	UnitDetected UnitSource = "detected"
	// UnitHeuristicMillions means no unit was declared and the amount's
	// magnitude implied it was expressed in millions.
	UnitHeuristicMillions UnitSource = "heuristic_millions"
	// UnitAssumedWon means no unit was declared and the amount was large
	// enough to be taken as raw won.
	UnitAssumedWon UnitSource = "assumed_won"
)

// heuristicThreshold separates million-denominated figures from raw won
// when a table declares no unit. Corporate totals below 100 million won
// do not occur in annual filings at won precision.
const heuristicThreshold = 100_000_000

var unitPattern = regexp.MustCompile(`단위\s*[::]\s*(백만원|천원|원)`)

// unitMultiplier maps a declared unit to its won multiplier.
func unitMultiplier(unit string) int64 {
	switch unit {
	case "백만원":
		return 1_000_000
	case "천원":
		return 1_000
	default:
		return 1
	}
}

// detectUnit looks for a unit declaration, first inside the table's
// leading rows and then in the text between the section heading and the
// table. Filings put the declaration in either place.
func detectUnit(heading, table *goquery.Selection) (int64, bool) {
	rows := table.Find("tr")
	limit := rows.Length()
	if limit > 3 {
		limit = 3
	}
	for i := 0; i < limit; i++ {
		if m := unitPattern.FindStringSubmatch(rows.Eq(i).Text()); m != nil {
			return unitMultiplier(m[1]), true
		}
	}

	if heading != nil {
		tableNode := table.Get(0)
		for sib := heading.Next(); sib.Length() > 0; sib = sib.Next() {
			if sib.Get(0) == tableNode {
				break
			}
			if m := unitPattern.FindStringSubmatch(sib.Text()); m != nil {
				return unitMultiplier(m[1]), true
			}
		}
	}
	return 1, false
}

// scaleAmount converts a parsed table figure to won. When the unit was
// detected the declared multiplier applies. Otherwise small magnitudes
// are assumed to be millions.
func scaleAmount(raw int64, multiplier int64, detected bool) (int64, UnitSource) {
	if detected {
		return raw * multiplier, UnitDetected
	}
	abs := raw
	if abs < 0 {
		abs = -abs
	}
	if abs < heuristicThreshold {
		return raw * 1_000_000, UnitHeuristicMillions
	}
	return raw, UnitAssumedWon
}
