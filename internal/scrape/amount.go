package scrape

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	digitRun   = regexp.MustCompile(`\d+`)
	signedRun  = regexp.MustCompile(`-?\d+`)
	groupedNum = regexp.MustCompile(`\d{1,3}(?:,\d{3})+`)
)

// parseAmount reads a scraped cell value. Parenthesized amounts are
// negative by filing convention. Placeholder dashes and empty cells
// report !ok.
func parseAmount(text string) (int64, bool) {
	cleaned := strings.NewReplacer(",", "", " ", "", " ", "").Replace(text)
	cleaned = strings.TrimSpace(cleaned)

	switch cleaned {
	case "", "-", "―", "－", "N/A":
		return 0, false
	}

	if strings.Contains(cleaned, "(") && strings.Contains(cleaned, ")") {
		digits := digitRun.FindAllString(cleaned, -1)
		if len(digits) == 0 {
			return 0, false
		}
		v, err := strconv.ParseInt(strings.Join(digits, ""), 10, 64)
		if err != nil {
			return 0, false
		}
		return -v, true
	}

	m := signedRun.FindString(cleaned)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// hasGroupedNumber reports whether the text contains at least one
// comma-grouped numeric token, the signature of a monetary table cell.
func hasGroupedNumber(text string) bool {
	return groupedNum.MatchString(text)
}
