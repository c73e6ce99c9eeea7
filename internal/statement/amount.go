package statement

import (
	"strconv"
	"strings"
)

// ParseAmount converts a DART amount string into won. The API returns
// plain integers, occasionally with thousands separators or scientific
// notation from intermediate tooling. Unparsable input reports !ok
// rather than zero so that absence stays distinguishable from a true
// zero balance.
func ParseAmount(raw string) (int64, bool) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || s == "-" {
		return 0, false
	}

	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, true
	}

	// Some filings carry decimal points on won amounts.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f), true
	}

	return 0, false
}
