package statement

import "strings"

// Evaluate runs a single strategy against filing rows and reports the
// resolved value, or !ok when nothing matched. It never errors on
// malformed amounts; those rows are treated as absent.
func Evaluate(rows []RawRow, s Strategy) (int64, bool) {
	switch s.Method {
	case ExactTag:
		return evalExactTag(rows, s)
	case SumTags:
		return evalSumTags(rows, s)
	case LabelMatch:
		return evalLabelMatch(rows, s)
	default:
		return 0, false
	}
}

func divisionAllowed(d Division, allowed []Division) bool {
	for _, a := range allowed {
		if d == a {
			return true
		}
	}
	return false
}

func evalExactTag(rows []RawRow, s Strategy) (int64, bool) {
	if len(s.Tags) == 0 {
		return 0, false
	}
	tag := s.Tags[0]
	for _, row := range rows {
		if row.AccountID != tag || !divisionAllowed(row.Division, s.Divisions) {
			continue
		}
		if v, ok := ParseAmount(row.Amount); ok {
			return v, true
		}
	}
	return 0, false
}

func evalSumTags(rows []RawRow, s Strategy) (int64, bool) {
	var total int64
	found := false
	for _, tag := range s.Tags {
		for _, row := range rows {
			if row.AccountID != tag || !divisionAllowed(row.Division, s.Divisions) {
				continue
			}
			if v, ok := ParseAmount(row.Amount); ok {
				total += v
				found = true
				break // first valid amount per tag
			}
		}
	}
	return total, found
}

func evalLabelMatch(rows []RawRow, s Strategy) (int64, bool) {
	var last int64
	found := false
	for _, row := range rows {
		if row.AccountID != NonStandardTag || !divisionAllowed(row.Division, s.Divisions) {
			continue
		}
		label := strings.TrimSpace(row.AccountName)
		if !labelContainsAny(label, s.Keywords) {
			continue
		}
		v, ok := ParseAmount(row.Amount)
		if !ok {
			continue
		}
		if s.Absolute && v < 0 {
			v = -v
		}
		if !s.TakeLast {
			return v, true
		}
		last = v
		found = true
	}
	return last, found
}

func labelContainsAny(label string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(label, kw) {
			return true
		}
	}
	return false
}
