package statement

import (
	"sort"

	"go.uber.org/zap"
)

// Parse resolves every canonical fact it can from one filing's rows.
// For each fact the strategies are tried in priority order and the
// first success wins; later strategies are never consulted for a
// better value. Facts that resolve nowhere are simply absent from the
// returned set, never zero placeholders.
//
// After the table pass, a financial-sector pass fills any remaining
// revenue or operating-income gap using sector label conventions. The
// pass never overwrites a resolved fact.
func Parse(rows []RawRow) FactSet {
	facts := make(FactSet)
	if len(rows) == 0 {
		return facts
	}

	log := zap.L().With(zap.String("component", "statement.parser"))

	for _, fact := range AllFacts {
		strategies := orderedStrategies(accountTable[fact])
		for _, s := range strategies {
			v, ok := Evaluate(rows, s)
			if !ok {
				continue
			}
			facts[fact] = v
			log.Debug("fact resolved",
				zap.String("fact", string(fact)),
				zap.Int64("value", v),
				zap.Int("priority", s.Priority),
			)
			break
		}
	}

	applySectorFallbacks(rows, facts, log)

	return facts
}

// applySectorFallbacks re-derives revenue and operating income with
// financial-sector conventions when the primary table left them
// unresolved. Gap-fill only.
func applySectorFallbacks(rows []RawRow, facts FactSet, log *zap.Logger) {
	for fact, strategies := range sectorFallbacks {
		if _, ok := facts[fact]; ok {
			continue
		}
		for _, s := range orderedStrategies(strategies) {
			v, ok := Evaluate(rows, s)
			if !ok {
				continue
			}
			facts[fact] = v
			log.Debug("fact resolved via sector fallback",
				zap.String("fact", string(fact)),
				zap.Int64("value", v),
			)
			break
		}
	}
}

func orderedStrategies(strategies []Strategy) []Strategy {
	out := make([]Strategy, len(strategies))
	copy(out, strategies)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}
