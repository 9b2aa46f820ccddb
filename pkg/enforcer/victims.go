package enforcer

import (
	"sort"

	"github.com/querywarden/querywarden/pkg/engine"
	"github.com/querywarden/querywarden/pkg/resource"
)

// selectVictims picks the queries to cancel for one breaching (group,
// resource) pair: heaviest consumers of the breaching resource first, query
// id ascending on ties so the choice is reproducible, taken greedily until
// the projected remaining usage drops below the hard threshold.
func selectVictims(queries []engine.RunningQuery, rt resource.Type, overage int64) []engine.RunningQuery {
	if overage < 0 || len(queries) == 0 {
		return nil
	}

	ordered := make([]engine.RunningQuery, len(queries))
	copy(ordered, queries)
	sort.Slice(ordered, func(i, j int) bool {
		ui, uj := ordered[i].UsageOf(rt), ordered[j].UsageOf(rt)
		if ui != uj {
			return ui > uj
		}
		return ordered[i].ID() < ordered[j].ID()
	})

	// Greedy prefix: stop once the reclaimed amount pushes usage strictly
	// below the hard threshold, or when no candidates remain.
	var victims []engine.RunningQuery
	var reclaimed int64
	for _, q := range ordered {
		if reclaimed > overage {
			break
		}
		victims = append(victims, q)
		reclaimed += q.UsageOf(rt)
	}
	return victims
}
