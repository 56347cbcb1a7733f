// Package fuzzy offers nearest-TestId suggestions for the CLI: when a user
// passes a TestId that isn't in the index, suggest the closest known ones
// instead of a bare "not found".
//
// Grounded on the teacher's internal/semantic/fuzzy_matcher.go, which
// wraps the same github.com/hbollon/go-edlib Jaro-Winkler similarity call.
package fuzzy

import (
	"sort"

	"github.com/hbollon/go-edlib"

	"github.com/standardbeagle/testimpact/internal/types"
)

// Suggest returns up to limit TestIds from candidates, ordered by
// Jaro-Winkler similarity to query, descending. Candidates scoring below
// threshold are dropped.
func Suggest(query string, candidates []types.TestId, threshold float64, limit int) []types.TestId {
	type scored struct {
		id    types.TestId
		score float64
	}

	var ranked []scored
	for _, c := range candidates {
		score, err := edlib.StringsSimilarity(query, string(c), edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if float64(score) >= threshold {
			ranked = append(ranked, scored{id: c, score: float64(score)})
		}
	}

	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]types.TestId, len(ranked))
	for i, r := range ranked {
		out[i] = r.id
	}
	return out
}
