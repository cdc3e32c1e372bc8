package tournament

// #region imports
import (
	"math"
	"sort"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/proposal"
)

// #endregion

// #region candidate

type candidate struct {
	pair     proposal.Pair
	compared bool    // already compared at least once this run
	eloDiff  float64 // absolute rating difference
}

// #endregion

// #region plan

// planPairs samples up to budget unordered pairs from ids without
// replacement. Pairs not yet compared in this run come first, then
// pairs with the smallest absolute Elo difference; remaining ties
// break on lexicographic pair order. Fewer unique pairs than budget is
// not an error; the round just ends early.
func planPairs(repo *proposal.Repository, ids []string, budget int) []proposal.Pair {
	ratings := make(map[string]float64, len(ids))
	for _, id := range ids {
		if p, ok := repo.Get(id); ok {
			ratings[id] = p.Elo
		}
	}

	seen := make(map[proposal.Pair]bool)
	var cands []candidate
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			pr := proposal.CanonicalPair(ids[i], ids[j])
			if seen[pr] {
				continue
			}
			seen[pr] = true
			cands = append(cands, candidate{
				pair:     pr,
				compared: repo.TimesCompared(pr) > 0,
				eloDiff:  math.Abs(ratings[pr.A] - ratings[pr.B]),
			})
		}
	}

	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.compared != b.compared {
			return !a.compared
		}
		if a.eloDiff != b.eloDiff {
			return a.eloDiff < b.eloDiff
		}
		if a.pair.A != b.pair.A {
			return a.pair.A < b.pair.A
		}
		return a.pair.B < b.pair.B
	})

	if budget < len(cands) {
		cands = cands[:budget]
	}
	pairs := make([]proposal.Pair, len(cands))
	for i, c := range cands {
		pairs[i] = c.pair
	}
	return pairs
}

// #endregion
