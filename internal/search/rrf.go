package search

import "sort"

// rrfK is the default Reciprocal Rank Fusion constant (spec §4.7, §6
// search.rrf_k); configurable per Facade.
const rrfK = 60

// reciprocalRankFusion merges two independently-ranked lexical and dense
// result lists into one fused ranking. A document appearing in only one
// list is still ranked, scored from that single list alone. Ties are
// broken by ascending sha256.
func reciprocalRankFusion(k int, lexical, dense []string) []string {
	if k <= 0 {
		k = rrfK
	}
	scores := make(map[string]float64)
	seen := make(map[string]struct{})

	add := func(list []string) {
		for rank, sha256 := range list {
			scores[sha256] += 1.0 / float64(k+rank+1)
			seen[sha256] = struct{}{}
		}
	}
	add(lexical)
	add(dense)

	fused := make([]string, 0, len(seen))
	for sha256 := range seen {
		fused = append(fused, sha256)
	}
	sort.Slice(fused, func(i, j int) bool {
		if scores[fused[i]] != scores[fused[j]] {
			return scores[fused[i]] > scores[fused[j]]
		}
		return fused[i] < fused[j]
	})
	return fused
}

func fusedScores(k int, lexical, dense []string) map[string]float64 {
	if k <= 0 {
		k = rrfK
	}
	scores := make(map[string]float64)
	add := func(list []string) {
		for rank, sha256 := range list {
			scores[sha256] += 1.0 / float64(k+rank+1)
		}
	}
	add(lexical)
	add(dense)
	return scores
}
