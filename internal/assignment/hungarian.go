// Package assignment solves the one-to-one reference-candidate
// matching problem: minimum-cost bipartite matching over the
// admissibility graph, where a reference or candidate may also go
// unmatched. It implements the classic O(n^3) Kuhn-Munkres (Hungarian)
// algorithm, the standard choice spec.md names for this problem.
package assignment

import (
	"math"
	"sort"

	"github.com/rulebook-forge/compmatch/internal/models"
	"github.com/rulebook-forge/compmatch/internal/scoring"
)

// Result is the outcome of solving the assignment problem.
type Result struct {
	Matches          []models.Match
	UnmatchedRefs    []string
	UnmatchedCands   []string
}

const (
	// forbiddenCost is assigned to an inadmissible real-real pair. It
	// must dominate unmatchedPenalty by a wide margin so the solver
	// never prefers a forbidden pair over simply leaving both sides
	// unmatched.
	forbiddenCost = 1e9
	// unmatchedPenalty is the cost of routing a real reference or
	// candidate through a dummy counterpart, i.e. leaving it
	// unmatched. It must exceed the largest realistic combined score
	// (bounded well under 100 given the scoring formula) so the
	// solver always prefers a genuine admissible match over opting
	// out.
	unmatchedPenalty = 10000.0
)

// Solve runs the matching. Each reference's own Tier (from refs) is
// looked up per pair, since admissibility in the objective is always
// evaluated under the reference's own tier (audit-time non-current-tier checks are a
// separate concern, see package evaluator).
func Solve(refs []models.Reference, cands []models.Candidate, scores map[[2]string]models.CandidateScore) Result {
	refIDs := make([]string, len(refs))
	for i, r := range refs {
		refIDs[i] = r.RefID
	}
	sort.Strings(refIDs)

	candIDs := make([]string, len(cands))
	for i, c := range cands {
		candIDs[i] = c.CandidateID
	}
	sort.Strings(candIDs)

	n, m := len(refIDs), len(candIDs)
	size := n + m
	if size == 0 {
		return Result{}
	}

	// cost[i][j]: i in [0,n) real refs, [n,n+m) dummy refs (one per
	// real candidate, for candidates that go unmatched); j in [0,m)
	// real candidates, [m,m+n) dummy candidates (one per real
	// reference, for references that go unmatched).
	cost := make([][]float64, size)
	for i := range cost {
		cost[i] = make([]float64, size)
	}

	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			key := [2]string{refIDs[i], candIDs[j]}
			s, ok := scores[key]
			c := forbiddenCost
			if ok && s.Admissible(tierOf(refIDs[i], refs)) {
				c = tieBroken(s.Combined, j, i, m, n)
			}
			cost[i][j] = c
		}
		for j := m; j < size; j++ {
			cost[i][j] = unmatchedPenalty
		}
	}
	for i := n; i < size; i++ {
		for j := 0; j < m; j++ {
			cost[i][j] = unmatchedPenalty
		}
		for j := m; j < size; j++ {
			cost[i][j] = 0
		}
	}

	rowMatch := hungarian(cost)

	matchedRef := make(map[string]bool, n)
	matchedCand := make(map[string]bool, m)
	var matches []models.Match

	for i := 0; i < n; i++ {
		j := rowMatch[i]
		if j < 0 || j >= m {
			continue // matched to a dummy candidate: unmatched reference
		}
		key := [2]string{refIDs[i], candIDs[j]}
		s, ok := scores[key]
		if !ok || !s.Admissible(tierOf(refIDs[i], refs)) {
			continue
		}
		matchedRef[refIDs[i]] = true
		matchedCand[candIDs[j]] = true
		matches = append(matches, models.Match{
			RefID:       refIDs[i],
			CandidateID: candIDs[j],
			Score:       s,
			Method:      scoring.BestMethod(s, tierOf(refIDs[i], refs)),
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].RefID < matches[j].RefID })

	var unmatchedRefs, unmatchedCands []string
	for _, id := range refIDs {
		if !matchedRef[id] {
			unmatchedRefs = append(unmatchedRefs, id)
		}
	}
	for _, id := range candIDs {
		if !matchedCand[id] {
			unmatchedCands = append(unmatchedCands, id)
		}
	}

	return Result{Matches: matches, UnmatchedRefs: unmatchedRefs, UnmatchedCands: unmatchedCands}
}

func tierOf(refID string, refs []models.Reference) models.Tier {
	for _, r := range refs {
		if r.RefID == refID {
			return r.Tier
		}
	}
	return ""
}

// tieBroken embeds a deterministic, vanishingly small lexicographic
// tie-break into a combined score: (combined_score, candidate rank,
// reference rank) ascending. The offsets are scaled far below the
// coarsest real score granularity (hash distances are integers,
// similarities carry meaningful precision well above 1e-6), so they
// only ever resolve genuine exact ties, never reorder distinct
// scores.
func tieBroken(combined float64, candRank, refRank, numCands, numRefs int) float64 {
	candUnit := 1e-6 / float64(numCands+1)
	refUnit := 1e-9 / float64(numRefs+1)
	return combined + float64(candRank)*candUnit + float64(refRank)*refUnit
}

// hungarian solves the square minimum-cost perfect matching problem
// with the O(n^3) successive-shortest-augmenting-path method. Returns
// rowMatch where rowMatch[i] is the column matched to row i.
func hungarian(cost [][]float64) []int {
	n := len(cost)
	const inf = math.MaxFloat64 / 2

	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1) // p[j] = row matched to column j (1-indexed), 0 = none
	way := make([]int, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := range minv {
			minv[j] = inf
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	rowMatch := make([]int, n)
	for i := range rowMatch {
		rowMatch[i] = -1
	}
	for j := 1; j <= n; j++ {
		if p[j] != 0 {
			rowMatch[p[j]-1] = j - 1
		}
	}
	return rowMatch
}
