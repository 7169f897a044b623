package trackassoc

import "sort"

// MurtyResult is one ranked solution from KBest: an assignment plus its
// total cost, ordered cheapest-first.
type MurtyResult struct {
	Result Result
	Cost   float64
}

// KBest returns up to k ranked assignments for cost, cheapest first, using
// Murty's algorithm: the optimal (Hungarian) solution is partitioned into
// a set of sub-problems that exclude it and recursively re-solved, always
// expanding the best unexplored candidate next.
//
// Unlike Hungarian and Greedy in this package, k-best alternative matching
// has no source to generalize from directly, so it is built as a thin
// wrapper that repeatedly calls the Hungarian solver over node-partitioned
// copies of cost, which keeps it consistent with the rest of the package's
// assignment representation instead of introducing a second solver
// convention.
func KBest(cost Matrix, k int) []MurtyResult {
	if k <= 0 || len(cost) == 0 {
		return nil
	}

	rootResult, rootRaw := hungarianSolve(cost)
	if rootRaw >= Inf {
		return nil
	}

	open := []murtyNode{{cost: cost, assignment: rootResult, raw: rootRaw}}
	var out []MurtyResult

	for len(open) > 0 && len(out) < k {
		sort.Slice(open, func(i, j int) bool { return open[i].raw < open[j].raw })
		best := open[0]
		open = open[1:]

		out = append(out, MurtyResult{Result: best.assignment, Cost: visibleCost(best.cost, best.assignment)})

		for _, child := range partition(best) {
			sol, raw := hungarianSolve(child.cost)
			if raw >= Inf {
				continue
			}
			child.assignment = sol
			child.raw = raw
			open = append(open, child)
		}
	}

	return out
}

type murtyNode struct {
	cost       Matrix
	assignment Result
	raw        float64 // solver's internal objective, including forced-Inf edges at full cost, used for ranking
}

type forcedPair struct {
	det, track int
}

// partition implements Murty's node-splitting: for each matched pair (in
// the parent's solution) not already forced by an ancestor, create a
// child problem that forbids that specific pair (forcing the solver to
// find the next-best alternative at that position) while fixing all
// earlier pairs in iteration order to the parent's choice.
func partition(parent murtyNode) []murtyNode {
	var children []murtyNode

	matchedPairs := make([]forcedPair, 0, len(parent.assignment.Matched))
	for d, t := range parent.assignment.Matched {
		if t >= 0 {
			matchedPairs = append(matchedPairs, forcedPair{det: d, track: t})
		}
	}

	for i, pair := range matchedPairs {
		childCost := cloneMatrix(parent.cost)

		// Fix all earlier pairs to the parent's choice by forbidding every
		// other option in their rows/columns.
		for j := 0; j < i; j++ {
			fixed := matchedPairs[j]
			for t := range childCost[fixed.det] {
				if t != fixed.track {
					childCost[fixed.det][t] = Inf
				}
			}
		}

		// Forbid this specific pair so the next solve must choose differently.
		childCost[pair.det][pair.track] = Inf

		children = append(children, murtyNode{cost: childCost})
	}

	return children
}

func cloneMatrix(m Matrix) Matrix {
	out := make(Matrix, len(m))
	for i, row := range m {
		out[i] = append([]float64{}, row...)
	}
	return out
}

// visibleCost sums only the pairs the public Result actually reports as
// matched (t >= 0), i.e. the cost a caller inspecting Result would compute
// themselves, distinct from the raw solver objective used internally for
// ranking, which also counts forced-infeasible edges.
func visibleCost(cost Matrix, r Result) float64 {
	var total float64
	for d, t := range r.Matched {
		if t >= 0 {
			total += cost[d][t]
		}
	}
	return total
}
