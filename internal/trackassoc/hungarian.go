package trackassoc

import "math"

// Hungarian solves the rectangular assignment problem for an
// nDetections x nTracks cost matrix using the Kuhn-Munkres algorithm with
// potentials (Jonker-Volgenant variant), globally minimizing total cost.
// It returns a Result where Matched[d] is the track index detection d is
// assigned to, or -1 if unassigned. Costs >= Inf are treated as forbidden.
//
// Ported from internal/lidar/hungarian.go's HungarianAssign, which solves exactly this padded-square,
// float64-potentials formulation for LiDAR cluster-to-track assignment.
func Hungarian(cost Matrix) Result {
	res, _ := hungarianSolve(cost)
	return res
}

// hungarianSolve is Hungarian's implementation, additionally returning the
// solver's raw objective value: the sum of the full internal permutation
// including forbidden (>=Inf) edges at their true cost, before any edge is
// downgraded to "unassigned" in the public Result. KBest needs this raw
// value: comparing Results after Inf-cost edges are hidden as -1 would let
// a partial matching look artificially cheaper than a complete one and
// break Murty's non-decreasing cost ordering.
func hungarianSolve(cost Matrix) (Result, float64) {
	n := len(cost)
	if n == 0 {
		return Result{}, 0
	}
	m := len(cost[0])
	if m == 0 {
		assign := make([]int, n)
		for i := range assign {
			assign[i] = -1
		}
		return resultFromAssignment(assign, 0), 0
	}

	dim := n
	if m > dim {
		dim = m
	}

	// Padding cells (beyond the real n x m region) cost 0, not Inf: a
	// detection or track landing on a padding slot simply means "no
	// counterpart available" because n != m, which must stay free so the
	// solver never prefers a worse real pairing just to dodge an
	// unavoidable cardinality mismatch. Only real cells keep their
	// original cost, including any genuine Inf from gating.
	c := make([][]float64, dim)
	for i := 0; i < dim; i++ {
		c[i] = make([]float64, dim)
		for j := 0; j < dim; j++ {
			if i < n && j < m {
				c[i][j] = cost[i][j]
			} else {
				c[i][j] = 0
			}
		}
	}

	const inf = math.MaxFloat64 / 2

	u := make([]float64, dim+1)
	v := make([]float64, dim+1)
	p := make([]int, dim+1)
	way := make([]int, dim+1)
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0

		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1

			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := c[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}

			if j1 < 0 {
				break
			}

			for j := 0; j <= dim; j++ {
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
			p[j0] = p[way[j0]]
			j0 = way[j0]
		}
	}

	rowAssign := make([]int, dim)
	for i := range rowAssign {
		rowAssign[i] = -1
	}
	for j := 1; j <= dim; j++ {
		if p[j] > 0 && p[j] <= dim {
			rowAssign[p[j]-1] = j - 1
		}
	}

	var raw float64
	assign := make([]int, n)
	for i := 0; i < n; i++ {
		col := rowAssign[i]
		if col < 0 || col >= m {
			assign[i] = -1
			continue
		}
		raw += c[i][col]
		if cost[i][col] >= Inf {
			assign[i] = -1
		} else {
			assign[i] = col
		}
	}

	return resultFromAssignment(assign, m), raw
}
