package trackmodel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Covariance wraps a symmetric positive-semidefinite matrix. It is the
// backing representation for filter state uncertainty and is re-used,
// never mutated in place by callers outside trackfilter; every operation
// below returns a fresh matrix.
type Covariance struct {
	m *mat.SymDense
}

// NewCovariance wraps an existing symmetric matrix. The caller must ensure
// m is square; NewCovariance does not copy.
func NewCovariance(m *mat.SymDense) Covariance {
	return Covariance{m: m}
}

// Diag builds a diagonal covariance from the given variances.
func Diag(variances ...float64) Covariance {
	n := len(variances)
	m := mat.NewSymDense(n, nil)
	for i, v := range variances {
		m.SetSym(i, i, v)
	}
	return Covariance{m: m}
}

// Dense returns the underlying *mat.SymDense. Callers must not mutate the
// returned matrix; clone it first if mutation is required.
func (c Covariance) Dense() *mat.SymDense {
	return c.m
}

// Dim returns the matrix dimension.
func (c Covariance) Dim() int {
	if c.m == nil {
		return 0
	}
	n, _ := c.m.Dims()
	return n
}

// Symmetric reports whether the matrix is symmetric within tol. gonum's
// SymDense is symmetric by construction, so this checks for NaN/Inf
// contamination that would make the "symmetric" guarantee meaningless.
func (c Covariance) Symmetric(tol float64) bool {
	n := c.Dim()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := c.m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// PositiveSemidefinite reports whether the matrix is PSD within tol, via
// Cholesky factorization (fails to factor => not PSD, within numerical
// slack tol added to the diagonal before factoring).
func (c Covariance) PositiveSemidefinite(tol float64) bool {
	n := c.Dim()
	if n == 0 {
		return true
	}
	var chol mat.Cholesky
	padded := mat.NewSymDense(n, nil)
	padded.CopySym(c.m)
	for i := 0; i < n; i++ {
		padded.SetSym(i, i, padded.At(i, i)+tol)
	}
	return chol.Factorize(padded)
}

// Symmetrize returns ½(P + Pᵀ) re-wrapped as a Covariance, repairing the
// small asymmetries finite-precision arithmetic introduces.
func (c Covariance) Symmetrize() Covariance {
	n := c.Dim()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, c.m.At(i, j))
		}
	}
	return Covariance{m: out}
}

// Clone returns a deep copy.
func (c Covariance) Clone() Covariance {
	n := c.Dim()
	out := mat.NewSymDense(n, nil)
	out.CopySym(c.m)
	return Covariance{m: out}
}

// String implements fmt.Stringer for debug logging.
func (c Covariance) String() string {
	return fmt.Sprintf("Covariance(%dx%d)", c.Dim(), c.Dim())
}
