package trackfilter

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/trackengine/core/internal/trackerrors"
)

// MerweParams configures Merwe scaled sigma-point selection.
type MerweParams struct {
	Alpha float64 // spread of sigma points around the mean, typically 1e-3..1
	Beta  float64 // prior-knowledge parameter; 2 is optimal for Gaussian
	Kappa float64 // secondary scaling, usually 0 or 3-n
}

// DefaultMerweParams returns commonly-used defaults (alpha=1e-3, beta=2,
// kappa=0).
func DefaultMerweParams() MerweParams {
	return MerweParams{Alpha: 1e-3, Beta: 2, Kappa: 0}
}

// TransitionFunc is an arbitrary (possibly non-linear) state transition
// f(x, dt) -> x'.
type TransitionFunc func(x *mat.VecDense, dt float64) *mat.VecDense

// MeasurementFunc is an arbitrary (possibly non-linear) measurement
// function h(x) -> z.
type MeasurementFunc func(x *mat.VecDense) *mat.VecDense

// UKF implements the unscented Kalman filter contract for non-linear
// transition and measurement functions. It carries the full covariance P:
// each Predict/Update call Cholesky-factors P to place the sigma points,
// then propagates P itself and symmetrizes the result. No square-root
// factor is kept between calls and no QR-based update is used, so
// positive-definiteness is not guaranteed by construction; a P that can no
// longer be factored is reported as CodeFilterDegenerate by the next call.
type UKF struct {
	n      int
	params MerweParams
	wm, wc []float64 // sigma-point weights (mean, covariance)
	lambda float64
	q, r   *mat.Dense // process / measurement noise (constant per instance)
}

// NewUKF builds a UKF for an n-dimensional state with the given process
// and measurement noise matrices and sigma-point parameters.
func NewUKF(n int, q, r *mat.Dense, params MerweParams) *UKF {
	lambda := params.Alpha*params.Alpha*(float64(n)+params.Kappa) - float64(n)
	u := &UKF{n: n, params: params, lambda: lambda, q: q, r: r}
	u.computeWeights()
	return u
}

func (u *UKF) computeWeights() {
	n := float64(u.n)
	np := 2*u.n + 1
	u.wm = make([]float64, np)
	u.wc = make([]float64, np)
	u.wm[0] = u.lambda / (n + u.lambda)
	u.wc[0] = u.lambda/(n+u.lambda) + (1 - u.params.Alpha*u.params.Alpha + u.params.Beta)
	for i := 1; i < np; i++ {
		u.wm[i] = 1 / (2 * (n + u.lambda))
		u.wc[i] = u.wm[i]
	}
}

// sigmaPoints generates 2n+1 sigma points from mean x and square-root
// covariance S (an upper-triangular Cholesky factor with P = S^T S). The
// offsets are the rows of S, i.e. the columns of S^T, so their spread
// reproduces P.
func (u *UKF) sigmaPoints(x *mat.VecDense, s *mat.TriDense) []*mat.VecDense {
	n := u.n
	pts := make([]*mat.VecDense, 2*n+1)
	pts[0] = mat.VecDenseCopyOf(x)

	scale := math.Sqrt(float64(n) + u.lambda)
	for i := 0; i < n; i++ {
		col := mat.NewVecDense(n, nil)
		for r := 0; r < n; r++ {
			col.SetVec(r, s.At(i, r)*scale)
		}
		plus := mat.NewVecDense(n, nil)
		plus.AddVec(x, col)
		minus := mat.NewVecDense(n, nil)
		minus.SubVec(x, col)
		pts[1+i] = plus
		pts[1+n+i] = minus
	}
	return pts
}

// cholUpper returns the upper-triangular Cholesky factor R with P = R^T R,
// reporting a degenerate-filter error if P is not SPD.
func cholUpper(p *mat.SymDense) (*mat.TriDense, error) {
	var chol mat.Cholesky
	if !chol.Factorize(p) {
		return nil, trackerrors.New(trackerrors.CodeFilterDegenerate, "covariance not SPD for Cholesky")
	}
	var u mat.TriDense
	chol.UTo(&u)
	return &u, nil
}

// UKFState is the UKF analogue of State: mean + covariance for an
// n-dimensional, possibly non-linear, system.
type UKFState struct {
	X *mat.VecDense
	P *mat.SymDense
}

// Predict advances the state through an arbitrary transition f(x, dt)
// using the unscented transform.
func (u *UKF) Predict(s *UKFState, f TransitionFunc, dt float64) (*UKFState, error) {
	sr, err := cholUpper(s.P)
	if err != nil {
		return nil, err
	}
	pts := u.sigmaPoints(s.X, sr)

	propagated := make([]*mat.VecDense, len(pts))
	for i, p := range pts {
		propagated[i] = f(p, dt)
	}

	xNew := weightedMean(propagated, u.wm, u.n)
	pNew := weightedCovariance(propagated, xNew, u.wc, u.n)

	var pPlusQ mat.Dense
	pPlusQ.Add(pNew, u.q)
	sym := symmetricFromDense(&pPlusQ)

	return &UKFState{X: xNew, P: sym}, nil
}

// Update applies the unscented measurement update for an arbitrary
// measurement function h(x).
func (u *UKF) Update(s *UKFState, h MeasurementFunc, z *mat.VecDense) (*UKFState, error) {
	sr, err := cholUpper(s.P)
	if err != nil {
		return nil, err
	}
	pts := u.sigmaPoints(s.X, sr)

	zs := make([]*mat.VecDense, len(pts))
	for i, p := range pts {
		zs[i] = h(p)
	}
	m := zs[0].Len()

	zMean := weightedMean(zs, u.wm, m)
	pzz := weightedCovariance(zs, zMean, u.wc, m)
	var pzzR mat.Dense
	pzzR.Add(pzz, u.r)

	pxz := mat.NewDense(u.n, m, nil)
	for i := range pts {
		var dx mat.VecDense
		dx.SubVec(pts[i], s.X)
		var dz mat.VecDense
		dz.SubVec(zs[i], zMean)
		var outer mat.Dense
		outer.Outer(u.wc[i], &dx, &dz)
		pxz.Add(pxz, &outer)
	}

	var pzzInv mat.Dense
	if err := pzzInv.Inverse(&pzzR); err != nil {
		return nil, trackerrors.Wrap(trackerrors.CodeFilterDegenerate, "singular UKF innovation covariance", err)
	}

	var k mat.Dense
	k.Mul(pxz, &pzzInv)

	var innovation mat.VecDense
	innovation.SubVec(z, zMean)
	var dx mat.VecDense
	dx.MulVec(&k, &innovation)

	xNew := mat.NewVecDense(u.n, nil)
	xNew.AddVec(s.X, &dx)

	var kpzzkt mat.Dense
	var kpzz mat.Dense
	kpzz.Mul(&k, &pzzR)
	kpzzkt.Mul(&kpzz, k.T())

	var pNew mat.Dense
	pNew.Sub(toDense(s.P), &kpzzkt)
	sym := symmetricFromDense(&pNew)

	return &UKFState{X: xNew, P: sym}, nil
}

func weightedMean(pts []*mat.VecDense, w []float64, dim int) *mat.VecDense {
	out := mat.NewVecDense(dim, nil)
	for i, p := range pts {
		var scaled mat.VecDense
		scaled.ScaleVec(w[i], p)
		out.AddVec(out, &scaled)
	}
	return out
}

func weightedCovariance(pts []*mat.VecDense, mean *mat.VecDense, w []float64, dim int) *mat.Dense {
	out := mat.NewDense(dim, dim, nil)
	for i, p := range pts {
		var d mat.VecDense
		d.SubVec(p, mean)
		var outer mat.Dense
		outer.Outer(w[i], &d, &d)
		out.Add(out, &outer)
	}
	return out
}

func symmetricFromDense(d *mat.Dense) *mat.SymDense {
	n, _ := d.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, (d.At(i, j)+d.At(j, i))/2)
		}
	}
	return sym
}

func toDense(s *mat.SymDense) *mat.Dense {
	n := s.SymmetricDim()
	d := mat.NewDense(n, n, nil)
	d.Copy(s)
	return d
}
