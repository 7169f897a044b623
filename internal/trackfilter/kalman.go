// Package trackfilter implements the per-track state estimator: a linear
// Kalman filter over the 6-dimensional constant-velocity model
// [x, y, z, vx, vy, vz], plus an unscented (UKF) variant for non-linear
// measurement functions.
//
// Grounded on internal/lidar/l5tracks/tracking.go's predict/update pair,
// generalized from a fixed 4-element [x,y,vx,vy] array arithmetic to a
// general N-dimensional gonum.org/v1/gonum/mat state, and restoring
// Joseph-form covariance update for the SPD-preservation guarantee this
// package requires.
package trackfilter

import (
	"gonum.org/v1/gonum/mat"

	"github.com/trackengine/core/internal/trackerrors"
	"github.com/trackengine/core/internal/trackmodel"
)

// StateDim is the dimension of the constant-velocity state vector
// [x, y, z, vx, vy, vz].
const StateDim = 6

// MeasurementDim is the dimension of the position-only measurement.
const MeasurementDim = 3

// Priors configures the initial covariance and process/measurement noise
// used when a track is spawned, mirroring tracking.go's init().
type Priors struct {
	PositionVariance float64 // diagonal prior for x,y,z
	VelocityVariance float64 // diagonal prior for vx,vy,vz
	ProcessPosNoise  float64 // Q diagonal for position rows, scaled by dt in Predict
	ProcessVelNoise  float64 // Q diagonal for velocity rows, scaled by dt in Predict
	MeasurementNoise float64 // R diagonal (position-only measurement)
}

// DefaultPriors returns the package's documented defaults: P = diag(10..),
// Q = diag(0.1..).
func DefaultPriors() Priors {
	return Priors{
		PositionVariance: 10,
		VelocityVariance: 10,
		ProcessPosNoise:  0.1,
		ProcessVelNoise:  0.1,
		MeasurementNoise: 1.0,
	}
}

// State is the filter's mean and covariance for one track. Position and
// Velocity are the public mean view used by the rest of the kernel; X is
// the authoritative 6-vector backing them (kept in sync by every mutator).
type State struct {
	Position trackmodel.Position3D
	Velocity trackmodel.Velocity3D
	P        trackmodel.Covariance

	x *mat.VecDense // [x,y,z,vx,vy,vz], authoritative
}

func newState(x *mat.VecDense, p *mat.SymDense) State {
	s := State{x: x, P: trackmodel.NewCovariance(p)}
	s.syncMean()
	return s
}

func (s *State) syncMean() {
	s.Position = trackmodel.Position3D{X: s.x.AtVec(0), Y: s.x.AtVec(1), Z: s.x.AtVec(2)}
	s.Velocity = trackmodel.Velocity3D{VX: s.x.AtVec(3), VY: s.x.AtVec(4), VZ: s.x.AtVec(5)}
}

// InnovationResult carries the byproduct of an Update call that downstream
// association gating needs.
type InnovationResult struct {
	Innovation         trackmodel.Position3D
	MahalanobisSquared float64
}

// Init builds a fresh State from a detection for track spawn: position =
// detection, velocity = 0, covariance = configured priors.
func Init(detection trackmodel.Detection, priors Priors) State {
	x := mat.NewVecDense(StateDim, []float64{
		detection.Position.X, detection.Position.Y, detection.Position.Z,
		0, 0, 0,
	})
	p := mat.NewSymDense(StateDim, nil)
	for i := 0; i < 3; i++ {
		p.SetSym(i, i, priors.PositionVariance)
	}
	for i := 3; i < 6; i++ {
		p.SetSym(i, i, priors.VelocityVariance)
	}
	return newState(x, p)
}

// MaxPredictHorizon bounds dt before Predict clamps and the caller should
// flag the resulting state as low-confidence.
const MaxPredictHorizon = 5.0 // seconds

// Predict advances the state by dt using the constant-velocity transition
// F(dt). A non-positive dt is a no-op. dt beyond MaxPredictHorizon is
// clamped; the return value reports whether clamping occurred so the
// caller can lower confidence.
func (kf *Filter) Predict(s *State, dt float64) (clamped bool) {
	if dt <= 0 {
		return false
	}
	if dt > MaxPredictHorizon {
		dt = MaxPredictHorizon
		clamped = true
	}

	f := transitionMatrix(dt)

	var xNew mat.VecDense
	xNew.MulVec(f, s.x)
	s.x = &xNew

	var fp mat.Dense
	fp.Mul(f, s.P.Dense())
	var fpft mat.Dense
	fpft.Mul(&fp, f.T())

	q := processNoise(dt, kf.priors)
	var pNew mat.Dense
	pNew.Add(&fpft, q)

	s.P = symmetrizedCovariance(&pNew)
	s.syncMean()
	return clamped
}

// Update applies the Kalman innovation/gain/state update for a position
// measurement, using Joseph-form covariance update so P stays
// symmetric-positive-semidefinite under finite precision.
// It returns the innovation and squared Mahalanobis distance used by
// association gating.
func (kf *Filter) Update(s *State, measurement trackmodel.Position3D) (InnovationResult, error) {
	h := measurementMatrix()
	r := measurementNoise(kf.priors)

	z := mat.NewVecDense(MeasurementDim, []float64{measurement.X, measurement.Y, measurement.Z})

	var hx mat.VecDense
	hx.MulVec(h, s.x)
	var y mat.VecDense
	y.SubVec(z, &hx)

	var hp mat.Dense
	hp.Mul(h, s.P.Dense())
	var hpht mat.Dense
	hpht.Mul(&hp, h.T())
	var S mat.Dense
	S.Add(&hpht, r)

	var sInv mat.Dense
	if err := sInv.Inverse(&S); err != nil {
		return InnovationResult{}, trackerrors.Wrap(trackerrors.CodeFilterDegenerate,
			"singular innovation covariance", err)
	}

	var pht mat.Dense
	pht.Mul(s.P.Dense(), h.T())
	var k mat.Dense
	k.Mul(&pht, &sInv)

	var dx mat.VecDense
	dx.MulVec(&k, &y)
	var xNew mat.VecDense
	xNew.AddVec(s.x, &dx)
	s.x = &xNew

	n := s.P.Dim()
	ident := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		ident.Set(i, i, 1)
	}
	var kh mat.Dense
	kh.Mul(&k, h)
	var imkh mat.Dense
	imkh.Sub(ident, &kh)

	// Joseph form: P' = (I-KH) P (I-KH)^T + K R K^T
	var left mat.Dense
	left.Mul(&imkh, s.P.Dense())
	var leftRight mat.Dense
	leftRight.Mul(&left, imkh.T())

	var kr mat.Dense
	kr.Mul(&k, r)
	var krkt mat.Dense
	krkt.Mul(&kr, k.T())

	var pNew mat.Dense
	pNew.Add(&leftRight, &krkt)

	repaired, err := kf.repair(&pNew)
	if err != nil {
		return InnovationResult{}, err
	}
	s.P = repaired
	s.syncMean()

	var yInvY mat.VecDense
	yInvY.MulVec(&sInv, &y)
	mahal := mat.Dot(&y, &yInvY)

	return InnovationResult{
		Innovation:         trackmodel.Position3D{X: y.AtVec(0), Y: y.AtVec(1), Z: y.AtVec(2)},
		MahalanobisSquared: mahal,
	}, nil
}

// Mahalanobis returns the squared Mahalanobis distance between the
// predicted state and a candidate measurement, without mutating s; used
// by association gating.
func (kf *Filter) Mahalanobis(s *State, z trackmodel.Position3D) (float64, error) {
	h := measurementMatrix()
	r := measurementNoise(kf.priors)

	zv := mat.NewVecDense(MeasurementDim, []float64{z.X, z.Y, z.Z})
	var hx mat.VecDense
	hx.MulVec(h, s.x)
	var y mat.VecDense
	y.SubVec(zv, &hx)

	var hp mat.Dense
	hp.Mul(h, s.P.Dense())
	var hpht mat.Dense
	hpht.Mul(&hp, h.T())
	var S mat.Dense
	S.Add(&hpht, r)

	var sInv mat.Dense
	if err := sInv.Inverse(&S); err != nil {
		return 0, trackerrors.Wrap(trackerrors.CodeFilterDegenerate, "singular innovation covariance", err)
	}

	var yInvY mat.VecDense
	yInvY.MulVec(&sInv, &y)
	return mat.Dot(&y, &yInvY), nil
}

// repair re-symmetrizes P and verifies SPD via Cholesky. If the matrix still fails to factor after
// re-symmetrizing, it reports CodeFilterDegenerate so the caller can mark
// the track LOST.
func (kf *Filter) repair(p *mat.Dense) (trackmodel.Covariance, error) {
	cov := symmetrizedCovariance(p)
	const spdTolerance = 1e-8
	if !cov.PositiveSemidefinite(spdTolerance) {
		// One repair attempt: re-symmetrize once more and re-check.
		cov = cov.Symmetrize()
		if !cov.PositiveSemidefinite(spdTolerance) {
			return trackmodel.Covariance{}, trackerrors.New(trackerrors.CodeFilterDegenerate,
				"covariance not positive-semidefinite after repair")
		}
	}
	return cov, nil
}

func symmetrizedCovariance(p *mat.Dense) trackmodel.Covariance {
	n, _ := p.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := (p.At(i, j) + p.At(j, i)) / 2
			sym.SetSym(i, j, v)
		}
	}
	return trackmodel.NewCovariance(sym)
}

func transitionMatrix(dt float64) *mat.Dense {
	f := mat.NewDense(StateDim, StateDim, nil)
	for i := 0; i < StateDim; i++ {
		f.Set(i, i, 1)
	}
	f.Set(0, 3, dt)
	f.Set(1, 4, dt)
	f.Set(2, 5, dt)
	return f
}

func measurementMatrix() *mat.Dense {
	h := mat.NewDense(MeasurementDim, StateDim, nil)
	h.Set(0, 0, 1)
	h.Set(1, 1, 1)
	h.Set(2, 2, 1)
	return h
}

func processNoise(dt float64, priors Priors) *mat.Dense {
	q := mat.NewDense(StateDim, StateDim, nil)
	for i := 0; i < 3; i++ {
		q.Set(i, i, priors.ProcessPosNoise*dt)
	}
	for i := 3; i < 6; i++ {
		q.Set(i, i, priors.ProcessVelNoise*dt)
	}
	return q
}

func measurementNoise(priors Priors) *mat.Dense {
	r := mat.NewDense(MeasurementDim, MeasurementDim, nil)
	for i := 0; i < MeasurementDim; i++ {
		r.Set(i, i, priors.MeasurementNoise)
	}
	return r
}

// Filter is a constant-velocity Kalman estimator parameterized by process
// and measurement noise priors. One Filter may be shared across tracks;
// all per-track mutable data lives in State.
type Filter struct {
	priors Priors
}

// New constructs a Filter with the given noise priors.
func New(priors Priors) *Filter {
	return &Filter{priors: priors}
}
