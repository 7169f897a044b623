package trackfilter

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/trackengine/core/internal/trackerrors"
	"github.com/trackengine/core/internal/trackmodel"
)

func mustConfidence(t *testing.T, v float64) trackmodel.Confidence {
	t.Helper()
	c, err := trackmodel.NewConfidence(v)
	require.NoError(t, err)
	return c
}

func detAt(t *testing.T, pos trackmodel.Position3D) trackmodel.Detection {
	return trackmodel.Detection{
		Timestamp:  time.Now().UTC(),
		Position:   pos,
		Confidence: mustConfidence(t, 0.9),
		SensorID:   "s1",
	}
}

func TestPredictAdvancesConstantVelocityState(t *testing.T) {
	t.Parallel()

	kf := New(DefaultPriors())
	s := Init(detAt(t, trackmodel.Position3D{X: 0, Y: 0, Z: 0}), DefaultPriors())
	s.Velocity = trackmodel.Velocity3D{VX: 2, VY: 0, VZ: 0}
	s.x.SetVec(3, 2)

	clamped := kf.Predict(&s, 1.0)

	assert.False(t, clamped)
	assert.InDelta(t, 2.0, s.Position.X, 1e-9)
	assert.True(t, s.P.Symmetric(1e-8))
	assert.True(t, s.P.PositiveSemidefinite(1e-8))
}

func TestPredictClampsDtBeyondMaxHorizon(t *testing.T) {
	t.Parallel()

	kf := New(DefaultPriors())
	s := Init(detAt(t, trackmodel.Position3D{}), DefaultPriors())
	s.Velocity = trackmodel.Velocity3D{VX: 2, VY: 0, VZ: 0}
	s.x.SetVec(3, 2)

	clamped := kf.Predict(&s, MaxPredictHorizon*2)

	require.True(t, clamped)
	// dt was clamped to MaxPredictHorizon, not the full requested dt.
	assert.InDelta(t, 2.0*MaxPredictHorizon, s.Position.X, 1e-9)
}

func TestPredictNonPositiveDtIsNoOp(t *testing.T) {
	t.Parallel()

	kf := New(DefaultPriors())
	s := Init(detAt(t, trackmodel.Position3D{X: 5}), DefaultPriors())

	clamped := kf.Predict(&s, 0)
	assert.False(t, clamped)
	assert.Equal(t, 5.0, s.Position.X)

	clamped = kf.Predict(&s, -1)
	assert.False(t, clamped)
	assert.Equal(t, 5.0, s.Position.X)
}

func TestPredictIsDeterministic(t *testing.T) {
	t.Parallel()

	kf := New(DefaultPriors())
	det := detAt(t, trackmodel.Position3D{X: 1, Y: -2, Z: 3})

	s1 := Init(det, DefaultPriors())
	s2 := Init(det, DefaultPriors())

	kf.Predict(&s1, 0.5)
	kf.Predict(&s2, 0.5)

	assert.Equal(t, s1.Position, s2.Position)
	assert.Equal(t, s1.Velocity, s2.Velocity)
	for i := 0; i < s1.P.Dim(); i++ {
		for j := 0; j < s1.P.Dim(); j++ {
			assert.Equal(t, s1.P.Dense().At(i, j), s2.P.Dense().At(i, j))
		}
	}
}

func TestUpdateJosephFormKeepsCovarianceSymmetricPSD(t *testing.T) {
	t.Parallel()

	kf := New(DefaultPriors())
	s := Init(detAt(t, trackmodel.Position3D{X: 0, Y: 0, Z: 0}), DefaultPriors())

	_, err := kf.Update(&s, trackmodel.Position3D{X: 1, Y: 2, Z: -1})
	require.NoError(t, err)

	assert.True(t, s.P.Symmetric(1e-8))
	assert.True(t, s.P.PositiveSemidefinite(1e-8))
}

func TestUpdateReturnsInnovationAndMahalanobis(t *testing.T) {
	t.Parallel()

	priors := DefaultPriors()
	kf := New(priors)
	s := Init(detAt(t, trackmodel.Position3D{X: 0, Y: 0, Z: 0}), priors)

	result, err := kf.Update(&s, trackmodel.Position3D{X: 1, Y: 2, Z: 2})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, result.Innovation.X, 1e-9)
	assert.InDelta(t, 2.0, result.Innovation.Y, 1e-9)
	assert.InDelta(t, 2.0, result.Innovation.Z, 1e-9)

	// S = H P H^T + R = diag(PositionVariance + MeasurementNoise) on a
	// fresh track, so Mahalanobis^2 = |y|^2 / (PositionVariance+Noise).
	want := (1.0 + 4.0 + 4.0) / (priors.PositionVariance + priors.MeasurementNoise)
	assert.InDelta(t, want, result.MahalanobisSquared, 1e-6)
}

func TestMahalanobisDoesNotMutateState(t *testing.T) {
	t.Parallel()

	kf := New(DefaultPriors())
	s := Init(detAt(t, trackmodel.Position3D{X: 3, Y: 3, Z: 3}), DefaultPriors())
	before := s.Position

	dist, err := kf.Mahalanobis(&s, trackmodel.Position3D{X: 10, Y: 10, Z: 10})
	require.NoError(t, err)
	assert.Greater(t, dist, 0.0)
	assert.Equal(t, before, s.Position)

	// A measurement equal to the current mean is zero distance.
	zero, err := kf.Mahalanobis(&s, before)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, zero, 1e-9)
}

func TestRepairSymmetrizesSmallAsymmetry(t *testing.T) {
	t.Parallel()

	kf := New(DefaultPriors())
	p := mat.NewDense(2, 2, []float64{2, 1.0000001, 1, 2})

	cov, err := kf.repair(p)
	require.NoError(t, err)
	assert.True(t, cov.Symmetric(1e-8))
	assert.True(t, cov.PositiveSemidefinite(1e-8))
}

func TestRepairReportsDegenerateOnNonPSD(t *testing.T) {
	t.Parallel()

	kf := New(DefaultPriors())
	p := mat.NewDense(2, 2, []float64{-1, 0, 0, -1})

	_, err := kf.repair(p)
	require.Error(t, err)
	assert.True(t, trackerrors.Is(err, trackerrors.CodeFilterDegenerate))
}

func TestUpdateSingularInnovationReportsFilterDegenerate(t *testing.T) {
	t.Parallel()

	priors := DefaultPriors()
	priors.MeasurementNoise = 0
	kf := New(priors)
	p := mat.NewSymDense(StateDim, nil) // all-zero covariance: H P H^T + R is singular
	s := newState(mat.NewVecDense(StateDim, nil), p)

	_, err := kf.Update(&s, trackmodel.Position3D{X: 1})
	require.Error(t, err)
	assert.True(t, trackerrors.Is(err, trackerrors.CodeFilterDegenerate))
}

func TestUKFPredictStaticTransitionPreservesMeanGrowsCovariance(t *testing.T) {
	t.Parallel()

	q := mat.NewDense(2, 2, []float64{0.01, 0, 0, 0.01})
	r := mat.NewDense(2, 2, []float64{0.1, 0, 0, 0.01})
	u := NewUKF(2, q, r, DefaultMerweParams())

	x := mat.NewVecDense(2, []float64{10, 0})
	p := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	s := &UKFState{X: x, P: p}

	identity := func(x *mat.VecDense, dt float64) *mat.VecDense {
		return mat.VecDenseCopyOf(x)
	}

	next, err := u.Predict(s, identity, 1.0)
	require.NoError(t, err)

	assert.InDelta(t, 10.0, next.X.AtVec(0), 1e-6)
	assert.InDelta(t, 0.0, next.X.AtVec(1), 1e-6)

	cov := trackmodel.NewCovariance(next.P)
	assert.True(t, cov.Symmetric(1e-8))
	assert.True(t, cov.PositiveSemidefinite(1e-8))
	// process noise strictly grows the prior's variance.
	assert.Greater(t, next.P.At(0, 0), 1.0)
	assert.Greater(t, next.P.At(1, 1), 1.0)
}

// rangeBearing is a non-linear measurement function: cartesian [x,y] to
// polar [range, bearing], the UKF's documented use case.
func rangeBearing(x *mat.VecDense) *mat.VecDense {
	px, py := x.AtVec(0), x.AtVec(1)
	return mat.NewVecDense(2, []float64{math.Hypot(px, py), math.Atan2(py, px)})
}

func TestUKFUpdateNonLinearMeasurementMovesStateTowardObservation(t *testing.T) {
	t.Parallel()

	q := mat.NewDense(2, 2, []float64{0.01, 0, 0, 0.01})
	r := mat.NewDense(2, 2, []float64{0.25, 0, 0, 0.01})
	u := NewUKF(2, q, r, DefaultMerweParams())

	x := mat.NewVecDense(2, []float64{10, 0})
	p := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	s := &UKFState{X: x, P: p}

	// Observed range is further out than the prior mean; bearing unchanged.
	z := mat.NewVecDense(2, []float64{12, 0})

	next, err := u.Update(s, rangeBearing, z)
	require.NoError(t, err)

	assert.Greater(t, next.X.AtVec(0), 10.0)
	assert.Less(t, next.X.AtVec(0), 12.0)

	cov := trackmodel.NewCovariance(next.P)
	assert.True(t, cov.Symmetric(1e-8))
	assert.True(t, cov.PositiveSemidefinite(1e-8))
}

func TestUKFUpdateSingularInnovationReportsFilterDegenerate(t *testing.T) {
	t.Parallel()

	q := mat.NewDense(2, 2, nil)
	r := mat.NewDense(2, 2, nil) // zero process and measurement noise
	u := NewUKF(2, q, r, DefaultMerweParams())

	x := mat.NewVecDense(2, nil)
	p := mat.NewSymDense(2, []float64{1, 0, 0, 1}) // factorizable prior, so Update reaches the innovation step
	s := &UKFState{X: x, P: p}

	// A constant measurement function maps every sigma point to the same
	// value, so Pzz is zero and, with zero R, the innovation covariance is singular.
	constant := func(x *mat.VecDense) *mat.VecDense { return mat.NewVecDense(2, nil) }
	_, err := u.Update(s, constant, mat.NewVecDense(2, []float64{1, 1}))
	require.Error(t, err)
	assert.True(t, trackerrors.Is(err, trackerrors.CodeFilterDegenerate))
}
