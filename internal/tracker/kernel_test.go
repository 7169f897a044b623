package tracker

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackengine/core/internal/trackassoc"
	"github.com/trackengine/core/internal/trackerrors"
	"github.com/trackengine/core/internal/trackmodel"
)

func mustConfidence(t *testing.T, v float64) trackmodel.Confidence {
	t.Helper()
	c, err := trackmodel.NewConfidence(v)
	require.NoError(t, err)
	return c
}

func detAt(t *testing.T, ts time.Time, pos trackmodel.Position3D, sensor trackmodel.SensorID) trackmodel.Detection {
	return trackmodel.Detection{
		Timestamp:  ts,
		Position:   pos,
		Confidence: mustConfidence(t, 0.9),
		SensorID:   sensor,
	}
}

func TestUpdateEmptyDetectionsMissesAllLiveTracks(t *testing.T) {
	t.Parallel()

	tr := New(DefaultConfig(), nil)
	base := time.Now().UTC()

	res, err := tr.Update([]trackmodel.Detection{detAt(t, base, trackmodel.Position3D{}, "s1")}, base)
	require.NoError(t, err)
	require.Len(t, res.New, 1)

	res2, err := tr.Update(nil, base.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, res2.New)
	// A single miss against a fresh TENTATIVE track does not demote it
	// (only ACTIVE tracks transition to LOST on a miss); it remains live.
	require.Len(t, res2.Active, 1)
	assert.Equal(t, 1, res2.Active[0].Missed)
}

func TestUpdateNonPositiveDtIsPredictNoOp(t *testing.T) {
	t.Parallel()

	tr := New(DefaultConfig(), nil)
	base := time.Now().UTC()

	_, err := tr.Update([]trackmodel.Detection{detAt(t, base, trackmodel.Position3D{X: 1}, "s1")}, base)
	require.NoError(t, err)

	// Same timestamp again: dt == 0, predict is a no-op, and the
	// detection at the same position re-matches the existing track
	// rather than spawning a new one.
	res, err := tr.Update([]trackmodel.Detection{detAt(t, base, trackmodel.Position3D{X: 1}, "s1")}, base)
	require.NoError(t, err)
	assert.Empty(t, res.New)
	require.Len(t, res.Active, 1)
	assert.Equal(t, 2, res.Active[0].Hits)
}

func TestUpdateAllDetectionsBeyondMaxDistanceSpawnNewTracks(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxDistance = 1
	tr := New(cfg, nil)
	base := time.Now().UTC()

	_, err := tr.Update([]trackmodel.Detection{detAt(t, base, trackmodel.Position3D{X: 0}, "s1")}, base)
	require.NoError(t, err)

	// Far outside the gate: must not match the existing track, instead
	// spawning a second track and leaving the first unmatched (missed).
	res, err := tr.Update([]trackmodel.Detection{detAt(t, base.Add(time.Second), trackmodel.Position3D{X: 1000}, "s1")}, base.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, res.New, 1)
	assert.Len(t, res.Active, 2)
}

func TestUpdateMaxAgeZeroPrunesOnFirstMiss(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxAge = 0
	cfg.StalenessTTLS = 1e9 // isolate the MaxAge=0 behavior from the staleness check
	tr := New(cfg, nil)
	base := time.Now().UTC()

	_, err := tr.Update([]trackmodel.Detection{detAt(t, base, trackmodel.Position3D{}, "s1")}, base)
	require.NoError(t, err)

	res, err := tr.Update(nil, base.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, res.Deleted, 1)
	assert.Empty(t, res.Active)
}

func TestSingleTargetConstantVelocityPromotesToActive(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MinHits = 3
	tr := New(cfg, nil)
	base := time.Now().UTC()

	pos := trackmodel.Position3D{X: 0, Y: 0, Z: 0}
	var last TrackingResult
	for i := 0; i < 3; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		det := detAt(t, ts, pos, "s1")
		res, err := tr.Update([]trackmodel.Detection{det}, ts)
		require.NoError(t, err)
		last = res
		pos.X += 2 // constant-velocity motion, 2 m/s
	}

	require.Len(t, last.Active, 1)
	assert.Equal(t, StatusActive, last.Active[0].Status)
	assert.Equal(t, 3, last.Active[0].Hits)
}

func TestGatingPreventsCrossMatchBetweenDistantTracks(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxDistance = 5
	cfg.AssociationSolver = trackassoc.SolverHungarian
	tr := New(cfg, nil)
	base := time.Now().UTC()

	_, err := tr.Update([]trackmodel.Detection{
		detAt(t, base, trackmodel.Position3D{X: 0}, "s1"),
		detAt(t, base, trackmodel.Position3D{X: 500}, "s2"),
	}, base)
	require.NoError(t, err)

	// Both detections move a small, gate-compatible amount; each must
	// re-match its own originating track, never cross over.
	res, err := tr.Update([]trackmodel.Detection{
		detAt(t, base.Add(time.Second), trackmodel.Position3D{X: 1}, "s1"),
		detAt(t, base.Add(time.Second), trackmodel.Position3D{X: 501}, "s2"),
	}, base.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, res.New)
	require.Len(t, res.Active, 2)
	for _, tk := range res.Active {
		assert.Equal(t, 2, tk.Hits)
	}
}

func TestPruningByStalenessDeletesIdleTrack(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.StalenessTTLS = 2
	cfg.MaxAge = 1000
	tr := New(cfg, nil)
	base := time.Now().UTC()

	_, err := tr.Update([]trackmodel.Detection{detAt(t, base, trackmodel.Position3D{}, "s1")}, base)
	require.NoError(t, err)

	res, err := tr.Update(nil, base.Add(10*time.Second))
	require.NoError(t, err)
	require.Len(t, res.Deleted, 1)
	assert.Empty(t, res.Active)
}

func TestTrackIDsAreMonotonicAcrossAllocationOrder(t *testing.T) {
	t.Parallel()

	tr := New(DefaultConfig(), nil)
	base := time.Now().UTC()

	res, err := tr.Update([]trackmodel.Detection{
		detAt(t, base, trackmodel.Position3D{X: 0}, "s1"),
		detAt(t, base, trackmodel.Position3D{X: 1000}, "s2"),
	}, base)
	require.NoError(t, err)
	require.Len(t, res.New, 2)

	// Spawned in detection order (d=0 before d=1): the zero-padded
	// sequence prefix makes allocation order a plain string comparison.
	assert.Less(t, string(res.New[0].ID), string(res.New[1].ID))
}

func TestFrameFailedWhenEveryLiveTrackPredictFails(t *testing.T) {
	t.Parallel()

	tr := New(DefaultConfig(), nil)
	base := time.Now().UTC()

	// A detection with a non-finite position isn't rejected at this
	// layer (ingest-boundary validation is the caller's job); it spawns
	// a track whose authoritative state vector already carries NaN, so
	// the next frame's predict step propagates it and the IsFinite check
	// catches the blow-up.
	nan := math.NaN()
	poisoned := trackmodel.Detection{
		Timestamp: base, Position: trackmodel.Position3D{X: nan, Y: nan, Z: nan},
		Confidence: mustConfidence(t, 0.9), SensorID: "s1",
	}
	_, err := tr.Update([]trackmodel.Detection{poisoned}, base)
	require.NoError(t, err)

	_, err = tr.Update(nil, base.Add(time.Second))
	require.Error(t, err)
	assert.True(t, trackerrors.Is(err, trackerrors.CodeFrameFailed))
}
