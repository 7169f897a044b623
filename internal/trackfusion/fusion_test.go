package trackfusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackengine/core/internal/trackmodel"
)

func mustConfidence(t *testing.T, v float64) trackmodel.Confidence {
	t.Helper()
	c, err := trackmodel.NewConfidence(v)
	require.NoError(t, err)
	return c
}

func TestFuseEmptyInput(t *testing.T) {
	t.Parallel()
	f := New(DefaultConfig(), nil)
	assert.Empty(t, f.Fuse(nil))
}

func TestFuseSingletonPassesThrough(t *testing.T) {
	t.Parallel()
	f := New(DefaultConfig(), nil)
	det := trackmodel.Detection{
		Timestamp:  time.Now().UTC(),
		Position:   trackmodel.Position3D{X: 1, Y: 2, Z: 3},
		Confidence: mustConfidence(t, 0.8),
		SensorID:   "radar-1",
	}
	out := f.Fuse([]trackmodel.Detection{det})
	require.Len(t, out, 1)
	assert.Equal(t, det.Position, out[0].Position)
	assert.Equal(t, det.SensorID, out[0].SensorID)
}

type fixedLookup map[trackmodel.SensorID]SensorCharacteristics

func (l fixedLookup) SensorCharacteristics(id trackmodel.SensorID) (SensorCharacteristics, bool) {
	c, ok := l[id]
	return c, ok
}

func TestFuseWeightsTowardMoreAccurateSensor(t *testing.T) {
	t.Parallel()

	lookup := fixedLookup{
		"radar": {Accuracy: 2.0, DetectionProbability: 0.9, FalseAlarmRate: 0.05},
		"lidar": {Accuracy: 0.2, DetectionProbability: 0.95, FalseAlarmRate: 0.02},
	}
	f := New(Config{ClusterThreshold: 5}, lookup)

	now := time.Now().UTC()
	radar := trackmodel.Detection{
		Timestamp: now, Position: trackmodel.Position3D{X: 10, Y: 0, Z: 0},
		Confidence: mustConfidence(t, 0.9), SensorID: "radar",
	}
	lidar := trackmodel.Detection{
		Timestamp: now.Add(-10 * time.Millisecond), Position: trackmodel.Position3D{X: 9.8, Y: 0, Z: 0},
		Confidence: mustConfidence(t, 0.95), SensorID: "lidar",
	}

	out := f.Fuse([]trackmodel.Detection{radar, lidar})
	require.Len(t, out, 1)
	// Weight is biased toward the lower-accuracy-value (more precise) lidar.
	assert.GreaterOrEqual(t, out[0].Position.X, 9.5)
	assert.LessOrEqual(t, out[0].Position.X, 10.0)
	assert.Equal(t, lidar.Timestamp, out[0].Timestamp)
	assert.Equal(t, 2.0, out[0].Attributes["cluster_size"])
}

func TestFuseSeparatesDistantDetections(t *testing.T) {
	t.Parallel()

	f := New(Config{ClusterThreshold: 1}, nil)
	now := time.Now().UTC()
	a := trackmodel.Detection{Timestamp: now, Position: trackmodel.Position3D{X: 0, Y: 0, Z: 0}, Confidence: mustConfidence(t, 0.9), SensorID: "s1"}
	b := trackmodel.Detection{Timestamp: now, Position: trackmodel.Position3D{X: 100, Y: 0, Z: 0}, Confidence: mustConfidence(t, 0.9), SensorID: "s2"}

	out := f.Fuse([]trackmodel.Detection{a, b})
	assert.Len(t, out, 2)
}

func TestFuseConfidenceClippedToCap(t *testing.T) {
	t.Parallel()

	lookup := fixedLookup{
		"a": {Accuracy: 1, DetectionProbability: 0.99, FalseAlarmRate: 0.0},
		"b": {Accuracy: 1, DetectionProbability: 0.99, FalseAlarmRate: 0.0},
		"c": {Accuracy: 1, DetectionProbability: 0.99, FalseAlarmRate: 0.0},
	}
	f := New(Config{ClusterThreshold: 5}, lookup)
	now := time.Now().UTC()
	var dets []trackmodel.Detection
	for _, id := range []trackmodel.SensorID{"a", "b", "c"} {
		dets = append(dets, trackmodel.Detection{
			Timestamp: now, Position: trackmodel.Position3D{X: 0, Y: 0, Z: 0},
			Confidence: mustConfidence(t, 0.99), SensorID: id,
		})
	}
	out := f.Fuse(dets)
	require.Len(t, out, 1)
	assert.LessOrEqual(t, out[0].Confidence.Value(), DefaultConfidenceBoundCap)
}
