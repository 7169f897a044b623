// Package trackfusion combines detections from multiple sensors observing
// the same object in one frame into a single representative detection.
//
// Grounded on internal/lidar/velocity_coherent_merging.go's FragmentMerger,
// adapted from that file's temporal track-fragment merging
// (distance/velocity/alignment-scored pairs merged across frames) to
// single-frame, cross-sensor detection clustering: a simpler
// pairwise-distance union-find followed by weighted-centroid fusion rather
// than fragment alignment scoring, since co-located detections in one
// frame need no trajectory continuity test.
package trackfusion

import (
	"sort"

	"github.com/trackengine/core/internal/trackmodel"
)

// SensorCharacteristics describes a sensor's measurement quality, looked up
// by SensorID at fusion time.
type SensorCharacteristics struct {
	Accuracy            float64 // lower is better; weight ∝ 1/accuracy
	UpdateRate          float64 // Hz, informational
	DetectionProbability float64 // p_det, used in the fused confidence bound
	FalseAlarmRate      float64 // p_fa, used in the fused confidence bound
	MeasurementCovariance trackmodel.Covariance
}

// Lookup resolves SensorCharacteristics by SensorID; outer layers implement
// this against whatever sensor registry they maintain.
type Lookup interface {
	SensorCharacteristics(id trackmodel.SensorID) (SensorCharacteristics, bool)
}

// DefaultConfidenceBoundCap is the ceiling applied to a fused detection's
// confidence regardless of how many sensors agree.
const DefaultConfidenceBoundCap = 0.99

// Config parameterizes clustering.
type Config struct {
	ClusterThreshold float64 // meters; default 5
}

// DefaultConfig returns the package's documented default.
func DefaultConfig() Config {
	return Config{ClusterThreshold: 5}
}

// Fuser clusters and fuses multi-sensor detections for one frame.
type Fuser struct {
	cfg    Config
	lookup Lookup
}

// New constructs a Fuser. lookup may be nil, in which case every sensor is
// treated as having unit accuracy and a 0.9/0.05 detection/false-alarm rate
// (a conservative default used when no SensorCharacteristics source is
// wired).
func New(cfg Config, lookup Lookup) *Fuser {
	return &Fuser{cfg: cfg, lookup: lookup}
}

var defaultCharacteristics = SensorCharacteristics{
	Accuracy:             1.0,
	DetectionProbability: 0.9,
	FalseAlarmRate:       0.05,
}

func (f *Fuser) characteristics(id trackmodel.SensorID) SensorCharacteristics {
	if f.lookup == nil {
		return defaultCharacteristics
	}
	if c, ok := f.lookup.SensorCharacteristics(id); ok {
		return c
	}
	return defaultCharacteristics
}

// Fuse clusters co-located detections by pairwise Euclidean distance
// (union-find over the cluster_threshold gate) and replaces each cluster
// with one weighted-centroid detection. Empty input returns
// an empty slice; singleton clusters pass through unchanged. Output order
// is deterministic: clusters are sorted by fused position (x, then y, then
// z), matching internal/lidar/dbscan_clusterer.go's Cluster sort-by-centroid
// idiom for reproducible golden-replay output.
func (f *Fuser) Fuse(detections []trackmodel.Detection) []trackmodel.Detection {
	if len(detections) == 0 {
		return nil
	}

	clusters := clusterByDistance(detections, f.cfg.ClusterThreshold)

	out := make([]trackmodel.Detection, 0, len(clusters))
	for _, idxs := range clusters {
		if len(idxs) == 1 {
			out = append(out, detections[idxs[0]])
			continue
		}
		members := make([]trackmodel.Detection, len(idxs))
		for i, idx := range idxs {
			members[i] = detections[idx]
		}
		out = append(out, f.fuseCluster(members))
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Position, out[j].Position
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})

	return out
}

// clusterByDistance groups detection indices via union-find: any pair
// within threshold of each other joins the same cluster (transitively).
func clusterByDistance(detections []trackmodel.Detection, threshold float64) [][]int {
	n := len(detections)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if detections[i].Position.Distance(detections[j].Position) <= threshold {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]int)
	for i := 0; i < n; i++ {
		r := find(i)
		groups[r] = append(groups[r], i)
	}

	clusters := make([][]int, 0, len(groups))
	for _, idxs := range groups {
		clusters = append(clusters, idxs)
	}
	return clusters
}

// fuseCluster computes the weighted-centroid fused detection for a cluster
// of co-located detections: weights w_i ∝ (1/accuracy_i) *
// confidence_i; position = Σ(w_i * p_i) / Σ w_i; timestamp = earliest in
// the cluster; confidence = probability at least one sensor truly
// detected, bounded and clipped to DefaultConfidenceBoundCap.
func (f *Fuser) fuseCluster(members []trackmodel.Detection) trackmodel.Detection {
	var sumW float64
	var sumX, sumY, sumZ float64
	earliest := members[0].Timestamp
	missProb := 1.0

	attrs := map[string]float64{"cluster_size": float64(len(members))}

	for _, d := range members {
		c := f.characteristics(d.SensorID)
		accuracy := c.Accuracy
		if accuracy <= 0 {
			accuracy = 1
		}
		w := (1 / accuracy) * d.Confidence.Value()
		sumW += w
		sumX += w * d.Position.X
		sumY += w * d.Position.Y
		sumZ += w * d.Position.Z

		if d.Timestamp.Before(earliest) {
			earliest = d.Timestamp
		}

		pTrue := c.DetectionProbability * (1 - c.FalseAlarmRate) * d.Confidence.Value()
		missProb *= 1 - pTrue
	}

	var pos trackmodel.Position3D
	if sumW > 0 {
		pos = trackmodel.Position3D{X: sumX / sumW, Y: sumY / sumW, Z: sumZ / sumW}
	} else {
		pos = members[0].Position
	}

	confVal := 1 - missProb
	if confVal > DefaultConfidenceBoundCap {
		confVal = DefaultConfidenceBoundCap
	}
	conf := trackmodel.ClampConfidence(confVal)

	return trackmodel.Detection{
		Timestamp:   earliest.UTC(),
		Position:    pos,
		Confidence:  conf,
		SensorID:    members[0].SensorID,
		Attributes:  attrs,
	}
}
