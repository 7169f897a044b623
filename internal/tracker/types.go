// Package tracker implements the per-frame tracker kernel: predict,
// associate, update, spawn, miss, prune, promote, emit.
//
// Grounded on internal/lidar/l5tracks/tracking.go's Tracker/TrackedObject,
// generalized from a LiDAR-cluster-specific, 2D [x,y,vx,vy] fixed-array
// state to a sensor-agnostic Detection input and 3D [x,y,z,vx,vy,vz] state
// carried via trackfilter.State, and from a three-state lifecycle
// (tentative/confirmed/deleted) to a four-state one (TENTATIVE, ACTIVE,
// LOST, DELETED).
package tracker

import (
	"time"

	"github.com/trackengine/core/internal/trackmodel"
)

// Status is a track's lifecycle state.
type Status int

const (
	StatusTentative Status = iota
	StatusActive
	StatusLost
	StatusDeleted
)

func (s Status) String() string {
	switch s {
	case StatusTentative:
		return "TENTATIVE"
	case StatusActive:
		return "ACTIVE"
	case StatusLost:
		return "LOST"
	case StatusDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// TrackState is the filter-derived position/velocity view of a track
//.
type TrackState struct {
	Position      trackmodel.Position3D
	Velocity      trackmodel.Velocity3D
	HasCovariance bool
	Covariance    trackmodel.Covariance
}

// Track is one tracked object's full snapshot.
type Track struct {
	ID          trackmodel.TrackID
	State       TrackState
	Status      Status
	Confidence  trackmodel.Confidence
	ThreatLevel trackmodel.ThreatLevel
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Hits        int
	Missed      int

	// SensorID of the detection that most recently updated this track, or
	// of the detection that spawned it if it has not been matched since.
	SensorID trackmodel.SensorID
}

// clone returns a deep-enough copy for safe return outside the tracker's
// lock: scalar fields copy by value, and Covariance (itself copy-on-write
// via gonum.mat.SymDense sharing) is cloned so a caller cannot observe a
// future in-place filter mutation.
func (t Track) clone() Track {
	out := t
	if out.State.HasCovariance {
		out.State.Covariance = out.State.Covariance.Clone()
	}
	return out
}

// TrackingResult is the per-frame output snapshot.
type TrackingResult struct {
	Active    []Track
	New       []Track
	Deleted   []Track
	FrameTS   time.Time
	ProcessingTimeMS float64
}
