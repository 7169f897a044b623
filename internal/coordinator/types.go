// Package coordinator implements the intelligence layer that consumes a
// frame's active tracks and produces ranked tactical alerts: rolling
// per-track history, concurrent threat assessment, pairwise collision
// prediction, and alert fusion.
//
// There is no threat/collision analogue elsewhere in the tracking stack, so
// this package is newly designed in its idiom: rolling history keyed by id
// with single-writer pruning mirrors internal/lidar/analysis_run_manager.go's
// AnalysisRunManager (a sync.RWMutex-guarded registry with a dedicated
// per-run lifecycle rather than a general-purpose store), and the
// worker-pool fan-out for concurrent analysis generalizes the one-off
// "go func() { ... }()" launches in internal/lidar/webserver.go to N
// short-lived workers joined with sync.WaitGroup.
package coordinator

import (
	"time"

	"github.com/trackengine/core/internal/trackmodel"
	"github.com/trackengine/core/internal/tracker"
)

// Threat is a per-track assessment.
type Threat struct {
	TrackID     trackmodel.TrackID
	ThreatLevel trackmodel.ThreatLevel
	Confidence  trackmodel.Confidence
}

// Collision is a predicted closest-approach event between two tracks
//.
type Collision struct {
	Track1           trackmodel.TrackID
	Track2           trackmodel.TrackID
	TimeToCollision  float64 // seconds; >= 0
	Probability      float64 // [0,1]
}

// TacticalAlert couples a priority threat with an optional related
// collision and an overall urgency score.
type TacticalAlert struct {
	Threat     Threat
	Collision  *Collision
	Urgency    float64 // [0,1]
}

// snapshot is one rolling-history entry: a track's state at the frame it
// was observed active.
type snapshot struct {
	frameTS  time.Time
	position trackmodel.Position3D
	velocity trackmodel.Velocity3D
}

// AssessPolicy scores a single track's threat level from its rolling
// history. Implementations must
// be safe for concurrent use: Coordinator invokes one call per track from
// its worker pool with no shared mutable state passed in.
type AssessPolicy interface {
	Assess(history []trackmodel.Position3D, velocities []trackmodel.Velocity3D, confidence trackmodel.Confidence) (Threat, bool)
}

// trackView is what a policy or collision check needs, extracted once per
// frame from tracker.Track snapshots so analysis doesn't depend on the
// tracker package's internal record layout.
type trackView struct {
	id       trackmodel.TrackID
	position trackmodel.Position3D
	velocity trackmodel.Velocity3D
	confidence trackmodel.Confidence
}

func viewFromTrack(t tracker.Track) trackView {
	return trackView{
		id:         t.ID,
		position:   t.State.Position,
		velocity:   t.State.Velocity,
		confidence: t.Confidence,
	}
}
