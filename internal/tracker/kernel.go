package tracker

import (
	"sync"
	"time"

	"github.com/trackengine/core/internal/trackassoc"
	"github.com/trackengine/core/internal/trackerrors"
	"github.com/trackengine/core/internal/trackfilter"
	"github.com/trackengine/core/internal/trackfusion"
	"github.com/trackengine/core/internal/trackmodel"
)

// chiSquareGate3DOF is the chi-square critical value at 95% confidence for
// 3 degrees of freedom, used to gate the Mahalanobis association kernel
//.
const chiSquareGate3DOF = 7.815

// record pairs a Track snapshot with its live filter state. Only record
// exists inside the tracker's lock; Track values returned to callers are
// always clone()'d first.
type record struct {
	track Track
	state trackfilter.State
}

// Tracker is the per-frame kernel owning the set of live tracks and their
// filter state exclusively. Safe for concurrent use; Update serializes all
// mutation under a single lock, matching internal/lidar/l5tracks/tracking.go's
// Tracker (mu sync.RWMutex guarding Tracks map + NextTrackID counter).
type Tracker struct {
	mu sync.RWMutex

	cfg    Config
	filter *trackfilter.Filter
	fuser  *trackfusion.Fuser

	tracks map[trackmodel.TrackID]*record
}

// New constructs a Tracker. fuser may be nil to skip the fusion stage
// entirely.
func New(cfg Config, fuser *trackfusion.Fuser) *Tracker {
	return &Tracker{
		cfg:    cfg,
		filter: trackfilter.New(cfg.Priors),
		fuser:  fuser,
		tracks: make(map[trackmodel.TrackID]*record),
	}
}

// Update runs one frame through the nine-step pipeline:
// predict, fuse, associate, update matched, spawn, miss, prune, promote,
// emit. It is a total function over well-formed input: a
// single track's filter or association failure never halts the frame,
// only a whole-frame degeneracy (every existing track's predict step
// failing) surfaces as CodeFrameFailed.
func (tr *Tracker) Update(detections []trackmodel.Detection, frameTS time.Time) (TrackingResult, error) {
	start := time.Now()

	tr.mu.Lock()
	defer tr.mu.Unlock()

	// 1. Predict.
	liveBefore := 0
	predictFailures := 0
	for _, rec := range tr.tracks {
		if rec.track.Status == StatusDeleted {
			continue
		}
		liveBefore++
		dt := frameTS.Sub(rec.track.UpdatedAt).Seconds()
		clamped := tr.filter.Predict(&rec.state, dt)
		if !rec.state.Position.IsFinite() {
			// Numerical blow-up in the transition: mark this track LOST
			// rather than propagating NaN/Inf into association.
			rec.track.Status = StatusLost
			predictFailures++
			continue
		}
		rec.track.State = stateFromFilter(rec.state)
		if clamped {
			rec.track.Confidence = trackmodel.ClampConfidence(rec.track.Confidence.Value() * 0.5)
		}
	}
	if liveBefore > 0 && predictFailures == liveBefore {
		return tr.snapshot(frameTS, time.Since(start)), trackerrors.New(trackerrors.CodeFrameFailed,
			"predict failed for every live track this frame")
	}

	// 2. Fuse (optional).
	fused := detections
	if tr.fuser != nil {
		fused = tr.fuser.Fuse(detections)
	}

	// Stable ordering of live (non-deleted) tracks for this frame's
	// association matrix and subsequent indexed operations.
	liveIDs := make([]trackmodel.TrackID, 0, len(tr.tracks))
	for id, rec := range tr.tracks {
		if rec.track.Status != StatusDeleted {
			liveIDs = append(liveIDs, id)
		}
	}

	// 3. Associate.
	matched, unmatchedDets, unmatchedTracks := tr.associate(fused, liveIDs)

	// 4. Update matched tracks.
	for d, t := range matched {
		id := liveIDs[t]
		rec := tr.tracks[id]
		det := fused[d]

		innov, err := tr.filter.Update(&rec.state, det.Position)
		if err != nil {
			rec.track.Status = StatusLost
			continue
		}
		_ = innov
		rec.track.State = stateFromFilter(rec.state)
		rec.track.Hits++
		rec.track.Missed = 0
		rec.track.UpdatedAt = frameTS
		rec.track.SensorID = det.SensorID
		rec.track.Confidence = det.Confidence
		rec.track.ThreatLevel = threatFromVelocity(rec.track.State.Velocity)
	}

	// 5. Spawn new tracks from unmatched detections.
	var newTracks []Track
	for _, d := range unmatchedDets {
		det := fused[d]
		state := trackfilter.Init(det, tr.cfg.Priors)
		id := trackmodel.NewTrackID()
		rec := &record{
			track: Track{
				ID:          id,
				State:       stateFromFilter(state),
				Status:      StatusTentative,
				Confidence:  det.Confidence,
				ThreatLevel: threatFromVelocity(state.Velocity),
				CreatedAt:   frameTS,
				UpdatedAt:   frameTS,
				Hits:        1,
				Missed:      0,
				SensorID:    det.SensorID,
			},
			state: state,
		}
		tr.tracks[id] = rec
		newTracks = append(newTracks, rec.track.clone())
	}

	// 6. Miss unmatched tracks.
	for _, t := range unmatchedTracks {
		id := liveIDs[t]
		rec := tr.tracks[id]
		rec.track.Missed++
		if rec.track.Status == StatusActive {
			rec.track.Status = StatusLost
		}
	}

	// 7. Prune.
	var deleted []Track
	for id, rec := range tr.tracks {
		age := rec.track.Missed > tr.cfg.MaxAge
		stale := frameTS.Sub(rec.track.UpdatedAt).Seconds() > tr.cfg.StalenessTTLS
		if age || stale {
			rec.track.Status = StatusDeleted
			deleted = append(deleted, rec.track.clone())
			delete(tr.tracks, id)
		}
	}

	// 8. Promote.
	for _, rec := range tr.tracks {
		if rec.track.Status == StatusTentative && rec.track.Hits >= tr.cfg.MinHits {
			rec.track.Status = StatusActive
		}
	}

	// 9. Emit.
	result := tr.snapshot(frameTS, time.Since(start))
	result.New = newTracks
	result.Deleted = deleted
	return result, nil
}

// snapshot returns the current active-track view without mutating state;
// used both for the normal emit path and for the partial result returned
// alongside a CodeFrameFailed error.
func (tr *Tracker) snapshot(frameTS time.Time, elapsed time.Duration) TrackingResult {
	active := make([]Track, 0, len(tr.tracks))
	for _, rec := range tr.tracks {
		if rec.track.Status != StatusDeleted {
			active = append(active, rec.track.clone())
		}
	}
	return TrackingResult{
		Active:           active,
		FrameTS:          frameTS,
		ProcessingTimeMS: float64(elapsed.Microseconds()) / 1000,
	}
}

// associate builds the cost matrix over live tracks and fused detections
// and solves it with the configured solver. Pairs beyond
// MaxDistance are gated out directly (not dependent on the chosen kernel),
// handling the "all detections beyond max_distance from any track"
// boundary case uniformly across kernels.
func (tr *Tracker) associate(detections []trackmodel.Detection, liveIDs []trackmodel.TrackID) (matched map[int]int, unmatchedDets, unmatchedTracks []int) {
	n, m := len(detections), len(liveIDs)

	// A Matrix with zero rows carries no column count, so a solver has no
	// way to recover m (or vice versa) from an empty cost matrix alone;
	// short-circuit both degenerate shapes here rather than asking every
	// solver to special-case them.
	if n == 0 || m == 0 {
		unmatchedDets = make([]int, n)
		for i := range unmatchedDets {
			unmatchedDets[i] = i
		}
		unmatchedTracks = make([]int, m)
		for i := range unmatchedTracks {
			unmatchedTracks[i] = i
		}
		return map[int]int{}, unmatchedDets, unmatchedTracks
	}

	matrix := trackassoc.NewMatrix(n, m)

	for d, det := range detections {
		for ti, id := range liveIDs {
			rec := tr.tracks[id]
			dist := det.Position.Distance(rec.track.State.Position)
			if tr.cfg.MaxDistance > 0 && dist > tr.cfg.MaxDistance {
				matrix[d][ti] = trackassoc.Inf
				continue
			}

			mahal, err := tr.filter.Mahalanobis(&rec.state, det.Position)
			if err != nil {
				matrix[d][ti] = trackassoc.Inf
				continue
			}

			pair := trackassoc.Pair{
				EuclideanDist:      dist,
				MahalanobisSquared: mahal,
				ChiSquareGate:      chiSquareGate3DOF,
				Confidence:         det.Confidence.Value(),
				MaxCost:            tr.cfg.AssociationMaxCost,
			}
			matrix[d][ti] = trackassoc.Cost(tr.cfg.AssociationKernel, tr.cfg.AssociationWeights, pair)
		}
	}

	res := trackassoc.Solve(tr.cfg.AssociationSolver, matrix, tr.cfg.KBestK)

	matched = make(map[int]int)
	for d, t := range res.Matched {
		if t >= 0 {
			matched[d] = t
		}
	}
	return matched, res.UnmatchedDets, res.UnmatchedTracks
}

func stateFromFilter(s trackfilter.State) TrackState {
	return TrackState{
		Position:      s.Position,
		Velocity:      s.Velocity,
		HasCovariance: true,
		Covariance:    s.P,
	}
}

// threatFromVelocity is the kernel's coarse, speed-only first-pass threat
// classification. The coordinator's own assessment (§4.5) is the
// authoritative, confidence-band-aware pass; this value is a cheap default
// so a Track snapshot always carries a threat_level even before the
// coordinator runs.
func threatFromVelocity(v trackmodel.Velocity3D) trackmodel.ThreatLevel {
	speed := v.Magnitude()
	switch {
	case speed < 5:
		return trackmodel.ThreatLow
	case speed < 15:
		return trackmodel.ThreatMedium
	case speed < 30:
		return trackmodel.ThreatHigh
	default:
		return trackmodel.ThreatCritical
	}
}
