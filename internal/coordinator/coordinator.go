package coordinator

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/trackengine/core/internal/trackerrors"
	"github.com/trackengine/core/internal/trackmodel"
	"github.com/trackengine/core/internal/tracker"
)

// Coordinator consumes a frame's active tracks and produces ranked
// tactical alerts. Safe for concurrent use; history is guarded by a
// single-writer discipline enforced here by a plain mutex rather than
// fine-grained locking, matching AnalysisRunManager's coarse-lock idiom
// (internal/lidar/analysis_run_manager.go).
type Coordinator struct {
	mu      sync.Mutex
	cfg     Config
	policy  AssessPolicy
	history map[trackmodel.TrackID][]snapshot
}

// New constructs a Coordinator with the given policy. A nil policy uses
// DefaultRuleBasedPolicy.
func New(cfg Config, policy AssessPolicy) *Coordinator {
	if policy == nil {
		policy = DefaultRuleBasedPolicy()
	}
	return &Coordinator{
		cfg:     cfg,
		policy:  policy,
		history: make(map[trackmodel.TrackID][]snapshot),
	}
}

// Process runs the five-step per-frame pipeline: history
// update, concurrent threat assessment, priority filtering, collision
// prediction, alert fusion, returning alerts sorted by descending
// urgency, ties broken by ascending TrackID.
func (c *Coordinator) Process(activeTracks []tracker.Track, frameTS time.Time) []TacticalAlert {
	c.mu.Lock()
	views := make([]trackView, len(activeTracks))
	activeIDs := make(map[trackmodel.TrackID]bool, len(activeTracks))
	for i, t := range activeTracks {
		views[i] = viewFromTrack(t)
		activeIDs[t.ID] = true

		hist := c.history[t.ID]
		hist = append(hist, snapshot{frameTS: frameTS, position: t.State.Position, velocity: t.State.Velocity})
		if c.cfg.MaxHistoryLength > 0 && len(hist) > c.cfg.MaxHistoryLength {
			hist = hist[len(hist)-c.cfg.MaxHistoryLength:]
		}
		c.history[t.ID] = hist
	}
	if c.cfg.PruneHistory {
		for id := range c.history {
			if !activeIDs[id] {
				delete(c.history, id)
			}
		}
	}
	// Snapshot the per-track histories needed for assessment while still
	// holding the lock, then release it before the concurrent fan-out,
	// workers never touch shared coordinator state.
	histories := make(map[trackmodel.TrackID][]snapshot, len(views))
	for _, v := range views {
		histories[v.id] = append([]snapshot(nil), c.history[v.id]...)
	}
	c.mu.Unlock()

	threats := c.assessConcurrently(views, histories)

	priority := make([]Threat, 0, len(threats))
	for _, th := range threats {
		if th.ThreatLevel >= c.cfg.AssessmentThreshold {
			priority = append(priority, th)
		}
	}

	collisions := c.predictCollisions(views, priority)

	alerts := fuseAlerts(priority, collisions, c.cfg.TimeHorizonS)
	return alerts
}

// assessConcurrently fans out one analysis per track across a bounded
// worker pool, generalizing a one-off "go func() { ... }()" launch pattern
// to N short-lived workers joined with sync.WaitGroup. A panic or error
// analyzing one track is isolated and contributes no threat for that
// track, never aborting the others.
func (c *Coordinator) assessConcurrently(views []trackView, histories map[trackmodel.TrackID][]snapshot) []Threat {
	type result struct {
		threat Threat
		ok     bool
	}

	results := make([]result, len(views))
	workers := c.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan int, len(views))
	for i := range views {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = c.assessOne(views[i], histories[views[i].id])
			}
		}()
	}
	wg.Wait()

	out := make([]Threat, 0, len(views))
	for i, r := range results {
		if r.ok {
			out = append(out, r.threat)
		}
		_ = i
	}
	return out
}

// assessOne runs the policy for a single track, converting a panic into an
// isolated coordinator-analysis error, contributing no threat for that
// track rather than crashing the worker pool.
func (c *Coordinator) assessOne(v trackView, hist []snapshot) (res struct {
	threat Threat
	ok     bool
}) {
	defer func() {
		if r := recover(); r != nil {
			_ = trackerrors.ForTrack(trackerrors.CodeCoordinatorAnalysis, string(v.id), "panic during threat assessment")
			res.ok = false
		}
	}()

	positions := make([]trackmodel.Position3D, len(hist))
	velocities := make([]trackmodel.Velocity3D, len(hist))
	for i, s := range hist {
		positions[i] = s.position
		velocities[i] = s.velocity
	}

	threat, ok := c.policy.Assess(positions, velocities, v.confidence)
	if !ok {
		return res
	}
	threat.TrackID = v.id
	res.threat = threat
	res.ok = true
	return res
}

// predictCollisions computes pairwise closest approach under a
// constant-velocity assumption for the priority subset only: t* = -(Δp·Δv)/|Δv|²; rejects t* < 0 or t* > time_horizon;
// d_min = |Δp + Δv·t*|; emits a Collision when d_min < collision_threshold.
func (c *Coordinator) predictCollisions(views []trackView, priority []Threat) []Collision {
	byID := make(map[trackmodel.TrackID]trackView, len(views))
	for _, v := range views {
		byID[v.id] = v
	}

	var collisions []Collision
	for i := 0; i < len(priority); i++ {
		for j := i + 1; j < len(priority); j++ {
			a, okA := byID[priority[i].TrackID]
			b, okB := byID[priority[j].TrackID]
			if !okA || !okB {
				continue
			}

			dp := b.position.Sub(a.position)
			dv := trackmodel.Position3D{
				X: b.velocity.VX - a.velocity.VX,
				Y: b.velocity.VY - a.velocity.VY,
				Z: b.velocity.VZ - a.velocity.VZ,
			}

			dvSq := dv.X*dv.X + dv.Y*dv.Y + dv.Z*dv.Z
			if dvSq == 0 {
				continue
			}

			dot := dp.X*dv.X + dp.Y*dv.Y + dp.Z*dv.Z
			tStar := -dot / dvSq
			if tStar < 0 || tStar > c.cfg.TimeHorizonS {
				continue
			}

			closest := trackmodel.Position3D{X: dp.X + dv.X*tStar, Y: dp.Y + dv.Y*tStar, Z: dp.Z + dv.Z*tStar}
			dMin := closest.Norm()
			if dMin >= c.cfg.CollisionThresholdM {
				continue
			}

			probability := 1 - dMin/c.cfg.CollisionThresholdM
			t1, t2 := priority[i].TrackID, priority[j].TrackID
			if t2 < t1 {
				t1, t2 = t2, t1
			}
			collisions = append(collisions, Collision{
				Track1:          t1,
				Track2:          t2,
				TimeToCollision: tStar,
				Probability:     math.Min(1, math.Max(0, probability)),
			})
		}
	}
	return collisions
}

// fuseAlerts joins each priority threat with any collision referring to
// its track, computes urgency, and returns alerts sorted by descending
// urgency (ties broken by ascending TrackID).
func fuseAlerts(priority []Threat, collisions []Collision, timeHorizon float64) []TacticalAlert {
	related := make(map[trackmodel.TrackID]*Collision, len(collisions)*2)
	for i := range collisions {
		col := collisions[i]
		if existing, ok := related[col.Track1]; !ok || col.TimeToCollision < existing.TimeToCollision {
			related[col.Track1] = &collisions[i]
		}
		if existing, ok := related[col.Track2]; !ok || col.TimeToCollision < existing.TimeToCollision {
			related[col.Track2] = &collisions[i]
		}
	}

	alerts := make([]TacticalAlert, 0, len(priority))
	for _, th := range priority {
		var col *Collision
		proximityBonus := 0.0
		if c, ok := related[th.TrackID]; ok {
			col = c
			if timeHorizon > 0 {
				proximityBonus = 1 - c.TimeToCollision/timeHorizon
			}
		}

		levelNorm := float64(th.ThreatLevel) / trackmodel.MaxThreatLevel
		urgency := (levelNorm + th.Confidence.Value() + proximityBonus) / 2
		urgency = math.Min(1, math.Max(0, urgency))

		alerts = append(alerts, TacticalAlert{Threat: th, Collision: col, Urgency: urgency})
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].Urgency != alerts[j].Urgency {
			return alerts[i].Urgency > alerts[j].Urgency
		}
		return alerts[i].Threat.TrackID < alerts[j].Threat.TrackID
	})

	return alerts
}
