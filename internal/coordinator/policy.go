package coordinator

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/trackengine/core/internal/trackmodel"
)

// MinHistoryForPercentile is the number of rolling-history speed samples
// required before a track's own speed distribution is trusted for
// percentile banding; below this, RuleBasedPolicy falls back to the fixed
// thresholds used for cold-start tracks.
const MinHistoryForPercentile = 5

// RuleBasedPolicy is the default threat-assessment policy. Speed thresholds
// are derived per-track from the rolling history's own speed distribution
// via gonum's percentile estimator (internal/db/db.go uses stat.Quantile
// for latency rollups in the same way), rather than fixed global constants,
// so a consistently fast mover (e.g. a vehicle cruising at highway speed)
// isn't perpetually flagged once its own baseline is established.
type RuleBasedPolicy struct {
	// FixedLowHigh bounds used only until a track accumulates
	// MinHistoryForPercentile samples.
	ColdStartMediumMps float64
	ColdStartHighMps    float64
	ColdStartCriticalMps float64
}

// DefaultRuleBasedPolicy returns the documented cold-start speed bands
// (m/s): medium 5, high 15, critical 30, the same bands the tracker
// kernel itself uses for its coarse first-pass classification
// (internal/tracker/kernel.go: threatFromVelocity), kept in sync so a
// freshly-spawned track reports a consistent threat level.
func DefaultRuleBasedPolicy() RuleBasedPolicy {
	return RuleBasedPolicy{ColdStartMediumMps: 5, ColdStartHighMps: 15, ColdStartCriticalMps: 30}
}

// Assess implements AssessPolicy.
func (p RuleBasedPolicy) Assess(history []trackmodel.Position3D, velocities []trackmodel.Velocity3D, confidence trackmodel.Confidence) (Threat, bool) {
	if len(velocities) == 0 {
		return Threat{}, false
	}

	current := velocities[len(velocities)-1].Magnitude()
	var level trackmodel.ThreatLevel

	if len(velocities) >= MinHistoryForPercentile {
		speeds := make([]float64, len(velocities))
		for i, v := range velocities {
			speeds[i] = v.Magnitude()
		}
		sort.Float64s(speeds)
		p50 := stat.Quantile(0.5, stat.Empirical, speeds, nil)
		p90 := stat.Quantile(0.9, stat.Empirical, speeds, nil)

		// Only a speed above the track's own median escalates, so a track
		// holding a steady speed settles at LOW.
		switch {
		case current > p50 && current >= p90:
			level = trackmodel.ThreatHigh
		case current > p50:
			level = trackmodel.ThreatMedium
		default:
			level = trackmodel.ThreatLow
		}
	} else {
		switch {
		case current >= p.ColdStartCriticalMps:
			level = trackmodel.ThreatCritical
		case current >= p.ColdStartHighMps:
			level = trackmodel.ThreatHigh
		case current >= p.ColdStartMediumMps:
			level = trackmodel.ThreatMedium
		default:
			level = trackmodel.ThreatLow
		}
	}

	// Confidence band: a fast-but-uncertain track is not escalated to
	// CRITICAL purely on speed; high speed plus high confidence is.
	if level == trackmodel.ThreatHigh && confidence.Value() >= 0.9 {
		level = trackmodel.ThreatCritical
	}

	return Threat{ThreatLevel: level, Confidence: confidence}, true
}
