package coordinator

import "github.com/trackengine/core/internal/trackmodel"

// Config holds the tuning knobs recognized by the coordinator.
type Config struct {
	AssessmentThreshold trackmodel.ThreatLevel // default MEDIUM
	CollisionThresholdM float64                // default 10
	TimeHorizonS        float64                // default 30
	PruneHistory        bool                   // drop history ids absent from active (default true)
	MaxHistoryLength    int                    // rolling-history cap per track
	Workers             int                    // threat-assessment worker pool size
}

// DefaultConfig returns the package's documented defaults.
func DefaultConfig() Config {
	return Config{
		AssessmentThreshold: trackmodel.ThreatMedium,
		CollisionThresholdM: 10,
		TimeHorizonS:        30,
		PruneHistory:        true,
		MaxHistoryLength:    50,
		Workers:             8,
	}
}
