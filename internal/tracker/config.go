package tracker

import (
	"github.com/trackengine/core/internal/trackassoc"
	"github.com/trackengine/core/internal/trackfilter"
)

// Config holds the tuning knobs recognized by the tracker kernel: the
// `tracking.*` and `association.*` groups. Mirrors
// internal/lidar/l5tracks/tracking.go's TrackerConfig shape, with this
// package's own field set in place of its LiDAR-specific
// kinematics/OBB/classification knobs.
type Config struct {
	MaxAge         int     // tracking.max_age, default 30
	MinHits        int     // tracking.min_hits, default 3
	MaxDistance    float64 // tracking.max_distance, default 50 (meters)
	StalenessTTLS  float64 // tracking.staleness_ttl_s, default 5

	AssociationSolver  trackassoc.SolverKind
	AssociationKernel  trackassoc.Kernel
	AssociationWeights trackassoc.HybridWeights
	AssociationMaxCost float64
	KBestK             int

	Priors trackfilter.Priors
}

// DefaultConfig returns the package's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxAge:             30,
		MinHits:            3,
		MaxDistance:        50,
		StalenessTTLS:      5,
		AssociationSolver:  trackassoc.SolverGreedy,
		AssociationKernel:  trackassoc.KernelMahalanobis,
		AssociationWeights: trackassoc.DefaultHybridWeights(),
		AssociationMaxCost: 0,
		KBestK:             3,
		Priors:             trackfilter.DefaultPriors(),
	}
}
