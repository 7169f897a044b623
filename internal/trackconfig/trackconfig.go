// Package trackconfig loads and validates the module's tuning knobs. It
// mirrors internal/config.TuningConfig's shape: every field is an optional
// pointer so a JSON file need only override what it cares about, and a
// Get* accessor supplies the documented default for everything else.
package trackconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/trackengine/core/internal/coordinator"
	"github.com/trackengine/core/internal/trackassoc"
	"github.com/trackengine/core/internal/trackfusion"
	"github.com/trackengine/core/internal/trackmodel"
	"github.com/trackengine/core/internal/tracker"
)

// Config is the root tuning document; every field mirrors one of the
// recognized option groups (tracking.*, association.*, fusion.*,
// coordinator.*). Fields omitted from a JSON document keep their
// documented default, so partial configs are always safe to load.
type Config struct {
	// tracking.*
	MaxAge        *int     `json:"tracking_max_age,omitempty"`
	MinHits       *int     `json:"tracking_min_hits,omitempty"`
	MaxDistance   *float64 `json:"tracking_max_distance,omitempty"`
	StalenessTTLS *float64 `json:"tracking_staleness_ttl_s,omitempty"`

	// association.*
	AssociationSolver  *string  `json:"association_solver,omitempty"` // "greedy" | "hungarian" | "kbest"
	AssociationKernel  *string  `json:"association_kernel,omitempty"` // "euclidean" | "mahalanobis" | "iou" | "hybrid"
	AssociationMaxCost *float64 `json:"association_max_cost,omitempty"`
	KBestK             *int     `json:"association_kbest_k,omitempty"`
	WeightIoU          *float64 `json:"association_weight_iou,omitempty"`
	WeightMotion       *float64 `json:"association_weight_motion,omitempty"`
	WeightConfidence   *float64 `json:"association_weight_confidence,omitempty"`

	// fusion.*
	FusionClusterThresholdM *float64 `json:"fusion_cluster_threshold_m,omitempty"`

	// coordinator.*
	AssessmentThreshold *string  `json:"coordinator_assessment_threshold,omitempty"` // "LOW" | "MEDIUM" | "HIGH" | "CRITICAL"
	CollisionThresholdM *float64 `json:"coordinator_collision_threshold_m,omitempty"`
	TimeHorizonS        *float64 `json:"coordinator_time_horizon_s,omitempty"`
	CoordinatorWorkers  *int     `json:"coordinator_workers,omitempty"`
}

// Empty returns a Config with every field nil; Load merges a JSON document
// on top of this via the Get* accessors below.
func Empty() *Config { return &Config{} }

// Load reads and validates a Config from a JSON file. The file must carry a
// .json extension and stay under 1MB, matching LoadTuningConfig's safety
// checks.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that set fields carry legal values; unset fields are
// always valid since they fall back to documented defaults.
func (c *Config) Validate() error {
	if c.MaxAge != nil && *c.MaxAge < 0 {
		return fmt.Errorf("tracking_max_age must be non-negative, got %d", *c.MaxAge)
	}
	if c.MinHits != nil && *c.MinHits < 1 {
		return fmt.Errorf("tracking_min_hits must be >= 1, got %d", *c.MinHits)
	}
	if c.MaxDistance != nil && *c.MaxDistance < 0 {
		return fmt.Errorf("tracking_max_distance must be non-negative, got %f", *c.MaxDistance)
	}
	if c.AssociationSolver != nil {
		switch *c.AssociationSolver {
		case "greedy", "hungarian", "kbest":
		default:
			return fmt.Errorf("unknown association_solver %q", *c.AssociationSolver)
		}
	}
	if c.AssociationKernel != nil {
		switch *c.AssociationKernel {
		case "euclidean", "mahalanobis", "iou", "hybrid":
		default:
			return fmt.Errorf("unknown association_kernel %q", *c.AssociationKernel)
		}
	}
	if c.AssessmentThreshold != nil {
		if _, err := trackmodel.ParseThreatLevel(*c.AssessmentThreshold); err != nil {
			return fmt.Errorf("invalid coordinator_assessment_threshold: %w", err)
		}
	}
	return nil
}

func (c *Config) GetMaxAge() int {
	if c.MaxAge == nil {
		return 30
	}
	return *c.MaxAge
}

func (c *Config) GetMinHits() int {
	if c.MinHits == nil {
		return 3
	}
	return *c.MinHits
}

func (c *Config) GetMaxDistance() float64 {
	if c.MaxDistance == nil {
		return 50
	}
	return *c.MaxDistance
}

func (c *Config) GetStalenessTTLS() float64 {
	if c.StalenessTTLS == nil {
		return 5
	}
	return *c.StalenessTTLS
}

func (c *Config) GetAssociationSolver() trackassoc.SolverKind {
	if c.AssociationSolver == nil {
		return trackassoc.SolverGreedy
	}
	switch *c.AssociationSolver {
	case "hungarian":
		return trackassoc.SolverHungarian
	case "kbest":
		return trackassoc.SolverKBest
	default:
		return trackassoc.SolverGreedy
	}
}

func (c *Config) GetAssociationKernel() trackassoc.Kernel {
	if c.AssociationKernel == nil {
		return trackassoc.KernelMahalanobis
	}
	switch *c.AssociationKernel {
	case "euclidean":
		return trackassoc.KernelEuclidean
	case "iou":
		return trackassoc.KernelIoU
	case "hybrid":
		return trackassoc.KernelHybrid
	default:
		return trackassoc.KernelMahalanobis
	}
}

func (c *Config) GetAssociationMaxCost() float64 {
	if c.AssociationMaxCost == nil {
		return 0
	}
	return *c.AssociationMaxCost
}

func (c *Config) GetKBestK() int {
	if c.KBestK == nil {
		return 3
	}
	return *c.KBestK
}

func (c *Config) GetAssociationWeights() trackassoc.HybridWeights {
	w := trackassoc.DefaultHybridWeights()
	if c.WeightIoU != nil {
		w.IoU = *c.WeightIoU
	}
	if c.WeightMotion != nil {
		w.Motion = *c.WeightMotion
	}
	if c.WeightConfidence != nil {
		w.Confidence = *c.WeightConfidence
	}
	return w
}

func (c *Config) GetFusionClusterThresholdM() float64 {
	if c.FusionClusterThresholdM == nil {
		return 5
	}
	return *c.FusionClusterThresholdM
}

func (c *Config) GetAssessmentThreshold() trackmodel.ThreatLevel {
	if c.AssessmentThreshold == nil {
		return trackmodel.ThreatMedium
	}
	level, err := trackmodel.ParseThreatLevel(*c.AssessmentThreshold)
	if err != nil {
		return trackmodel.ThreatMedium
	}
	return level
}

func (c *Config) GetCollisionThresholdM() float64 {
	if c.CollisionThresholdM == nil {
		return 10
	}
	return *c.CollisionThresholdM
}

func (c *Config) GetTimeHorizonS() float64 {
	if c.TimeHorizonS == nil {
		return 30
	}
	return *c.TimeHorizonS
}

func (c *Config) GetCoordinatorWorkers() int {
	if c.CoordinatorWorkers == nil {
		return 8
	}
	return *c.CoordinatorWorkers
}

// TrackerConfig translates the tuning document into a tracker.Config,
// leaving filter priors at their package default.
func (c *Config) TrackerConfig() tracker.Config {
	cfg := tracker.DefaultConfig()
	cfg.MaxAge = c.GetMaxAge()
	cfg.MinHits = c.GetMinHits()
	cfg.MaxDistance = c.GetMaxDistance()
	cfg.StalenessTTLS = c.GetStalenessTTLS()
	cfg.AssociationSolver = c.GetAssociationSolver()
	cfg.AssociationKernel = c.GetAssociationKernel()
	cfg.AssociationWeights = c.GetAssociationWeights()
	cfg.AssociationMaxCost = c.GetAssociationMaxCost()
	cfg.KBestK = c.GetKBestK()
	return cfg
}

// FusionConfig translates the tuning document into a trackfusion.Config.
func (c *Config) FusionConfig() trackfusion.Config {
	return trackfusion.Config{ClusterThreshold: c.GetFusionClusterThresholdM()}
}

// CoordinatorConfig translates the tuning document into a coordinator.Config.
func (c *Config) CoordinatorConfig() coordinator.Config {
	cfg := coordinator.DefaultConfig()
	cfg.AssessmentThreshold = c.GetAssessmentThreshold()
	cfg.CollisionThresholdM = c.GetCollisionThresholdM()
	cfg.TimeHorizonS = c.GetTimeHorizonS()
	cfg.Workers = c.GetCoordinatorWorkers()
	return cfg
}
