package trackmodel

import (
	"time"

	"github.com/trackengine/core/internal/trackerrors"
)

// Detection is a single sensor observation at a timestamp. Velocity and
// Covariance are optional; their presence is tracked via the Has* flags
// rather than nil pointers, replacing duck-typed optional attributes with
// explicit tagged presence.
type Detection struct {
	Timestamp  time.Time // tz-aware UTC
	Position   Position3D
	Confidence Confidence
	SensorID   SensorID

	HasVelocity bool
	Velocity    Velocity3D

	HasCovariance bool
	Covariance    Covariance

	// Attributes carries sensor-specific auxiliary data (e.g. bounding box
	// dims for IoU costing, cluster size for fusion provenance) without
	// widening this struct for every modality.
	Attributes map[string]float64
}

// Validate checks the detection against the wire-contract invariants:
// finite position, UTC timestamp, confidence already range-checked at
// construction.
func (d Detection) Validate() error {
	if !d.Position.IsFinite() {
		return trackerrors.New(trackerrors.CodeInvalidInput, "position is not finite")
	}
	if d.Timestamp.IsZero() {
		return trackerrors.New(trackerrors.CodeInvalidInput, "timestamp is zero")
	}
	if d.Timestamp.Location() != time.UTC {
		return trackerrors.New(trackerrors.CodeInvalidInput, "timestamp is not UTC")
	}
	if d.HasVelocity && !d.Velocity.IsFinite() {
		return trackerrors.New(trackerrors.CodeInvalidInput, "velocity is not finite")
	}
	if d.SensorID == "" {
		return trackerrors.New(trackerrors.CodeInvalidInput, "sensor id is empty")
	}
	return nil
}
