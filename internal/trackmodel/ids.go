package trackmodel

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// SensorID identifies a physical or logical sensor producing detections.
type SensorID string

// TrackID is a stable, globally-unique identifier assigned once per track
// for the lifetime of the engine and never reused after deletion.
type TrackID string

// trackSeq is a process-wide monotonic counter backing the ordered prefix
// of every minted TrackID. internal/lidar/l5tracks/tracking.go's initTrack
// mints bare "trk_<uuid>" identifiers with no ordering guarantee beyond an
// unused NextTrackID counter; this module's testable invariant requires
// the identifier itself to sort in allocation order, so the counter here
// actually feeds the ID rather than sitting alongside it.
var trackSeq uint64

// NewTrackID mints a fresh track identifier: a zero-padded monotonic
// sequence number followed by a UUID suffix for collision-proofing across
// process restarts, keeping the familiar "trk_" naming convention.
func NewTrackID() TrackID {
	seq := atomic.AddUint64(&trackSeq, 1)
	return TrackID(fmt.Sprintf("trk_%020d_%s", seq, uuid.NewString()))
}
