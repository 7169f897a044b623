package tracker

import (
	"context"

	"github.com/trackengine/core/internal/trackmodel"
)

// Repository is the persistence contract consumed by outer layers. The
// kernel does not require it for per-frame correctness; it exists so a
// caller may hydrate tracker state on boot or persist snapshots after each
// frame, and the kernel never blocks a frame on it.
//
// Modeled on internal/lidar/track_store.go's TrackStore interface, narrowed
// to five operations.
type Repository interface {
	Save(ctx context.Context, t Track) error
	GetByID(ctx context.Context, id trackmodel.TrackID) (Track, bool, error)
	List(ctx context.Context) ([]Track, error)
	Delete(ctx context.Context, id trackmodel.TrackID) error
	DeleteAll(ctx context.Context) error
}
