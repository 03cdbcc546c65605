package core

import (
	"context"

	"github.com/tphan267/mirrorcast-signal/pkg/signaling"
)

// App defines the core application interface used by the HTTP layer
type App interface {
	// Health reports liveness together with a short summary of hub state
	Health(ctx context.Context) (*Health, error)

	// Stats combines live hub counters with persisted session totals
	Stats(ctx context.Context) (*StatsReport, error)

	// Rooms lists live rooms
	Rooms(ctx context.Context) ([]signaling.RoomInfo, error)
}
