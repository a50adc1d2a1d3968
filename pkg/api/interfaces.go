package api

import (
	"context"

	"github.com/mfreeman451/lineradar/pkg/broadcast"
	"github.com/mfreeman451/lineradar/pkg/models"
	"github.com/mfreeman451/lineradar/pkg/snapshot"
)

// ContextService reads and updates production contexts.
type ContextService interface {
	Known(code string) bool
	Get(code string) models.ProductionContext
	Apply(ctx context.Context, code string, change models.ContextChange) (models.ProductionContext, error)
	History(ctx context.Context, code string, limit int) ([]models.ContextHistory, error)
}

// AndonService drives the andon lifecycle.
type AndonService interface {
	Report(ctx context.Context, t models.AndonTrigger) (models.AndonEvent, bool, error)
	Get(ctx context.Context, id string) (models.AndonEvent, error)
	List(equipment string) []models.AndonEvent
	Acknowledge(ctx context.Context, id, by string, expectedLevel int) (models.AndonEvent, error)
	Resolve(ctx context.Context, id, by, note string) (models.AndonEvent, error)
	Cancel(ctx context.Context, id, by, note string) (models.AndonEvent, error)
}

type DeviceStatusProvider interface {
	Status() []models.DeviceHealth
}

type LatencyProvider interface {
	GetSamples(deviceID string) []models.PollSample
}

type BroadcastStats interface {
	Stats() broadcast.Stats
}

// SnapshotReader serves the cached state a reconnecting client resyncs from.
type SnapshotReader interface {
	Resync(ctx context.Context, codes []string) (snapshot.Resync, error)
}
