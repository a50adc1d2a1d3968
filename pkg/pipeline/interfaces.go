package pipeline

import (
	"context"

	"github.com/mfreeman451/lineradar/pkg/models"
)

// ContextSource returns the live production context of an equipment.
type ContextSource interface {
	Get(equipmentCode string) models.ProductionContext
}

// Deriver consumes enriched metrics in per-equipment order.
type Deriver interface {
	Process(ctx context.Context, m *models.EnrichedMetric) error
}

type Publisher interface {
	Publish(ev models.Event) int
}

// HealthSink mirrors device health, e.g. to a resync cache.
type HealthSink interface {
	PutHealth(ctx context.Context, h models.DeviceHealth) error
}
