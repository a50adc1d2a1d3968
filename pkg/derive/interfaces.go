// Package derive pkg/derive/interfaces.go
package derive

import (
	"context"

	"github.com/mfreeman451/lineradar/pkg/models"
)

//go:generate mockgen -destination=mock_derive.go -package=derive github.com/mfreeman451/lineradar/pkg/derive Alerter,ContextWriter,DowntimeStore

// Alerter raises Andon events. created is false when an equivalent
// event was already open.
type Alerter interface {
	Trigger(ctx context.Context, t models.AndonTrigger) (event models.AndonEvent, created bool, err error)
}

// ContextWriter receives production counts and efficiency.
type ContextWriter interface {
	RecordProduction(ctx context.Context, code string, delta int64, efficiency *float64) (models.ProductionContext, error)
}

// DowntimeStore persists downtime intervals. SaveDowntime is an upsert by ID.
type DowntimeStore interface {
	SaveDowntime(ctx context.Context, d models.DowntimeEvent) error
	OpenDowntime(ctx context.Context, equipmentCode string) (*models.DowntimeEvent, error)
}

type Publisher interface {
	Publish(event models.Event) int
}

// OEESink mirrors snapshots, e.g. to a resync cache.
type OEESink interface {
	PutOEE(ctx context.Context, s models.OEESnapshot) error
}
