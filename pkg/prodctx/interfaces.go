package prodctx

import (
	"context"

	"github.com/mfreeman451/lineradar/pkg/models"
)

// Repository persists production contexts with optimistic versioning.
type Repository interface {
	LoadContexts(ctx context.Context) ([]models.ProductionContext, error)
	GetContext(ctx context.Context, equipmentCode string) (models.ProductionContext, error)
	// SaveContext writes next only if the stored version equals expectedVersion
	// (zero means no row yet) and appends entry to the history, atomically.
	// A mismatch returns models.ErrVersionConflict.
	SaveContext(ctx context.Context, next models.ProductionContext, expectedVersion int64, entry models.ContextHistory) error
	ListHistory(ctx context.Context, equipmentCode string, limit int) ([]models.ContextHistory, error)
}

// Publisher fans events out to subscribers.
type Publisher interface {
	Publish(event models.Event) int
}

// Mirror receives every committed context, e.g. a resync cache.
type Mirror interface {
	PutContext(ctx context.Context, pc models.ProductionContext) error
}
