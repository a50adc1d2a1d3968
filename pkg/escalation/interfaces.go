// Package escalation owns the andon lifecycle: creation, acknowledgment,
// timeout driven escalation across levels, resolution and notification.
package escalation

import (
	"context"

	"github.com/mfreeman451/lineradar/pkg/models"
	"github.com/mfreeman451/lineradar/pkg/notifications"
)

//go:generate mockgen -destination=mock_escalation.go -package=escalation github.com/mfreeman451/lineradar/pkg/escalation Store,Notifier

// Store persists andon events. Timeouts are recomputed from the stored
// CreatedAt, so the store is the source of truth after a restart.
type Store interface {
	SaveAndon(ctx context.Context, ev *models.AndonEvent) error
	GetAndon(ctx context.Context, id string) (*models.AndonEvent, error)
	ListActiveAndons(ctx context.Context) ([]models.AndonEvent, error)
}

// Notifier hands notification requests to the delivery collaborators.
type Notifier interface {
	Enqueue(req *notifications.Request) error
}

type Publisher interface {
	Publish(ev models.Event) int
}
