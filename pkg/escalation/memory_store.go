package escalation

import (
	"context"
	"sort"
	"sync"

	"github.com/mfreeman451/lineradar/pkg/models"
)

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]models.AndonEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]models.AndonEvent)}
}

func (s *MemoryStore) SaveAndon(_ context.Context, ev *models.AndonEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[ev.ID] = cloneEvent(ev)

	return nil
}

// GetAndon returns nil, nil for an unknown id.
func (s *MemoryStore) GetAndon(_ context.Context, id string) (*models.AndonEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return nil, nil
	}

	out := cloneEvent(&ev)

	return &out, nil
}

func (s *MemoryStore) ListActiveAndons(_ context.Context) ([]models.AndonEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.AndonEvent, 0, len(s.events))

	for id := range s.events {
		ev := s.events[id]
		if ev.Status.Terminal() {
			continue
		}

		out = append(out, cloneEvent(&ev))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

func cloneEvent(ev *models.AndonEvent) models.AndonEvent {
	out := *ev
	out.Escalation.Recipients = append([]string(nil), ev.Escalation.Recipients...)
	out.Escalation.Channels = append([]models.Channel(nil), ev.Escalation.Channels...)

	if ev.AcknowledgedAt != nil {
		t := *ev.AcknowledgedAt
		out.AcknowledgedAt = &t
	}

	if ev.ResolvedAt != nil {
		t := *ev.ResolvedAt
		out.ResolvedAt = &t
	}

	if ev.Escalation.LastEscalatedAt != nil {
		t := *ev.Escalation.LastEscalatedAt
		out.Escalation.LastEscalatedAt = &t
	}

	return out
}
