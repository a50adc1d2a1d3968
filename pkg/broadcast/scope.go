package broadcast

import (
	"fmt"
	"strings"

	"github.com/mfreeman451/lineradar/pkg/models"
)

type ScopeKind string

const (
	ScopeEquipment ScopeKind = "equipment"
	ScopeLine      ScopeKind = "line"
	ScopeEventType ScopeKind = "event_type"
	ScopeUser      ScopeKind = "user"
)

// Scope selects the events a connection receives.
type Scope struct {
	Kind  ScopeKind
	Value string
}

// ParseScope parses "<kind>:<value>".
func ParseScope(s string) (Scope, error) {
	kind, value, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || value == "" {
		return Scope{}, fmt.Errorf("%w: %q", ErrInvalidScope, s)
	}

	sc := Scope{Kind: ScopeKind(kind), Value: value}

	switch sc.Kind {
	case ScopeEquipment, ScopeLine, ScopeUser:
	case ScopeEventType:
		if !models.ValidEventType(models.EventType(value)) {
			return Scope{}, fmt.Errorf("%w: unknown event type %q", ErrInvalidScope, value)
		}
	default:
		return Scope{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidScope, kind)
	}

	return sc, nil
}

func (s Scope) String() string {
	return string(s.Kind) + ":" + s.Value
}

// scopesOf lists every scope an event is routed to.
func scopesOf(ev *models.Event) []Scope {
	out := make([]Scope, 0, 3+len(ev.Users))
	out = append(out, Scope{Kind: ScopeEventType, Value: string(ev.Type)})

	if ev.Equipment != "" {
		out = append(out, Scope{Kind: ScopeEquipment, Value: ev.Equipment})
	}

	if ev.Line != "" {
		out = append(out, Scope{Kind: ScopeLine, Value: ev.Line})
	}

	for _, u := range ev.Users {
		out = append(out, Scope{Kind: ScopeUser, Value: u})
	}

	return out
}
