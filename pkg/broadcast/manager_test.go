package broadcast

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/mfreeman451/lineradar/pkg/config"
	"github.com/mfreeman451/lineradar/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func newTestManager(queue int, now *time.Time) *Manager {
	return NewManager(config.BroadcastConfig{
		QueueSize:       queue,
		StarvationGrace: config.Duration(30 * time.Second),
	}, WithClock(func() time.Time { return *now }))
}

func andonEvent() models.Event {
	return models.Event{
		Type:      models.EventAndon,
		Equipment: "BAG1",
		Line:      "L1",
		Payload:   map[string]string{"code": "E-STOP"},
		Users:     []string{"shift-lead"},
	}
}

func TestPublishRoutesToMatchingConnections(t *testing.T) {
	now := t0
	m := newTestManager(8, &now)

	subs := map[string]string{
		"bag1":   "equipment:BAG1",
		"fill2":  "equipment:FILL2",
		"line1":  "line:L1",
		"line2":  "line:L2",
		"andons": "event_type:andon_event",
		"oee":    "event_type:oee_update",
	}

	conns := make(map[string]*Conn)

	for id, raw := range subs {
		c, err := m.Register(id, "")
		require.NoError(t, err)
		require.NoError(t, m.Subscribe(id, mustParse(t, raw)))

		conns[id] = c
	}

	lead, err := m.Register("lead", "shift-lead")
	require.NoError(t, err)

	// subscribed through two scopes, still one copy
	both, err := m.Register("both", "")
	require.NoError(t, err)
	require.NoError(t, m.Subscribe("both", mustParse(t, "equipment:BAG1")))
	require.NoError(t, m.Subscribe("both", mustParse(t, "line:L1")))

	assert.Equal(t, 5, m.Publish(andonEvent()))

	for id, c := range conns {
		want := map[string]int{"bag1": 1, "line1": 1, "andons": 1}[id]
		assert.Equal(t, want, c.Len(), id)
	}

	assert.Equal(t, 1, lead.Len())
	assert.Equal(t, 1, both.Len())

	got := both.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, t0, got[0].Timestamp)
	assert.Equal(t, 0, both.Len())
}

func TestPublishMatchesExactlyRandom(t *testing.T) {
	now := t0
	m := newTestManager(1024, &now)
	rng := rand.New(rand.NewSource(7<<32 | 11))

	equipment := []string{"BAG1", "BAG2", "FILL1", "PAL1"}
	lines := []string{"L1", "L2"}
	types := []models.EventType{models.EventAndon, models.EventOEEUpdate, models.EventDowntime}

	type sub struct {
		conn   *Conn
		scopes []Scope
	}

	var all []sub

	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("c%d", i)
		c, err := m.Register(id, "")
		require.NoError(t, err)

		s := sub{conn: c}

		for j := 0; j < 1+rng.Intn(3); j++ {
			var sc Scope

			switch rng.Intn(3) {
			case 0:
				sc = Scope{Kind: ScopeEquipment, Value: equipment[rng.Intn(len(equipment))]}
			case 1:
				sc = Scope{Kind: ScopeLine, Value: lines[rng.Intn(len(lines))]}
			default:
				sc = Scope{Kind: ScopeEventType, Value: string(types[rng.Intn(len(types))])}
			}

			require.NoError(t, m.Subscribe(id, sc))
			s.scopes = append(s.scopes, sc)
		}

		all = append(all, s)
	}

	for i := 0; i < 200; i++ {
		ev := models.Event{
			Type:      types[rng.Intn(len(types))],
			Equipment: equipment[rng.Intn(len(equipment))],
			Line:      lines[rng.Intn(len(lines))],
		}

		want := 0

		for _, s := range all {
			for _, sc := range s.scopes {
				if (sc.Kind == ScopeEquipment && sc.Value == ev.Equipment) ||
					(sc.Kind == ScopeLine && sc.Value == ev.Line) ||
					(sc.Kind == ScopeEventType && sc.Value == string(ev.Type)) {
					want++
					break
				}
			}
		}

		assert.Equal(t, want, m.Publish(ev))
	}
}

func TestSubscribeUnknownConnection(t *testing.T) {
	now := t0
	m := newTestManager(8, &now)

	require.ErrorIs(t, m.Subscribe("ghost", mustParse(t, "line:L1")), ErrUnknownConnection)

	_, err := m.Register("a", "")
	require.NoError(t, err)

	_, err = m.Register("a", "")
	require.ErrorIs(t, err, ErrDuplicateConnection)

	require.NoError(t, m.Subscribe("a", mustParse(t, "line:L1")))
	require.NoError(t, m.Unsubscribe("a", mustParse(t, "line:L1")))
	assert.Equal(t, 0, m.Publish(andonEvent()))

	m.Unregister("a")
	assert.Equal(t, 0, m.Stats().Connections)
}

func TestStalledConnectionDoesNotBlockOthers(t *testing.T) {
	now := t0
	m := newTestManager(4, &now)

	stalled, err := m.Register("stalled", "")
	require.NoError(t, err)
	require.NoError(t, m.Subscribe("stalled", mustParse(t, "equipment:BAG1")))

	healthy, err := m.Register("healthy", "")
	require.NoError(t, err)
	require.NoError(t, m.Subscribe("healthy", mustParse(t, "equipment:BAG1")))

	done := make(chan struct{})

	go func() {
		defer close(done)

		for i := 0; i < 1000; i++ {
			ev := andonEvent()
			ev.Payload = i
			m.Publish(ev)

			if i%4 == 3 {
				healthy.Drain()
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a stalled connection")
	}

	assert.Equal(t, 4, stalled.Len())
	assert.Equal(t, uint64(996), stalled.Dropped())
	assert.Equal(t, uint64(0), healthy.Dropped())
	assert.Equal(t, uint64(996), m.Stats().Dropped)

	// oldest dropped: the newest four remain
	got := stalled.Drain()
	require.Len(t, got, 4)
	assert.Equal(t, 996, got[0].Payload)
	assert.Equal(t, 999, got[3].Payload)
}

func TestDisconnectStarved(t *testing.T) {
	now := t0
	m := newTestManager(2, &now)

	slow, err := m.Register("slow", "")
	require.NoError(t, err)
	require.NoError(t, m.Subscribe("slow", mustParse(t, "line:L1")))

	draining, err := m.Register("draining", "")
	require.NoError(t, err)
	require.NoError(t, m.Subscribe("draining", mustParse(t, "line:L1")))

	for i := 0; i < 3; i++ {
		m.Publish(andonEvent())
	}

	now = t0.Add(20 * time.Second)

	for i := 0; i < 3; i++ {
		m.Publish(andonEvent())
	}

	draining.Drain()
	assert.Empty(t, m.DisconnectStarved(now))

	now = t0.Add(31 * time.Second)
	m.Publish(andonEvent())

	assert.Equal(t, []string{"slow"}, m.DisconnectStarved(now))

	select {
	case <-slow.Done():
	default:
		t.Fatal("starved connection not closed")
	}

	assert.Equal(t, 1, m.Publish(andonEvent()))
	assert.Equal(t, uint64(1), m.Stats().Disconnected)

	_, err = m.Scopes("slow")
	require.ErrorIs(t, err, ErrUnknownConnection)
}
