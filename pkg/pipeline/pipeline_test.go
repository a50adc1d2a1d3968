package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mfreeman451/lineradar/pkg/broadcast"
	"github.com/mfreeman451/lineradar/pkg/config"
	"github.com/mfreeman451/lineradar/pkg/derive"
	"github.com/mfreeman451/lineradar/pkg/escalation"
	"github.com/mfreeman451/lineradar/pkg/models"
	"github.com/mfreeman451/lineradar/pkg/notifications"
	"github.com/mfreeman451/lineradar/pkg/prodctx"
	"github.com/mfreeman451/lineradar/pkg/tagcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func testEquipment() []config.EquipmentConfig {
	return []config.EquipmentConfig{
		{
			Code:     "BAG1",
			LineID:   "L1",
			DeviceID: "plc-1",
			Tags:     config.TagMap{Running: "bag1_run", FaultWord: "bag1_faults", TotalCount: "bag1_total"},
			FaultBits: []config.FaultBit{
				{Bit: 0, Code: "E-STOP", Description: "Emergency stop", Priority: models.PriorityCritical},
			},
		},
		{
			Code:     "BAG2",
			LineID:   "L1",
			DeviceID: "plc-1",
			Tags:     config.TagMap{Running: "bag2_run"},
		},
		{
			Code:     "FILL2",
			LineID:   "L2",
			DeviceID: "plc-2",
			Tags:     config.TagMap{Running: "fill2_run"},
		},
	}
}

type staticContexts struct{}

func (staticContexts) Get(code string) models.ProductionContext {
	return models.ProductionContext{EquipmentCode: code}
}

type recordingDeriver struct {
	mu   sync.Mutex
	seqs map[string][]uint64
	fail bool
}

func (r *recordingDeriver) Process(_ context.Context, m *models.EnrichedMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seqs == nil {
		r.seqs = make(map[string][]uint64)
	}

	r.seqs[m.EquipmentCode] = append(r.seqs[m.EquipmentCode], m.Sequence)

	if r.fail {
		return errors.New("boom")
	}

	return nil
}

func (r *recordingDeriver) count(code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.seqs[code])
}

func TestPerEquipmentOrder(t *testing.T) {
	cache := tagcache.New()
	d := &recordingDeriver{}
	p := New(config.PipelineConfig{Workers: 4, QueueSize: 1024}, testEquipment(), staticContexts{}, d)
	p.Start(context.Background())

	for i := 0; i < 200; i++ {
		at := t0.Add(time.Duration(i) * time.Second)
		p.OnCycle("plc-1", cache.Update("plc-1", map[string]interface{}{"bag1_run": true, "bag2_run": i%2 == 0}, at))
		p.OnCycle("plc-2", cache.Update("plc-2", map[string]interface{}{"fill2_run": true}, at))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, p.Stop(ctx))

	for _, code := range []string{"BAG1", "BAG2", "FILL2"} {
		seqs := d.seqs[code]
		require.Len(t, seqs, 200, code)

		for i := 1; i < len(seqs); i++ {
			require.Less(t, seqs[i-1], seqs[i], code)
		}
	}

	assert.Equal(t, uint64(600), p.Processed())
	assert.Equal(t, uint64(0), p.Dropped())

	// cycles after Stop are ignored
	p.OnCycle("plc-1", cache.Update("plc-1", map[string]interface{}{"bag1_run": true}, t0))
	assert.Equal(t, 200, d.count("BAG1"))
}

func TestFullQueueDropsCycle(t *testing.T) {
	cache := tagcache.New()
	d := &recordingDeriver{fail: true}
	p := New(config.PipelineConfig{Workers: 1, QueueSize: 1}, testEquipment(), staticContexts{}, d)

	snap := cache.Update("plc-2", map[string]interface{}{"fill2_run": true}, t0)
	p.OnCycle("plc-2", snap)
	p.OnCycle("plc-2", snap)
	p.OnCycle("unknown-device", snap)

	assert.Equal(t, uint64(1), p.Dropped())

	p.Start(context.Background())
	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, 1, d.count("FILL2"))
}

type captureHealth struct {
	mu  sync.Mutex
	got []models.DeviceHealth
}

func (c *captureHealth) PutHealth(_ context.Context, h models.DeviceHealth) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.got = append(c.got, h)

	return nil
}

func TestOnHealthForwards(t *testing.T) {
	mgr := broadcast.NewManager(config.BroadcastConfig{})

	scopes := map[string]string{
		"health": "event_type:device_health",
		"bag1":   "equipment:BAG1",
		"line1":  "line:L1",
		"fill2":  "equipment:FILL2",
	}
	conns := make(map[string]*broadcast.Conn)

	for id, raw := range scopes {
		c, err := mgr.Register(id, "")
		require.NoError(t, err)

		s, err := broadcast.ParseScope(raw)
		require.NoError(t, err)
		require.NoError(t, mgr.Subscribe(id, s))

		conns[id] = c
	}

	sink := &captureHealth{}
	p := New(config.PipelineConfig{}, testEquipment(), staticContexts{}, &recordingDeriver{},
		WithPublisher(mgr), WithHealthSink(sink))

	p.OnHealth(models.DeviceHealth{DeviceID: "plc-1", Healthy: false, Stale: true, ConsecutiveFailures: 5, Timestamp: t0})

	bag1 := conns["bag1"].Drain()
	require.Len(t, bag1, 1)
	assert.Equal(t, models.EventDeviceHealth, bag1[0].Type)
	assert.Equal(t, "BAG1", bag1[0].Equipment)
	assert.Equal(t, "L1", bag1[0].Line)
	assert.Equal(t, "plc-1", bag1[0].Payload.(models.DeviceHealth).DeviceID)

	// BAG1 and BAG2 both sit on plc-1 and line L1
	line1 := conns["line1"].Drain()
	require.Len(t, line1, 2)
	assert.ElementsMatch(t, []string{"BAG1", "BAG2"}, []string{line1[0].Equipment, line1[1].Equipment})

	assert.Len(t, conns["health"].Drain(), 2)
	assert.Empty(t, conns["fill2"].Drain())

	require.Len(t, sink.got, 1)
	assert.True(t, sink.got[0].Stale)

	// a device without equipment still reaches device_health subscribers
	p.OnHealth(models.DeviceHealth{DeviceID: "plc-9", Healthy: true, Timestamp: t0})

	spare := conns["health"].Drain()
	require.Len(t, spare, 1)
	assert.Empty(t, spare[0].Equipment)
	assert.Empty(t, conns["line1"].Drain())
}

type captureNotifier struct {
	mu   sync.Mutex
	reqs []*notifications.Request
}

func (c *captureNotifier) Enqueue(req *notifications.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reqs = append(c.reqs, req)

	return nil
}

func (c *captureNotifier) all() []*notifications.Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]*notifications.Request(nil), c.reqs...)
}

func andonEvents(c *broadcast.Conn) []models.Event {
	var out []models.Event

	for _, ev := range c.Drain() {
		if ev.Type == models.EventAndon {
			out = append(out, ev)
		}
	}

	return out
}

// A critical fault bit on BAG1 opens a critical andon, notifies level 1
// and reaches only the BAG1 and line L1 subscribers.
func TestCriticalFaultEndToEnd(t *testing.T) {
	ctx := context.Background()
	equipment := testEquipment()

	mgr := broadcast.NewManager(config.BroadcastConfig{QueueSize: 64})

	subscribers := map[string]string{
		"bag1":  "equipment:BAG1",
		"line1": "line:L1",
		"fill2": "equipment:FILL2",
		"line2": "line:L2",
	}
	conns := make(map[string]*broadcast.Conn)

	for id, raw := range subscribers {
		c, err := mgr.Register(id, "")
		require.NoError(t, err)

		sc, err := broadcast.ParseScope(raw)
		require.NoError(t, err)
		require.NoError(t, mgr.Subscribe(id, sc))

		conns[id] = c
	}

	rules, err := escalation.NewRuleSet([]config.EscalationRuleConfig{{
		Priority:   models.PriorityCritical,
		Level:      1,
		AckTimeout: config.Duration(15 * time.Minute),
		Recipients: []string{"shift-lead", "maintenance"},
		Channels:   []models.Channel{models.ChannelSMS},
	}})
	require.NoError(t, err)

	notifier := &captureNotifier{}
	esc := escalation.New(rules, escalation.WithNotifier(notifier), escalation.WithPublisher(mgr))

	lines := map[string]string{}
	for _, eq := range equipment {
		lines[eq.Code] = eq.LineID
	}

	store := prodctx.NewStore(prodctx.Config{Publisher: mgr, Lines: lines})
	engine := derive.New(equipment, nil,
		derive.WithAlerter(esc),
		derive.WithContextWriter(store),
		derive.WithPublisher(mgr))

	cache := tagcache.New()
	p := New(config.PipelineConfig{Workers: 2}, equipment, store, engine)
	p.Start(ctx)

	p.OnCycle("plc-1", cache.Update("plc-1", map[string]interface{}{
		"bag1_run": true, "bag1_faults": 0, "bag1_total": 10, "bag2_run": true,
	}, t0))
	p.OnCycle("plc-1", cache.Update("plc-1", map[string]interface{}{
		"bag1_run": false, "bag1_faults": 1, "bag1_total": 12,
	}, t0.Add(time.Second)))
	p.OnCycle("plc-2", cache.Update("plc-2", map[string]interface{}{"fill2_run": true}, t0.Add(time.Second)))

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	require.NoError(t, p.Stop(stopCtx))

	open := esc.List("BAG1")
	require.Len(t, open, 1)
	assert.Equal(t, models.PriorityCritical, open[0].Priority)
	assert.Equal(t, models.AndonOpen, open[0].Status)
	assert.Equal(t, "E-STOP", open[0].Code)
	assert.Equal(t, 1, open[0].Escalation.Level)
	assert.Equal(t, "L1", open[0].LineID)

	reqs := notifier.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"shift-lead", "maintenance"}, reqs[0].Recipients)
	assert.Equal(t, 1, reqs[0].Level)
	assert.Equal(t, fmt.Sprintf("%s:1", open[0].ID), reqs[0].EscalationID)

	for id, c := range conns {
		got := andonEvents(c)

		switch id {
		case "bag1", "line1":
			require.Len(t, got, 1, id)
			assert.Equal(t, open[0].ID, got[0].Payload.(models.AndonEvent).ID)
		default:
			assert.Empty(t, got, id)
		}
	}

	// production was written back to the context
	assert.Equal(t, int64(2), store.Get("BAG1").ActualQuantity)
}
