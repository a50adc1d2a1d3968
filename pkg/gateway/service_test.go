package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/mfreeman451/lineradar/pkg/broadcast"
	"github.com/mfreeman451/lineradar/pkg/config"
	"github.com/mfreeman451/lineradar/pkg/models"
	"github.com/mfreeman451/lineradar/pkg/poller"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		Devices: []config.DeviceConfig{{
			ID:       "plc-1",
			Driver:   "sim",
			Interval: config.Duration(20 * time.Millisecond),
			Tags: []config.TagConfig{
				{Name: "run", Address: "1"},
				{Name: "faults", Address: "2"},
				{Name: "total", Address: "3"},
				{Name: "good", Address: "4"},
			},
		}},
		Equipment: []config.EquipmentConfig{{
			Code:           "BAG1",
			LineID:         "L1",
			DeviceID:       "plc-1",
			IdealCycleTime: config.Duration(10 * time.Millisecond),
			Tags: config.TagMap{
				Running: "run", FaultWord: "faults", TotalCount: "total", GoodCount: "good",
			},
			FaultBits: []config.FaultBit{{Bit: 3, Code: "E-STOP", Priority: models.PriorityCritical}},
		}},
		Escalation: config.EscalationConfig{Rules: []config.EscalationRuleConfig{{
			Priority:          models.PriorityCritical,
			Level:             1,
			AckTimeout:        config.Duration(time.Hour),
			ResolutionTimeout: config.Duration(2 * time.Hour),
			Recipients:        []string{"supervisor"},
			Channels:          []models.Channel{models.ChannelPush},
		}}},
		Database: config.DatabaseConfig{Driver: "sqlite3", DSN: ":memory:"},
	}

	require.NoError(t, cfg.Validate())

	return cfg
}

func subscribe(t *testing.T, g *Gateway, scope string) *broadcast.Conn {
	t.Helper()

	conn, err := g.Broadcast().Register("test", "")
	require.NoError(t, err)

	s, err := broadcast.ParseScope(scope)
	require.NoError(t, err)
	require.NoError(t, g.Broadcast().Subscribe(conn.ID(), s))

	return conn
}

// waitFor drains conn until an event of type want arrives.
func waitFor(t *testing.T, conn *broadcast.Conn, want models.EventType) models.Event {
	t.Helper()

	deadline := time.After(5 * time.Second)

	for {
		select {
		case <-conn.Ready():
			for _, ev := range conn.Drain() {
				if ev.Type == want {
					return ev
				}
			}
		case <-deadline:
			t.Fatalf("no %s event", want)
		}
	}
}

func TestGatewayEndToEnd(t *testing.T) {
	cfg := testConfig(t)

	g, err := New(context.Background(), cfg, nil,
		WithoutAPI(),
		WithReaderFactory(poller.NewSimFactory(cfg.Equipment, poller.MachineProfile{FaultEvery: 5, FaultDuration: 100})))
	require.NoError(t, err)

	conn := subscribe(t, g, "line:L1")

	require.NoError(t, g.Start(context.Background()))
	assert.ErrorIs(t, g.Start(context.Background()), errAlreadyStarted)

	ev := waitFor(t, conn, models.EventProductionUpdate)
	assert.Equal(t, "BAG1", ev.Equipment)

	waitFor(t, conn, models.EventAndon)

	require.Eventually(t, func() bool {
		return len(g.Andons().List("BAG1")) == 1
	}, 5*time.Second, 20*time.Millisecond)

	assert.Greater(t, g.Contexts().Get("BAG1").ActualQuantity, int64(0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, g.Stop(ctx))
}

func TestGatewayStopWithoutStart(t *testing.T) {
	g, err := New(context.Background(), testConfig(t), nil, WithoutAPI())
	require.NoError(t, err)

	assert.NoError(t, g.Stop(context.Background()))
}

func TestGatewayRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)

	_, err := New(context.Background(), cfg, nil, WithReaderFactory(func(*config.DeviceConfig) (poller.TagReader, error) {
		return nil, poller.ErrUnknownDriver
	}))
	require.ErrorIs(t, err, poller.ErrUnknownDriver)
}
