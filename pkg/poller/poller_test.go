package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mfreeman451/lineradar/pkg/config"
	"github.com/mfreeman451/lineradar/pkg/metrics"
	"github.com/mfreeman451/lineradar/pkg/models"
	"github.com/mfreeman451/lineradar/pkg/tagcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type recordingListener struct {
	mu     sync.Mutex
	cycles []tagcache.Snapshot
	health []models.DeviceHealth
}

func (r *recordingListener) OnCycle(_ string, snap tagcache.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cycles = append(r.cycles, snap)
}

func (r *recordingListener) OnHealth(h models.DeviceHealth) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.health = append(r.health, h)
}

func (r *recordingListener) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.cycles), len(r.health)
}

func testDevice(id string) config.DeviceConfig {
	return config.DeviceConfig{
		ID:               id,
		Driver:           "sim",
		Interval:         config.Duration(10 * time.Millisecond),
		FailureThreshold: 5,
		Tags: []config.TagConfig{
			{Name: "running", Address: "1.1"},
			{Name: "total", Address: "1.2"},
		},
	}
}

func noJitter() Backoff {
	b := DefaultBackoff()
	b.Rand = func(n int64) int64 { return n - 1 }

	return b
}

func TestBackoff(t *testing.T) {
	b := DefaultBackoff()

	ceilings := []time.Duration{1, 2, 4, 8, 16, 30, 30}
	for i, want := range ceilings {
		assert.Equal(t, want*time.Second, b.Ceiling(i), "attempt %d", i)
	}

	for i := 0; i < 100; i++ {
		d := b.Next(i % 8)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, b.Ceiling(i%8))
	}

	assert.Equal(t, 30*time.Second-1, noJitter().Next(50))
}

func TestPollOnce_MapsAddressesToNames(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := NewMockTagReader(ctrl)

	dev := testDevice("plc-1")
	dev.Tags[0].Address = ".1.1"

	gomock.InOrder(
		reader.EXPECT().Connect(gomock.Any()).Return(nil),
		reader.EXPECT().Read(gomock.Any(), []string{"1.1", "1.2"}).
			Return(map[string]interface{}{".1.1": 1, "1.2": uint64(40), "9.9": "ignored"}, nil),
	)

	samples := metrics.NewManager(models.MetricsConfig{Enabled: true, Retention: 5}, nil)
	p := NewDevicePoller(dev, reader, tagcache.New(), &recordingListener{}, WithSamples(samples))

	res, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Healthy)
	assert.Equal(t, map[string]interface{}{"running": 1, "total": uint64(40)}, res.Tags)
	assert.Len(t, samples.GetSamples("plc-1"), 1)
}

func TestPollOnce_ReadFailureForcesReconnect(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := NewMockTagReader(ctrl)

	gomock.InOrder(
		reader.EXPECT().Connect(gomock.Any()).Return(nil),
		reader.EXPECT().Read(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout")),
		reader.EXPECT().Close().Return(nil),
		reader.EXPECT().Connect(gomock.Any()).Return(nil),
		reader.EXPECT().Read(gomock.Any(), gomock.Any()).Return(map[string]interface{}{"1.1": true}, nil),
	)

	p := NewDevicePoller(testDevice("plc-1"), reader, tagcache.New(), &recordingListener{})

	_, err := p.PollOnce(context.Background())
	require.ErrorIs(t, err, ErrDeviceUnreachable)

	res, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, true, res.Tags["running"])
}

func TestCycle_DegradeAndRecover(t *testing.T) {
	sim := NewSimReader()
	sim.Set("1.1", true)
	sim.Set("1.2", 10)

	cache := tagcache.New()
	listener := &recordingListener{}
	p := NewDevicePoller(testDevice("plc-1"), sim, cache, listener, WithBackoff(noJitter()))

	ctx := context.Background()

	p.cycle(ctx)

	snap, ok := cache.Snapshot("plc-1")
	require.True(t, ok)
	assert.False(t, snap.Stale)

	sim.FailNext(100, nil)

	var waits []time.Duration
	for i := 0; i < 4; i++ {
		waits = append(waits, p.cycle(ctx))
	}

	cycles, health := listener.counts()
	assert.Equal(t, 1, cycles, "failed polls below the threshold emit nothing")
	assert.Equal(t, 0, health)
	assert.Equal(t, []time.Duration{time.Second - 1, 2*time.Second - 1, 4*time.Second - 1, 8*time.Second - 1}, waits)

	snap, _ = cache.Snapshot("plc-1")
	assert.False(t, snap.Stale)

	// fifth failure crosses the threshold
	p.cycle(ctx)

	snap, _ = cache.Snapshot("plc-1")
	assert.True(t, snap.Stale)
	assert.Equal(t, true, snap.Tags["running"].Value, "last known value kept")

	cycles, health = listener.counts()
	assert.Equal(t, 2, cycles, "stale snapshot flows downstream")
	require.Equal(t, 1, health)
	assert.False(t, listener.health[0].Healthy)
	assert.True(t, listener.health[0].Stale)
	assert.Equal(t, 5, listener.health[0].ConsecutiveFailures)

	// keeps retrying with the capped backoff and never emits a second degraded event
	for i := 0; i < 10; i++ {
		assert.LessOrEqual(t, p.cycle(ctx), 30*time.Second)
	}

	_, health = listener.counts()
	assert.Equal(t, 1, health)

	sim.FailNext(0, nil)
	p.cycle(ctx)

	snap, _ = cache.Snapshot("plc-1")
	assert.False(t, snap.Stale)
	assert.True(t, p.Health().Healthy)

	_, health = listener.counts()
	require.Equal(t, 2, health)
	assert.True(t, listener.health[1].Healthy)
}

func TestCycle_DegradedEventWithGomock(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := NewMockTagReader(ctrl)
	listener := NewMockListener(ctrl)

	dev := testDevice("plc-1")
	dev.FailureThreshold = 2

	reader.EXPECT().Connect(gomock.Any()).Return(errors.New("refused")).Times(2)
	listener.EXPECT().OnHealth(gomock.Any()).Do(func(h models.DeviceHealth) {
		assert.False(t, h.Healthy)
		assert.True(t, h.Stale)
		assert.Equal(t, 2, h.ConsecutiveFailures)
	}).Times(1)
	listener.EXPECT().OnCycle("plc-1", gomock.Any()).Times(1)

	p := NewDevicePoller(dev, reader, tagcache.New(), listener, WithBackoff(noJitter()))
	p.cycle(context.Background())
	p.cycle(context.Background())
}

// blockingReader never returns from Read until its context is cancelled.
type blockingReader struct{}

func (blockingReader) Connect(context.Context) error { return nil }

func (blockingReader) Read(ctx context.Context, _ []string) (map[string]interface{}, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingReader) Close() error { return nil }

func TestManager_StuckDeviceDoesNotBlockOthers(t *testing.T) {
	healthy := NewSimReader()
	healthy.Set("1.1", true)

	factory := func(dev *config.DeviceConfig) (TagReader, error) {
		if dev.ID == "stuck" {
			return blockingReader{}, nil
		}

		return healthy, nil
	}

	listener := &recordingListener{}

	m, err := NewManager([]config.DeviceConfig{testDevice("stuck"), testDevice("ok")}, factory, tagcache.New(), listener, nil)
	require.NoError(t, err)

	m.Start(context.Background())

	require.Eventually(t, func() bool { return healthy.Reads() >= 5 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = m.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "stuck poller is force-cancelled")
	assert.Len(t, m.Status(), 2)
}

func TestManager_GracefulStop(t *testing.T) {
	sim := NewSimReader()
	sim.Set("1.1", true)

	m, err := NewManager([]config.DeviceConfig{testDevice("plc-1")},
		func(*config.DeviceConfig) (TagReader, error) { return sim, nil },
		tagcache.New(), &recordingListener{}, nil)
	require.NoError(t, err)

	m.Start(context.Background())
	require.Eventually(t, func() bool { return sim.Reads() >= 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, m.Stop(ctx))
	require.NoError(t, m.Stop(ctx), "second stop is a no-op")
}

func TestNewReader(t *testing.T) {
	r, err := NewReader(&config.DeviceConfig{Driver: "sim"})
	require.NoError(t, err)
	assert.IsType(t, &SimReader{}, r)

	r, err = NewReader(&config.DeviceConfig{Driver: "snmp", Host: "127.0.0.1", Port: 161, Version: "v2c"})
	require.NoError(t, err)
	assert.IsType(t, &SNMPReader{}, r)

	_, err = NewReader(&config.DeviceConfig{Driver: "snmp", Host: "127.0.0.1", Version: "v3"})
	require.ErrorIs(t, err, ErrUnsupportedSNMPVersion)

	_, err = NewReader(&config.DeviceConfig{Driver: "modbus"})
	require.ErrorIs(t, err, ErrUnknownDriver)
}
