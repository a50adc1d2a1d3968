// Package poller runs one independent polling loop per controller.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mfreeman451/lineradar/pkg/config"
	"github.com/mfreeman451/lineradar/pkg/metrics"
	"github.com/mfreeman451/lineradar/pkg/models"
	"github.com/mfreeman451/lineradar/pkg/tagcache"
	"go.uber.org/zap"
)

// PollResult is the outcome of a single poll.
type PollResult struct {
	Tags    map[string]interface{}
	Healthy bool
}

// DevicePoller polls one controller on a fixed interval.
type DevicePoller struct {
	device   config.DeviceConfig
	reader   TagReader
	cache    *tagcache.Cache
	listener Listener
	samples  metrics.PollCollector
	recorder *metrics.Recorder
	logger   *zap.Logger
	backoff  Backoff
	now      func() time.Time

	addresses []string
	names     map[string]string // address -> tag name

	// loop state, only touched by the polling goroutine
	connected bool
	failures  int
	degraded  bool

	health atomic.Pointer[models.DeviceHealth]
}

// Option configures a DevicePoller.
type Option func(*DevicePoller)

func WithLogger(l *zap.Logger) Option {
	return func(p *DevicePoller) { p.logger = l }
}

func WithRecorder(r *metrics.Recorder) Option {
	return func(p *DevicePoller) { p.recorder = r }
}

func WithSamples(c metrics.PollCollector) Option {
	return func(p *DevicePoller) { p.samples = c }
}

func WithBackoff(b Backoff) Option {
	return func(p *DevicePoller) { p.backoff = b }
}

func WithClock(now func() time.Time) Option {
	return func(p *DevicePoller) { p.now = now }
}

// NewDevicePoller creates a poller for a validated device configuration.
func NewDevicePoller(
	device config.DeviceConfig, reader TagReader, cache *tagcache.Cache, listener Listener, opts ...Option) *DevicePoller {
	p := &DevicePoller{
		device:   device,
		reader:   reader,
		cache:    cache,
		listener: listener,
		logger:   zap.NewNop(),
		backoff:  DefaultBackoff(),
		now:      time.Now,
		names:    make(map[string]string, len(device.Tags)),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.logger = p.logger.With(zap.String("device_id", device.ID))

	for _, t := range device.Tags {
		addr := normalizeOID(t.Address)
		p.addresses = append(p.addresses, addr)
		p.names[addr] = t.Name
	}

	p.health.Store(&models.DeviceHealth{DeviceID: device.ID})

	return p
}

// ID returns the device id.
func (p *DevicePoller) ID() string {
	return p.device.ID
}

// Health returns the latest health of the device.
func (p *DevicePoller) Health() models.DeviceHealth {
	return *p.health.Load()
}

// PollOnce reads every configured tag. Values are keyed by tag name.
func (p *DevicePoller) PollOnce(ctx context.Context) (PollResult, error) {
	start := p.now()

	res, err := p.read(ctx)

	elapsed := p.now().Sub(start)
	p.recorder.ObservePoll(p.device.ID, elapsed, err)

	if p.samples != nil {
		p.samples.AddSample(p.device.ID, models.PollSample{Timestamp: start, Latency: elapsed, Healthy: err == nil})
	}

	return res, err
}

func (p *DevicePoller) read(ctx context.Context) (PollResult, error) {
	if !p.connected {
		if err := p.reader.Connect(ctx); err != nil {
			return PollResult{}, fmt.Errorf("%w: %s: %w", ErrDeviceUnreachable, p.device.ID, err)
		}

		p.connected = true
	}

	values, err := p.reader.Read(ctx, p.addresses)
	if err != nil {
		p.connected = false

		if cerr := p.reader.Close(); cerr != nil {
			p.logger.Debug("close after read failure", zap.Error(cerr))
		}

		return PollResult{}, fmt.Errorf("%w: %s: %w", ErrDeviceUnreachable, p.device.ID, err)
	}

	tags := make(map[string]interface{}, len(values))

	for addr, v := range values {
		if name, ok := p.names[normalizeOID(addr)]; ok {
			tags[name] = v
		}
	}

	return PollResult{Tags: tags, Healthy: true}, nil
}

// cycle runs one poll, updates the cache and returns the delay before the next one.
func (p *DevicePoller) cycle(ctx context.Context) time.Duration {
	start := p.now()
	interval := time.Duration(p.device.Interval)

	res, err := p.PollOnce(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}

		return p.onFailure(err)
	}

	snap := p.cache.Update(p.device.ID, res.Tags, p.now())

	if p.failures > 0 || p.degraded {
		p.logger.Info("device reachable again", zap.Int("failures", p.failures))
	}

	wasDegraded := p.degraded
	p.failures = 0
	p.degraded = false

	h := models.DeviceHealth{DeviceID: p.device.ID, Healthy: true, Timestamp: snap.UpdatedAt}
	p.health.Store(&h)
	p.recorder.SetDeviceHealthy(p.device.ID, true)

	if wasDegraded {
		p.listener.OnHealth(h)
	}

	p.listener.OnCycle(p.device.ID, snap)

	wait := interval - p.now().Sub(start)
	if wait < 0 {
		wait = 0
	}

	return wait
}

func (p *DevicePoller) onFailure(err error) time.Duration {
	p.failures++

	now := p.now()

	h := models.DeviceHealth{
		DeviceID:            p.device.ID,
		Healthy:             false,
		Stale:               p.degraded,
		ConsecutiveFailures: p.failures,
		LastError:           err.Error(),
		Timestamp:           now,
	}

	if !p.degraded && p.failures >= p.device.FailureThreshold {
		p.degraded = true
		h.Stale = true

		p.cache.MarkStale(p.device.ID, now)
		p.recorder.SetDeviceHealthy(p.device.ID, false)
		p.logger.Warn("device degraded, tags marked stale",
			zap.Int("failures", p.failures), zap.Error(err))
		p.listener.OnHealth(h)
	} else {
		p.logger.Debug("poll failed", zap.Int("failures", p.failures), zap.Error(err))
	}

	p.health.Store(&h)

	if p.degraded {
		if snap, ok := p.cache.Snapshot(p.device.ID); ok {
			p.listener.OnCycle(p.device.ID, snap)
		}
	}

	return p.backoff.Next(p.failures - 1)
}

// Run polls until stop is closed (after finishing the current cycle) or ctx
// is cancelled (aborting in-flight I/O).
func (p *DevicePoller) Run(ctx context.Context, stop <-chan struct{}) error {
	defer func() {
		if err := p.reader.Close(); err != nil {
			p.logger.Debug("close reader", zap.Error(err))
		}
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-timer.C:
		}

		wait := p.cycle(ctx)

		timer.Reset(wait)
	}
}

// Manager owns the pollers of every configured device.
type Manager struct {
	pollers []*DevicePoller
	logger  *zap.Logger

	mu      sync.Mutex
	stop    chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// ReaderFactory builds the TagReader of a device.
type ReaderFactory func(dev *config.DeviceConfig) (TagReader, error)

// NewReader is the default ReaderFactory.
func NewReader(dev *config.DeviceConfig) (TagReader, error) {
	switch dev.Driver {
	case "snmp":
		return NewSNMPReader(dev)
	case "sim":
		return NewSimReader(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, dev.Driver)
	}
}

// NewManager creates one DevicePoller per device.
func NewManager(
	devices []config.DeviceConfig,
	factory ReaderFactory,
	cache *tagcache.Cache,
	listener Listener,
	logger *zap.Logger,
	opts ...Option) (*Manager, error) {
	if factory == nil {
		factory = NewReader
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{logger: logger}

	for i := range devices {
		reader, err := factory(&devices[i])
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", devices[i].ID, err)
		}

		devOpts := append([]Option{WithLogger(logger)}, opts...)
		m.pollers = append(m.pollers, NewDevicePoller(devices[i], reader, cache, listener, devOpts...))
	}

	return m, nil
}

// Pollers returns the managed pollers.
func (m *Manager) Pollers() []*DevicePoller {
	return m.pollers
}

// Start launches one goroutine per device.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}

	m.started = true

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	var wg sync.WaitGroup

	for _, p := range m.pollers {
		wg.Add(1)

		go func(p *DevicePoller) {
			defer wg.Done()

			if err := p.Run(runCtx, m.stop); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error("poller exited", zap.String("device_id", p.ID()), zap.Error(err))
			}
		}(p)
	}

	go func() {
		wg.Wait()
		close(m.done)
	}()

	m.logger.Info("pollers started", zap.Int("devices", len(m.pollers)))
}

// Stop asks every poller to finish its current cycle. When ctx expires first
// the pollers are cancelled and Stop waits for them to exit.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}

	m.started = false
	close(m.stop)
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	select {
	case <-done:
		cancel()
		return nil
	case <-ctx.Done():
		m.logger.Warn("poller shutdown deadline exceeded, forcing stop")
		cancel()
		<-done

		return ctx.Err()
	}
}

// Status returns the health of every device.
func (m *Manager) Status() []models.DeviceHealth {
	out := make([]models.DeviceHealth, 0, len(m.pollers))
	for _, p := range m.pollers {
		out = append(out, p.Health())
	}

	return out
}
