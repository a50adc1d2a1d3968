package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mfreeman451/lineradar/pkg/models"
	"go.uber.org/zap"
)

type deviceSamples struct {
	buffer   SampleStore
	lastSeen atomic.Int64
}

// Manager keeps a poll latency window per device.
type Manager struct {
	devices       sync.Map // deviceID -> *deviceSamples
	config        models.MetricsConfig
	activeDevices atomic.Int64
	logger        *zap.Logger
}

func NewManager(cfg models.MetricsConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		config: cfg,
		logger: logger,
	}
}

func (m *Manager) AddSample(deviceID string, sample models.PollSample) {
	if !m.config.Enabled {
		return
	}

	v, loaded := m.devices.LoadOrStore(deviceID, &deviceSamples{
		buffer: NewBuffer(m.config.Retention),
	})
	if !loaded {
		m.activeDevices.Add(1)
		m.logger.Debug("tracking poll samples", zap.String("device_id", deviceID))
	}

	ds := v.(*deviceSamples)
	ds.buffer.Add(sample)
	ds.lastSeen.Store(sample.Timestamp.UnixNano())
}

func (m *Manager) GetSamples(deviceID string) []models.PollSample {
	v, ok := m.devices.Load(deviceID)
	if !ok {
		return nil
	}

	return v.(*deviceSamples).buffer.GetPoints()
}

// CleanupStaleDevices drops devices without a sample in staleDuration.
func (m *Manager) CleanupStaleDevices(staleDuration time.Duration) {
	cutoff := time.Now().Add(-staleDuration).UnixNano()

	m.devices.Range(func(k, v interface{}) bool {
		if v.(*deviceSamples).lastSeen.Load() < cutoff {
			m.devices.Delete(k)
			m.activeDevices.Add(-1)
		}

		return true
	})
}

func (m *Manager) GetActiveDevices() int64 {
	return m.activeDevices.Load()
}
