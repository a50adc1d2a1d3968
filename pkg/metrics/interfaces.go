package metrics

import (
	"time"

	"github.com/mfreeman451/lineradar/pkg/models"
)

//go:generate mockgen -destination=mock_buffer.go -package=metrics github.com/mfreeman451/lineradar/pkg/metrics SampleStore,PollCollector

// SampleStore keeps a bounded window of poll samples for one device.
type SampleStore interface {
	Add(sample models.PollSample)
	GetPoints() []models.PollSample
	GetLastPoint() *models.PollSample
}

// PollCollector tracks poll samples for every device.
type PollCollector interface {
	AddSample(deviceID string, sample models.PollSample)
	GetSamples(deviceID string) []models.PollSample
	CleanupStaleDevices(staleDuration time.Duration)
}
