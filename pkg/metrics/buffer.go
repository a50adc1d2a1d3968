package metrics

import (
	"sync/atomic"
	"time"

	"github.com/mfreeman451/lineradar/pkg/models"
)

// pollPoint represents a single poll sample.
type pollPoint struct {
	timestamp int64
	latency   int64
	healthy   bool
}

// LockFreeRingBuffer is a lock-free ring buffer of poll samples.
type LockFreeRingBuffer struct {
	points []atomic.Pointer[pollPoint]
	pos    atomic.Int64
	size   int64
}

// NewBuffer creates a new SampleStore.
func NewBuffer(size int) SampleStore {
	return NewLockFreeBuffer(size)
}

// NewLockFreeBuffer creates a new LockFreeRingBuffer with the specified size.
func NewLockFreeBuffer(size int) *LockFreeRingBuffer {
	if size <= 0 {
		size = 1
	}

	return &LockFreeRingBuffer{
		points: make([]atomic.Pointer[pollPoint], size),
		size:   int64(size),
	}
}

// Add adds a new sample to the buffer, overwriting the oldest when full.
func (b *LockFreeRingBuffer) Add(sample models.PollSample) {
	pos := b.pos.Add(1) - 1
	idx := pos % b.size

	b.points[idx].Store(&pollPoint{
		timestamp: sample.Timestamp.UnixNano(),
		latency:   int64(sample.Latency),
		healthy:   sample.Healthy,
	})
}

// GetPoints returns the stored samples, newest first.
func (b *LockFreeRingBuffer) GetPoints() []models.PollSample {
	pos := b.pos.Load()

	n := pos
	if n > b.size {
		n = b.size
	}

	points := make([]models.PollSample, 0, n)

	for i := int64(0); i < n; i++ {
		idx := (pos - i - 1 + b.size) % b.size

		p := b.points[idx].Load()
		if p == nil {
			continue
		}

		points = append(points, toSample(p))
	}

	return points
}

// GetLastPoint returns the newest sample or nil.
func (b *LockFreeRingBuffer) GetLastPoint() *models.PollSample {
	pos := b.pos.Load()
	if pos == 0 {
		return nil
	}

	p := b.points[(pos-1)%b.size].Load()
	if p == nil {
		return nil
	}

	s := toSample(p)

	return &s
}

func toSample(p *pollPoint) models.PollSample {
	return models.PollSample{
		Timestamp: time.Unix(0, p.timestamp),
		Latency:   time.Duration(p.latency),
		Healthy:   p.healthy,
	}
}
