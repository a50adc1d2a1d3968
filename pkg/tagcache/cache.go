// Package tagcache holds the last known value of every polled controller tag.
//
// Each device is a shard whose state is an immutable Snapshot swapped
// atomically on every write. Readers load the current pointer and never
// block; writers to the same device are serialized by the shard mutex.
package tagcache

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mfreeman451/lineradar/pkg/models"
)

// Snapshot is a point-in-time view of a device. Tags must not be modified.
type Snapshot struct {
	DeviceID  string                     `json:"device_id"`
	Tags      map[string]models.TagValue `json:"tags"`
	UpdatedAt time.Time                  `json:"updated_at"`
	Healthy   bool                       `json:"healthy"`
	Stale     bool                       `json:"stale"`
	Sequence  uint64                     `json:"sequence"`
}

type shard struct {
	mu   sync.Mutex
	snap atomic.Pointer[Snapshot]
}

type Cache struct {
	shards sync.Map // deviceID -> *shard
}

func New() *Cache {
	return &Cache{}
}

func (c *Cache) shard(deviceID string) *shard {
	if s, ok := c.shards.Load(deviceID); ok {
		return s.(*shard)
	}

	s, _ := c.shards.LoadOrStore(deviceID, &shard{})

	return s.(*shard)
}

// Update records a successful read. Tags absent from values keep their previous entry.
func (c *Cache) Update(deviceID string, values map[string]interface{}, at time.Time) Snapshot {
	s := c.shard(deviceID)

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snap.Load()

	tags := make(map[string]models.TagValue, len(values))

	var seq uint64

	if prev != nil {
		seq = prev.Sequence

		for name, tv := range prev.Tags {
			tags[name] = tv
		}
	}

	for name, v := range values {
		old, had := tags[name]

		tv := models.TagValue{Value: v, Timestamp: at}
		if had {
			tv.PrevValue = old.Value
			tv.PrevTimestamp = old.Timestamp
		}

		tags[name] = tv
	}

	next := &Snapshot{
		DeviceID:  deviceID,
		Tags:      tags,
		UpdatedAt: at,
		Healthy:   true,
		Stale:     false,
		Sequence:  seq + 1,
	}

	s.snap.Store(next)

	return *next
}

// MarkStale flags every cached tag of the device as stale. It reports
// whether the device was not already stale.
func (c *Cache) MarkStale(deviceID string, at time.Time) bool {
	s := c.shard(deviceID)

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snap.Load()
	if prev != nil && prev.Stale {
		return false
	}

	next := &Snapshot{DeviceID: deviceID, UpdatedAt: at}

	if prev != nil {
		next.Tags = make(map[string]models.TagValue, len(prev.Tags))
		next.Sequence = prev.Sequence

		for name, tv := range prev.Tags {
			tv.Stale = true
			next.Tags[name] = tv
		}
	} else {
		next.Tags = map[string]models.TagValue{}
	}

	next.Stale = true
	next.Healthy = false

	s.snap.Store(next)

	return true
}

// Snapshot returns the current view of a device.
func (c *Cache) Snapshot(deviceID string) (Snapshot, bool) {
	s, ok := c.shards.Load(deviceID)
	if !ok {
		return Snapshot{}, false
	}

	snap := s.(*shard).snap.Load()
	if snap == nil {
		return Snapshot{}, false
	}

	return *snap, true
}

// Get returns a single tag value.
func (c *Cache) Get(deviceID, tag string) (models.TagValue, bool) {
	snap, ok := c.Snapshot(deviceID)
	if !ok {
		return models.TagValue{}, false
	}

	tv, ok := snap.Tags[tag]

	return tv, ok
}

// Devices lists the devices with at least one write, sorted.
func (c *Cache) Devices() []string {
	var ids []string

	c.shards.Range(func(k, v interface{}) bool {
		if v.(*shard).snap.Load() != nil {
			ids = append(ids, k.(string))
		}

		return true
	})

	sort.Strings(ids)

	return ids
}
