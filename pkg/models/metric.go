package models

import "time"

// TagValue is the last known value of one controller tag.
type TagValue struct {
	Value     interface{} `json:"value"`
	Timestamp time.Time   `json:"timestamp"`
	Stale     bool        `json:"stale"`

	// PrevValue is the value before the latest update, used for rate calculations.
	PrevValue     interface{} `json:"-"`
	PrevTimestamp time.Time   `json:"-"`
}

// HasPrev reports whether a previous sample is available.
func (t TagValue) HasPrev() bool {
	return !t.PrevTimestamp.IsZero()
}

// EnrichedMetric is the canonical per-cycle record for one piece of equipment.
// Nil pointer fields mean the value could not be determined this cycle.
type EnrichedMetric struct {
	EquipmentCode string    `json:"equipment_code"`
	DeviceID      string    `json:"device_id"`
	LineID        string    `json:"line_id"`
	Sequence      uint64    `json:"sequence"`
	Timestamp     time.Time `json:"timestamp"`

	Tags map[string]interface{} `json:"tags"`

	Running      *bool    `json:"running,omitempty"`
	FaultWord    *uint64  `json:"fault_word,omitempty"`
	ActiveFaults []int    `json:"active_faults,omitempty"`
	Total        *int64   `json:"total_count,omitempty"`
	Good         *int64   `json:"good_count,omitempty"`
	Reject       *int64   `json:"reject_count,omitempty"`
	Speed        *float64 `json:"speed,omitempty"`
	PlannedStop  *bool    `json:"planned_stop_tag,omitempty"`

	Healthy     bool     `json:"healthy"`
	Stale       bool     `json:"stale"`
	Partial     bool     `json:"partial"`
	MissingTags []string `json:"missing_tags,omitempty"`

	Context ProductionContext `json:"context"`
}

// Usable reports whether the metric may drive state transitions.
func (m *EnrichedMetric) Usable() bool {
	return m.Healthy && !m.Stale
}

// IsRunning returns the running flag and whether it is known.
func (m *EnrichedMetric) IsRunning() (running, known bool) {
	if m.Running == nil {
		return false, false
	}

	return *m.Running, true
}
