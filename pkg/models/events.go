package models

import "time"

type EventType string

const (
	EventProductionUpdate EventType = "production_update"
	EventOEEUpdate        EventType = "oee_update"
	EventDowntime         EventType = "downtime_event"
	EventAndon            EventType = "andon_event"
	EventEscalation       EventType = "escalation_update"
	EventContextChanged   EventType = "context_changed"
	EventDeviceHealth     EventType = "device_health"
)

// ValidEventType reports whether t is an event type the broadcaster routes.
func ValidEventType(t EventType) bool {
	switch t {
	case EventProductionUpdate, EventOEEUpdate, EventDowntime, EventAndon,
		EventEscalation, EventContextChanged, EventDeviceHealth:
		return true
	}

	return false
}

// Event is the unit of fan-out to subscribers.
type Event struct {
	Type      EventType   `json:"type"`
	Equipment string      `json:"equipment,omitempty"`
	Line      string      `json:"line,omitempty"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`

	// Users addressed directly, matched against user:<id> subscriptions.
	Users []string `json:"-"`
}

// DowntimeEvent is a stop interval of one piece of equipment.
type DowntimeEvent struct {
	ID            string           `json:"id"`
	EquipmentCode string           `json:"equipment_code"`
	LineID        string           `json:"line_id"`
	Start         time.Time        `json:"start"`
	End           *time.Time       `json:"end,omitempty"`
	Category      DowntimeCategory `json:"category"`
	ReasonCode    string           `json:"reason_code,omitempty"`
	Duration      time.Duration    `json:"duration"`
	StoppedCycles int              `json:"stopped_cycles"`
}

// Open reports whether the downtime has not ended yet.
func (d *DowntimeEvent) Open() bool {
	return d.End == nil
}

type DowntimePhase string

const (
	DowntimeStarted DowntimePhase = "started"
	DowntimeEnded   DowntimePhase = "ended"
)

type DowntimePayload struct {
	Phase    DowntimePhase `json:"phase"`
	Downtime DowntimeEvent `json:"downtime"`
}

// OEESnapshot holds the OEE factors for one equipment at one instant.
// All factors are nil when no production has started.
type OEESnapshot struct {
	EquipmentCode string        `json:"equipment_code"`
	LineID        string        `json:"line_id"`
	ShiftID       string        `json:"shift_id,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	Availability  *float64      `json:"availability"`
	Performance   *float64      `json:"performance"`
	Quality       *float64      `json:"quality"`
	OEE           *float64      `json:"oee"`
	RunningTime   time.Duration `json:"running_time"`
	PlannedTime   time.Duration `json:"planned_time"`
	TotalCount    int64         `json:"total_count"`
	GoodCount     int64         `json:"good_count"`
}

// Started reports whether the snapshot carries values.
func (s *OEESnapshot) Started() bool {
	return s.OEE != nil
}

// ProductionUpdate is the per-cycle payload of production_update events.
type ProductionUpdate struct {
	EquipmentCode  string    `json:"equipment_code"`
	State          RunState  `json:"state"`
	Speed          *float64  `json:"speed,omitempty"`
	ShiftTotal     int64     `json:"shift_total"`
	ShiftGood      int64     `json:"shift_good"`
	ActualQuantity int64     `json:"actual_quantity"`
	ActiveFaults   []int     `json:"active_faults,omitempty"`
	Stale          bool      `json:"stale"`
	Partial        bool      `json:"partial"`
	MissingTags    []string  `json:"missing_tags,omitempty"`
	JobID          string    `json:"job_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// DeviceHealth reports the reachability of a controller.
type DeviceHealth struct {
	DeviceID            string    `json:"device_id"`
	Healthy             bool      `json:"healthy"`
	Stale               bool      `json:"stale"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}
