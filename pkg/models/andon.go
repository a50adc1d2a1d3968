package models

import "time"

// AndonEvent is an alert raised against a piece of equipment.
type AndonEvent struct {
	ID             string      `json:"id"`
	EquipmentCode  string      `json:"equipment_code"`
	LineID         string      `json:"line_id"`
	Type           AndonType   `json:"type"`
	Code           string      `json:"code,omitempty"`
	Description    string      `json:"description"`
	Priority       Priority    `json:"priority"`
	Status         AndonStatus `json:"status"`
	ReportedBy     string      `json:"reported_by,omitempty"`
	CreatedAt      time.Time   `json:"reported_at"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string      `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty"`
	ResolvedBy     string      `json:"resolved_by,omitempty"`
	ResolutionNote string      `json:"resolution_note,omitempty"`
	UpdatedAt      time.Time   `json:"updated_at"`

	Escalation AndonEscalation `json:"escalation"`
}

// DedupKey identifies events that describe the same condition.
func (e *AndonEvent) DedupKey() string {
	return e.EquipmentCode + "|" + string(e.Type) + "|" + e.Code
}

// AndonEscalation tracks the escalation level of an AndonEvent.
type AndonEscalation struct {
	Level             int           `json:"level"`
	AckTimeout        time.Duration `json:"acknowledgment_timeout"`
	ResolutionTimeout time.Duration `json:"resolution_timeout"`
	Recipients        []string      `json:"recipients"`
	Channels          []Channel     `json:"channels"`
	Status            AndonStatus   `json:"status"`
	MaxLevelReached   bool          `json:"max_level_reached"`
	LastEscalatedAt   *time.Time    `json:"last_escalated_at,omitempty"`
}

// AndonTrigger is a request to raise an AndonEvent.
type AndonTrigger struct {
	EquipmentCode string    `json:"equipment_code"`
	LineID        string    `json:"line_id"`
	Type          AndonType `json:"type"`
	Code          string    `json:"code,omitempty"`
	Description   string    `json:"description"`
	Priority      Priority  `json:"priority"`
	ReportedBy    string    `json:"reported_by,omitempty"`
	At            time.Time `json:"at"`
}

// EscalationUpdate is the payload of escalation_update events.
type EscalationUpdate struct {
	AndonID         string      `json:"andon_id"`
	EquipmentCode   string      `json:"equipment_code"`
	LineID          string      `json:"line_id"`
	Priority        Priority    `json:"priority"`
	FromLevel       int         `json:"from_level"`
	ToLevel         int         `json:"to_level"`
	Status          AndonStatus `json:"status"`
	MaxLevelReached bool        `json:"max_level_reached"`
	Recipients      []string    `json:"recipients,omitempty"`
	Channels        []Channel   `json:"channels,omitempty"`
	At              time.Time   `json:"at"`
}
