package models

import "time"

// ProductionContext is the live production view of one piece of equipment.
type ProductionContext struct {
	EquipmentCode  string           `json:"equipment_code"`
	JobID          string           `json:"job_id,omitempty"`
	ScheduleID     string           `json:"schedule_id,omitempty"`
	LineID         string           `json:"line_id,omitempty"`
	ShiftID        string           `json:"shift_id,omitempty"`
	ShiftStart     time.Time        `json:"shift_start,omitempty"`
	OperatorID     string           `json:"operator_id,omitempty"`
	ProductTypeID  string           `json:"product_type_id,omitempty"`
	TargetQuantity int64            `json:"target_quantity"`
	ActualQuantity int64            `json:"actual_quantity"`
	TargetSpeed    float64          `json:"target_speed"`
	Efficiency     float64          `json:"efficiency"`
	PlannedStop    bool             `json:"planned_stop"`
	Changeover     ChangeoverStatus `json:"changeover_status"`
	Version        int64            `json:"version"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// ShiftActive reports whether a shift is running at now.
func (c ProductionContext) ShiftActive(now time.Time) bool {
	return c.ShiftID != "" && !c.ShiftStart.IsZero() && !now.Before(c.ShiftStart)
}

// ContextChange is a partial update. Nil fields are left untouched.
type ContextChange struct {
	JobID          *string           `json:"job_id,omitempty"`
	ScheduleID     *string           `json:"schedule_id,omitempty"`
	LineID         *string           `json:"line_id,omitempty"`
	ShiftID        *string           `json:"shift_id,omitempty"`
	ShiftStart     *time.Time        `json:"shift_start,omitempty"`
	OperatorID     *string           `json:"operator_id,omitempty"`
	ProductTypeID  *string           `json:"product_type_id,omitempty"`
	TargetQuantity *int64            `json:"target_quantity,omitempty"`
	ActualQuantity *int64            `json:"actual_quantity,omitempty"`
	TargetSpeed    *float64          `json:"target_speed,omitempty"`
	Efficiency     *float64          `json:"efficiency,omitempty"`
	PlannedStop    *bool             `json:"planned_stop,omitempty"`
	Changeover     *ChangeoverStatus `json:"changeover_status,omitempty"`

	// QuantityDelta is added to ActualQuantity after the absolute fields.
	QuantityDelta int64 `json:"quantity_delta,omitempty"`

	Reason string `json:"reason"`
	Source string `json:"source"`

	// ExpectedVersion rejects the change when the stored version differs. Zero disables the check.
	ExpectedVersion int64 `json:"expected_version,omitempty"`
}

// Empty reports whether the change would not modify any field.
func (c *ContextChange) Empty() bool {
	return c.JobID == nil && c.ScheduleID == nil && c.LineID == nil && c.ShiftID == nil &&
		c.ShiftStart == nil && c.OperatorID == nil && c.ProductTypeID == nil &&
		c.TargetQuantity == nil && c.ActualQuantity == nil && c.TargetSpeed == nil &&
		c.Efficiency == nil && c.PlannedStop == nil && c.Changeover == nil && c.QuantityDelta == 0
}

// ApplyTo returns a copy of pc with the change applied. Version and UpdatedAt are not touched.
func (c *ContextChange) ApplyTo(pc ProductionContext) ProductionContext {
	if c.JobID != nil {
		pc.JobID = *c.JobID
	}

	if c.ScheduleID != nil {
		pc.ScheduleID = *c.ScheduleID
	}

	if c.LineID != nil {
		pc.LineID = *c.LineID
	}

	if c.ShiftID != nil {
		pc.ShiftID = *c.ShiftID
	}

	if c.ShiftStart != nil {
		pc.ShiftStart = *c.ShiftStart
	}

	if c.OperatorID != nil {
		pc.OperatorID = *c.OperatorID
	}

	if c.ProductTypeID != nil {
		pc.ProductTypeID = *c.ProductTypeID
	}

	if c.TargetQuantity != nil {
		pc.TargetQuantity = *c.TargetQuantity
	}

	if c.ActualQuantity != nil {
		pc.ActualQuantity = *c.ActualQuantity
	}

	if c.TargetSpeed != nil {
		pc.TargetSpeed = *c.TargetSpeed
	}

	if c.Efficiency != nil {
		pc.Efficiency = *c.Efficiency
	}

	if c.PlannedStop != nil {
		pc.PlannedStop = *c.PlannedStop
	}

	if c.Changeover != nil {
		pc.Changeover = *c.Changeover
	}

	pc.ActualQuantity += c.QuantityDelta

	return pc
}

// ContextHistory is an append-only audit record of one context mutation.
type ContextHistory struct {
	ID            int64             `json:"id"`
	EquipmentCode string            `json:"equipment_code"`
	Version       int64             `json:"version"`
	Reason        string            `json:"reason"`
	Source        string            `json:"source"`
	Snapshot      ProductionContext `json:"snapshot"`
	RecordedAt    time.Time         `json:"recorded_at"`
}
