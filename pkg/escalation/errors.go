package escalation

import "errors"

var (
	// ErrNotFound is returned for unknown andon ids.
	ErrNotFound = errors.New("andon event not found")

	// ErrInvalidTransition is returned when the event's status does not allow the operation.
	ErrInvalidTransition = errors.New("invalid andon status transition")

	// ErrStaleLevel is returned when an acknowledgment names a level the event has moved past.
	ErrStaleLevel = errors.New("andon escalation level has changed")

	// ErrInvalidTrigger is returned for triggers missing equipment, type or priority.
	ErrInvalidTrigger = errors.New("invalid andon trigger")

	errRuleMissing      = errors.New("escalation rule missing")
	errRuleTemplate     = errors.New("escalation rule template")
	errDuplicateRuleKey = errors.New("duplicate escalation rule")
)
