package models

import "errors"

var (
	ErrInvalidPriority = errors.New("invalid priority")
	ErrInvalidSecurity = errors.New("invalid security config")

	// ErrVersionConflict is returned by persistence when an optimistic write
	// finds a different stored version.
	ErrVersionConflict = errors.New("version conflict")
	// ErrNotFound is returned by persistence lookups that match nothing.
	ErrNotFound = errors.New("not found")
)
