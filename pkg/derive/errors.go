package derive

import "errors"

var (
	ErrUnknownEquipment = errors.New("unknown equipment")
	ErrCyclePanic       = errors.New("derivation cycle panicked")
)
