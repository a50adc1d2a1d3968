package prodctx

import "errors"

var (
	ErrContextWriteConflict = errors.New("context write conflict")
	ErrUnknownEquipment     = errors.New("unknown equipment")
	ErrEmptyChange          = errors.New("context change modifies nothing")
	ErrInvalidChangeover    = errors.New("invalid changeover status")
)
