package broadcast

import "errors"

var (
	// ErrInvalidScope is returned for subscriptions that do not parse.
	ErrInvalidScope = errors.New("invalid subscription scope")

	// ErrUnknownConnection is returned for operations on unregistered connections.
	ErrUnknownConnection = errors.New("unknown connection")

	ErrDuplicateConnection = errors.New("connection already registered")
)
