// Package db pkg/db/errors.go provides errors for the db package.

package db

import "errors"

var (
	ErrUnknownDriver = errors.New("unknown database driver")

	errFailedOpenDB      = errors.New("failed to open database")
	errFailedToEnableWAL = errors.New("failed to enable WAL mode")
	errFailedToInit      = errors.New("failed to initialize schema")
	errFailedToBeginTx   = errors.New("failed to begin transaction")
	errFailedToScan      = errors.New("failed to scan")
	errFailedToQuery     = errors.New("failed to query")
	errFailedToInsert    = errors.New("failed to insert")
	errFailedToClean     = errors.New("failed to clean")
	errFailedToEncode    = errors.New("failed to encode")
)
