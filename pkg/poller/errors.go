package poller

import "errors"

var (
	ErrDeviceUnreachable      = errors.New("device unreachable")
	ErrUnknownDriver          = errors.New("unknown device driver")
	ErrUnsupportedSNMPVersion = errors.New("unsupported SNMP version")
	ErrUnsupportedSNMPType    = errors.New("unsupported SNMP type")
	ErrSimulatedFailure       = errors.New("simulated device failure")
	ErrPollerStopped          = errors.New("poller stopped")
)
