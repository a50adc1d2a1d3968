// Package poller pkg/poller/snmp.go
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"
	"github.com/mfreeman451/lineradar/pkg/config"
)

// SNMPReader reads controller tags exposed as SNMP OIDs.
type SNMPReader struct {
	client     *gosnmp.GoSNMP
	host       string
	mu         sync.Mutex
	connected  bool
	lastError  error
	reconnects int
}

// SNMPError wraps SNMP-specific errors with additional context.
type SNMPError struct {
	Op      string
	Target  string
	Wrapped error
}

func (e *SNMPError) Error() string {
	return fmt.Sprintf("SNMP %s failed for target %s: %v", e.Op, e.Target, e.Wrapped)
}

func (e *SNMPError) Unwrap() error {
	return e.Wrapped
}

// NewSNMPReader builds a reader for a validated device configuration.
func NewSNMPReader(dev *config.DeviceConfig) (*SNMPReader, error) {
	client := &gosnmp.GoSNMP{
		Target:             dev.Host,
		Port:               dev.Port,
		Community:          dev.Community,
		Timeout:            time.Duration(dev.Timeout),
		Retries:            dev.Retries,
		ExponentialTimeout: true,
		MaxOids:            gosnmp.MaxOids,
	}

	switch dev.Version {
	case "v1":
		client.Version = gosnmp.Version1
	case "v2c", "":
		client.Version = gosnmp.Version2c
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSNMPVersion, dev.Version)
	}

	return &SNMPReader{
		client: client,
		host:   dev.Host,
	}, nil
}

// Connect implements TagReader.
func (s *SNMPReader) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	s.client.Context = ctx

	if err := s.client.Connect(); err != nil {
		s.lastError = &SNMPError{Op: "connect", Target: s.host, Wrapped: err}

		return s.lastError
	}

	s.connected = true

	return nil
}

// Read implements TagReader. OIDs are fetched in chunks of MaxOids.
func (s *SNMPReader) Read(ctx context.Context, oids []string) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, &SNMPError{Op: "get", Target: s.host, Wrapped: ErrDeviceUnreachable}
	}

	s.client.Context = ctx

	results := make(map[string]interface{}, len(oids))

	for i := 0; i < len(oids); i += gosnmp.MaxOids {
		end := i + gosnmp.MaxOids
		if end > len(oids) {
			end = len(oids)
		}

		packet, err := s.client.Get(oids[i:end])
		if err != nil {
			s.handleError(err)

			return nil, &SNMPError{Op: "get", Target: s.host, Wrapped: err}
		}

		for _, variable := range packet.Variables {
			value, ok, err := convertVariable(variable)
			if err != nil {
				return nil, &SNMPError{Op: "convert", Target: s.host, Wrapped: err}
			}

			if ok {
				results[normalizeOID(variable.Name)] = value
			}
		}
	}

	return results, nil
}

// Close implements TagReader.
func (s *SNMPReader) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}

	s.connected = false

	if s.client.Conn == nil {
		return nil
	}

	return s.client.Conn.Close()
}

// GetLastError returns the last error encountered.
func (s *SNMPReader) GetLastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastError
}

// handleError records a failure and forces a reconnect. Caller holds mu.
func (s *SNMPReader) handleError(err error) {
	s.lastError = err
	s.connected = false
	s.reconnects++

	if s.client.Conn != nil {
		_ = s.client.Conn.Close()
	}
}

// convertVariable converts an SNMP variable to a Go value. Missing objects
// report ok=false so the tag is treated as absent.
func convertVariable(variable gosnmp.SnmpPDU) (interface{}, bool, error) {
	switch variable.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
		return nil, false, nil
	case gosnmp.OctetString:
		b, _ := variable.Value.([]byte)
		return string(b), true, nil
	case gosnmp.Integer:
		return variable.Value, true, nil
	case gosnmp.Counter32, gosnmp.Gauge32, gosnmp.Uinteger32:
		return gosnmp.ToBigInt(variable.Value).Uint64(), true, nil
	case gosnmp.Counter64:
		return gosnmp.ToBigInt(variable.Value).Uint64(), true, nil
	case gosnmp.Boolean:
		return variable.Value, true, nil
	case gosnmp.TimeTicks:
		return time.Duration(gosnmp.ToBigInt(variable.Value).Int64()) * time.Second / 100, true, nil
	case gosnmp.IPAddress, gosnmp.ObjectIdentifier:
		return variable.Value, true, nil
	case gosnmp.OpaqueFloat:
		return variable.Value, true, nil
	case gosnmp.OpaqueDouble:
		return variable.Value, true, nil
	default:
		return nil, false, fmt.Errorf("%w: %v", ErrUnsupportedSNMPType, variable.Type)
	}
}

// normalizeOID strips the leading dot gosnmp puts on returned names.
func normalizeOID(oid string) string {
	if len(oid) > 0 && oid[0] == '.' {
		return oid[1:]
	}

	return oid
}
