package poller

import (
	"context"
	"sync"
)

// SimReader is an in-memory controller. Values are set by address and
// read back verbatim; a pending failure makes the next reads fail.
type SimReader struct {
	mu        sync.Mutex
	values    map[string]interface{}
	failures  int
	failErr   error
	connected bool
	reads     int
	onRead    func(values map[string]interface{})
}

func NewSimReader() *SimReader {
	return &SimReader{values: make(map[string]interface{})}
}

// Set stores the value of one address.
func (s *SimReader) Set(address string, v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[address] = v
}

// Delete removes an address so reads omit it.
func (s *SimReader) Delete(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, address)
}

// FailNext makes the next n Connect/Read calls fail with err.
func (s *SimReader) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		err = ErrSimulatedFailure
	}

	s.failures = n
	s.failErr = err
}

// OnRead registers a hook run under the reader lock before each read,
// letting a simulator advance its values.
func (s *SimReader) OnRead(fn func(values map[string]interface{})) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onRead = fn
}

// Reads returns how many successful reads were served.
func (s *SimReader) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reads
}

func (s *SimReader) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if s.failures > 0 {
		s.failures--
		return s.failErr
	}

	s.connected = true

	return nil
}

func (s *SimReader) Read(ctx context.Context, addresses []string) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.failures > 0 {
		s.failures--
		s.connected = false

		return nil, s.failErr
	}

	if !s.connected {
		return nil, ErrDeviceUnreachable
	}

	if s.onRead != nil {
		s.onRead(s.values)
	}

	out := make(map[string]interface{}, len(addresses))

	for _, a := range addresses {
		if v, ok := s.values[a]; ok {
			out[a] = v
		}
	}

	s.reads++

	return out, nil
}

func (s *SimReader) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = false

	return nil
}
