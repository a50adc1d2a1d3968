package poller

import (
	"math/rand"
	"time"
)

const (
	defaultBackoffBase = time.Second
	defaultBackoffCap  = 30 * time.Second
)

// Backoff computes exponential retry delays with full jitter:
// a uniform pick in [0, min(Cap, Base*2^attempt)).
type Backoff struct {
	Base time.Duration
	Cap  time.Duration

	// Rand returns a value in [0, n). Defaults to math/rand.
	Rand func(n int64) int64
}

// DefaultBackoff is base 1s, cap 30s.
func DefaultBackoff() Backoff {
	return Backoff{Base: defaultBackoffBase, Cap: defaultBackoffCap}
}

// Ceiling is the upper bound of the delay for attempt (0-based).
func (b Backoff) Ceiling(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	ceiling := b.Base
	for i := 0; i < attempt && ceiling < b.Cap; i++ {
		ceiling *= 2
	}

	if ceiling > b.Cap {
		ceiling = b.Cap
	}

	return ceiling
}

// Next returns the delay before retry number attempt (0-based).
func (b Backoff) Next(attempt int) time.Duration {
	ceiling := b.Ceiling(attempt)
	if ceiling <= 0 {
		return 0
	}

	rnd := b.Rand
	if rnd == nil {
		rnd = rand.Int63n
	}

	return time.Duration(rnd(int64(ceiling)))
}
