package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mfreeman451/lineradar/pkg/models"
)

// Conn is one subscriber. Its queue is bounded: when full the oldest
// event is dropped, so a slow reader never blocks publishers.
type Conn struct {
	id     string
	userID string

	mu            sync.Mutex
	buf           []models.Event
	head, n       int
	overflowSince time.Time // zero unless the queue has overflowed since it last drained

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Uint64

	scopes map[Scope]struct{} // guarded by Manager.mu
}

func newConn(id, userID string, size int) *Conn {
	return &Conn{
		id:     id,
		userID: userID,
		buf:    make([]models.Event, size),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
		scopes: make(map[Scope]struct{}),
	}
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) UserID() string { return c.userID }

// Ready is signalled when events are queued.
func (c *Conn) Ready() <-chan struct{} { return c.notify }

// Done is closed when the connection is unregistered or disconnected.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Dropped is the number of events discarded for this connection.
func (c *Conn) Dropped() uint64 { return c.dropped.Load() }

// push queues ev and reports whether an older event was dropped.
func (c *Conn) push(ev models.Event, now time.Time) bool {
	c.mu.Lock()

	dropped := false

	if c.n == len(c.buf) {
		c.buf[c.head] = models.Event{}
		c.head = (c.head + 1) % len(c.buf)
		c.n--
		dropped = true

		if c.overflowSince.IsZero() {
			c.overflowSince = now
		}
	}

	c.buf[(c.head+c.n)%len(c.buf)] = ev
	c.n++
	c.mu.Unlock()

	if dropped {
		c.dropped.Add(1)
	}

	select {
	case c.notify <- struct{}{}:
	default:
	}

	return dropped
}

// Drain removes and returns every queued event, oldest first.
func (c *Conn) Drain() []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.n == 0 {
		return nil
	}

	out := make([]models.Event, c.n)
	for i := 0; i < c.n; i++ {
		idx := (c.head + i) % len(c.buf)
		out[i] = c.buf[idx]
		c.buf[idx] = models.Event{}
	}

	c.head, c.n = 0, 0
	c.overflowSince = time.Time{}

	return out
}

// Len is the number of queued events.
func (c *Conn) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.n
}

func (c *Conn) starvedSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.overflowSince
}

func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}
