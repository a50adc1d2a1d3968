/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package broadcast fans events out to connections subscribed by
// equipment, line, event type or user.
package broadcast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mfreeman451/lineradar/pkg/config"
	"github.com/mfreeman451/lineradar/pkg/metrics"
	"github.com/mfreeman451/lineradar/pkg/models"
	"go.uber.org/zap"
)

const (
	defaultQueueSize       = 256
	defaultStarvationGrace = 30 * time.Second
	defaultJanitorInterval = 5 * time.Second
)

// index is immutable once published; writers build a new one.
type index struct {
	byScope map[Scope][]*Conn
}

// Stats is a point-in-time view of the manager.
type Stats struct {
	Connections   int    `json:"connections"`
	Subscriptions int    `json:"subscriptions"`
	Published     uint64 `json:"published"`
	Delivered     uint64 `json:"delivered"`
	Dropped       uint64 `json:"dropped"`
	Disconnected  uint64 `json:"disconnected"`
}

type Manager struct {
	mu    sync.Mutex
	conns map[string]*Conn
	idx   atomic.Pointer[index]

	queueSize       int
	grace           time.Duration
	janitorInterval time.Duration

	published    atomic.Uint64
	delivered    atomic.Uint64
	dropped      atomic.Uint64
	disconnected atomic.Uint64

	recorder *metrics.Recorder
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Manager)

func WithRecorder(r *metrics.Recorder) Option { return func(m *Manager) { m.recorder = r } }

func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.logger = l } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func NewManager(cfg config.BroadcastConfig, opts ...Option) *Manager {
	m := &Manager{
		conns:           make(map[string]*Conn),
		queueSize:       cfg.QueueSize,
		grace:           time.Duration(cfg.StarvationGrace),
		janitorInterval: time.Duration(cfg.JanitorInterval),
		logger:          zap.NewNop(),
		now:             time.Now,
	}

	if m.queueSize <= 0 {
		m.queueSize = defaultQueueSize
	}

	if m.grace <= 0 {
		m.grace = defaultStarvationGrace
	}

	if m.janitorInterval <= 0 {
		m.janitorInterval = defaultJanitorInterval
	}

	for _, o := range opts {
		o(m)
	}

	m.idx.Store(&index{byScope: map[Scope][]*Conn{}})

	return m
}

// Register adds a connection. A non-empty userID subscribes it to
// user:<userID>.
func (m *Manager) Register(connID, userID string) (*Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conns[connID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateConnection, connID)
	}

	c := newConn(connID, userID, m.queueSize)
	if userID != "" {
		c.scopes[Scope{Kind: ScopeUser, Value: userID}] = struct{}{}
	}

	m.conns[connID] = c
	m.rebuild()
	m.recorder.SetConnections(len(m.conns))

	m.logger.Debug("connection registered", zap.String("conn_id", connID), zap.String("user_id", userID))

	return c, nil
}

// Unregister removes a connection and all of its subscriptions.
func (m *Manager) Unregister(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(connID)
}

func (m *Manager) removeLocked(connID string) bool {
	c, ok := m.conns[connID]
	if !ok {
		return false
	}

	delete(m.conns, connID)
	m.rebuild()
	c.close()
	m.recorder.SetConnections(len(m.conns))

	return true
}

func (m *Manager) Subscribe(connID string, scope Scope) error {
	return m.update(connID, func(c *Conn) bool {
		if _, ok := c.scopes[scope]; ok {
			return false
		}

		c.scopes[scope] = struct{}{}

		return true
	})
}

func (m *Manager) Unsubscribe(connID string, scope Scope) error {
	return m.update(connID, func(c *Conn) bool {
		if _, ok := c.scopes[scope]; !ok {
			return false
		}

		delete(c.scopes, scope)

		return true
	})
}

func (m *Manager) update(connID string, fn func(c *Conn) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conns[connID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}

	if fn(c) {
		m.rebuild()
	}

	return nil
}

// Scopes lists the subscriptions of a connection.
func (m *Manager) Scopes(connID string) ([]Scope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conns[connID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}

	out := make([]Scope, 0, len(c.scopes))
	for s := range c.scopes {
		out = append(out, s)
	}

	return out, nil
}

// rebuild publishes a fresh index. The caller holds m.mu.
func (m *Manager) rebuild() {
	next := &index{byScope: make(map[Scope][]*Conn)}

	for _, c := range m.conns {
		for s := range c.scopes {
			next.byScope[s] = append(next.byScope[s], c)
		}
	}

	m.idx.Store(next)
}

// Publish queues ev on every matching connection exactly once and returns
// how many connections it reached. It never blocks.
func (m *Manager) Publish(ev models.Event) int {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = m.now()
	}

	idx := m.idx.Load()
	scopes := scopesOf(&ev)
	now := m.now()

	var seen map[*Conn]struct{}

	delivered, dropped := 0, 0

	for _, s := range scopes {
		for _, c := range idx.byScope[s] {
			if seen == nil {
				seen = make(map[*Conn]struct{})
			}

			if _, dup := seen[c]; dup {
				continue
			}

			seen[c] = struct{}{}

			if c.push(ev, now) {
				dropped++
			}

			delivered++
		}
	}

	m.published.Add(1)
	m.delivered.Add(uint64(delivered))

	if dropped > 0 {
		m.dropped.Add(uint64(dropped))
		m.recorder.BroadcastDropped(dropped)
	}

	return delivered
}

// Run disconnects starved connections until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.DisconnectStarved(m.now())
		}
	}
}

// DisconnectStarved removes connections that have overflowed without
// draining for longer than the starvation grace period.
func (m *Manager) DisconnectStarved(now time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string

	for id, c := range m.conns {
		since := c.starvedSince()
		if since.IsZero() || now.Sub(since) <= m.grace {
			continue
		}

		removed = append(removed, id)

		m.logger.Warn("disconnecting starved connection",
			zap.String("conn_id", id),
			zap.Duration("overflowing_for", now.Sub(since)),
			zap.Uint64("dropped", c.Dropped()))
	}

	for _, id := range removed {
		m.removeLocked(id)
		m.disconnected.Add(1)
	}

	return removed
}

// Close disconnects every connection.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.conns {
		m.removeLocked(id)
	}
}

func (m *Manager) Stats() Stats {
	idx := m.idx.Load()

	subs := 0
	for _, cs := range idx.byScope {
		subs += len(cs)
	}

	m.mu.Lock()
	conns := len(m.conns)
	m.mu.Unlock()

	return Stats{
		Connections:   conns,
		Subscriptions: subs,
		Published:     m.published.Load(),
		Delivered:     m.delivered.Load(),
		Dropped:       m.dropped.Load(),
		Disconnected:  m.disconnected.Load(),
	}
}
