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

package escalation

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mfreeman451/lineradar/pkg/metrics"
	"github.com/mfreeman451/lineradar/pkg/models"
	"github.com/mfreeman451/lineradar/pkg/notifications"
	"go.uber.org/zap"
)

const defaultSweepInterval = 30 * time.Second

// entry serializes every transition of one andon event.
type entry struct {
	mu sync.Mutex
	ev models.AndonEvent
}

type Engine struct {
	rules atomic.Pointer[RuleSet]

	mu     sync.Mutex
	active map[string]*entry // non-terminal events by id
	dedup  map[string]string // DedupKey -> id

	store         Store
	notifier      Notifier
	publisher     Publisher
	recorder      *metrics.Recorder
	logger        *zap.Logger
	now           func() time.Time
	sweepInterval time.Duration
}

type Option func(*Engine)

func WithStore(s Store) Option { return func(e *Engine) { e.store = s } }

func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publisher = p } }

func WithRecorder(r *metrics.Recorder) Option { return func(e *Engine) { e.recorder = r } }

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithSweepInterval(d time.Duration) Option { return func(e *Engine) { e.sweepInterval = d } }

func New(rules *RuleSet, opts ...Option) *Engine {
	e := &Engine{
		active:        make(map[string]*entry),
		dedup:         make(map[string]string),
		logger:        zap.NewNop(),
		now:           time.Now,
		sweepInterval: defaultSweepInterval,
	}

	for _, o := range opts {
		o(e)
	}

	if e.store == nil {
		e.store = NewMemoryStore()
	}

	e.rules.Store(rules)

	return e
}

// SetRules swaps the rule table. Events keep their current level; the
// new table applies from their next transition.
func (e *Engine) SetRules(rules *RuleSet) {
	e.rules.Store(rules)
}

func (e *Engine) lookup(p models.Priority, level int) (*Rule, bool) {
	return e.rules.Load().Lookup(p, level)
}

// Recover loads the non-terminal events of a previous process. Timeouts
// continue from their persisted CreatedAt on the next sweep.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	events, err := e.store.ListActiveAndons(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load active andons: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0

	for i := range events {
		ev := events[i]
		if ev.Status.Terminal() {
			continue
		}

		if _, ok := e.active[ev.ID]; ok {
			continue
		}

		e.active[ev.ID] = &entry{ev: ev}
		e.dedup[ev.DedupKey()] = ev.ID
		n++
	}

	e.logger.Info("recovered andon events", zap.Int("count", n))

	return n, nil
}

// Trigger raises an andon, or returns the open event describing the same
// condition with created=false.
func (e *Engine) Trigger(ctx context.Context, t models.AndonTrigger) (models.AndonEvent, bool, error) {
	if t.EquipmentCode == "" || !t.Type.Valid() || !t.Priority.Valid() {
		return models.AndonEvent{}, false, fmt.Errorf("%w: equipment=%q type=%q priority=%q",
			ErrInvalidTrigger, t.EquipmentCode, t.Type, t.Priority)
	}

	at := t.At
	if at.IsZero() {
		at = e.now()
	}

	ev := models.AndonEvent{
		ID:            uuid.NewString(),
		EquipmentCode: t.EquipmentCode,
		LineID:        t.LineID,
		Type:          t.Type,
		Code:          t.Code,
		Description:   t.Description,
		Priority:      t.Priority,
		Status:        models.AndonOpen,
		ReportedBy:    t.ReportedBy,
		CreatedAt:     at,
		UpdatedAt:     at,
		Escalation: models.AndonEscalation{
			Level:  1,
			Status: models.AndonOpen,
		},
	}

	for {
		e.mu.Lock()

		id, ok := e.dedup[ev.DedupKey()]
		if !ok {
			break
		}

		existing := e.active[id]
		e.mu.Unlock()

		if out, live := e.snapshotLive(id, existing); live {
			return out, false, nil
		}
	}

	en := &entry{ev: ev}
	en.mu.Lock()
	defer en.mu.Unlock()

	e.active[ev.ID] = en
	e.dedup[ev.DedupKey()] = ev.ID
	e.mu.Unlock()

	rule, ok := e.lookup(ev.Priority, 1)
	if ok {
		applyRule(&en.ev, rule)
	} else {
		en.ev.Escalation.MaxLevelReached = true

		e.logger.Warn("no level 1 escalation rule",
			zap.String("priority", string(ev.Priority)),
			zap.String("andon_id", ev.ID),
			zap.Error(errRuleMissing))
	}

	if err := e.store.SaveAndon(ctx, &en.ev); err != nil {
		e.forget(&en.ev)

		return models.AndonEvent{}, false, fmt.Errorf("failed to save andon: %w", err)
	}

	e.recorder.AndonTriggered(string(ev.Type), string(ev.Priority))

	e.logger.Info("andon raised",
		zap.String("andon_id", ev.ID),
		zap.String("equipment", ev.EquipmentCode),
		zap.String("type", string(ev.Type)),
		zap.String("code", ev.Code),
		zap.String("priority", string(ev.Priority)))

	if ok {
		e.notify(&en.ev, rule)
	}

	e.publishAndon(&en.ev)

	return cloneEvent(&en.ev), true, nil
}

// snapshotLive waits for any transition of en to finish and returns a copy
// when en is still the active event for id. An event whose first save
// failed, or that was closed meanwhile, is no longer live.
func (e *Engine) snapshotLive(id string, en *entry) (models.AndonEvent, bool) {
	en.mu.Lock()
	defer en.mu.Unlock()

	e.mu.Lock()
	live := e.active[id] == en
	e.mu.Unlock()

	if !live {
		return models.AndonEvent{}, false
	}

	return cloneEvent(&en.ev), true
}

// Report raises a manual andon.
func (e *Engine) Report(ctx context.Context, t models.AndonTrigger) (models.AndonEvent, bool, error) {
	if t.Type == "" {
		t.Type = models.AndonManual
	}

	return e.Trigger(ctx, t)
}

// Acknowledge moves an open or escalated event to acknowledged. A positive
// expectedLevel must match the current level.
func (e *Engine) Acknowledge(ctx context.Context, id, by string, expectedLevel int) (models.AndonEvent, error) {
	return e.transition(ctx, id, func(ev *models.AndonEvent, now time.Time) error {
		if ev.Status != models.AndonOpen && ev.Status != models.AndonEscalated {
			return fmt.Errorf("%w: acknowledge from %s", ErrInvalidTransition, ev.Status)
		}

		if expectedLevel > 0 && expectedLevel != ev.Escalation.Level {
			return fmt.Errorf("%w: expected %d, current %d", ErrStaleLevel, expectedLevel, ev.Escalation.Level)
		}

		ev.Status = models.AndonAcknowledged
		ev.Escalation.Status = models.AndonAcknowledged
		ev.AcknowledgedAt = &now
		ev.AcknowledgedBy = by

		return nil
	})
}

// Resolve closes the event.
func (e *Engine) Resolve(ctx context.Context, id, by, note string) (models.AndonEvent, error) {
	return e.terminate(ctx, id, models.AndonResolved, by, note)
}

// Cancel withdraws the event.
func (e *Engine) Cancel(ctx context.Context, id, by, note string) (models.AndonEvent, error) {
	return e.terminate(ctx, id, models.AndonCancelled, by, note)
}

func (e *Engine) terminate(ctx context.Context, id string, to models.AndonStatus, by, note string) (models.AndonEvent, error) {
	return e.transition(ctx, id, func(ev *models.AndonEvent, now time.Time) error {
		ev.Status = to
		ev.Escalation.Status = to
		ev.ResolvedAt = &now
		ev.ResolvedBy = by
		ev.ResolutionNote = note

		return nil
	})
}

// transition applies fn to a copy of the event under its lock, persists
// the copy and only then commits it.
func (e *Engine) transition(ctx context.Context, id string,
	fn func(ev *models.AndonEvent, now time.Time) error) (models.AndonEvent, error) {
	e.mu.Lock()
	en, ok := e.active[id]
	e.mu.Unlock()

	if !ok {
		return models.AndonEvent{}, e.inactiveError(ctx, id)
	}

	en.mu.Lock()
	defer en.mu.Unlock()

	if en.ev.Status.Terminal() {
		return models.AndonEvent{}, fmt.Errorf("%w: event is %s", ErrInvalidTransition, en.ev.Status)
	}

	now := e.now()
	next := cloneEvent(&en.ev)

	if err := fn(&next, now); err != nil {
		return models.AndonEvent{}, err
	}

	next.UpdatedAt = now

	if err := e.store.SaveAndon(ctx, &next); err != nil {
		return models.AndonEvent{}, fmt.Errorf("failed to save andon: %w", err)
	}

	en.ev = next

	if next.Status.Terminal() {
		e.forget(&next)
	}

	e.logger.Info("andon status changed",
		zap.String("andon_id", id),
		zap.String("status", string(next.Status)),
		zap.Int("level", next.Escalation.Level))

	e.publishAndon(&next)

	return cloneEvent(&next), nil
}

func (e *Engine) inactiveError(ctx context.Context, id string) error {
	ev, err := e.store.GetAndon(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load andon %s: %w", id, err)
	}

	if ev == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return fmt.Errorf("%w: event is %s", ErrInvalidTransition, ev.Status)
}

func (e *Engine) forget(ev *models.AndonEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.active, ev.ID)

	if e.dedup[ev.DedupKey()] == ev.ID {
		delete(e.dedup, ev.DedupKey())
	}
}

// Run sweeps on the configured interval until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep(ctx, e.now())
		}
	}
}

// Sweep escalates every event whose current timeout has elapsed at now and
// returns the number of level transitions applied. An event moves at most
// one level per sweep.
func (e *Engine) Sweep(ctx context.Context, now time.Time) int {
	e.mu.Lock()
	entries := make([]*entry, 0, len(e.active))

	for _, en := range e.active {
		entries = append(entries, en)
	}
	e.mu.Unlock()

	n := 0

	for _, en := range entries {
		if e.sweepOne(ctx, en, now) {
			n++
		}
	}

	return n
}

func (e *Engine) sweepOne(ctx context.Context, en *entry, now time.Time) bool {
	en.mu.Lock()
	defer en.mu.Unlock()

	if en.ev.Status.Terminal() || en.ev.Escalation.MaxLevelReached {
		return false
	}

	due, ok := deadline(&en.ev)
	if !ok || now.Before(due) {
		return false
	}

	return e.escalate(ctx, en, now)
}

// deadline is when the current level times out. Timeouts count from
// created_at; a level whose timeout had already passed when the event
// entered it counts from the entry instant instead.
func deadline(ev *models.AndonEvent) (time.Time, bool) {
	timeout := ev.Escalation.AckTimeout
	if ev.Status == models.AndonAcknowledged {
		timeout = ev.Escalation.ResolutionTimeout
	}

	if timeout <= 0 {
		return time.Time{}, false
	}

	due := ev.CreatedAt.Add(timeout)

	if entered := ev.Escalation.LastEscalatedAt; entered != nil && !due.After(*entered) {
		due = entered.Add(timeout)
	}

	return due, true
}

// escalate advances en by one tier. The caller holds en.mu.
func (e *Engine) escalate(ctx context.Context, en *entry, now time.Time) bool {
	from := en.ev.Escalation.Level
	next := cloneEvent(&en.ev)

	rule, found := e.lookup(next.Priority, from+1)
	if found {
		applyRule(&next, rule)
	} else {
		next.Escalation.MaxLevelReached = true
	}

	next.Status = models.AndonEscalated
	next.Escalation.Status = models.AndonEscalated
	next.Escalation.LastEscalatedAt = &now
	next.UpdatedAt = now

	if err := e.store.SaveAndon(ctx, &next); err != nil {
		e.logger.Error("failed to save escalation",
			zap.String("andon_id", next.ID),
			zap.Int("to_level", from+1),
			zap.Error(err))

		return false
	}

	en.ev = next

	e.recorder.Escalated(string(next.Priority), strconv.Itoa(next.Escalation.Level))

	if found {
		e.logger.Info("andon escalated",
			zap.String("andon_id", next.ID),
			zap.String("equipment", next.EquipmentCode),
			zap.Int("from_level", from),
			zap.Int("to_level", next.Escalation.Level))

		e.notify(&next, rule)
	} else {
		e.logger.Warn("andon reached max escalation level",
			zap.String("andon_id", next.ID),
			zap.String("equipment", next.EquipmentCode),
			zap.Int("level", from))
	}

	e.publish(models.Event{
		Type:      models.EventEscalation,
		Equipment: next.EquipmentCode,
		Line:      next.LineID,
		Payload: models.EscalationUpdate{
			AndonID:         next.ID,
			EquipmentCode:   next.EquipmentCode,
			LineID:          next.LineID,
			Priority:        next.Priority,
			FromLevel:       from,
			ToLevel:         next.Escalation.Level,
			Status:          next.Status,
			MaxLevelReached: next.Escalation.MaxLevelReached,
			Recipients:      next.Escalation.Recipients,
			Channels:        next.Escalation.Channels,
			At:              now,
		},
		Timestamp: now,
		Users:     next.Escalation.Recipients,
	})

	return true
}

func applyRule(ev *models.AndonEvent, r *Rule) {
	ev.Escalation.Level = r.Level
	ev.Escalation.AckTimeout = r.AckTimeout
	ev.Escalation.ResolutionTimeout = r.ResolutionTimeout
	ev.Escalation.Recipients = append([]string(nil), r.Recipients...)
	ev.Escalation.Channels = append([]models.Channel(nil), r.Channels...)
}

func (e *Engine) notify(ev *models.AndonEvent, r *Rule) {
	if e.notifier == nil || len(r.Recipients) == 0 {
		return
	}

	msg := r.Render(ev)
	escID := ev.ID + ":" + strconv.Itoa(r.Level)

	for _, ch := range r.Channels {
		req := &notifications.Request{
			EscalationID: escID,
			AndonID:      ev.ID,
			Equipment:    ev.EquipmentCode,
			Line:         ev.LineID,
			Level:        r.Level,
			Priority:     ev.Priority,
			Status:       ev.Status,
			Recipients:   append([]string(nil), r.Recipients...),
			Channel:      ch,
			Message:      msg,
			At:           ev.UpdatedAt,
		}

		if err := e.notifier.Enqueue(req); err != nil {
			e.logger.Warn("failed to enqueue notification",
				zap.String("andon_id", ev.ID),
				zap.String("channel", string(ch)),
				zap.Error(err))
		}
	}
}

func (e *Engine) publishAndon(ev *models.AndonEvent) {
	e.publish(models.Event{
		Type:      models.EventAndon,
		Equipment: ev.EquipmentCode,
		Line:      ev.LineID,
		Payload:   cloneEvent(ev),
		Timestamp: ev.UpdatedAt,
		Users:     ev.Escalation.Recipients,
	})
}

func (e *Engine) publish(ev models.Event) {
	if e.publisher == nil {
		return
	}

	e.publisher.Publish(ev)
}

// Get returns an event by id, active or not.
func (e *Engine) Get(ctx context.Context, id string) (models.AndonEvent, error) {
	e.mu.Lock()
	en, ok := e.active[id]
	e.mu.Unlock()

	if ok {
		en.mu.Lock()
		defer en.mu.Unlock()

		return cloneEvent(&en.ev), nil
	}

	ev, err := e.store.GetAndon(ctx, id)
	if err != nil {
		return models.AndonEvent{}, fmt.Errorf("failed to load andon %s: %w", id, err)
	}

	if ev == nil {
		return models.AndonEvent{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return *ev, nil
}

// List returns the non-terminal events, oldest first, optionally limited
// to one equipment.
func (e *Engine) List(equipment string) []models.AndonEvent {
	e.mu.Lock()
	entries := make([]*entry, 0, len(e.active))

	for _, en := range e.active {
		entries = append(entries, en)
	}
	e.mu.Unlock()

	out := make([]models.AndonEvent, 0, len(entries))

	for _, en := range entries {
		en.mu.Lock()
		if !en.ev.Status.Terminal() && (equipment == "" || en.ev.EquipmentCode == equipment) {
			out = append(out, cloneEvent(&en.ev))
		}
		en.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}

		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out
}
