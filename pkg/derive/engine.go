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

// Package derive turns enriched metrics into run state, downtime, OEE and
// alert triggers.
package derive

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mfreeman451/lineradar/pkg/config"
	"github.com/mfreeman451/lineradar/pkg/metrics"
	"github.com/mfreeman451/lineradar/pkg/models"
	"go.uber.org/zap"
)

const (
	// ReportedBy marks triggers raised by the engine.
	ReportedBy = "derivation"

	CodeDowntime     = "UNPLANNED_DOWNTIME"
	CodeLowQuality   = "QUALITY_BELOW_TARGET"
	ReasonChangeover = "changeover"
	ReasonPlanned    = "planned_stop"

	// minQualitySample is the shift count below which quality is not judged.
	minQualitySample = 20

	defaultOEEInterval = 5 * time.Second
)

// lane is the derivation state of one equipment.
type lane struct {
	mu sync.Mutex
	eq config.EquipmentConfig

	state      models.RunState
	downtime   *models.DowntimeEvent
	faults     uint64
	qualityLow bool
	lastSeen   time.Time
	ctx        models.ProductionContext

	shiftID    string
	shiftStart time.Time

	hasTotal, hasGood   bool
	lastTotal, lastGood int64
	shiftTotal          int64
	shiftGood           int64

	runningTime     time.Duration
	runningSince    time.Time
	plannedDowntime time.Duration
	plannedSince    time.Time // zero unless a planned downtime is open

	lastOEE        *models.OEESnapshot
	lastEfficiency *float64
}

type Engine struct {
	lanes      map[string]*lane
	priorities map[string]models.Priority

	alerter     Alerter
	ctxWriter   ContextWriter
	downtime    DowntimeStore
	publisher   Publisher
	oeeSink     OEESink
	recorder    *metrics.Recorder
	logger      *zap.Logger
	now         func() time.Time
	oeeInterval time.Duration
}

type Option func(*Engine)

func WithAlerter(a Alerter) Option { return func(e *Engine) { e.alerter = a } }

func WithContextWriter(w ContextWriter) Option { return func(e *Engine) { e.ctxWriter = w } }

func WithDowntimeStore(s DowntimeStore) Option { return func(e *Engine) { e.downtime = s } }

func WithPublisher(p Publisher) Option { return func(e *Engine) { e.publisher = p } }

func WithOEESink(s OEESink) Option { return func(e *Engine) { e.oeeSink = s } }

func WithRecorder(r *metrics.Recorder) Option { return func(e *Engine) { e.recorder = r } }

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithOEEInterval(d time.Duration) Option { return func(e *Engine) { e.oeeInterval = d } }

// New builds an engine for the given equipment. faultPriorities maps a
// fault code to a priority name; entries were validated with the config.
func New(equipment []config.EquipmentConfig, faultPriorities map[string]string, opts ...Option) *Engine {
	e := &Engine{
		lanes:       make(map[string]*lane, len(equipment)),
		priorities:  make(map[string]models.Priority, len(faultPriorities)),
		logger:      zap.NewNop(),
		now:         time.Now,
		oeeInterval: defaultOEEInterval,
	}

	for _, eq := range equipment {
		e.lanes[eq.Code] = &lane{eq: eq, state: models.StateUnknown}
	}

	for code, p := range faultPriorities {
		e.priorities[code] = models.Priority(p)
	}

	for _, o := range opts {
		o(e)
	}

	return e
}

// Recover adopts downtime left open by a previous process.
func (e *Engine) Recover(ctx context.Context) error {
	if e.downtime == nil {
		return nil
	}

	for code, l := range e.lanes {
		d, err := e.downtime.OpenDowntime(ctx, code)
		if err != nil {
			return fmt.Errorf("open downtime %s: %w", code, err)
		}

		if d == nil {
			continue
		}

		l.mu.Lock()
		l.downtime = d

		if d.Category == models.DowntimePlanned {
			l.plannedSince = d.Start
		}

		l.mu.Unlock()

		e.logger.Info("adopted open downtime", zap.String("equipment", code), zap.String("downtime_id", d.ID))
	}

	return nil
}

// Process runs one cycle for one equipment. A panic inside the cycle is
// recovered and returned as ErrCyclePanic.
func (e *Engine) Process(ctx context.Context, m *models.EnrichedMetric) (err error) {
	l, ok := e.lanes[m.EquipmentCode]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEquipment, m.EquipmentCode)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrCyclePanic, m.EquipmentCode, r)
		}

		if err != nil {
			e.recorder.DeriveError(m.EquipmentCode)
			e.logger.Error("derivation cycle failed", zap.String("equipment", m.EquipmentCode), zap.Error(err))
		}
	}()

	produced := e.cycle(ctx, l, m)

	if produced > 0 && e.ctxWriter != nil {
		if _, werr := e.ctxWriter.RecordProduction(ctx, l.eq.Code, produced, nil); werr != nil {
			e.logger.Warn("record production", zap.String("equipment", l.eq.Code), zap.Error(werr))
		}
	}

	return nil
}

// cycle applies m to the lane under its lock and returns the units
// produced since the previous reading.
func (e *Engine) cycle(ctx context.Context, l *lane, m *models.EnrichedMetric) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	at := m.Timestamp
	if at.IsZero() {
		at = e.now()
	}

	l.ctx = m.Context
	l.rollShift(&m.Context, at)

	var produced int64

	if m.Usable() {
		produced = l.count(m)
		e.transition(ctx, l, m, at)
		e.checkFaults(ctx, l, m, at)
		e.checkQuality(ctx, l, m, at)
	}

	l.lastSeen = at

	e.publish(models.EventProductionUpdate, m.EquipmentCode, m.LineID, at, models.ProductionUpdate{
		EquipmentCode:  m.EquipmentCode,
		State:          l.state,
		Speed:          m.Speed,
		ShiftTotal:     l.shiftTotal,
		ShiftGood:      l.shiftGood,
		ActualQuantity: m.Context.ActualQuantity,
		ActiveFaults:   m.ActiveFaults,
		Stale:          m.Stale,
		Partial:        m.Partial,
		MissingTags:    m.MissingTags,
		JobID:          m.Context.JobID,
		Timestamp:      at,
	})

	return produced
}

// rollShift resets the shift accumulators when the context moves to a new shift.
func (l *lane) rollShift(pc *models.ProductionContext, at time.Time) {
	if pc.ShiftID == l.shiftID && pc.ShiftStart.Equal(l.shiftStart) {
		return
	}

	l.shiftID = pc.ShiftID
	l.shiftStart = pc.ShiftStart
	l.shiftTotal, l.shiftGood = 0, 0
	l.runningTime, l.plannedDowntime = 0, 0
	l.qualityLow = false
	l.lastEfficiency = nil

	anchor := pc.ShiftStart
	if anchor.IsZero() || anchor.After(at) {
		anchor = at
	}

	if l.state == models.StateRunning && l.runningSince.Before(anchor) {
		l.runningSince = anchor
	}

	if !l.plannedSince.IsZero() && l.plannedSince.Before(anchor) {
		l.plannedSince = anchor
	}
}

// count accumulates counter deltas and returns the total delta. A counter
// that went backwards rolled over, so the delta is the new value.
func (l *lane) count(m *models.EnrichedMetric) int64 {
	var totalDelta, goodDelta int64

	if m.Total != nil {
		totalDelta = delta(l.hasTotal, l.lastTotal, *m.Total)
		l.lastTotal, l.hasTotal = *m.Total, true
	}

	switch {
	case m.Good != nil:
		goodDelta = delta(l.hasGood, l.lastGood, *m.Good)
		l.lastGood, l.hasGood = *m.Good, true
	case l.eq.Tags.GoodCount == "" && l.eq.Tags.RejectCount == "":
		goodDelta = totalDelta
	}

	l.shiftTotal += totalDelta
	l.shiftGood += goodDelta

	return totalDelta
}

func delta(has bool, last, cur int64) int64 {
	if !has {
		return 0
	}

	if cur < last {
		return cur
	}

	return cur - last
}

func (e *Engine) transition(ctx context.Context, l *lane, m *models.EnrichedMetric, at time.Time) {
	running, known := m.IsRunning()
	if !known {
		return
	}

	switch l.state {
	case models.StateUnknown:
		if running {
			if l.downtime != nil {
				e.closeDowntime(ctx, l, at)
			}

			l.state = models.StateRunning
			l.runningSince = at

			return
		}

		// the stop instant is unknown, so no downtime is opened
		l.state = models.StateStopped
		if l.downtime != nil {
			l.downtime.StoppedCycles++
		}
	case models.StateRunning:
		if running {
			return
		}

		l.runningTime += nonNegative(at.Sub(l.runningSince))
		l.state = models.StateStopped
		e.openDowntime(ctx, l, m, at)
	case models.StateStopped:
		if !running {
			if l.downtime != nil {
				l.downtime.StoppedCycles++
			}

			return
		}

		if l.downtime != nil {
			e.closeDowntime(ctx, l, at)
		}

		l.state = models.StateRunning
		l.runningSince = at
	}
}

func (e *Engine) openDowntime(ctx context.Context, l *lane, m *models.EnrichedMetric, at time.Time) {
	d := &models.DowntimeEvent{
		ID:            uuid.NewString(),
		EquipmentCode: l.eq.Code,
		LineID:        m.LineID,
		Start:         at,
		Category:      models.DowntimeUnplanned,
		StoppedCycles: 1,
	}

	switch {
	case m.Context.Changeover == models.ChangeoverInProgress:
		d.Category = models.DowntimePlanned
		d.ReasonCode = ReasonChangeover
	case m.Context.PlannedStop || (m.PlannedStop != nil && *m.PlannedStop):
		d.Category = models.DowntimePlanned
		d.ReasonCode = ReasonPlanned
	case len(m.ActiveFaults) > 0:
		d.ReasonCode = e.classify(&l.eq, m.ActiveFaults[0]).Code
	}

	if d.Category == models.DowntimePlanned {
		l.plannedSince = at
	}

	l.downtime = d

	e.saveDowntime(ctx, d)
	e.publish(models.EventDowntime, l.eq.Code, d.LineID, at,
		models.DowntimePayload{Phase: models.DowntimeStarted, Downtime: *d})
}

func (e *Engine) closeDowntime(ctx context.Context, l *lane, at time.Time) {
	d := l.downtime
	l.downtime = nil

	end := at
	d.End = &end
	d.Duration = nonNegative(end.Sub(d.Start))

	if d.Category == models.DowntimePlanned && !l.plannedSince.IsZero() {
		l.plannedDowntime += nonNegative(at.Sub(l.plannedSince))
		l.plannedSince = time.Time{}
	}

	e.saveDowntime(ctx, d)
	e.publish(models.EventDowntime, l.eq.Code, d.LineID, at,
		models.DowntimePayload{Phase: models.DowntimeEnded, Downtime: *d})

	if d.Category == models.DowntimeUnplanned && d.StoppedCycles > l.eq.DowntimeAlertCycles {
		e.trigger(ctx, models.AndonTrigger{
			EquipmentCode: l.eq.Code,
			LineID:        d.LineID,
			Type:          models.AndonDowntime,
			Code:          CodeDowntime,
			Description: fmt.Sprintf("unplanned downtime of %s (%d cycles)",
				d.Duration.Round(time.Second), d.StoppedCycles),
			Priority: l.eq.DowntimeAlertPriority,
			At:       at,
		})
	}
}

func (e *Engine) saveDowntime(ctx context.Context, d *models.DowntimeEvent) {
	if e.downtime == nil {
		return
	}

	if err := e.downtime.SaveDowntime(ctx, *d); err != nil {
		e.logger.Warn("persist downtime", zap.String("equipment", d.EquipmentCode),
			zap.String("downtime_id", d.ID), zap.Error(err))
	}
}

// checkFaults raises a trigger for every fault bit that went from 0 to 1.
func (e *Engine) checkFaults(ctx context.Context, l *lane, m *models.EnrichedMetric, at time.Time) {
	if m.FaultWord == nil {
		return
	}

	rising := *m.FaultWord &^ l.faults
	l.faults = *m.FaultWord

	for bit := 0; rising != 0; bit++ {
		if rising&1 == 1 {
			fb := e.classify(&l.eq, bit)

			e.trigger(ctx, models.AndonTrigger{
				EquipmentCode: l.eq.Code,
				LineID:        m.LineID,
				Type:          fb.Type,
				Code:          fb.Code,
				Description:   fb.Description,
				Priority:      fb.Priority,
				At:            at,
			})
		}

		rising >>= 1
	}
}

// classify resolves a fault bit: equipment layout first, then the global
// fault priority table, then high.
func (e *Engine) classify(eq *config.EquipmentConfig, bit int) config.FaultBit {
	fb, ok := eq.FaultBit(bit)
	if !ok || fb.Code == "" {
		fb.Code = fmt.Sprintf("BIT%d", bit)
	}

	if fb.Description == "" {
		fb.Description = fmt.Sprintf("fault bit %d set", bit)
	}

	if fb.Type == "" {
		fb.Type = models.AndonFault
	}

	if fb.Priority == "" {
		fb.Priority = e.priorities[fb.Code]
	}

	if fb.Priority == "" {
		fb.Priority = models.PriorityHigh
	}

	return fb
}

// checkQuality raises one trigger per downward crossing of the quality target.
func (e *Engine) checkQuality(ctx context.Context, l *lane, m *models.EnrichedMetric, at time.Time) {
	target := l.eq.Targets.Quality
	if target <= 0 || l.shiftTotal < minQualitySample {
		return
	}

	q := float64(l.shiftGood) / float64(l.shiftTotal)

	switch {
	case q >= target:
		l.qualityLow = false
	case !l.qualityLow:
		l.qualityLow = true

		e.trigger(ctx, models.AndonTrigger{
			EquipmentCode: l.eq.Code,
			LineID:        m.LineID,
			Type:          models.AndonQuality,
			Code:          CodeLowQuality,
			Description:   fmt.Sprintf("shift quality %.1f%% below target %.1f%%", q*100, target*100),
			Priority:      models.PriorityMedium,
			At:            at,
		})
	}
}

func (e *Engine) trigger(ctx context.Context, t models.AndonTrigger) {
	if e.alerter == nil {
		return
	}

	t.ReportedBy = ReportedBy

	ev, created, err := e.alerter.Trigger(ctx, t)
	if err != nil {
		e.recorder.DeriveError(t.EquipmentCode)
		e.logger.Error("andon trigger failed", zap.String("equipment", t.EquipmentCode),
			zap.String("code", t.Code), zap.Error(err))

		return
	}

	if created {
		e.logger.Info("andon raised", zap.String("equipment", t.EquipmentCode),
			zap.String("andon_id", ev.ID), zap.String("type", string(t.Type)),
			zap.String("priority", string(t.Priority)))
	}
}

func (e *Engine) publish(t models.EventType, code, line string, at time.Time, payload interface{}) {
	if e.publisher == nil {
		return
	}

	e.publisher.Publish(models.Event{Type: t, Equipment: code, Line: line, Payload: payload, Timestamp: at})
}

// ComputeOEE snapshots every equipment seen so far, publishes the
// snapshots and writes changed efficiencies back to the context.
func (e *Engine) ComputeOEE(ctx context.Context) []models.OEESnapshot {
	now := e.now()

	codes := make([]string, 0, len(e.lanes))
	for code := range e.lanes {
		codes = append(codes, code)
	}

	sort.Strings(codes)

	out := make([]models.OEESnapshot, 0, len(codes))

	for _, code := range codes {
		snap, eff, ok := e.snapshotLane(e.lanes[code], now)
		if !ok {
			continue
		}

		out = append(out, snap)

		e.publish(models.EventOEEUpdate, code, snap.LineID, now, snap)

		if e.oeeSink != nil {
			if err := e.oeeSink.PutOEE(ctx, snap); err != nil {
				e.logger.Warn("mirror oee", zap.String("equipment", code), zap.Error(err))
			}
		}

		if eff != nil && e.ctxWriter != nil {
			if _, err := e.ctxWriter.RecordProduction(ctx, code, 0, eff); err != nil {
				e.logger.Warn("record efficiency", zap.String("equipment", code), zap.Error(err))
			}
		}
	}

	return out
}

// snapshotLane returns the lane's OEE at now and the efficiency to write
// back, nil when unchanged.
func (e *Engine) snapshotLane(l *lane, now time.Time) (models.OEESnapshot, *float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lastSeen.IsZero() {
		return models.OEESnapshot{}, nil, false
	}

	running := l.runningTime
	if l.state == models.StateRunning {
		running += nonNegative(now.Sub(l.runningSince))
	}

	planned := l.plannedDowntime
	if !l.plannedSince.IsZero() {
		planned += nonNegative(now.Sub(l.plannedSince))
	}

	in := oeeInputs{
		shiftActive:     l.ctx.ShiftActive(now),
		shiftElapsed:    nonNegative(now.Sub(l.shiftStart)),
		plannedDowntime: planned,
		runningTime:     running,
		total:           l.shiftTotal,
		good:            l.shiftGood,
		idealCycle:      idealCycleTime(time.Duration(l.eq.IdealCycleTime), l.ctx.TargetSpeed, l.eq.TargetSpeed),
	}

	line := l.ctx.LineID
	if line == "" {
		line = l.eq.LineID
	}

	snap := snapshotOf(l.eq.Code, line, l.shiftID, now, in)
	l.lastOEE = &snap

	if snap.OEE == nil || (l.lastEfficiency != nil && *l.lastEfficiency == *snap.OEE) {
		return snap, nil, true
	}

	eff := *snap.OEE
	l.lastEfficiency = &eff

	return snap, &eff, true
}

// Run computes OEE on the configured cadence until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.oeeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.ComputeOEE(ctx)
		}
	}
}

// State returns the run state and the open downtime of an equipment.
func (e *Engine) State(code string) (models.RunState, *models.DowntimeEvent, bool) {
	l, ok := e.lanes[code]
	if !ok {
		return models.StateUnknown, nil, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.downtime == nil {
		return l.state, nil, true
	}

	d := *l.downtime

	return l.state, &d, true
}

// LastOEE returns the most recent snapshot computed for code.
func (e *Engine) LastOEE(code string) (models.OEESnapshot, bool) {
	l, ok := e.lanes[code]
	if !ok {
		return models.OEESnapshot{}, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lastOEE == nil {
		return models.OEESnapshot{}, false
	}

	return *l.lastOEE, true
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}

	return d
}
