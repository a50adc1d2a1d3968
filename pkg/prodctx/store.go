// Package prodctx keeps the live production context of every piece of equipment.
//
// Reads are lock-free: each equipment has an atomically swapped immutable
// context. Mutations for one equipment are serialized by a per-key mutex
// and persisted before they become visible.
package prodctx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mfreeman451/lineradar/pkg/models"
	"go.uber.org/zap"
)

const (
	ReasonProduction = "production"
	ReasonRefresh    = "refresh"

	SourceDerivation = "derivation"
	SourceAPI        = "api"
)

// ChangeNotice is the payload of context_changed events.
type ChangeNotice struct {
	Context models.ProductionContext `json:"context"`
	Reason  string                   `json:"reason"`
	Source  string                   `json:"source"`
}

type entry struct {
	mu      sync.Mutex
	cur     atomic.Pointer[models.ProductionContext]
	history []models.ContextHistory // ring, guarded by mu
	next    int
}

type Store struct {
	repo         Repository
	publisher    Publisher
	mirror       Mirror
	lines        map[string]string // known equipment -> default line
	historyLimit int
	now          func() time.Time
	logger       *zap.Logger

	entries sync.Map // equipment code -> *entry
}

// Config wires a Store. Repo, Publisher and Mirror are optional.
type Config struct {
	Repo         Repository
	Publisher    Publisher
	Mirror       Mirror
	Lines        map[string]string
	HistoryLimit int
	Now          func() time.Time
	Logger       *zap.Logger
}

func NewStore(cfg Config) *Store {
	s := &Store{
		repo:         cfg.Repo,
		publisher:    cfg.Publisher,
		mirror:       cfg.Mirror,
		lines:        cfg.Lines,
		historyLimit: cfg.HistoryLimit,
		now:          cfg.Now,
		logger:       cfg.Logger,
	}

	if s.historyLimit <= 0 {
		s.historyLimit = 100
	}

	if s.now == nil {
		s.now = time.Now
	}

	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	return s
}

// Load warms the store from persistence.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	all, err := s.repo.LoadContexts(ctx)
	if err != nil {
		return fmt.Errorf("load contexts: %w", err)
	}

	for i := range all {
		pc := all[i]
		s.entry(pc.EquipmentCode).cur.Store(&pc)
	}

	s.logger.Info("production contexts loaded", zap.Int("count", len(all)))

	return nil
}

func (s *Store) defaultContext(code string) *models.ProductionContext {
	return &models.ProductionContext{
		EquipmentCode: code,
		LineID:        s.lines[code],
		Changeover:    models.ChangeoverNone,
	}
}

func (s *Store) entry(code string) *entry {
	if e, ok := s.entries.Load(code); ok {
		return e.(*entry)
	}

	fresh := &entry{}
	fresh.cur.Store(s.defaultContext(code))

	e, _ := s.entries.LoadOrStore(code, fresh)

	return e.(*entry)
}

// Get returns the current context, creating an empty one on first use.
func (s *Store) Get(code string) models.ProductionContext {
	return *s.entry(code).cur.Load()
}

// Known reports whether code is a configured equipment. With no
// configured equipment every code is accepted.
func (s *Store) Known(code string) bool {
	if len(s.lines) == 0 {
		return true
	}

	_, ok := s.lines[code]

	return ok
}

// Apply performs a partial update and returns the committed context.
func (s *Store) Apply(ctx context.Context, code string, change models.ContextChange) (models.ProductionContext, error) {
	if !s.Known(code) {
		return models.ProductionContext{}, fmt.Errorf("%w: %s", ErrUnknownEquipment, code)
	}

	if change.Empty() {
		return s.Get(code), ErrEmptyChange
	}

	if change.Changeover != nil && !change.Changeover.Valid() {
		return s.Get(code), fmt.Errorf("%w: %s", ErrInvalidChangeover, *change.Changeover)
	}

	e := s.entry(code)

	e.mu.Lock()
	defer e.mu.Unlock()

	cur := *e.cur.Load()

	if change.ExpectedVersion != 0 && change.ExpectedVersion != cur.Version {
		if fresh, err := s.reload(ctx, code, e); err == nil {
			cur = fresh
		}

		if change.ExpectedVersion != cur.Version {
			return cur, fmt.Errorf("%w: %s expected version %d, have %d",
				ErrContextWriteConflict, code, change.ExpectedVersion, cur.Version)
		}
	}

	next, hist := s.build(code, cur, &change)

	if s.repo != nil {
		err := s.repo.SaveContext(ctx, next, cur.Version, hist)
		if errors.Is(err, models.ErrVersionConflict) {
			s.logger.Debug("context version conflict, retrying", zap.String("equipment", code))

			fresh, rerr := s.reload(ctx, code, e)
			if rerr != nil {
				return cur, fmt.Errorf("%w: %s: %w", ErrContextWriteConflict, code, rerr)
			}

			if change.ExpectedVersion != 0 && change.ExpectedVersion != fresh.Version {
				return fresh, fmt.Errorf("%w: %s", ErrContextWriteConflict, code)
			}

			cur = fresh
			next, hist = s.build(code, cur, &change)
			err = s.repo.SaveContext(ctx, next, cur.Version, hist)

			if errors.Is(err, models.ErrVersionConflict) {
				return cur, fmt.Errorf("%w: %s", ErrContextWriteConflict, code)
			}
		}

		if err != nil {
			return cur, fmt.Errorf("persist context %s: %w", code, err)
		}
	}

	e.cur.Store(&next)
	e.append(hist, s.historyLimit)

	s.afterCommit(ctx, next, change.Reason, change.Source)

	return next, nil
}

func (s *Store) build(
	code string, cur models.ProductionContext, change *models.ContextChange) (models.ProductionContext, models.ContextHistory) {
	now := s.now()

	next := change.ApplyTo(cur)
	next.EquipmentCode = code
	next.Version = cur.Version + 1
	next.UpdatedAt = now

	if next.Changeover == "" {
		next.Changeover = models.ChangeoverNone
	}

	hist := models.ContextHistory{
		EquipmentCode: code,
		Version:       next.Version,
		Reason:        change.Reason,
		Source:        change.Source,
		Snapshot:      next,
		RecordedAt:    now,
	}

	return next, hist
}

// reload re-reads persistence into the local view. Caller holds e.mu.
func (s *Store) reload(ctx context.Context, code string, e *entry) (models.ProductionContext, error) {
	if s.repo == nil {
		return *e.cur.Load(), nil
	}

	pc, err := s.repo.GetContext(ctx, code)
	if errors.Is(err, models.ErrNotFound) {
		return *e.cur.Load(), nil
	}

	if err != nil {
		return models.ProductionContext{}, err
	}

	e.cur.Store(&pc)

	return pc, nil
}

func (s *Store) afterCommit(ctx context.Context, pc models.ProductionContext, reason, source string) {
	if s.mirror != nil {
		if err := s.mirror.PutContext(ctx, pc); err != nil {
			s.logger.Warn("mirror context", zap.String("equipment", pc.EquipmentCode), zap.Error(err))
		}
	}

	if s.publisher != nil {
		s.publisher.Publish(models.Event{
			Type:      models.EventContextChanged,
			Equipment: pc.EquipmentCode,
			Line:      pc.LineID,
			Payload:   ChangeNotice{Context: pc, Reason: reason, Source: source},
			Timestamp: pc.UpdatedAt,
		})
	}
}

// RecordProduction adds produced units and, when efficiency is not nil,
// stores the latest efficiency.
func (s *Store) RecordProduction(
	ctx context.Context, code string, delta int64, efficiency *float64) (models.ProductionContext, error) {
	return s.Apply(ctx, code, models.ContextChange{
		QuantityDelta: delta,
		Efficiency:    efficiency,
		Reason:        ReasonProduction,
		Source:        SourceDerivation,
	})
}

// History returns up to limit entries, newest first.
func (s *Store) History(ctx context.Context, code string, limit int) ([]models.ContextHistory, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}

	if s.repo != nil {
		return s.repo.ListHistory(ctx, code, limit)
	}

	v, ok := s.entries.Load(code)
	if !ok {
		return nil, nil
	}

	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.history)
	if limit < n {
		n = limit
	}

	out := make([]models.ContextHistory, 0, n)

	for i := 0; i < n; i++ {
		idx := (e.next - 1 - i + len(e.history)) % len(e.history)
		out = append(out, e.history[idx])
	}

	return out, nil
}

// Codes lists every equipment with a context.
func (s *Store) Codes() []string {
	var codes []string

	s.entries.Range(func(k, _ interface{}) bool {
		codes = append(codes, k.(string))
		return true
	})

	return codes
}

func (e *entry) append(h models.ContextHistory, limit int) {
	if len(e.history) < limit {
		e.history = append(e.history, h)
		e.next = len(e.history) % limit

		return
	}

	e.history[e.next] = h
	e.next = (e.next + 1) % limit
}
