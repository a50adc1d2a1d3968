package prodctx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mfreeman451/lineradar/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRepo is a versioned in-memory Repository. conflicts makes the next
// SaveContext calls fail as if another writer got in first.
type memRepo struct {
	mu        sync.Mutex
	rows      map[string]models.ProductionContext
	history   []models.ContextHistory
	conflicts int
	saves     int
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[string]models.ProductionContext)}
}

func (r *memRepo) LoadContexts(context.Context) ([]models.ProductionContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.ProductionContext, 0, len(r.rows))
	for _, pc := range r.rows {
		out = append(out, pc)
	}

	return out, nil
}

func (r *memRepo) GetContext(_ context.Context, code string) (models.ProductionContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pc, ok := r.rows[code]
	if !ok {
		return pc, models.ErrNotFound
	}

	return pc, nil
}

func (r *memRepo) SaveContext(_ context.Context, next models.ProductionContext, expected int64, h models.ContextHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.saves++

	if r.conflicts > 0 {
		r.conflicts--
		// simulate a concurrent writer bumping the row
		other := r.rows[next.EquipmentCode]
		other.EquipmentCode = next.EquipmentCode
		other.Version++
		other.OperatorID = "someone-else"
		r.rows[next.EquipmentCode] = other

		return models.ErrVersionConflict
	}

	if r.rows[next.EquipmentCode].Version != expected {
		return models.ErrVersionConflict
	}

	r.rows[next.EquipmentCode] = next
	h.ID = int64(len(r.history) + 1)
	r.history = append(r.history, h)

	return nil
}

func (r *memRepo) ListHistory(_ context.Context, code string, limit int) ([]models.ContextHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.ContextHistory

	for i := len(r.history) - 1; i >= 0 && len(out) < limit; i-- {
		if r.history[i].EquipmentCode == code {
			out = append(out, r.history[i])
		}
	}

	return out, nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []models.Event
}

func (p *capturePublisher) Publish(e models.Event) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, e)

	return 1
}

func (p *capturePublisher) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.events)
}

type failingMirror struct{ calls int }

func (m *failingMirror) PutContext(context.Context, models.ProductionContext) error {
	m.calls++
	return errors.New("redis down")
}

func strPtr(s string) *string { return &s }

func fixedClock() func() time.Time {
	at := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestGet_LazyDefault(t *testing.T) {
	s := NewStore(Config{Lines: map[string]string{"BAG1": "L1"}})

	pc := s.Get("BAG1")
	assert.Equal(t, "BAG1", pc.EquipmentCode)
	assert.Equal(t, "L1", pc.LineID)
	assert.Equal(t, models.ChangeoverNone, pc.Changeover)
	assert.Zero(t, pc.Version)
}

func TestApply_PersistsPublishesAndRecordsHistory(t *testing.T) {
	repo := newMemRepo()
	pub := &capturePublisher{}
	mirror := &failingMirror{}

	s := NewStore(Config{
		Repo: repo, Publisher: pub, Mirror: mirror,
		Lines: map[string]string{"BAG1": "L1"}, Now: fixedClock(),
	})

	pc, err := s.Apply(context.Background(), "BAG1", models.ContextChange{
		JobID: strPtr("J-100"), OperatorID: strPtr("op-7"), Reason: "job start", Source: "api",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), pc.Version)
	assert.Equal(t, "J-100", pc.JobID)
	assert.Equal(t, "L1", pc.LineID)
	assert.Equal(t, pc, s.Get("BAG1"))
	assert.Equal(t, 1, mirror.calls, "mirror failures are logged, not returned")

	require.Equal(t, 1, pub.len())
	ev := pub.events[0]
	assert.Equal(t, models.EventContextChanged, ev.Type)
	assert.Equal(t, "L1", ev.Line)
	assert.Equal(t, "job start", ev.Payload.(ChangeNotice).Reason)

	hist, err := s.History(context.Background(), "BAG1", 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "api", hist[0].Source)
	assert.Equal(t, "J-100", hist[0].Snapshot.JobID)
}

func TestApply_Rejections(t *testing.T) {
	s := NewStore(Config{Lines: map[string]string{"BAG1": "L1"}})
	ctx := context.Background()

	_, err := s.Apply(ctx, "NOPE", models.ContextChange{JobID: strPtr("x")})
	require.ErrorIs(t, err, ErrUnknownEquipment)

	_, err = s.Apply(ctx, "BAG1", models.ContextChange{Reason: "nothing"})
	require.ErrorIs(t, err, ErrEmptyChange)

	bad := models.ChangeoverStatus("paused")
	_, err = s.Apply(ctx, "BAG1", models.ContextChange{Changeover: &bad})
	require.ErrorIs(t, err, ErrInvalidChangeover)

	_, err = s.Apply(ctx, "BAG1", models.ContextChange{JobID: strPtr("x"), ExpectedVersion: 3})
	require.ErrorIs(t, err, ErrContextWriteConflict)
}

func TestApply_ConflictRetriesOnce(t *testing.T) {
	repo := newMemRepo()
	s := NewStore(Config{Repo: repo})
	ctx := context.Background()

	repo.conflicts = 1

	pc, err := s.Apply(ctx, "BAG1", models.ContextChange{JobID: strPtr("J-1")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), pc.Version, "applied on top of the re-read row")
	assert.Equal(t, "someone-else", pc.OperatorID)
	assert.Equal(t, "J-1", pc.JobID)
	assert.Equal(t, 2, repo.saves)

	repo.conflicts = 2

	_, err = s.Apply(ctx, "BAG1", models.ContextChange{JobID: strPtr("J-2")})
	require.ErrorIs(t, err, ErrContextWriteConflict)
	assert.Equal(t, "J-1", s.Get("BAG1").JobID, "failed write is not visible")
}

func TestApply_ExpectedVersionAfterExternalWrite(t *testing.T) {
	repo := newMemRepo()
	s := NewStore(Config{Repo: repo})
	ctx := context.Background()

	_, err := s.Apply(ctx, "BAG1", models.ContextChange{JobID: strPtr("J-1")})
	require.NoError(t, err)

	// another node moves the row to version 2
	repo.rows["BAG1"] = models.ProductionContext{EquipmentCode: "BAG1", JobID: "J-9", Version: 2}

	pc, err := s.Apply(ctx, "BAG1", models.ContextChange{OperatorID: strPtr("op"), ExpectedVersion: 2})
	require.NoError(t, err, "re-read catches up before rejecting")
	assert.Equal(t, int64(3), pc.Version)
	assert.Equal(t, "J-9", pc.JobID)
}

func TestRecordProduction_ConcurrentDeltasAreNotLost(t *testing.T) {
	repo := newMemRepo()
	s := NewStore(Config{Repo: repo, HistoryLimit: 1000})
	ctx := context.Background()

	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := s.RecordProduction(ctx, "BAG1", 2, nil)
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	pc := s.Get("BAG1")
	assert.Equal(t, int64(100), pc.ActualQuantity)
	assert.Equal(t, int64(50), pc.Version)
}

func TestHistory_InMemoryRingNewestFirst(t *testing.T) {
	s := NewStore(Config{HistoryLimit: 3})
	ctx := context.Background()

	for _, job := range []string{"a", "b", "c", "d", "e"} {
		_, err := s.Apply(ctx, "BAG1", models.ContextChange{JobID: strPtr(job)})
		require.NoError(t, err)
	}

	hist, err := s.History(ctx, "BAG1", 0)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, "e", hist[0].Snapshot.JobID)
	assert.Equal(t, "c", hist[2].Snapshot.JobID)

	hist, err = s.History(ctx, "OTHER", 5)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestLoad(t *testing.T) {
	repo := newMemRepo()
	repo.rows["BAG1"] = models.ProductionContext{EquipmentCode: "BAG1", JobID: "J-5", Version: 7}

	s := NewStore(Config{Repo: repo})
	require.NoError(t, s.Load(context.Background()))

	assert.Equal(t, int64(7), s.Get("BAG1").Version)
	assert.Contains(t, s.Codes(), "BAG1")
}
