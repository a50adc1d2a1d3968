package derive

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/mfreeman451/lineradar/pkg/config"
	"github.com/mfreeman451/lineradar/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeOEE_NotStarted(t *testing.T) {
	a, p, q, o := computeOEE(oeeInputs{shiftActive: false, shiftElapsed: time.Hour})
	assert.Nil(t, a)
	assert.Nil(t, p)
	assert.Nil(t, q)
	assert.Nil(t, o)

	_, _, _, o = computeOEE(oeeInputs{shiftActive: true, shiftElapsed: time.Hour, plannedDowntime: time.Hour})
	assert.Nil(t, o, "entire shift planned down")
}

func TestComputeOEE_Values(t *testing.T) {
	a, p, q, o := computeOEE(oeeInputs{
		shiftActive:  true,
		shiftElapsed: 60 * time.Minute,
		runningTime:  45 * time.Minute,
		total:        2000,
		good:         1900,
		idealCycle:   time.Second,
	})

	require.NotNil(t, o)
	assert.InDelta(t, 0.75, *a, 1e-9)
	assert.InDelta(t, 2000.0/2700.0, *p, 1e-9)
	assert.InDelta(t, 0.95, *q, 1e-9)
	assert.InDelta(t, *a**p**q, *o, 1e-12)
}

func TestComputeOEE_ZeroDenominators(t *testing.T) {
	a, p, q, o := computeOEE(oeeInputs{shiftActive: true, shiftElapsed: time.Minute})
	require.NotNil(t, o)
	assert.Zero(t, *a)
	assert.Zero(t, *p, "no running time")
	assert.Equal(t, 1.0, *q, "no output counts as perfect quality")
	assert.Zero(t, *o)
}

func TestComputeOEE_RandomInputsStayInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(3<<32 | 5))

	for i := 0; i < 5000; i++ {
		total := rng.Int63n(10000)
		in := oeeInputs{
			shiftActive:     rng.Intn(10) > 0,
			shiftElapsed:    time.Duration(rng.Int63n(int64(8 * time.Hour))),
			plannedDowntime: time.Duration(rng.Int63n(int64(time.Hour))),
			runningTime:     time.Duration(rng.Int63n(int64(10 * time.Hour))),
			total:           total,
			good:            rng.Int63n(total + 2),
			idealCycle:      time.Duration(rng.Int63n(int64(5 * time.Second))),
		}

		a, p, q, o := computeOEE(in)
		if o == nil {
			assert.Nil(t, a)
			continue
		}

		for _, v := range []float64{*a, *p, *q, *o} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}

		assert.InDelta(t, *a**p**q, *o, 1e-12)
	}
}

func TestIdealCycleTime(t *testing.T) {
	assert.Equal(t, 2*time.Second, idealCycleTime(2*time.Second, 60, 30))
	assert.Equal(t, time.Second, idealCycleTime(0, 60, 30), "context target speed")
	assert.Equal(t, 2*time.Second, idealCycleTime(0, 0, 30))
	assert.Zero(t, idealCycleTime(0, 0, 0))
}

func TestComputeOEE_EngineWritesEfficiencyOnChange(t *testing.T) {
	now := shiftStart.Add(10 * time.Minute)
	clock := func() time.Time { return now }

	pub := &capturePublisher{}
	writer := &efficiencyWriter{}

	e := New([]config.EquipmentConfig{bag1()}, nil,
		WithPublisher(pub), WithContextWriter(writer), WithClock(clock))
	ctx := context.Background()

	assert.Empty(t, e.ComputeOEE(ctx), "nothing seen yet")

	require.NoError(t, e.Process(ctx, metric(shiftStart, true, withCounts(0, 0))))
	require.NoError(t, e.Process(ctx, metric(shiftStart.Add(5*time.Minute), true, withCounts(300, 300))))

	snaps := e.ComputeOEE(ctx)
	require.Len(t, snaps, 1)

	s := snaps[0]
	require.True(t, s.Started())
	assert.InDelta(t, 1.0, *s.Availability, 1e-9)
	assert.InDelta(t, 0.5, *s.Performance, 1e-9, "300 units at 1s ideal over 10 minutes")
	assert.InDelta(t, 0.5, *s.OEE, 1e-9)
	assert.Equal(t, "S1", s.ShiftID)

	require.Len(t, pub.ofType(models.EventOEEUpdate), 1)
	require.Len(t, writer.efficiencies, 1)
	assert.InDelta(t, 0.5, writer.efficiencies[0], 1e-9)

	e.ComputeOEE(ctx)
	assert.Len(t, writer.efficiencies, 1, "unchanged efficiency is not rewritten")

	last, ok := e.LastOEE("BAG1")
	require.True(t, ok)
	assert.Equal(t, s.OEE, last.OEE)
}

func TestComputeOEE_PlannedDowntimeExcluded(t *testing.T) {
	now := shiftStart.Add(10 * time.Minute)
	e := New([]config.EquipmentConfig{bag1()}, nil, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	planned := models.ProductionContext{ShiftID: "S1", ShiftStart: shiftStart, PlannedStop: true}

	require.NoError(t, e.Process(ctx, metric(shiftStart, true)))
	require.NoError(t, e.Process(ctx, metric(shiftStart.Add(5*time.Minute), false, withContext(planned))))

	snaps := e.ComputeOEE(ctx)
	require.Len(t, snaps, 1)
	assert.Equal(t, 5*time.Minute, snaps[0].PlannedTime)
	assert.InDelta(t, 1.0, *snaps[0].Availability, 1e-9)
}

type efficiencyWriter struct {
	efficiencies []float64
}

func (w *efficiencyWriter) RecordProduction(_ context.Context, _ string, _ int64, eff *float64) (models.ProductionContext, error) {
	if eff != nil {
		w.efficiencies = append(w.efficiencies, *eff)
	}

	return models.ProductionContext{}, nil
}
