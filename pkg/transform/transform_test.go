package transform

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/mfreeman451/lineradar/pkg/config"
	"github.com/mfreeman451/lineradar/pkg/models"
	"github.com/mfreeman451/lineradar/pkg/tagcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func bagger() *config.EquipmentConfig {
	return &config.EquipmentConfig{
		Code:     "BAG1",
		LineID:   "L1",
		DeviceID: "plc-1",
		Tags: config.TagMap{
			Running:     "run",
			FaultWord:   "faults",
			TotalCount:  "total",
			GoodCount:   "good",
			RejectCount: "reject",
		},
	}
}

func snapshot(tags map[string]interface{}) *tagcache.Snapshot {
	s := &tagcache.Snapshot{
		DeviceID:  "plc-1",
		UpdatedAt: t0,
		Healthy:   true,
		Sequence:  9,
		Tags:      make(map[string]models.TagValue, len(tags)),
	}

	for k, v := range tags {
		s.Tags[k] = models.TagValue{Value: v, Timestamp: t0}
	}

	return s
}

func TestTransform_Complete(t *testing.T) {
	pc := &models.ProductionContext{EquipmentCode: "BAG1", JobID: "J-1"}

	m := Transform(bagger(), snapshot(map[string]interface{}{
		"run":    int32(1),
		"faults": uint64(0b1001),
		"total":  uint64(120),
		"good":   "115",
		"reject": 5.0,
	}), pc)

	assert.False(t, m.Partial)
	assert.Empty(t, m.MissingTags)
	assert.Equal(t, "L1", m.LineID)
	assert.Equal(t, uint64(9), m.Sequence)
	assert.Equal(t, "J-1", m.Context.JobID)

	running, known := m.IsRunning()
	assert.True(t, known)
	assert.True(t, running)

	assert.Equal(t, []int{0, 3}, m.ActiveFaults)
	assert.Equal(t, int64(120), *m.Total)
	assert.Equal(t, int64(115), *m.Good)
	assert.Equal(t, int64(5), *m.Reject)
	assert.Nil(t, m.Speed, "no previous counter sample")
}

func TestTransform_MissingAndMalformed(t *testing.T) {
	m := Transform(bagger(), snapshot(map[string]interface{}{
		"run":    "maybe",
		"faults": -3,
		"total":  math.NaN(),
	}), &models.ProductionContext{})

	assert.True(t, m.Partial)
	assert.Equal(t, []string{RoleFaultWord, RoleGoodCount, RoleRejectCount, RoleRunning, RoleTotalCount}, m.MissingTags)

	_, known := m.IsRunning()
	assert.False(t, known)
	assert.Nil(t, m.FaultWord)
	assert.Nil(t, m.Total)
}

func TestTransform_UnconfiguredOptionalRolesAreNotMissing(t *testing.T) {
	eq := &config.EquipmentConfig{Code: "PAL1", Tags: config.TagMap{Running: "run"}}

	m := Transform(eq, snapshot(map[string]interface{}{"run": false}), nil)

	assert.False(t, m.Partial)
	assert.Equal(t, "PAL1", m.Context.EquipmentCode)
}

func TestTransform_GoodDerivedFromReject(t *testing.T) {
	eq := bagger()
	eq.Tags.GoodCount = ""

	m := Transform(eq, snapshot(map[string]interface{}{
		"run": true, "faults": 0, "total": 50, "reject": 4,
	}), &models.ProductionContext{})

	require.NotNil(t, m.Good)
	assert.Equal(t, int64(46), *m.Good)
	assert.Nil(t, m.ActiveFaults)
}

func TestTransform_SpeedFromCounter(t *testing.T) {
	eq := &config.EquipmentConfig{Code: "BAG1", Tags: config.TagMap{Running: "run", TotalCount: "total"}}

	snap := snapshot(map[string]interface{}{"run": true})
	snap.Tags["total"] = models.TagValue{
		Value: uint64(130), Timestamp: t0,
		PrevValue: uint64(100), PrevTimestamp: t0.Add(-30 * time.Second),
	}

	m := Transform(eq, snap, &models.ProductionContext{})
	require.NotNil(t, m.Speed)
	assert.InDelta(t, 60.0, *m.Speed, 1e-9)

	// rollover
	snap.Tags["total"] = models.TagValue{Value: 3, Timestamp: t0, PrevValue: 65530, PrevTimestamp: t0.Add(-time.Second)}
	m = Transform(eq, snap, &models.ProductionContext{})
	assert.Nil(t, m.Speed)
}

func TestTransform_SpeedTagWins(t *testing.T) {
	eq := &config.EquipmentConfig{Code: "BAG1", Tags: config.TagMap{Running: "run", Speed: "spd", PlannedStop: "ps"}}

	m := Transform(eq, snapshot(map[string]interface{}{"run": true, "spd": float32(42.5), "ps": "true"}), nil)
	require.NotNil(t, m.Speed)
	assert.InDelta(t, 42.5, *m.Speed, 1e-6)
	require.NotNil(t, m.PlannedStop)
	assert.True(t, *m.PlannedStop)
}

func TestTransform_NeverPanics(t *testing.T) {
	values := []interface{}{
		nil, true, "", "abc", "12", "0x10", -1, int8(-5), uint16(7), 3.7, math.Inf(1),
		[]byte("9"), struct{}{}, []int{1}, map[string]int{}, time.Second,
	}
	names := []string{"run", "faults", "total", "good", "reject", "spd", "ps", "junk"}

	eq := bagger()
	eq.Tags.Speed = "spd"
	eq.Tags.PlannedStop = "ps"

	rng := rand.New(rand.NewSource(1<<32 | 2))

	for i := 0; i < 2000; i++ {
		tags := map[string]interface{}{}

		for _, n := range names {
			if rng.Intn(3) == 0 {
				continue
			}

			tags[n] = values[rng.Intn(len(values))]
		}

		snap := snapshot(tags)
		if rng.Intn(2) == 0 {
			for k, tv := range snap.Tags {
				tv.PrevValue = values[rng.Intn(len(values))]
				tv.PrevTimestamp = t0.Add(-time.Duration(rng.Intn(3)) * time.Second)
				snap.Tags[k] = tv
			}
		}

		require.NotPanics(t, func() {
			m := Transform(eq, snap, &models.ProductionContext{})
			assert.Equal(t, m.Partial, len(m.MissingTags) > 0)
		})
	}
}
