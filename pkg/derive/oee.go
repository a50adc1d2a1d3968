package derive

import (
	"time"

	"github.com/mfreeman451/lineradar/pkg/models"
)

// oeeInputs are the shift accumulators an OEE snapshot is computed from.
type oeeInputs struct {
	shiftActive     bool
	shiftElapsed    time.Duration
	plannedDowntime time.Duration
	runningTime     time.Duration
	total           int64
	good            int64
	idealCycle      time.Duration // zero when no ideal rate is known
}

// computeOEE returns nil factors when no production has started, that is
// without an active shift or with no planned production time. Otherwise
// every factor is clamped to [0,1] and a zero denominator yields 0.
func computeOEE(in oeeInputs) (a, p, q, oee *float64) {
	planned := in.shiftElapsed - in.plannedDowntime
	if !in.shiftActive || planned <= 0 {
		return nil, nil, nil, nil
	}

	avail := clamp(float64(in.runningTime) / float64(planned))

	var perf float64

	switch {
	case in.runningTime <= 0:
		perf = 0
	case in.idealCycle <= 0:
		perf = 1
	default:
		perf = clamp(float64(in.total) * float64(in.idealCycle) / float64(in.runningTime))
	}

	qual := 1.0
	if in.total > 0 {
		qual = clamp(float64(in.good) / float64(in.total))
	}

	o := avail * perf * qual

	return &avail, &perf, &qual, &o
}

func clamp(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}

	return v
}

// idealCycleTime prefers the configured cycle time, then the context's
// target speed, then the configured target speed (units per minute).
func idealCycleTime(configured time.Duration, ctxSpeed, cfgSpeed float64) time.Duration {
	if configured > 0 {
		return configured
	}

	speed := ctxSpeed
	if speed <= 0 {
		speed = cfgSpeed
	}

	if speed <= 0 {
		return 0
	}

	return time.Duration(float64(time.Minute) / speed)
}

func snapshotOf(code, line, shift string, at time.Time, in oeeInputs) models.OEESnapshot {
	a, p, q, o := computeOEE(in)

	planned := in.shiftElapsed - in.plannedDowntime
	if planned < 0 {
		planned = 0
	}

	return models.OEESnapshot{
		EquipmentCode: code,
		LineID:        line,
		ShiftID:       shift,
		Timestamp:     at,
		Availability:  a,
		Performance:   p,
		Quality:       q,
		OEE:           o,
		RunningTime:   in.runningTime,
		PlannedTime:   planned,
		TotalCount:    in.total,
		GoodCount:     in.good,
	}
}
