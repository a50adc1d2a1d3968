// Package transform joins a device tag snapshot with equipment configuration
// and production context into an EnrichedMetric.
package transform

import (
	"math/bits"
	"sort"

	"github.com/mfreeman451/lineradar/pkg/config"
	"github.com/mfreeman451/lineradar/pkg/models"
	"github.com/mfreeman451/lineradar/pkg/tagcache"
)

// Role names used in MissingTags.
const (
	RoleRunning     = "running"
	RoleFaultWord   = "fault_word"
	RoleTotalCount  = "total_count"
	RoleGoodCount   = "good_count"
	RoleRejectCount = "reject_count"
	RoleSpeed       = "speed"
	RolePlannedStop = "planned_stop"
)

// Transform never fails: roles whose tag is missing or malformed are left
// nil and listed in MissingTags.
func Transform(eq *config.EquipmentConfig, snap *tagcache.Snapshot, pc *models.ProductionContext) models.EnrichedMetric {
	if snap == nil {
		snap = &tagcache.Snapshot{}
	}

	if pc == nil {
		pc = &models.ProductionContext{EquipmentCode: eq.Code}
	}

	m := models.EnrichedMetric{
		EquipmentCode: eq.Code,
		DeviceID:      snap.DeviceID,
		LineID:        eq.LineID,
		Sequence:      snap.Sequence,
		Timestamp:     snap.UpdatedAt,
		Healthy:       snap.Healthy,
		Stale:         snap.Stale,
		Context:       *pc,
		Tags:          make(map[string]interface{}, len(snap.Tags)),
	}

	if pc.LineID != "" {
		m.LineID = pc.LineID
	}

	for name, tv := range snap.Tags {
		m.Tags[name] = tv.Value
	}

	r := reader{tags: snap.Tags, m: &m}

	if v, ok := r.lookup(RoleRunning, eq.Tags.Running, true); ok {
		if b, ok := asBool(v.Value); ok {
			m.Running = &b
		} else {
			r.missing(RoleRunning)
		}
	}

	if v, ok := r.lookup(RoleFaultWord, eq.Tags.FaultWord, false); ok {
		if w, ok := asUint(v.Value); ok {
			m.FaultWord = &w
			m.ActiveFaults = activeBits(w)
		} else {
			r.missing(RoleFaultWord)
		}
	}

	var totalTag models.TagValue

	if v, ok := r.lookup(RoleTotalCount, eq.Tags.TotalCount, false); ok {
		totalTag = v
		m.Total = r.count(RoleTotalCount, v)
	}

	if v, ok := r.lookup(RoleGoodCount, eq.Tags.GoodCount, false); ok {
		m.Good = r.count(RoleGoodCount, v)
	}

	if v, ok := r.lookup(RoleRejectCount, eq.Tags.RejectCount, false); ok {
		m.Reject = r.count(RoleRejectCount, v)
	}

	if m.Good == nil && eq.Tags.GoodCount == "" && m.Total != nil && m.Reject != nil {
		good := *m.Total - *m.Reject
		if good >= 0 {
			m.Good = &good
		}
	}

	if v, ok := r.lookup(RoleSpeed, eq.Tags.Speed, false); ok {
		if f, ok := asFloat(v.Value); ok {
			m.Speed = &f
		} else {
			r.missing(RoleSpeed)
		}
	} else if eq.Tags.Speed == "" && m.Total != nil {
		m.Speed = counterRate(totalTag)
	}

	if v, ok := r.lookup(RolePlannedStop, eq.Tags.PlannedStop, false); ok {
		if b, ok := asBool(v.Value); ok {
			m.PlannedStop = &b
		} else {
			r.missing(RolePlannedStop)
		}
	}

	if len(m.MissingTags) > 0 {
		m.Partial = true
		sort.Strings(m.MissingTags)
	}

	return m
}

type reader struct {
	tags map[string]models.TagValue
	m    *models.EnrichedMetric
}

// lookup returns the tag for a role. An unconfigured optional role is
// silently absent; a configured one that the device did not report is missing.
func (r *reader) lookup(role, tag string, required bool) (models.TagValue, bool) {
	if tag == "" {
		if required {
			r.missing(role)
		}

		return models.TagValue{}, false
	}

	v, ok := r.tags[tag]
	if !ok || v.Value == nil {
		r.missing(role)
		return models.TagValue{}, false
	}

	return v, true
}

func (r *reader) missing(role string) {
	r.m.MissingTags = append(r.m.MissingTags, role)
}

func (r *reader) count(role string, v models.TagValue) *int64 {
	n, ok := asInt(v.Value)
	if !ok || n < 0 {
		r.missing(role)
		return nil
	}

	return &n
}

// counterRate derives units per minute from the previous counter sample.
// A rollover or a repeated timestamp yields nil.
func counterRate(tv models.TagValue) *float64 {
	if !tv.HasPrev() {
		return nil
	}

	cur, ok := asInt(tv.Value)
	if !ok {
		return nil
	}

	prev, ok := asInt(tv.PrevValue)
	if !ok || cur < prev {
		return nil
	}

	dt := tv.Timestamp.Sub(tv.PrevTimestamp)
	if dt <= 0 {
		return nil
	}

	rate := float64(cur-prev) / dt.Minutes()

	return &rate
}

func activeBits(w uint64) []int {
	if w == 0 {
		return nil
	}

	out := make([]int, 0, bits.OnesCount64(w))

	for w != 0 {
		b := bits.TrailingZeros64(w)
		out = append(out, b)
		w &^= 1 << uint(b)
	}

	return out
}
