package escalation

import (
	"testing"
	"time"

	"github.com/mfreeman451/lineradar/pkg/config"
	"github.com/mfreeman451/lineradar/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleSetLookup(t *testing.T) {
	rs := testRules(t)

	r, ok := rs.Lookup(models.PriorityCritical, 2)
	require.True(t, ok)
	assert.Equal(t, 75*time.Minute, r.AckTimeout)

	_, ok = rs.Lookup(models.PriorityCritical, 4)
	assert.False(t, ok)

	_, ok = rs.Lookup(models.PriorityHigh, 1)
	assert.False(t, ok)

	var empty *RuleSet

	_, ok = empty.Lookup(models.PriorityHigh, 1)
	assert.False(t, ok)
	assert.Equal(t, 3, rs.Len())
}

func TestRuleSetErrors(t *testing.T) {
	_, err := NewRuleSet([]config.EscalationRuleConfig{
		{Priority: models.PriorityHigh, Level: 1},
		{Priority: models.PriorityHigh, Level: 1},
	})
	require.ErrorIs(t, err, errDuplicateRuleKey)

	_, err = NewRuleSet([]config.EscalationRuleConfig{
		{Priority: models.PriorityHigh, Level: 1, Template: "{{.Equipment"},
	})
	require.ErrorIs(t, err, errRuleTemplate)
}

func TestRuleRender(t *testing.T) {
	rs, err := NewRuleSet([]config.EscalationRuleConfig{
		{Priority: models.PriorityHigh, Level: 2, Template: "{{.Type}}/{{.Code}} on {{.Equipment}} since {{.ReportedAt.Format \"15:04\"}}"},
	})
	require.NoError(t, err)

	r, ok := rs.Lookup(models.PriorityHigh, 2)
	require.True(t, ok)

	msg := r.Render(&models.AndonEvent{
		EquipmentCode: "FILL2",
		Type:          models.AndonFault,
		Code:          "JAM",
		CreatedAt:     t0,
	})
	assert.Equal(t, "fault/JAM on FILL2 since 08:00", msg)
}
