package escalation

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/mfreeman451/lineradar/pkg/config"
	"github.com/mfreeman451/lineradar/pkg/models"
)

const defaultTemplate = `[{{.Priority}}] {{.Equipment}}{{if .Line}} ({{.Line}}){{end}}: {{.Description}} - level {{.Level}}`

// Rule is the escalation tier for one (priority, level).
type Rule struct {
	Priority          models.Priority
	Level             int
	AckTimeout        time.Duration
	ResolutionTimeout time.Duration
	Recipients        []string
	Channels          []models.Channel

	tmpl *template.Template
}

// MessageData is the value templates are executed against.
type MessageData struct {
	AndonID     string
	Equipment   string
	Line        string
	Type        models.AndonType
	Code        string
	Description string
	Priority    models.Priority
	Status      models.AndonStatus
	Level       int
	ReportedAt  time.Time
}

// Render produces the notification text for ev at the rule's level.
func (r *Rule) Render(ev *models.AndonEvent) string {
	data := MessageData{
		AndonID:     ev.ID,
		Equipment:   ev.EquipmentCode,
		Line:        ev.LineID,
		Type:        ev.Type,
		Code:        ev.Code,
		Description: ev.Description,
		Priority:    ev.Priority,
		Status:      ev.Status,
		Level:       r.Level,
		ReportedAt:  ev.CreatedAt,
	}

	var buf bytes.Buffer

	if err := r.tmpl.Execute(&buf, data); err != nil {
		return fmt.Sprintf("[%s] %s: %s - level %d", ev.Priority, ev.EquipmentCode, ev.Description, r.Level)
	}

	return buf.String()
}

type ruleKey struct {
	priority models.Priority
	level    int
}

// RuleSet is an immutable (priority, level) lookup table.
type RuleSet struct {
	rules map[ruleKey]*Rule
}

// NewRuleSet compiles the configured rules.
func NewRuleSet(cfgs []config.EscalationRuleConfig) (*RuleSet, error) {
	rs := &RuleSet{rules: make(map[ruleKey]*Rule, len(cfgs))}

	for _, c := range cfgs {
		key := ruleKey{priority: c.Priority, level: c.Level}
		if _, dup := rs.rules[key]; dup {
			return nil, fmt.Errorf("%w: %s/%d", errDuplicateRuleKey, c.Priority, c.Level)
		}

		text := c.Template
		if text == "" {
			text = defaultTemplate
		}

		tmpl, err := template.New(fmt.Sprintf("%s-%d", c.Priority, c.Level)).Option("missingkey=zero").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("%w %s/%d: %w", errRuleTemplate, c.Priority, c.Level, err)
		}

		rs.rules[key] = &Rule{
			Priority:          c.Priority,
			Level:             c.Level,
			AckTimeout:        time.Duration(c.AckTimeout),
			ResolutionTimeout: time.Duration(c.ResolutionTimeout),
			Recipients:        append([]string(nil), c.Recipients...),
			Channels:          append([]models.Channel(nil), c.Channels...),
			tmpl:              tmpl,
		}
	}

	return rs, nil
}

// Lookup returns the rule for (priority, level).
func (rs *RuleSet) Lookup(priority models.Priority, level int) (*Rule, bool) {
	if rs == nil {
		return nil, false
	}

	r, ok := rs.rules[ruleKey{priority: priority, level: level}]

	return r, ok
}

// Len is the number of rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}

	return len(rs.rules)
}
