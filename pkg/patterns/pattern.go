// pkg/patterns/pattern.go
package patterns

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lucid-vigil/warden/pkg/events"
)

// Operator is a condition comparison operator.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpRegex       Operator = "regex"
)

// Condition compares one event field against a value. Field names
// resolve through SecurityEvent.Field: the well-known attributes first,
// then the details map.
type Condition struct {
	Field    string   `json:"field" mapstructure:"field"`
	Operator Operator `json:"operator" mapstructure:"operator"`
	Value    string   `json:"value" mapstructure:"value"`
}

// Matches evaluates the condition. Numeric operators on non-numeric
// values and invalid regexes evaluate to false rather than erroring.
func (c Condition) Matches(ev events.SecurityEvent) bool {
	field := ev.Field(c.Field)
	switch c.Operator {
	case OpEquals:
		return field == c.Value
	case OpContains:
		return strings.Contains(strings.ToLower(field), strings.ToLower(c.Value))
	case OpGreaterThan:
		fv, err1 := strconv.ParseFloat(field, 64)
		cv, err2 := strconv.ParseFloat(c.Value, 64)
		return err1 == nil && err2 == nil && fv > cv
	case OpLessThan:
		fv, err1 := strconv.ParseFloat(field, 64)
		cv, err2 := strconv.ParseFloat(c.Value, 64)
		return err1 == nil && err2 == nil && fv < cv
	case OpRegex:
		re, err := regexp.Compile(c.Value)
		if err != nil {
			return false
		}
		return re.MatchString(field)
	default:
		return false
	}
}

// ThreatPattern describes one sliding-window detection rule. A pattern
// matches an event when all of its conditions match; a detection fires
// when at least Threshold matching events fall inside TimeWindow.
type ThreatPattern struct {
	ID          string          `json:"id" mapstructure:"id"`
	Name        string          `json:"name" mapstructure:"name"`
	Description string          `json:"description" mapstructure:"description"`
	Conditions  []Condition     `json:"conditions" mapstructure:"conditions"`
	TimeWindow  time.Duration   `json:"time_window" mapstructure:"time_window"`
	Threshold   int             `json:"threshold" mapstructure:"threshold"`
	Severity    events.Severity `json:"severity" mapstructure:"severity"`
	Enabled     bool            `json:"enabled" mapstructure:"enabled"`
}

// Matches reports whether every condition matches the event. Synthetic
// events tagged with this pattern's ID are excluded so a detection's own
// feedback event can never re-trigger the pattern that produced it.
func (p ThreatPattern) Matches(ev events.SecurityEvent) bool {
	if ev.Origin == p.ID {
		return false
	}
	for _, c := range p.Conditions {
		if !c.Matches(ev) {
			return false
		}
	}
	return true
}

// DefaultPatterns returns the seeded rule set.
func DefaultPatterns() []ThreatPattern {
	return []ThreatPattern{
		{
			ID:          "rapid_downloads",
			Name:        "Rapid Downloads",
			Description: "Unusually many downloads started in a short period",
			Conditions: []Condition{
				{Field: "event_type", Operator: OpEquals, Value: string(events.EventDownloadInitiated)},
			},
			TimeWindow: 5 * time.Minute,
			Threshold:  10,
			Severity:   events.SeverityWarning,
			Enabled:    true,
		},
		{
			ID:          "high_risk_files",
			Name:        "High-Risk Files",
			Description: "Repeated critical threat detections within an hour",
			Conditions: []Condition{
				{Field: "event_type", Operator: OpEquals, Value: string(events.EventThreatDetected)},
				{Field: "severity", Operator: OpEquals, Value: "critical"},
			},
			TimeWindow: time.Hour,
			Threshold:  3,
			Severity:   events.SeverityCritical,
			Enabled:    true,
		},
	}
}
