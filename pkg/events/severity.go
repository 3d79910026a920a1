// pkg/events/severity.go
package events

import "fmt"

// Severity is an ordered severity level. The numeric order is used for
// comparisons and escalation thresholds; the wire form is the string tag.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity maps a string tag back to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityInfo, fmt.Errorf("unknown severity: %q", s)
	}
}

// BaseScore is the severity contribution to a detection's risk score.
func (s Severity) BaseScore() float64 {
	switch s {
	case SeverityInfo:
		return 0.25
	case SeverityWarning:
		return 0.5
	case SeverityError:
		return 0.75
	case SeverityCritical:
		return 1.0
	default:
		return 0.25
	}
}

// MarshalJSON encodes the severity as its string tag so persisted events
// stay readable if levels are added later.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("severity must be a JSON string, got %s", data)
	}
	parsed, err := ParseSeverity(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
