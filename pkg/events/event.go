// pkg/events/event.go
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of security event
type EventType string

const (
	EventDownloadInitiated  EventType = "download_initiated"
	EventScanStarted        EventType = "scan_started"
	EventScanCompleted      EventType = "scan_completed"
	EventThreatDetected     EventType = "threat_detected"
	EventThreatBlocked      EventType = "threat_blocked"
	EventUserDecision       EventType = "user_decision"
	EventQuarantineApplied  EventType = "quarantine_applied"
	EventQuarantineRemoved  EventType = "quarantine_removed"
	EventPolicyChanged      EventType = "policy_changed"
	EventSuspiciousActivity EventType = "suspicious_activity"
	EventViolation          EventType = "violation"
)

// SecurityEvent represents one security-relevant occurrence. Events are
// immutable once constructed: the monitor assigns ID, Timestamp and
// SessionID at ingestion and no field changes afterwards.
type SecurityEvent struct {
	ID        uuid.UUID         `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Severity  Severity          `json:"severity"`
	Source    string            `json:"source"` // Which producer generated this
	Message   string            `json:"message"`
	Details   map[string]Detail `json:"details,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	// Origin carries the pattern ID for synthetic events emitted by the
	// detector itself, so a pattern never re-triggers on its own output.
	Origin string `json:"origin,omitempty"`
}

// Field returns the value used for pattern-condition lookup. Well-known
// fields resolve to the event's own attributes; anything else falls back
// to the details map, defaulting to the empty string.
func (e SecurityEvent) Field(name string) string {
	switch name {
	case "event_type", "type":
		return string(e.Type)
	case "severity":
		return e.Severity.String()
	case "source":
		return e.Source
	case "message":
		return e.Message
	case "user_agent":
		return e.UserAgent
	default:
		if d, ok := e.Details[name]; ok {
			return d.String()
		}
		return ""
	}
}
