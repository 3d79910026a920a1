// pkg/events/validator.go
package events

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// EventValidator validates and sanitizes security events before they are
// committed to the pipeline. Validation failures drop the event; they
// never surface to the producer.
type EventValidator struct {
	mu           sync.Mutex
	rateLimiters map[string]*rate.Limiter // source -> rate limiter
	maxMessage   int
}

// NewEventValidator creates a new event validator. maxMessage bounds the
// sanitized message length (0 uses the default of 1000).
func NewEventValidator(maxMessage int) *EventValidator {
	if maxMessage <= 0 {
		maxMessage = 1000
	}
	return &EventValidator{
		rateLimiters: make(map[string]*rate.Limiter),
		maxMessage:   maxMessage,
	}
}

// ValidateEvent validates a security event, sanitizing the message in
// place.
func (ev *EventValidator) ValidateEvent(event *SecurityEvent) error {
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.Source == "" {
		return fmt.Errorf("event source is required")
	}
	if event.Message == "" {
		return fmt.Errorf("event message is required")
	}
	if event.Severity < SeverityInfo || event.Severity > SeverityCritical {
		return fmt.Errorf("invalid severity: %d", event.Severity)
	}

	event.Message = ev.sanitize(event.Message)

	if !ev.allow(event.Source) {
		return fmt.Errorf("rate limit exceeded for source: %s", event.Source)
	}
	return nil
}

// allow checks the per-source rate limit: 100 events per minute with a
// burst of 10.
func (ev *EventValidator) allow(source string) bool {
	ev.mu.Lock()
	limiter, exists := ev.rateLimiters[source]
	if !exists {
		limiter = rate.NewLimiter(rate.Every(time.Minute/100), 10)
		ev.rateLimiters[source] = limiter
	}
	ev.mu.Unlock()
	return limiter.Allow()
}

// sanitize strips control characters and bounds the message length.
func (ev *EventValidator) sanitize(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\t", " ")
	if len(s) > ev.maxMessage {
		s = s[:ev.maxMessage] + "..."
	}
	return strings.TrimSpace(s)
}
