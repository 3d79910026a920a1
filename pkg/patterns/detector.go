// pkg/patterns/detector.go
package patterns

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/lucid-vigil/warden/pkg/events"
)

// DetectionHorizon bounds how long detections stay in memory. The
// cleanup pass drops older detections regardless of acknowledgment, which
// resets "threatened" status once no recent unacknowledged detections
// remain.
const DetectionHorizon = 24 * time.Hour

// ThreatDetection records one threshold crossing. Acknowledged is the
// only mutable field; it flips to true exactly once.
type ThreatDetection struct {
	ID           uuid.UUID              `json:"id"`
	PatternID    string                 `json:"pattern_id"`
	PatternName  string                 `json:"pattern_name"`
	Events       []events.SecurityEvent `json:"events"`
	DetectedAt   time.Time              `json:"detected_at"`
	RiskScore    float64                `json:"risk_score"`
	Acknowledged bool                   `json:"acknowledged"`
}

// Detector evaluates every enabled pattern against each incoming event
// and a snapshot of the recent-event buffer.
//
// A pattern fires at most once per time window: once a detection is
// recorded, further events that keep the count at or above the threshold
// are suppressed until the window has elapsed. The upstream behavior of
// re-firing on every subsequent event was deliberately replaced, since
// it floods the alert path with duplicates of the same episode.
type Detector struct {
	mu         sync.RWMutex
	patterns   []ThreatPattern
	detections []*ThreatDetection
	lastFired  *lru.Cache[string, time.Time] // pattern id -> last detection
	logger     zerolog.Logger
}

// NewDetector creates a detector seeded with the given patterns.
func NewDetector(seed []ThreatPattern, logger zerolog.Logger) *Detector {
	fired, _ := lru.New[string, time.Time](256)
	return &Detector{
		patterns:  append([]ThreatPattern(nil), seed...),
		lastFired: fired,
		logger:    logger.With().Str("component", "detector").Logger(),
	}
}

// Evaluate runs every enabled pattern against the new event, re-scanning
// the buffer snapshot for window membership. The scan is O(buffer) per
// pattern, acceptable because the buffer is bounded. Returned detections
// have already been recorded.
func (d *Detector) Evaluate(ev events.SecurityEvent, snapshot []events.SecurityEvent, now time.Time) []*ThreatDetection {
	d.mu.Lock()
	defer d.mu.Unlock()

	var fired []*ThreatDetection
	for _, p := range d.patterns {
		if !p.Enabled || !p.Matches(ev) {
			continue
		}

		cutoff := now.Add(-p.TimeWindow)
		var matched []events.SecurityEvent
		for _, e := range snapshot {
			if !e.Timestamp.Before(cutoff) && p.Matches(e) {
				matched = append(matched, e)
			}
		}
		if len(matched) < p.Threshold {
			continue
		}

		if last, ok := d.lastFired.Get(p.ID); ok && now.Sub(last) < p.TimeWindow {
			continue
		}
		d.lastFired.Add(p.ID, now)

		det := &ThreatDetection{
			ID:          uuid.New(),
			PatternID:   p.ID,
			PatternName: p.Name,
			Events:      matched,
			DetectedAt:  now,
			RiskScore:   riskScore(p, matched, now),
		}
		d.detections = append(d.detections, det)
		fired = append(fired, det)

		d.logger.Warn().
			Str("pattern", p.Name).
			Int("matches", len(matched)).
			Float64("risk_score", det.RiskScore).
			Msg("Threat pattern triggered")
	}
	return fired
}

// riskScore combines the pattern's configured severity, the event
// frequency inside the window, and how many of the matches are recent.
// The result is capped at 4.0.
func riskScore(p ThreatPattern, matched []events.SecurityEvent, now time.Time) float64 {
	count := float64(len(matched))

	perHour := count / (p.TimeWindow.Seconds() / 3600)
	frequency := math.Min(perHour*0.1, 1.0)

	lastHour := 0
	hourAgo := now.Add(-time.Hour)
	for _, e := range matched {
		if !e.Timestamp.Before(hourAgo) {
			lastHour++
		}
	}
	recency := float64(lastHour) / count * 0.5

	return math.Min(p.Severity.BaseScore()+frequency+recency, 4.0)
}

// Active returns unacknowledged detections recorded within the horizon.
func (d *Detector) Active(now time.Time) []*ThreatDetection {
	d.mu.RLock()
	defer d.mu.RUnlock()

	cutoff := now.Add(-DetectionHorizon)
	var out []*ThreatDetection
	for _, det := range d.detections {
		if !det.Acknowledged && det.DetectedAt.After(cutoff) {
			out = append(out, det)
		}
	}
	return out
}

// Acknowledge marks a detection as handled. Repeated calls are no-ops.
// Returns false when no detection with the given id exists.
func (d *Detector) Acknowledge(id uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, det := range d.detections {
		if det.ID == id {
			det.Acknowledged = true
			return true
		}
	}
	return false
}

// Cleanup drops detections older than the horizon, acknowledged or not.
func (d *Detector) Cleanup(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := now.Add(-DetectionHorizon)
	kept := d.detections[:0]
	removed := 0
	for _, det := range d.detections {
		if det.DetectedAt.After(cutoff) {
			kept = append(kept, det)
		} else {
			removed++
		}
	}
	d.detections = kept
	return removed
}

// AddPattern registers an additional pattern at runtime.
func (d *Detector) AddPattern(p ThreatPattern) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patterns = append(d.patterns, p)
	d.logger.Info().Str("pattern", p.Name).Msg("Threat pattern added")
}

// RemovePattern deletes a pattern by id.
func (d *Detector) RemovePattern(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, p := range d.patterns {
		if p.ID == id {
			d.patterns = append(d.patterns[:i], d.patterns[i+1:]...)
			return true
		}
	}
	return false
}

// Patterns returns a copy of the configured patterns.
func (d *Detector) Patterns() []ThreatPattern {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ThreatPattern, len(d.patterns))
	copy(out, d.patterns)
	return out
}
