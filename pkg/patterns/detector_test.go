package patterns

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucid-vigil/warden/pkg/events"
)

func downloadEvent(ts time.Time) events.SecurityEvent {
	return events.SecurityEvent{
		ID:        uuid.New(),
		Timestamp: ts,
		Type:      events.EventDownloadInitiated,
		Severity:  events.SeverityInfo,
		Source:    "download_manager",
		Message:   "download started",
	}
}

func TestDetectorThreshold(t *testing.T) {
	d := NewDetector(DefaultPatterns(), zerolog.Nop())
	now := time.Now()

	// 9 downloads within 10 seconds: below the Rapid Downloads threshold.
	var snapshot []events.SecurityEvent
	for i := 0; i < 9; i++ {
		ev := downloadEvent(now.Add(time.Duration(i) * time.Second))
		snapshot = append(snapshot, ev)
		fired := d.Evaluate(ev, snapshot, ev.Timestamp)
		assert.Empty(t, fired, "no detection before the threshold")
	}

	// The 10th crosses it: exactly one detection referencing all 10.
	tenth := downloadEvent(now.Add(9 * time.Second))
	snapshot = append(snapshot, tenth)
	fired := d.Evaluate(tenth, snapshot, tenth.Timestamp)
	require.Len(t, fired, 1)

	det := fired[0]
	assert.Equal(t, "rapid_downloads", det.PatternID)
	assert.Len(t, det.Events, 10)
	assert.False(t, det.Acknowledged)

	// severity_base(warning)=0.5, frequency=min(10/(300/3600)*0.1, 1.0)=1.0,
	// recency=(10/10)*0.5=0.5 -> 2.0 total.
	assert.InDelta(t, 2.0, det.RiskScore, 1e-9)
}

func TestDetectorEpisodeDedup(t *testing.T) {
	d := NewDetector(DefaultPatterns(), zerolog.Nop())
	now := time.Now()

	var snapshot []events.SecurityEvent
	for i := 0; i < 10; i++ {
		ev := downloadEvent(now.Add(time.Duration(i) * time.Second))
		snapshot = append(snapshot, ev)
		d.Evaluate(ev, snapshot, ev.Timestamp)
	}
	require.Len(t, d.Active(now.Add(time.Minute)), 1)

	// An 11th matching event inside the same window stays suppressed.
	eleventh := downloadEvent(now.Add(20 * time.Second))
	snapshot = append(snapshot, eleventh)
	fired := d.Evaluate(eleventh, snapshot, eleventh.Timestamp)
	assert.Empty(t, fired)

	// Once the window has elapsed a fresh burst fires again.
	later := now.Add(10 * time.Minute)
	var burst []events.SecurityEvent
	for i := 0; i < 10; i++ {
		ev := downloadEvent(later.Add(time.Duration(i) * time.Second))
		burst = append(burst, ev)
		d.Evaluate(ev, burst, ev.Timestamp)
	}
	assert.Len(t, d.Active(later.Add(time.Minute)), 2)
}

func TestDetectorRiskScoreCap(t *testing.T) {
	p := ThreatPattern{
		ID:         "burst",
		Name:       "Burst",
		Conditions: []Condition{{Field: "event_type", Operator: OpEquals, Value: "download_initiated"}},
		TimeWindow: time.Minute,
		Threshold:  5,
		Severity:   events.SeverityCritical,
		Enabled:    true,
	}
	d := NewDetector([]ThreatPattern{p}, zerolog.Nop())

	now := time.Now()
	var snapshot []events.SecurityEvent
	var fired []*ThreatDetection
	for i := 0; i < 5; i++ {
		ev := downloadEvent(now)
		snapshot = append(snapshot, ev)
		fired = d.Evaluate(ev, snapshot, now)
	}

	// base 1.0 + frequency capped at 1.0 + recency 0.5 = 2.5; the overall
	// cap keeps any combination at or below 4.0.
	require.Len(t, fired, 1)
	assert.LessOrEqual(t, fired[0].RiskScore, 4.0)
	assert.InDelta(t, 2.5, fired[0].RiskScore, 1e-9)
}

func TestDetectorAcknowledge(t *testing.T) {
	d := NewDetector(DefaultPatterns(), zerolog.Nop())
	now := time.Now()

	var snapshot []events.SecurityEvent
	var fired []*ThreatDetection
	for i := 0; i < 10; i++ {
		ev := downloadEvent(now)
		snapshot = append(snapshot, ev)
		fired = d.Evaluate(ev, snapshot, now)
	}
	require.Len(t, fired, 1)
	id := fired[0].ID

	require.Len(t, d.Active(now), 1)

	assert.True(t, d.Acknowledge(id))
	assert.Empty(t, d.Active(now), "acknowledged detections are not active")

	// Idempotent; unknown ids report false.
	assert.True(t, d.Acknowledge(id))
	assert.False(t, d.Acknowledge(uuid.New()))
}

func TestDetectorCleanup(t *testing.T) {
	d := NewDetector(DefaultPatterns(), zerolog.Nop())
	old := time.Now().Add(-36 * time.Hour)

	var snapshot []events.SecurityEvent
	for i := 0; i < 10; i++ {
		ev := downloadEvent(old)
		snapshot = append(snapshot, ev)
		d.Evaluate(ev, snapshot, old)
	}

	now := time.Now()
	assert.Empty(t, d.Active(now), "stale detections are not active")
	assert.Equal(t, 1, d.Cleanup(now))
	assert.Equal(t, 0, d.Cleanup(now))
}

func TestDetectorSyntheticFeedbackGuard(t *testing.T) {
	p := ThreatPattern{
		ID:         "threat_storm",
		Name:       "Threat Storm",
		Conditions: []Condition{{Field: "event_type", Operator: OpEquals, Value: "threat_detected"}},
		TimeWindow: time.Hour,
		Threshold:  3,
		Severity:   events.SeverityCritical,
		Enabled:    true,
	}
	d := NewDetector([]ThreatPattern{p}, zerolog.Nop())
	now := time.Now()

	mk := func(origin string) events.SecurityEvent {
		return events.SecurityEvent{
			ID:        uuid.New(),
			Timestamp: now,
			Type:      events.EventThreatDetected,
			Severity:  events.SeverityCritical,
			Source:    "detector",
			Message:   "threat",
			Origin:    origin,
		}
	}

	// Three synthetic events from this very pattern never trigger it.
	var snapshot []events.SecurityEvent
	for i := 0; i < 3; i++ {
		ev := mk("threat_storm")
		snapshot = append(snapshot, ev)
		assert.Empty(t, d.Evaluate(ev, snapshot, now))
	}

	// Organic threat_detected events still do.
	for i := 0; i < 3; i++ {
		ev := mk("")
		snapshot = append(snapshot, ev)
		if i == 2 {
			assert.Len(t, d.Evaluate(ev, snapshot, now), 1)
		} else {
			assert.Empty(t, d.Evaluate(ev, snapshot, now))
		}
	}
}

func TestDetectorPatternManagement(t *testing.T) {
	d := NewDetector(nil, zerolog.Nop())
	assert.Empty(t, d.Patterns())

	d.AddPattern(ThreatPattern{ID: "custom", Name: "Custom"})
	assert.Len(t, d.Patterns(), 1)

	assert.True(t, d.RemovePattern("custom"))
	assert.False(t, d.RemovePattern("custom"))
	assert.Empty(t, d.Patterns())
}
