// pkg/alerts/logsink.go
package alerts

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lucid-vigil/warden/pkg/events"
	"github.com/lucid-vigil/warden/pkg/patterns"
)

// LogSink writes alerts to the structured log. Always registered so
// severe events remain visible even without an external sink.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "alert_log_sink").Logger()}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) NotifyEvent(_ context.Context, ev events.SecurityEvent) error {
	s.logger.Warn().
		Str("event_id", ev.ID.String()).
		Str("type", string(ev.Type)).
		Str("severity", ev.Severity.String()).
		Str("source", ev.Source).
		Msg(ev.Message)
	return nil
}

func (s *LogSink) NotifyDetection(_ context.Context, det patterns.ThreatDetection) error {
	s.logger.Warn().
		Str("detection_id", det.ID.String()).
		Str("pattern", det.PatternName).
		Int("matches", len(det.Events)).
		Float64("risk_score", det.RiskScore).
		Msg("Threat detected")
	return nil
}
