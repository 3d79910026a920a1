// pkg/monitor/monitor.go
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lucid-vigil/warden/pkg/alerts"
	"github.com/lucid-vigil/warden/pkg/buffer"
	"github.com/lucid-vigil/warden/pkg/events"
	"github.com/lucid-vigil/warden/pkg/logstore"
	"github.com/lucid-vigil/warden/pkg/metrics"
	"github.com/lucid-vigil/warden/pkg/patterns"
)

// ExportVersion identifies the export document format.
const ExportVersion = "1.0"

// ExportDocument is the self-describing result of an export query.
// Events are plaintext here; decryption already happened to produce it.
type ExportDocument struct {
	ExportDate time.Time              `json:"export_date"`
	RangeStart time.Time              `json:"range_start"`
	RangeEnd   time.Time              `json:"range_end"`
	Events     []events.SecurityEvent `json:"events"`
	Metadata   ExportMetadata         `json:"metadata"`
}

type ExportMetadata struct {
	Version    string `json:"version"`
	Source     string `json:"source"`
	EventCount int    `json:"event_count"`
}

// Options tunes a Monitor. Zero values pick sensible defaults.
type Options struct {
	BufferCapacity  int
	SubmitQueueSize int
	RetentionDays   int
	ThreatAnalysis  bool
	RealtimeAlerts  bool
	Patterns        []patterns.ThreatPattern // nil seeds DefaultPatterns
	Collectors      *metrics.Collectors      // nil disables instrumentation
}

// Monitor is the single entry point producers log security events
// through. LogEvent is cheap and non-blocking; buffer insertion, log
// persistence, pattern analysis and alert dispatch all happen on one
// dedicated worker goroutine, so events commit in submission order and
// the worker is the sole writer of the buffer and the current segment.
type Monitor struct {
	logger     zerolog.Logger
	validator  *events.EventValidator
	buffer     *buffer.Ring
	store      *logstore.Store
	detector   *patterns.Detector
	dispatcher *alerts.Dispatcher
	collectors *metrics.Collectors

	sessionID string
	enabled   atomic.Bool
	analysis  bool
	realtime  bool
	retention time.Duration

	submit chan events.SecurityEvent
	wg     sync.WaitGroup
}

// New constructs a Monitor around an opened store and dispatcher. The
// session id is generated once and stamped on every event this instance
// commits.
func New(store *logstore.Store, dispatcher *alerts.Dispatcher, opts Options, logger zerolog.Logger) (*Monitor, error) {
	if store == nil {
		return nil, fmt.Errorf("monitor requires a log store")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("monitor requires an alert dispatcher")
	}
	if opts.BufferCapacity <= 0 {
		opts.BufferCapacity = 1000
	}
	if opts.SubmitQueueSize <= 0 {
		opts.SubmitQueueSize = 1024
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 30
	}
	seed := opts.Patterns
	if seed == nil {
		seed = patterns.DefaultPatterns()
	}

	m := &Monitor{
		logger:     logger.With().Str("component", "monitor").Logger(),
		validator:  events.NewEventValidator(0),
		buffer:     buffer.NewRing(opts.BufferCapacity),
		store:      store,
		detector:   patterns.NewDetector(seed, logger),
		dispatcher: dispatcher,
		collectors: opts.Collectors,
		sessionID:  uuid.NewString(),
		analysis:   opts.ThreatAnalysis,
		realtime:   opts.RealtimeAlerts,
		retention:  time.Duration(opts.RetentionDays) * 24 * time.Hour,
		submit:     make(chan events.SecurityEvent, opts.SubmitQueueSize),
	}
	m.enabled.Store(true)
	return m, nil
}

// Start launches the worker and the maintenance timers. It returns
// immediately; everything stops when ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.dispatcher.Start(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case ev := <-m.submit:
				m.commit(ev)
			case <-ctx.Done():
				return
			}
		}
	}()

	m.wg.Add(1)
	go m.maintenance(ctx)
}

// Wait blocks until the worker and maintenance goroutines have exited.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// maintenance drives forced daily rotation, the retention sweep, and
// detection cleanup.
func (m *Monitor) maintenance(ctx context.Context) {
	defer m.wg.Done()

	rotate := time.NewTicker(24 * time.Hour)
	sweep := time.NewTicker(time.Hour)
	defer rotate.Stop()
	defer sweep.Stop()

	for {
		select {
		case <-rotate.C:
			if err := m.store.Rotate(); err != nil && !errors.Is(err, logstore.ErrDegraded) {
				m.logger.Error().Err(err).Msg("Forced rotation failed")
			}
		case <-sweep.C:
			m.store.PruneExpired(m.retention)
			if removed := m.detector.Cleanup(time.Now()); removed > 0 {
				m.logger.Debug().Int("removed", removed).Msg("Stale detections cleaned up")
			}
			m.updateDegradedGauge()
		case <-ctx.Done():
			return
		}
	}
}

// LogEvent validates, stamps and enqueues one security event. It returns
// in O(1) without touching disk. When monitoring is disabled, or the
// event fails validation, or the submit queue is full, the event is
// dropped silently (a diagnostic is logged locally) and uuid.Nil is
// returned.
func (m *Monitor) LogEvent(typ events.EventType, sev events.Severity, source, message string, details map[string]events.Detail, userAgent string) uuid.UUID {
	if !m.enabled.Load() {
		return uuid.Nil
	}

	ev := events.SecurityEvent{
		ID:        uuid.New(),
		Timestamp: time.Now(),
		Type:      typ,
		Severity:  sev,
		Source:    source,
		Message:   message,
		Details:   details,
		UserAgent: userAgent,
		SessionID: m.sessionID,
	}

	if err := m.validator.ValidateEvent(&ev); err != nil {
		m.logger.Debug().Err(err).Str("source", source).Msg("Event rejected by validator")
		m.countDrop("invalid")
		return uuid.Nil
	}

	if !m.enqueue(ev) {
		return uuid.Nil
	}
	return ev.ID
}

func (m *Monitor) enqueue(ev events.SecurityEvent) bool {
	select {
	case m.submit <- ev:
		return true
	default:
		m.logger.Warn().Str("source", ev.Source).Msg("Submit queue full, dropping event")
		m.countDrop("queue_full")
		return false
	}
}

// commit runs on the worker goroutine only.
func (m *Monitor) commit(ev events.SecurityEvent) {
	m.buffer.Insert(ev)

	if err := m.store.Append(ev); err != nil {
		if errors.Is(err, logstore.ErrDegraded) {
			m.updateDegradedGauge()
		} else {
			m.logger.Error().Err(err).Msg("Failed to persist event")
		}
	}

	if m.collectors != nil {
		m.collectors.EventsIngested.WithLabelValues(string(ev.Type), ev.Severity.String()).Inc()
	}

	if m.realtime {
		if err := m.dispatcher.EnqueueEvent(ev); err != nil {
			m.countAlertDrop()
		}
	}

	if m.analysis {
		m.analyze(ev)
	}
}

func (m *Monitor) analyze(ev events.SecurityEvent) {
	detections := m.detector.Evaluate(ev, m.buffer.Snapshot(), time.Now())
	for _, det := range detections {
		if m.collectors != nil {
			m.collectors.Detections.WithLabelValues(det.PatternID).Inc()
		}
		if m.realtime {
			if err := m.dispatcher.EnqueueDetection(*det); err != nil {
				m.countAlertDrop()
			}
		}

		// Feed a synthetic threat_detected event back through the
		// pipeline, tagged with its origin pattern so it can never
		// re-trigger that pattern.
		synthetic := events.SecurityEvent{
			ID:        uuid.New(),
			Timestamp: time.Now(),
			Type:      events.EventThreatDetected,
			Severity:  events.SeverityError,
			Source:    "threat_detector",
			Message:   fmt.Sprintf("Pattern %q matched %d events", det.PatternName, len(det.Events)),
			Details: map[string]events.Detail{
				"pattern_id":   events.String(det.PatternID),
				"pattern_name": events.String(det.PatternName),
				"match_count":  events.Int(int64(len(det.Events))),
				"risk_score":   events.Float(det.RiskScore),
			},
			SessionID: m.sessionID,
			Origin:    det.PatternID,
		}
		m.enqueue(synthetic)
	}
}

// GetRecentEvents returns up to limit of the most recent committed
// events, newest first.
func (m *Monitor) GetRecentEvents(limit int) []events.SecurityEvent {
	return m.buffer.Recent(limit)
}

// GetActiveThreats returns unacknowledged detections recorded within the
// last 24 hours.
func (m *Monitor) GetActiveThreats() []patterns.ThreatDetection {
	active := m.detector.Active(time.Now())
	out := make([]patterns.ThreatDetection, 0, len(active))
	for _, det := range active {
		out = append(out, *det)
	}
	return out
}

// AcknowledgeThreat marks a detection handled. Idempotent; false when
// the id is unknown.
func (m *Monitor) AcknowledgeThreat(id uuid.UUID) bool {
	return m.detector.Acknowledge(id)
}

// GetMetrics computes metrics over a snapshot of the buffer.
func (m *Monitor) GetMetrics() metrics.SecurityMetrics {
	return metrics.Compute(m.buffer.Snapshot(), time.Now(), 5)
}

// ExportLogs decrypts the persisted events inside [start, end] inclusive
// and returns them as a JSON export document, together with per-frame
// diagnostics for anything that had to be skipped.
func (m *Monitor) ExportLogs(start, end time.Time) ([]byte, []logstore.FrameError, error) {
	evs, skipped, err := m.store.Export(start, end)
	if err != nil {
		return nil, skipped, err
	}

	doc := ExportDocument{
		ExportDate: time.Now(),
		RangeStart: start,
		RangeEnd:   end,
		Events:     evs,
		Metadata: ExportMetadata{
			Version:    ExportVersion,
			Source:     "warden",
			EventCount: len(evs),
		},
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, skipped, fmt.Errorf("failed to serialize export: %w", err)
	}
	return payload, skipped, nil
}

// AddPattern registers an additional threat pattern at runtime.
func (m *Monitor) AddPattern(p patterns.ThreatPattern) {
	m.detector.AddPattern(p)
}

// RemovePattern deletes a threat pattern by id.
func (m *Monitor) RemovePattern(id string) bool {
	return m.detector.RemovePattern(id)
}

// Degraded reports whether persistence is currently disabled.
func (m *Monitor) Degraded() bool {
	return m.store.Degraded()
}

// SetEnabled toggles monitoring globally. While disabled, LogEvent is a
// silent no-op.
func (m *Monitor) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
	m.logger.Info().Bool("enabled", enabled).Msg("Monitoring toggled")
}

// Enabled reports the global monitoring toggle.
func (m *Monitor) Enabled() bool {
	return m.enabled.Load()
}

// SessionID returns the process-lifetime session identifier.
func (m *Monitor) SessionID() string {
	return m.sessionID
}

func (m *Monitor) countDrop(reason string) {
	if m.collectors != nil {
		m.collectors.EventsDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Monitor) countAlertDrop() {
	if m.collectors != nil {
		m.collectors.AlertsDropped.Inc()
	}
}

func (m *Monitor) updateDegradedGauge() {
	if m.collectors == nil {
		return
	}
	if m.store.Degraded() {
		m.collectors.StoreDegraded.Set(1)
	} else {
		m.collectors.StoreDegraded.Set(0)
	}
}
