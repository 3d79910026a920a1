package alerts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucid-vigil/warden/pkg/events"
	"github.com/lucid-vigil/warden/pkg/patterns"
)

type captureSink struct {
	mu         sync.Mutex
	events     []events.SecurityEvent
	detections []patterns.ThreatDetection
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) NotifyEvent(_ context.Context, ev events.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *captureSink) NotifyDetection(_ context.Context, det patterns.ThreatDetection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detections = append(s.detections, det)
	return nil
}

func (s *captureSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events), len(s.detections)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatcherSeverityThreshold(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &captureSink{}
	d := NewDispatcher(16, zerolog.Nop())
	d.AddSink(sink)
	d.Start(ctx)

	mk := func(sev events.Severity) events.SecurityEvent {
		return events.SecurityEvent{ID: uuid.New(), Type: events.EventViolation, Severity: sev, Source: "test", Message: "m"}
	}

	require.NoError(t, d.EnqueueEvent(mk(events.SeverityInfo)))
	require.NoError(t, d.EnqueueEvent(mk(events.SeverityWarning)))
	require.NoError(t, d.EnqueueEvent(mk(events.SeverityError)))
	require.NoError(t, d.EnqueueEvent(mk(events.SeverityCritical)))

	waitFor(t, func() bool { n, _ := sink.counts(); return n == 2 })

	n, _ := sink.counts()
	assert.Equal(t, 2, n, "only error and critical events alert")
}

func TestDispatcherDetectionDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &captureSink{}
	d := NewDispatcher(16, zerolog.Nop())
	d.AddSink(sink)
	d.Start(ctx)

	det := patterns.ThreatDetection{ID: uuid.New(), PatternID: "p", PatternName: "P", RiskScore: 2.0}
	require.NoError(t, d.EnqueueDetection(det))

	waitFor(t, func() bool { _, n := sink.counts(); return n == 1 })

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, det.ID, sink.detections[0].ID)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	// Never started: nothing drains the queue.
	d := NewDispatcher(2, zerolog.Nop())

	det := patterns.ThreatDetection{ID: uuid.New()}
	require.NoError(t, d.EnqueueDetection(det))
	require.NoError(t, d.EnqueueDetection(det))

	err := d.EnqueueDetection(det)
	assert.ErrorIs(t, err, ErrQueueFull, "a full queue drops instead of blocking")
}
