// pkg/alerts/dispatcher.go
package alerts

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lucid-vigil/warden/pkg/events"
	"github.com/lucid-vigil/warden/pkg/patterns"
)

// Sink receives alerts. Implementations must tolerate being called from
// the dispatcher's delivery goroutine; slow sinks delay other sinks but
// never the ingestion pipeline.
type Sink interface {
	Name() string
	NotifyEvent(ctx context.Context, ev events.SecurityEvent) error
	NotifyDetection(ctx context.Context, det patterns.ThreatDetection) error
}

var ErrQueueFull = fmt.Errorf("alert queue is full")

type alert struct {
	event     *events.SecurityEvent
	detection *patterns.ThreatDetection
}

// Dispatcher forwards severe events and new detections to the registered
// sinks through a bounded queue. Delivery is best-effort: a full queue or
// a failing sink drops the alert after logging, with no retry.
type Dispatcher struct {
	mu      sync.RWMutex
	sinks   []Sink
	queue   chan alert
	logger  zerolog.Logger
	wg      sync.WaitGroup
	started bool
}

// NewDispatcher creates a dispatcher with the given queue depth
// (minimum 1).
func NewDispatcher(queueSize int, logger zerolog.Logger) *Dispatcher {
	if queueSize < 1 {
		queueSize = 64
	}
	return &Dispatcher{
		queue:  make(chan alert, queueSize),
		logger: logger.With().Str("component", "alert_dispatcher").Logger(),
	}
}

// AddSink registers a delivery target.
func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
	d.logger.Info().Str("sink", s.Name()).Msg("Alert sink registered")
}

// Start launches the delivery goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case a := <-d.queue:
				d.deliver(ctx, a)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Wait blocks until the delivery goroutine has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// EnqueueEvent queues an alert for an event with severity >= error.
// Events below the threshold are ignored.
func (d *Dispatcher) EnqueueEvent(ev events.SecurityEvent) error {
	if ev.Severity < events.SeverityError {
		return nil
	}
	return d.enqueue(alert{event: &ev})
}

// EnqueueDetection queues an alert for a new threat detection.
func (d *Dispatcher) EnqueueDetection(det patterns.ThreatDetection) error {
	return d.enqueue(alert{detection: &det})
}

func (d *Dispatcher) enqueue(a alert) error {
	select {
	case d.queue <- a:
		return nil
	default:
		d.logger.Warn().Msg("Alert queue full, dropping alert")
		return ErrQueueFull
	}
}

func (d *Dispatcher) deliver(ctx context.Context, a alert) {
	d.mu.RLock()
	sinks := make([]Sink, len(d.sinks))
	copy(sinks, d.sinks)
	d.mu.RUnlock()

	for _, s := range sinks {
		var err error
		switch {
		case a.detection != nil:
			err = s.NotifyDetection(ctx, *a.detection)
		case a.event != nil:
			err = s.NotifyEvent(ctx, *a.event)
		}
		if err != nil {
			d.logger.Error().Err(err).Str("sink", s.Name()).Msg("Alert delivery failed")
		}
	}
}
