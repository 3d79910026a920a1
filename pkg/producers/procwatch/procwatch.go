// pkg/producers/procwatch/procwatch.go
package procwatch

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/lucid-vigil/warden/pkg/events"
	"github.com/lucid-vigil/warden/pkg/monitor"
)

// listPids is indirected for tests.
var listPids = process.Pids

// Config tunes the process watcher.
type Config struct {
	Interval       time.Duration
	SpawnThreshold int // new processes per interval that count as a burst
}

// Watcher is a sample event producer: it polls the process table and
// logs a suspicious_activity event when an unusual number of processes
// appears between polls. It demonstrates the producer boundary; real
// producers (downloads, auth, CSP) integrate the same way, through
// Monitor.LogEvent only.
type Watcher struct {
	monitor *monitor.Monitor
	config  Config
	logger  zerolog.Logger
	known   map[int32]struct{}
}

func NewWatcher(m *monitor.Monitor, cfg Config, logger zerolog.Logger) *Watcher {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.SpawnThreshold <= 0 {
		cfg.SpawnThreshold = 20
	}
	return &Watcher{
		monitor: m,
		config:  cfg,
		logger:  logger.With().Str("component", "procwatch").Logger(),
	}
}

// Run polls until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.poll()
	for {
		select {
		case <-ticker.C:
			w.poll()
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) poll() {
	pids, err := listPids()
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to list processes")
		return
	}

	current := make(map[int32]struct{}, len(pids))
	spawned := 0
	for _, pid := range pids {
		current[pid] = struct{}{}
		if w.known != nil {
			if _, seen := w.known[pid]; !seen {
				spawned++
			}
		}
	}

	if w.known != nil && spawned >= w.config.SpawnThreshold {
		w.monitor.LogEvent(
			events.EventSuspiciousActivity,
			events.SeverityWarning,
			"procwatch",
			"Unusual process spawn burst",
			map[string]events.Detail{
				"spawned":  events.Int(int64(spawned)),
				"total":    events.Int(int64(len(pids))),
				"interval": events.String(w.config.Interval.String()),
			},
			"",
		)
	}
	w.known = current
}
