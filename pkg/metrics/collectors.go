// pkg/metrics/collectors.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors holds the Prometheus instrumentation for the monitoring
// pipeline, exposed through the API server's /metrics endpoint.
type Collectors struct {
	EventsIngested *prometheus.CounterVec
	EventsDropped  *prometheus.CounterVec
	Detections     *prometheus.CounterVec
	AlertsDropped  prometheus.Counter
	StoreDegraded  prometheus.Gauge
}

// NewCollectors builds and registers the collectors with reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		EventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_events_ingested_total",
			Help: "Security events committed to the buffer, by type and severity.",
		}, []string{"type", "severity"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_events_dropped_total",
			Help: "Security events dropped before commit, by reason.",
		}, []string{"reason"}),
		Detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_detections_total",
			Help: "Threat detections produced, by pattern.",
		}, []string{"pattern"}),
		AlertsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_alerts_dropped_total",
			Help: "Alerts dropped because the dispatch queue was full.",
		}),
		StoreDegraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "warden_store_degraded",
			Help: "1 when the encrypted log store has disabled persistence.",
		}),
	}
	reg.MustRegister(c.EventsIngested, c.EventsDropped, c.Detections, c.AlertsDropped, c.StoreDegraded)
	return c
}
