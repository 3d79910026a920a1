// pkg/api/api.go
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lucid-vigil/warden/pkg/monitor"
)

// Server exposes the consumer surface: recent events, active threats,
// acknowledgment, metrics and log export. Producers do not use this
// server; they call Monitor.LogEvent directly.
type Server struct {
	monitor *monitor.Monitor
	logger  zerolog.Logger
	mux     *http.ServeMux
}

// NewServer wires the handlers. The prometheus registry backs /metrics.
func NewServer(m *monitor.Monitor, registry *prometheus.Registry, logger zerolog.Logger) *Server {
	s := &Server{
		monitor: m,
		logger:  logger.With().Str("component", "api").Logger(),
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/events/recent", s.handleRecentEvents)
	s.mux.HandleFunc("GET /api/metrics", s.handleSecurityMetrics)
	s.mux.HandleFunc("GET /api/threats", s.handleThreats)
	s.mux.HandleFunc("POST /api/threats/ack", s.handleAcknowledge)
	s.mux.HandleFunc("GET /api/export", s.handleExport)
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe blocks serving the API on the given port.
func (s *Server) ListenAndServe(port string) error {
	s.logger.Info().Str("port", port).Msg("API server starting")
	return http.ListenAndServe(":"+port, s.mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]any{
		"enabled":    s.monitor.Enabled(),
		"degraded":   s.monitor.Degraded(),
		"session_id": s.monitor.SessionID(),
	})
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	s.writeJSON(w, s.monitor.GetRecentEvents(limit))
}

func (s *Server) handleSecurityMetrics(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.monitor.GetMetrics())
}

func (s *Server) handleThreats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.monitor.GetActiveThreats())
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		http.Error(w, "invalid detection id", http.StatusBadRequest)
		return
	}
	if !s.monitor.AcknowledgeThreat(id) {
		http.Error(w, "detection not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, map[string]any{"acknowledged": true})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	start, err := parseTimeParam(r, "start", time.Now().Add(-24*time.Hour))
	if err != nil {
		http.Error(w, "invalid start", http.StatusBadRequest)
		return
	}
	end, err := parseTimeParam(r, "end", time.Now())
	if err != nil {
		http.Error(w, "invalid end", http.StatusBadRequest)
		return
	}

	payload, skipped, err := s.monitor.ExportLogs(start, end)
	if err != nil {
		s.logger.Error().Err(err).Msg("Export failed")
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	if len(skipped) > 0 {
		s.logger.Warn().Int("skipped_frames", len(skipped)).Msg("Export skipped unreadable frames")
		w.Header().Set("X-Warden-Skipped-Frames", strconv.Itoa(len(skipped)))
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

func parseTimeParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}
