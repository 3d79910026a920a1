package api

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/lucid-vigil/warden/pkg/alerts"
	"github.com/lucid-vigil/warden/pkg/events"
	"github.com/lucid-vigil/warden/pkg/logstore"
	"github.com/lucid-vigil/warden/pkg/metrics"
	"github.com/lucid-vigil/warden/pkg/monitor"
)

func testServer(t *testing.T) (*Server, *monitor.Monitor) {
	t.Helper()

	key := make([]byte, chacha20poly1305.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	store, err := logstore.NewStore(t.TempDir(), &logstore.StaticKeyProvider{KeyBytes: key}, 0, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry := prometheus.NewRegistry()
	m, err := monitor.New(store, alerts.NewDispatcher(64, zerolog.Nop()), monitor.Options{
		ThreatAnalysis: true,
		Collectors:     metrics.NewCollectors(registry),
	}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	m.Start(ctx)

	return NewServer(m, registry, zerolog.Nop()), m
}

func waitForEvents(t *testing.T, m *monitor.Monitor, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(m.GetRecentEvents(0)) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d events before deadline", n)
}

func TestHealthz(t *testing.T) {
	s, _ := testServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestStatusEndpoint(t *testing.T) {
	s, m := testServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, true, status["enabled"])
	assert.Equal(t, false, status["degraded"])
	assert.Equal(t, m.SessionID(), status["session_id"])
}

func TestRecentEventsEndpoint(t *testing.T) {
	s, m := testServer(t)

	for i := 0; i < 5; i++ {
		m.LogEvent(events.EventScanCompleted, events.SeverityInfo, fmt.Sprintf("scanner-%d", i), "done", nil, "")
	}
	waitForEvents(t, m, 5)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events/recent?limit=3", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got []events.SecurityEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 3)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events/recent?limit=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestThreatsAndAcknowledge(t *testing.T) {
	s, m := testServer(t)

	for i := 0; i < 10; i++ {
		m.LogEvent(events.EventDownloadInitiated, events.SeverityInfo, fmt.Sprintf("dl-%d", i), "download", nil, "")
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && len(m.GetActiveThreats()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	require.NotEmpty(t, m.GetActiveThreats())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/threats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var threats []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &threats))
	require.Len(t, threats, 1)
	id := threats[0]["id"].(string)

	body := strings.NewReader(fmt.Sprintf(`{"id":%q}`, id))
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/threats/ack", body))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, m.GetActiveThreats())

	// Unknown ids 404.
	body = strings.NewReader(`{"id":"00000000-0000-0000-0000-000000000001"}`)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/threats/ack", body))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportEndpoint(t *testing.T) {
	s, m := testServer(t)

	m.LogEvent(events.EventPolicyChanged, events.SeverityWarning, "policy", "rules changed", nil, "")
	waitForEvents(t, m, 1)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/export", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var doc monitor.ExportDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, 1, doc.Metadata.EventCount)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/export?start=notatime", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, m := testServer(t)

	m.LogEvent(events.EventScanStarted, events.SeverityInfo, "scanner", "scan", nil, "")
	waitForEvents(t, m, 1)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "warden_events_ingested_total")

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var sm metrics.SecurityMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sm))
	assert.Equal(t, 1, sm.Buffered)
}
