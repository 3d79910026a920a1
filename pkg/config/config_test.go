package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.Monitoring.Enabled)
	assert.True(t, cfg.Monitoring.ThreatAnalysis)
	assert.Equal(t, 1000, cfg.Monitoring.BufferCapacity)
	assert.Equal(t, 30, cfg.Store.RetentionDays)
	assert.Equal(t, int64(10*1024*1024), cfg.Store.MaxSegmentBytes)
	assert.True(t, cfg.Alerts.RealtimeEnabled)
	assert.Equal(t, "", cfg.Alerts.NATSURL)
}

func TestLoadConfigFromFile(t *testing.T) {
	testConfigContent := `
log_level: debug
api_port: "9090"
monitoring:
  enabled: false
  buffer_capacity: 50
store:
  retention_days: 7
  max_segment_bytes: 1048576
alerts:
  realtime_enabled: false
  nats_url: nats://localhost:4222
`
	err := os.WriteFile("config.yaml", []byte(testConfigContent), 0o644)
	require.NoError(t, err)
	defer os.Remove("config.yaml")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "9090", cfg.APIPort)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 50, cfg.Monitoring.BufferCapacity)
	assert.Equal(t, 7, cfg.Store.RetentionDays)
	assert.Equal(t, int64(1048576), cfg.Store.MaxSegmentBytes)
	assert.False(t, cfg.Alerts.RealtimeEnabled)
	assert.Equal(t, "nats://localhost:4222", cfg.Alerts.NATSURL)

	// Environment variables override the file.
	os.Setenv("WARDEN_API_PORT", "9091")
	defer os.Unsetenv("WARDEN_API_PORT")

	cfg, err = LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "9091", cfg.APIPort)
}
