package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for the warden daemon. Tags map
// YAML keys to struct fields via Viper.
type Config struct {
	LogLevel   string           `mapstructure:"log_level"`
	APIPort    string           `mapstructure:"api_port"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Store      StoreConfig      `mapstructure:"store"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
}

// MonitoringConfig controls ingestion and analysis.
type MonitoringConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	ThreatAnalysis  bool `mapstructure:"threat_analysis"`
	BufferCapacity  int  `mapstructure:"buffer_capacity"`
	SubmitQueueSize int  `mapstructure:"submit_queue_size"`
}

// StoreConfig controls the encrypted log store.
type StoreConfig struct {
	Dir             string `mapstructure:"dir"`
	KeyFile         string `mapstructure:"key_file"`
	RetentionDays   int    `mapstructure:"retention_days"`
	MaxSegmentBytes int64  `mapstructure:"max_segment_bytes"`
	TamperWatch     bool   `mapstructure:"tamper_watch"`
}

// AlertsConfig controls real-time alert delivery.
type AlertsConfig struct {
	RealtimeEnabled bool   `mapstructure:"realtime_enabled"`
	QueueSize       int    `mapstructure:"queue_size"`
	NATSURL         string `mapstructure:"nats_url"` // empty disables the NATS sink
}

// LoadConfig reads configuration from a YAML file (config.yaml) and
// environment variables with the WARDEN_ prefix, falling back to
// defaults for anything unset.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/warden/")

	v.SetDefault("log_level", "info")
	v.SetDefault("api_port", "8080")
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.threat_analysis", true)
	v.SetDefault("monitoring.buffer_capacity", 1000)
	v.SetDefault("monitoring.submit_queue_size", 1024)
	v.SetDefault("store.dir", "/var/lib/warden/logs")
	v.SetDefault("store.key_file", "/var/lib/warden/log.key")
	v.SetDefault("store.retention_days", 30)
	v.SetDefault("store.max_segment_bytes", 10*1024*1024)
	v.SetDefault("store.tamper_watch", true)
	v.SetDefault("alerts.realtime_enabled", true)
	v.SetDefault("alerts.queue_size", 256)
	v.SetDefault("alerts.nats_url", "")

	v.SetEnvPrefix("WARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
