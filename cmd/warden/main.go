package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/lucid-vigil/warden/pkg/alerts"
	"github.com/lucid-vigil/warden/pkg/api"
	"github.com/lucid-vigil/warden/pkg/config"
	"github.com/lucid-vigil/warden/pkg/events"
	"github.com/lucid-vigil/warden/pkg/logger"
	"github.com/lucid-vigil/warden/pkg/logstore"
	"github.com/lucid-vigil/warden/pkg/metrics"
	"github.com/lucid-vigil/warden/pkg/monitor"
	"github.com/lucid-vigil/warden/pkg/producers/procwatch"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.InitLogger(cfg.LogLevel)
	log.Info().Msg("Warden starting...")

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Msgf("Received signal: %s. Shutting down gracefully...", sig)
		cancel()
	}()

	keys := logstore.NewFileKeyProvider(cfg.Store.KeyFile)
	store, err := logstore.NewStore(cfg.Store.Dir, keys, cfg.Store.MaxSegmentBytes, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open log store")
	}
	defer store.Close()
	if store.Degraded() {
		log.Warn().Msg("Log store is degraded, events will not be persisted")
	}

	dispatcher := alerts.NewDispatcher(cfg.Alerts.QueueSize, log.Logger)
	dispatcher.AddSink(alerts.NewLogSink(log.Logger))
	if cfg.Alerts.NATSURL != "" {
		sink, err := alerts.NewNATSSink(cfg.Alerts.NATSURL)
		if err != nil {
			log.Error().Err(err).Msg("NATS sink unavailable, continuing without it")
		} else {
			defer sink.Close()
			dispatcher.AddSink(sink)
		}
	}

	registry := prometheus.NewRegistry()
	mon, err := monitor.New(store, dispatcher, monitor.Options{
		BufferCapacity:  cfg.Monitoring.BufferCapacity,
		SubmitQueueSize: cfg.Monitoring.SubmitQueueSize,
		RetentionDays:   cfg.Store.RetentionDays,
		ThreatAnalysis:  cfg.Monitoring.ThreatAnalysis,
		RealtimeAlerts:  cfg.Alerts.RealtimeEnabled,
		Collectors:      metrics.NewCollectors(registry),
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to construct monitor")
	}
	mon.SetEnabled(cfg.Monitoring.Enabled)
	mon.Start(ctx)

	if cfg.Store.TamperWatch && !store.Degraded() {
		watcher, err := logstore.NewTamperWatcher(store, log.Logger, func(path, op string) {
			mon.LogEvent(
				events.EventSuspiciousActivity,
				events.SeverityError,
				"tamper_watcher",
				"Sealed log segment modified out of band",
				map[string]events.Detail{
					"segment": events.String(path),
					"op":      events.String(op),
				},
				"",
			)
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to start tamper watcher")
		} else {
			go watcher.Run(ctx)
		}
	}

	go procwatch.NewWatcher(mon, procwatch.Config{}, log.Logger).Run(ctx)

	server := api.NewServer(mon, registry, log.Logger)
	go func() {
		if err := server.ListenAndServe(cfg.APIPort); err != nil {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	<-ctx.Done()
	mon.Wait()
	dispatcher.Wait()

	log.Info().Msg("Warden stopped.")
	time.Sleep(100 * time.Millisecond)
}
