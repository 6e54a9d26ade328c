// Command simulator drives a fleet of simulated OCPP 1.6-J charge points
// against a CSMS, per spec.md's CLI/entrypoint section. It is a driver for
// the core simulator, not the HTTP control plane named out of scope.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charging-platform/station-fleet-simulator/internal/config"
	"github.com/charging-platform/station-fleet-simulator/internal/eventsink"
	"github.com/charging-platform/station-fleet-simulator/internal/logger"
	"github.com/charging-platform/station-fleet-simulator/internal/registry"
	"github.com/charging-platform/station-fleet-simulator/internal/supervisor"
)

const ownerID = "cli"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05Z07:00",
		Caller:     false,
		Async:      cfg.Log.Async,
	})
	if err != nil {
		panic(err)
	}

	go serveMetrics(log)

	reg, err := buildRegistry(cfg.Registry, log)
	if err != nil {
		log.Fatalf("build registry: %v", err)
	}

	sink, err := buildEventSink(cfg.EventSink, log)
	if err != nil {
		log.Fatalf("build event sink: %v", err)
	}
	defer sink.Close()

	sup := supervisor.New(cfg, reg, sink, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Scale(ctx, ownerID, cfg.Fleet.StationCount, cfg.Fleet.ProfileName); err != nil {
		log.Fatalf("scale fleet: %v", err)
	}
	log.Infof("fleet scaled to %d stations (profile=%s)", cfg.Fleet.StationCount, cfg.Fleet.ProfileName)

	waitForShutdown(log)

	log.Info("shutting down fleet")
	sup.StopAll(ctx)
}

func serveMetrics(log *logger.Logger) {
	http.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(":9100", nil); err != nil {
		log.Warnf("metrics server stopped: %v", err)
	}
}

func buildRegistry(cfg config.RegistryConfig, log *logger.Logger) (registry.OwnerRegistry, error) {
	if cfg.Addr == "" {
		return registry.NewInMemoryRegistry(), nil
	}
	return registry.NewRedisRegistry(cfg.Addr, cfg.Password, cfg.DB, cfg.TTL)
}

func buildEventSink(cfg config.EventSinkConfig, log *logger.Logger) (eventsink.Sink, error) {
	if len(cfg.Brokers) == 0 {
		return eventsink.NoopSink{}, nil
	}
	return eventsink.NewKafkaEventSink(cfg.Brokers, cfg.Topic, log)
}

func waitForShutdown(log *logger.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Infof("received signal %s", sig)
}
