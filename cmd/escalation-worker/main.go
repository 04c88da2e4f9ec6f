package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prohmpiriya/crowdsense/internal/di"
	"github.com/prohmpiriya/crowdsense/internal/metrics"
	"github.com/prohmpiriya/crowdsense/internal/service"
	"github.com/prohmpiriya/crowdsense/internal/worker"
	"github.com/prohmpiriya/crowdsense/pkg/config"
	"github.com/prohmpiriya/crowdsense/pkg/logger"
	"github.com/prohmpiriya/crowdsense/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: "escalation-worker",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Escalation Worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    "escalation-worker",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn(fmt.Sprintf("Telemetry disabled: %v", err))
	}
	if err := metrics.Init(); err != nil {
		appLog.Warn(fmt.Sprintf("Failed to register metrics: %v", err))
	}

	// The sweeper only needs the store
	cfg.Redis.Enabled = false
	cfg.Kafka.Enabled = false
	if cfg.Store.Driver != config.StoreDriverPostgres {
		appLog.Warn("Escalation worker is running against a private memory store; it will not see API orders")
	}

	infra, err := di.OpenInfra(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to open infrastructure: %v", err))
	}
	defer infra.Close()

	sweeper := service.NewEscalationSweeper(infra.Repos.ActionOrders, &service.EscalationSweeperConfig{
		StaleAfter: cfg.Admission.EscalationStaleAfter,
		BatchSize:  cfg.Admission.EscalationBatchSize,
	})

	escalationWorker := worker.NewEscalationWorker(sweeper, &worker.EscalationWorkerConfig{
		Interval: cfg.Admission.EscalationInterval,
	})
	if err := escalationWorker.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start escalation worker: %v", err))
	}

	appLog.Info(fmt.Sprintf("Escalation Worker started (interval %s, stale after %s)",
		cfg.Admission.EscalationInterval, cfg.Admission.EscalationStaleAfter))

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down worker...")
	cancel()
	escalationWorker.Stop()

	stats := escalationWorker.GetStats()
	appLog.Info(fmt.Sprintf("Worker exited gracefully (sweeps %d, escalated %d, failed %d)",
		stats.TotalSweeps, stats.TotalEscalated, stats.TotalFailed))

	_ = telemetry.Shutdown(context.Background())
}
