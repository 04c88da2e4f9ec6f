package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/crowdsense/internal/di"
	"github.com/prohmpiriya/crowdsense/internal/metrics"
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
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting CrowdSense admission service...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing and metrics
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
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

	infra, err := di.OpenInfra(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to open infrastructure: %v", err))
	}
	defer infra.Close()

	// Side effects run on a bounded pool so a slow broker never stalls a scan
	dispatcher := worker.NewDispatcher(&worker.DispatcherConfig{
		WorkerCount: cfg.Admission.DispatchWorkers,
		QueueSize:   cfg.Admission.DispatchQueueSize,
	})
	if err := dispatcher.Start(); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start dispatcher: %v", err))
	}

	container, err := di.NewContainer(&di.ContainerConfig{
		Config:     cfg,
		Repos:      infra.Repos,
		DB:         infra.DB,
		Redis:      infra.Redis,
		Producer:   infra.Producer,
		Dispatcher: dispatcher,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to build container: %v", err))
	}

	var escalationWorker *worker.EscalationWorker
	if cfg.Admission.RunEscalationInAPI {
		escalationWorker = worker.NewEscalationWorker(container.EscalationSweeper, &worker.EscalationWorkerConfig{
			Interval: cfg.Admission.EscalationInterval,
		})
		if err := escalationWorker.Start(ctx); err != nil {
			appLog.Fatal(fmt.Sprintf("Failed to start escalation worker: %v", err))
		}
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := container.Router(appLog)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start server in goroutine
	go func() {
		appLog.Info(fmt.Sprintf("Admission service listening on %s (store: %s)", addr, cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error(fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	if escalationWorker != nil {
		escalationWorker.Stop()
	}
	// Drain queued broadcasts and notifications before the producer closes
	dispatcher.Stop()
	stats := dispatcher.GetStats()
	appLog.Info(fmt.Sprintf("Dispatcher drained (completed %d, failed %d, dropped %d)", stats.Completed, stats.Failed, stats.Dropped))

	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Warn(fmt.Sprintf("Telemetry shutdown: %v", err))
	}

	appLog.Info("Server exited gracefully")
}
