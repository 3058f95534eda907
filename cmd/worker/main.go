// Package main provides the entry point for the triage analysis worker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"triageapp/internal/config"
	"triageapp/internal/di"
	"triageapp/internal/handlers"
	"triageapp/internal/observability"
	"triageapp/internal/worker"
)

// fatalIfErr logs the error with context and panics with a consistent message
func fatalIfErr(ctx context.Context, logger *observability.Logger, msg string, err error, fields map[string]interface{}) {
	logger.Error(ctx, msg, err, fields)
	panic(msg + ": " + err.Error())
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Setup observability (tracing/metrics/logging)
	tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "triage-worker")
	if err != nil {
		panic("Failed to initialize observability: " + err.Error())
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.TelemetryFlushTimeout)
		defer shutdownCancel()
		observability.ShutdownObservability(shutdownCtx, tp, mp, logger)
	}()

	logger.Info(ctx, "Starting triage worker service", map[string]interface{}{
		"port":     cfg.Server.WorkerPort,
		"logLevel": cfg.Server.LogLevel,
		"debug":    cfg.Server.Debug,
	})

	container := di.NewServiceContainer(cfg, logger, di.RoleWorker)
	if err := container.Initialize(ctx); err != nil {
		fatalIfErr(ctx, logger, "Failed to initialize services", err, nil)
	}
	defer func() {
		if err := container.Shutdown(context.Background()); err != nil {
			logger.Warn(ctx, "Warning: failed to release resources", map[string]interface{}{"error": err.Error()})
		}
	}()

	analysisService, err := container.GetAnalysisService()
	if err != nil {
		fatalIfErr(ctx, logger, "Failed to get analysis service", err, nil)
	}
	maintenanceService, err := container.GetMaintenanceService()
	if err != nil {
		fatalIfErr(ctx, logger, "Failed to get maintenance service", err, nil)
	}
	userService, err := container.GetUserService()
	if err != nil {
		fatalIfErr(ctx, logger, "Failed to get user service", err, nil)
	}
	apiKeyService, err := container.GetAPIKeyService()
	if err != nil {
		fatalIfErr(ctx, logger, "Failed to get API key service", err, nil)
	}

	instance, _ := os.Hostname()
	workerInstance := worker.NewWorker(analysisService, maintenanceService, container.GetQueue(), instance, cfg, logger)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			fatalIfErr(ctx, logger, "Worker failed to start", err, map[string]interface{}{"schedule": cfg.Worker.MaintenanceSchedule})
		}
	}()

	router := handlers.NewWorkerRouter(cfg, workerInstance, userService, apiKeyService, logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Server.WorkerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info(ctx, "Worker server starting", map[string]interface{}{"port": cfg.Server.WorkerPort, "queue": container.QueueBackend()})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatalIfErr(ctx, logger, "Failed to start worker server", err, map[string]interface{}{"port": cfg.Server.WorkerPort})
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info(ctx, "Worker server shutting down", map[string]interface{}{"service": "worker"})
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.WorkerShutdownTimeout)
	defer shutdownCancel()

	// Shutdown the worker first
	if err := workerInstance.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, "Warning: failed to shutdown worker", map[string]interface{}{"error": err.Error(), "service": "worker"})
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Worker server forced to shutdown", err, map[string]interface{}{"service": "worker"})
	}

	logger.Info(ctx, "Worker server exited", map[string]interface{}{"service": "worker"})
}
