// Package main provides the main entry point for the triage API server.
// It sets up the HTTP server, database connections, middleware, and API routes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"triageapp/internal/config"
	"triageapp/internal/di"
	"triageapp/internal/handlers"
	"triageapp/internal/observability"
	contextutils "triageapp/internal/utils"
	"triageapp/internal/worker"

	"github.com/gin-gonic/gin"
)

// Application encapsulates the main application logic and can be tested
type Application struct {
	container *di.ServiceContainer
	router    *gin.Engine
	worker    *worker.Worker
	servers   []*http.Server
}

// NewApplication creates a new application instance
func NewApplication(container *di.ServiceContainer) (*Application, error) {
	reportService, err := container.GetReportService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get report service")
	}
	analysisService, err := container.GetAnalysisService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get analysis service")
	}
	satisfactionService, err := container.GetSatisfactionService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get satisfaction service")
	}
	mediaService, err := container.GetMediaService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get media service")
	}
	userService, err := container.GetUserService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get user service")
	}
	apiKeyService, err := container.GetAPIKeyService()
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get API key service")
	}

	reportLimiter, messageLimiter := container.RateLimiters()
	router := handlers.NewRouter(
		container.GetConfig(),
		reportService,
		analysisService,
		satisfactionService,
		mediaService,
		userService,
		apiKeyService,
		handlers.RateLimiters{Reports: reportLimiter, Messages: messageLimiter},
		container.GetLogger(),
	)

	app := &Application{container: container, router: router}

	// dev mode: run the worker in this process
	if container.GetConfig().Worker.Embedded {
		maintenance, err := container.GetMaintenanceService()
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to get maintenance service")
		}
		app.worker = worker.NewWorker(analysisService, maintenance, container.GetQueue(), "embedded", container.GetConfig(), container.GetLogger())
	}
	return app, nil
}

// Run starts the application and returns an error if it fails to start
func (a *Application) Run(ctx context.Context, port string) error {
	cfg := a.container.GetConfig()
	logger := a.container.GetLogger()
	serverErr := make(chan error, 2)

	a.servers = append(a.servers, &http.Server{Addr: ":" + port, Handler: a.router, ReadHeaderTimeout: 10 * time.Second})

	if a.worker != nil {
		go func() {
			if err := a.worker.Start(ctx); err != nil {
				serverErr <- contextutils.WrapError(err, "embedded worker failed")
			}
		}()
		userService, _ := a.container.GetUserService()
		apiKeyService, _ := a.container.GetAPIKeyService()
		workerRouter := handlers.NewWorkerRouter(cfg, a.worker, userService, apiKeyService, logger)
		a.servers = append(a.servers, &http.Server{Addr: ":" + cfg.Server.WorkerPort, Handler: workerRouter, ReadHeaderTimeout: 10 * time.Second})
	}

	for _, srv := range a.servers {
		srv := srv
		go func() {
			logger.Info(ctx, "HTTP server listening", map[string]interface{}{"addr": srv.Addr})
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil // Context cancelled, graceful shutdown
	case err := <-serverErr:
		return contextutils.WrapError(err, "server failed")
	}
}

// Shutdown gracefully shuts down the application
func (a *Application) Shutdown(ctx context.Context) error {
	logger := a.container.GetLogger()
	for _, srv := range a.servers {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn(ctx, "HTTP server did not stop cleanly", map[string]interface{}{"addr": srv.Addr, "error": err.Error()})
		}
	}
	if a.worker != nil {
		if err := a.worker.Shutdown(ctx); err != nil {
			logger.Warn(ctx, "Embedded worker did not stop cleanly", map[string]interface{}{"error": err.Error()})
		}
	}
	return a.container.Shutdown(ctx)
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup observability (tracing/metrics/logging)
	tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "triage-backend")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.TelemetryFlushTimeout)
		defer shutdownCancel()
		observability.ShutdownObservability(shutdownCtx, tp, mp, logger)
	}()

	logger.Info(ctx, "Starting triage backend service", map[string]interface{}{
		"port":            cfg.Server.Port,
		"logLevel":        cfg.Server.LogLevel,
		"embedded_worker": cfg.Worker.Embedded,
	})

	// Initialize dependency injection container
	container := di.NewServiceContainer(cfg, logger, di.RoleAPI)
	if err := container.Initialize(ctx); err != nil {
		logger.Error(ctx, "Failed to initialize services", err, nil)
		os.Exit(1)
	}

	app, err := NewApplication(container)
	if err != nil {
		logger.Error(ctx, "Failed to create application", err, nil)
		os.Exit(1)
	}

	appErr := make(chan error, 1)
	go func() {
		if err := app.Run(ctx, cfg.Server.Port); err != nil {
			appErr <- err
		}
	}()

	// Wait for shutdown signal or application error
	select {
	case <-shutdownCh:
		logger.Info(ctx, "Received shutdown signal, shutting down gracefully", nil)
	case err := <-appErr:
		logger.Error(ctx, "Application failed", err, nil)
		os.Exit(1)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Error during application shutdown", err, nil)
		os.Exit(1)
	}

	logger.Info(ctx, "Shutdown completed successfully", nil)
}
