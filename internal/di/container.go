// Package di provides dependency injection container for managing service lifecycle and dependencies.
package di

import (
	"context"
	"database/sql"
	"sync"

	"triageapp/internal/config"
	"triageapp/internal/database"
	"triageapp/internal/helpdocs"
	"triageapp/internal/middleware"
	"triageapp/internal/observability"
	"triageapp/internal/queue"
	"triageapp/internal/serviceinterfaces"
	"triageapp/internal/services"
	"triageapp/internal/storage"
	contextutils "triageapp/internal/utils"

	"github.com/redis/go-redis/v9"
)

// channelQueueSize bounds the in-process queue used by an embedded worker
const channelQueueSize = 256

// Role selects which optional parts the container builds
type Role int

// Roles
const (
	// RoleAPI builds everything the HTTP API needs; the analyzer is left out
	RoleAPI Role = iota
	// RoleWorker also builds the analyzer
	RoleWorker
	// RoleCLI builds the services without queue or analyzer
	RoleCLI
)

// ServiceContainer manages all service dependencies and lifecycle
type ServiceContainer struct {
	cfg    *config.Config
	logger *observability.Logger
	role   Role

	dbManager *database.Manager
	db        *sql.DB
	redis     *redis.Client
	queue     queue.Queue

	services      map[string]interface{}
	mu            sync.RWMutex
	shutdownFuncs []func(context.Context) error
}

// NewServiceContainer creates a new dependency injection container
func NewServiceContainer(cfg *config.Config, logger *observability.Logger, role Role) *ServiceContainer {
	return &ServiceContainer{
		cfg:      cfg,
		logger:   logger,
		role:     role,
		services: make(map[string]interface{}),
	}
}

// Initialize sets up all services and their dependencies
func (sc *ServiceContainer) Initialize(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	// Only the API server migrates; workers and CLI tools expect the schema in place
	sc.dbManager = database.NewManager(sc.logger)
	var db *sql.DB
	var err error
	if sc.role == RoleAPI {
		db, err = sc.dbManager.InitDBWithConfig(sc.cfg.Database)
	} else {
		db, err = sc.dbManager.InitDBWithoutMigrations(sc.cfg.Database)
	}
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to initialize database")
	}
	sc.db = db
	sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
		return db.Close()
	})

	if err := sc.initializeRedis(ctx); err != nil {
		_ = sc.cleanup(ctx)
		return err
	}

	if err := sc.initializeServices(ctx); err != nil {
		_ = sc.cleanup(ctx)
		return contextutils.WrapErrorf(err, "failed to initialize services")
	}
	return nil
}

// initializeRedis connects the optional Redis client and picks the job queue
func (sc *ServiceContainer) initializeRedis(ctx context.Context) error {
	client, err := database.NewRedisClient(ctx, sc.cfg.Redis, sc.logger)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to initialize redis")
	}
	if client != nil {
		sc.redis = client
		sc.shutdownFuncs = append(sc.shutdownFuncs, func(_ context.Context) error {
			return client.Close()
		})
	}

	if sc.role == RoleCLI {
		return nil
	}
	switch {
	case client != nil:
		sc.queue = queue.NewRedisQueue(client, sc.cfg.Redis.QueueKey)
	case sc.cfg.Worker.Embedded:
		sc.queue = queue.NewChannelQueue(channelQueueSize)
	default:
		sc.logger.Warn(ctx, "Redis is not configured, analysis jobs are picked up by the worker poll only", nil)
	}
	return nil
}

// initializeServices sets up all service dependencies
func (sc *ServiceContainer) initializeServices(ctx context.Context) error {
	// Repositories
	reportRepo := services.NewReportRepository(sc.db, sc.logger)
	satisfactionRepo := services.NewSatisfactionRepository(sc.db, sc.logger)
	jobRepo := services.NewAnalysisJobRepository(sc.db, sc.logger)
	mediaRepo := services.NewMediaUploadRepository(sc.db, sc.logger)

	// Core services that don't depend on other services
	userService := services.NewUserServiceWithLogger(sc.db, sc.logger)
	sc.services["user"] = userService
	sc.services["api_key"] = services.NewAuthAPIKeyService(sc.db, sc.logger)

	emailService := services.CreateEmailService(sc.cfg, sc.logger)
	sc.services["email"] = emailService
	notifier := services.NewNotificationService(userService, emailService, sc.cfg, sc.logger)

	reportService := services.NewReportService(reportRepo, satisfactionRepo, jobRepo, userService, notifier, sc.cfg, sc.logger)
	sc.services["report"] = reportService
	sc.services["satisfaction"] = services.NewSatisfactionService(reportRepo, satisfactionRepo, sc.logger)

	store, err := storage.New(ctx, sc.cfg.Storage)
	if err != nil {
		return contextutils.WrapErrorf(err, "failed to initialize %s storage", sc.cfg.Storage.Driver)
	}
	mediaService := services.NewMediaService(mediaRepo, store, sc.cfg.Storage, sc.logger)
	sc.services["media"] = mediaService

	var analyzer services.Analyzer
	if sc.role == RoleWorker || (sc.role == RoleAPI && sc.cfg.Worker.Embedded) {
		analyzer, err = sc.buildAnalyzer(ctx)
		if err != nil {
			return err
		}
	}
	analysisService := services.NewAnalysisService(jobRepo, reportRepo, analyzer, sc.queue, sc.logger)
	sc.services["analysis"] = analysisService

	sc.services["maintenance"] = services.NewMaintenanceService(reportService, analysisService, mediaService, sc.cfg, sc.logger)

	sc.logger.Info(ctx, "Services initialized", map[string]interface{}{
		"storage_driver":  store.Driver(),
		"queue_backend":   sc.QueueBackend(),
		"analyzer":        analyzer != nil,
		"email_enabled":   emailService.IsEnabled(),
		"redis_available": sc.redis != nil,
	})
	return nil
}

func (sc *ServiceContainer) buildAnalyzer(ctx context.Context) (services.Analyzer, error) {
	catalog := helpdocs.Default()
	if path := sc.cfg.Analysis.DocsCatalog; path != "" {
		loaded, err := helpdocs.Load(path)
		if err != nil {
			return nil, contextutils.WrapErrorf(err, "failed to load help-center catalog %s", path)
		}
		catalog = loaded
	}
	analyzer, err := services.NewTriageAnalyzer(sc.cfg.Analysis, catalog, sc.logger)
	if err != nil {
		return nil, err
	}
	sc.logger.Info(ctx, "Triage analyzer ready", map[string]interface{}{
		"provider":     sc.cfg.Analysis.Provider.Name,
		"model":        sc.cfg.Analysis.Provider.Model,
		"docs_entries": catalog.Len(),
	})
	return analyzer, nil
}

// GetService retrieves a service by name with type assertion
func (sc *ServiceContainer) GetService(name string) (interface{}, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	service, exists := sc.services[name]
	if !exists {
		return nil, contextutils.ErrorWithContextf("service %s not found", name)
	}
	return service, nil
}

// GetServiceAs performs type-safe service retrieval
func GetServiceAs[T any](sc *ServiceContainer, name string) (T, error) {
	var zero T
	service, err := sc.GetService(name)
	if err != nil {
		return zero, err
	}

	typed, ok := service.(T)
	if !ok {
		return zero, contextutils.ErrorWithContextf("service %s is not of expected type %T", name, zero)
	}
	return typed, nil
}

// GetUserService returns the user service
func (sc *ServiceContainer) GetUserService() (serviceinterfaces.UserServiceInterface, error) {
	return GetServiceAs[serviceinterfaces.UserServiceInterface](sc, "user")
}

// GetAPIKeyService returns the API key service
func (sc *ServiceContainer) GetAPIKeyService() (serviceinterfaces.AuthAPIKeyServiceInterface, error) {
	return GetServiceAs[serviceinterfaces.AuthAPIKeyServiceInterface](sc, "api_key")
}

// GetReportService returns the report lifecycle manager
func (sc *ServiceContainer) GetReportService() (serviceinterfaces.ReportServiceInterface, error) {
	return GetServiceAs[serviceinterfaces.ReportServiceInterface](sc, "report")
}

// GetAnalysisService returns the analysis job runner
func (sc *ServiceContainer) GetAnalysisService() (serviceinterfaces.AnalysisServiceInterface, error) {
	return GetServiceAs[serviceinterfaces.AnalysisServiceInterface](sc, "analysis")
}

// GetSatisfactionService returns the satisfaction service
func (sc *ServiceContainer) GetSatisfactionService() (serviceinterfaces.SatisfactionServiceInterface, error) {
	return GetServiceAs[serviceinterfaces.SatisfactionServiceInterface](sc, "satisfaction")
}

// GetMediaService returns the media upload service
func (sc *ServiceContainer) GetMediaService() (serviceinterfaces.MediaServiceInterface, error) {
	return GetServiceAs[serviceinterfaces.MediaServiceInterface](sc, "media")
}

// GetMaintenanceService returns the maintenance service
func (sc *ServiceContainer) GetMaintenanceService() (*services.MaintenanceService, error) {
	return GetServiceAs[*services.MaintenanceService](sc, "maintenance")
}

// GetEmailService returns the email service
func (sc *ServiceContainer) GetEmailService() (serviceinterfaces.EmailService, error) {
	return GetServiceAs[serviceinterfaces.EmailService](sc, "email")
}

// RateLimiters builds the per-user write limiters. They are disabled without Redis.
func (sc *ServiceContainer) RateLimiters() (reports, messages *middleware.RateLimiter) {
	window := sc.cfg.Reports.RateLimitWindow
	reports = middleware.NewRateLimiter(sc.redis, middleware.RateLimitConfig{
		Window:    window,
		Limit:     sc.cfg.Reports.MaxReportsPerUser,
		KeyPrefix: "triage:rate_limit:reports",
	}, sc.logger)
	messages = middleware.NewRateLimiter(sc.redis, middleware.RateLimitConfig{
		Window:    window,
		Limit:     sc.cfg.Reports.MaxMessagesPerUser,
		KeyPrefix: "triage:rate_limit:messages",
	}, sc.logger)
	return reports, messages
}

// GetQueue returns the job queue; nil when jobs travel only through the database poll
func (sc *ServiceContainer) GetQueue() queue.Queue {
	return sc.queue
}

// QueueBackend names the active queue backend
func (sc *ServiceContainer) QueueBackend() string {
	if sc.queue == nil {
		return "none"
	}
	return sc.queue.Backend()
}

// GetDatabase returns the database instance
func (sc *ServiceContainer) GetDatabase() *sql.DB {
	return sc.db
}

// GetDatabaseManager returns the database manager used for migrations
func (sc *ServiceContainer) GetDatabaseManager() *database.Manager {
	return sc.dbManager
}

// GetConfig returns the configuration
func (sc *ServiceContainer) GetConfig() *config.Config {
	return sc.cfg
}

// GetLogger returns the logger
func (sc *ServiceContainer) GetLogger() *observability.Logger {
	return sc.logger
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	return sc.cleanup(ctx)
}

// cleanup runs the shutdown functions in reverse order of initialization
func (sc *ServiceContainer) cleanup(ctx context.Context) error {
	var errors []error
	for i := len(sc.shutdownFuncs) - 1; i >= 0; i-- {
		if err := sc.shutdownFuncs[i](ctx); err != nil {
			sc.logger.Error(ctx, "Shutdown step failed", err, nil)
			errors = append(errors, err)
		}
	}
	sc.shutdownFuncs = nil

	if len(errors) > 0 {
		return contextutils.ErrorWithContextf("shutdown errors: %v", errors)
	}
	return nil
}
