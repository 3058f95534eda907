package handlers

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"triageapp/internal/api"
	"triageapp/internal/config"
	"triageapp/internal/middleware"
	"triageapp/internal/observability"
	"triageapp/internal/serviceinterfaces"
	"triageapp/internal/storage"
	contextutils "triageapp/internal/utils"
	"triageapp/internal/version"
)

// IMPORTANT: When adding new API endpoints, make sure to:
// 1. Add the request and response bodies to internal/api so the Go client can share them
// 2. Add the matching method to internal/client/apiclient
// 3. Consider if the endpoint should be public, user or admin-only

// RateLimiters groups the optional per-user write limiters. Nil or disabled limiters let every request through.
type RateLimiters struct {
	Reports  *middleware.RateLimiter
	Messages *middleware.RateLimiter
}

func limit(rl *middleware.RateLimiter) gin.HandlerFunc {
	if rl == nil || !rl.Enabled() {
		return func(c *gin.Context) { c.Next() }
	}
	return rl.Middleware()
}

func healthHandler(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, api.HealthResponse{
			Status:  "ok",
			Service: service,
			Version: version.Version,
			Commit:  version.Commit,
		})
	}
}

// baseRouter installs the middleware shared by the API and worker servers
func baseRouter(cfg *config.Config, service string, logger *observability.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(middleware.ErrorRecoveryMiddleware(logger, middleware.ErrorRecoveryConfigFrom(cfg.Server.CircuitBreaker)))
	router.Use(observability.RequestLogger(logger))

	// Health check endpoint (defined before tracing so probes stay out of traces)
	router.GET("/health", healthHandler(service))

	router.Use(observability.GinMiddlewareWithErrorHandling(service)...)

	// Disable automatic redirection for trailing slashes, which is better for APIs
	router.RedirectTrailingSlash = false

	router.NoRoute(func(c *gin.Context) {
		HandleAppError(c, contextutils.WrapError(contextutils.ErrRecordNotFound, "route not found"))
	})
	return router
}

// NewRouter creates the API server router with all the necessary middleware and routes
func NewRouter(
	cfg *config.Config,
	reportService serviceinterfaces.ReportServiceInterface,
	analysisService serviceinterfaces.AnalysisServiceInterface,
	satisfactionService serviceinterfaces.SatisfactionServiceInterface,
	mediaService serviceinterfaces.MediaServiceInterface,
	userService serviceinterfaces.UserServiceInterface,
	apiKeyService serviceinterfaces.AuthAPIKeyServiceInterface,
	limiters RateLimiters,
	logger *observability.Logger,
) *gin.Engine {
	router := baseRouter(cfg, "triage-api", logger)

	// Setup CORS middleware
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{cfg.Server.AppBaseURL}
	}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Requested-With"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"}
	router.Use(cors.New(corsConfig))

	// Setup session middleware
	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	sessionOpts := sessions.Options{
		Path:     config.SessionPath,
		MaxAge:   int(config.SessionMaxAge.Seconds()),
		HttpOnly: config.SessionHTTPOnly,
		Secure:   config.SessionSecure,
	}
	if cfg.Server.Debug {
		sessionOpts.SameSite = http.SameSiteDefaultMode
	} else {
		sessionOpts.SameSite = http.SameSiteLaxMode
		sessionOpts.Secure = true
	}
	store.Options(sessionOpts)
	router.Use(sessions.Sessions(config.SessionName, store))

	// Security middleware
	secureConfig := secure.DefaultConfig()
	secureConfig.SSLRedirect = false
	secureConfig.ContentSecurityPolicy = config.DefaultCSP
	router.Use(secure.New(secureConfig))

	// Media written by the filesystem driver is served directly
	if cfg.Storage.Driver == storage.DriverFilesystem {
		router.Static("/media", cfg.Storage.Filesystem.Root)
	}

	reportHandler := NewReportHandler(reportService, analysisService, satisfactionService, userService, cfg, logger)
	adminHandler := NewAdminHandler(reportService, analysisService, cfg, logger)
	uploadHandler := NewUploadHandler(mediaService, cfg, logger)
	sessionHandler := NewSessionHandler(logger)

	requireAuth := middleware.RequireAuth(userService, apiKeyService)

	v1 := router.Group("/v1")
	{
		v1.DELETE("/session", sessionHandler.DeleteSession)

		authed := v1.Group("")
		authed.Use(requireAuth)
		{
			authed.GET("/me", reportHandler.GetMe)
			authed.POST("/session", sessionHandler.CreateSession)

			authed.POST("/uploads/presign", uploadHandler.PresignUpload)
			authed.PUT("/uploads/:uploadKey", uploadHandler.UploadBlob)

			authed.POST("/reports", limit(limiters.Reports), reportHandler.CreateReport)
			authed.GET("/reports", reportHandler.ListMyReports)
			authed.GET("/reports/:id", reportHandler.GetReport)
			authed.POST("/reports/:id/messages", limit(limiters.Messages), reportHandler.AddMessage)
			authed.POST("/reports/:id/satisfaction", reportHandler.SubmitSatisfaction)
			authed.GET("/reports/:id/analysis/latest", reportHandler.GetLatestAnalysis)
		}

		admin := v1.Group("/admin")
		admin.Use(requireAuth, middleware.RequireAdmin())
		{
			admin.GET("/reports", adminHandler.ListReports)
			admin.PUT("/reports/:id/status", adminHandler.UpdateStatus)
			admin.PUT("/reports/:id/assignee", adminHandler.AssignReport)
			admin.POST("/reports/:id/archive", adminHandler.ArchiveReport)
			admin.POST("/reports/:id/analysis", adminHandler.StartAnalysis)
			admin.GET("/reports/:id/analysis", adminHandler.ListJobs)
		}
	}

	// Automatic route listing at root path
	routeListing := NewRouteListingHandler("triage-api")
	router.GET("/", routeListing.GetRouteListing)
	routeListing.CollectRoutes(router)

	return router
}

// NewWorkerRouter creates the worker's admin router
func NewWorkerRouter(
	cfg *config.Config,
	w WorkerController,
	userService serviceinterfaces.UserServiceInterface,
	apiKeyService serviceinterfaces.AuthAPIKeyServiceInterface,
	logger *observability.Logger,
) *gin.Engine {
	router := baseRouter(cfg, "triage-worker", logger)

	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	router.Use(sessions.Sessions(config.SessionName, store))

	workerHandler := NewWorkerAdminHandler(w, logger)

	v1 := router.Group("/v1/worker")
	v1.Use(middleware.RequireAuth(userService, apiKeyService), middleware.RequireAdmin())
	{
		v1.GET("/status", workerHandler.GetWorkerStatus)
		v1.GET("/details", workerHandler.GetWorkerDetails)
		v1.GET("/logs", workerHandler.GetActivityLogs)
		v1.POST("/pause", workerHandler.PauseWorker)
		v1.POST("/resume", workerHandler.ResumeWorker)
		v1.POST("/trigger", workerHandler.TriggerWorkerRun)
	}

	routeListing := NewRouteListingHandler("triage-worker")
	router.GET("/", routeListing.GetRouteListing)
	routeListing.CollectRoutes(router)

	return router
}
