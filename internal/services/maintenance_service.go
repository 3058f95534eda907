package services

import (
	"context"
	"errors"
	"time"

	"triageapp/internal/config"
	"triageapp/internal/observability"
	"triageapp/internal/serviceinterfaces"

	"go.opentelemetry.io/otel/attribute"
)

// MaintenanceStats counts what one maintenance run changed
type MaintenanceStats struct {
	ReportsClosed   int   `json:"reports_closed"`
	StaleJobsFailed int64 `json:"stale_jobs_failed"`
	UploadsExpired  int64 `json:"uploads_expired"`
}

// MaintenanceService runs the periodic housekeeping for reports, jobs and uploads
type MaintenanceService struct {
	reports  serviceinterfaces.ReportServiceInterface
	analysis serviceinterfaces.AnalysisServiceInterface
	media    serviceinterfaces.MediaServiceInterface
	cfg      *config.Config
	logger   *observability.Logger
}

// NewMaintenanceService creates a new MaintenanceService. media may be nil when uploads are disabled.
func NewMaintenanceService(reports serviceinterfaces.ReportServiceInterface, analysis serviceinterfaces.AnalysisServiceInterface, media serviceinterfaces.MediaServiceInterface, cfg *config.Config, logger *observability.Logger) *MaintenanceService {
	if reports == nil || analysis == nil {
		panic("NewMaintenanceService: reports and analysis services are required")
	}
	return &MaintenanceService{reports: reports, analysis: analysis, media: media, cfg: cfg, logger: logger}
}

// RunFullMaintenance performs every task. A failing task does not stop the others.
func (m *MaintenanceService) RunFullMaintenance(ctx context.Context) (stats MaintenanceStats, err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "run_full_maintenance")
	defer observability.FinishSpan(span, &err)

	start := time.Now()
	m.logger.Info(ctx, "Starting maintenance", map[string]interface{}{"start_time": start.Format(time.RFC3339)})

	var errs []error

	closed, closeErr := m.reports.AutoCloseResolved(ctx, m.cfg.Reports.AutoCloseAfter)
	if closeErr != nil {
		m.logger.Error(ctx, "Failed to auto-close resolved reports", closeErr)
		errs = append(errs, closeErr)
	}
	stats.ReportsClosed = closed

	staleAfter := m.cfg.Worker.StaleJobAfter
	if staleAfter <= 0 {
		staleAfter = 2 * config.AIRequestTimeout
	}
	failed, staleErr := m.analysis.FailStaleJobs(ctx, staleAfter)
	if staleErr != nil {
		m.logger.Error(ctx, "Failed to fail stale analysis jobs", staleErr)
		errs = append(errs, staleErr)
	}
	stats.StaleJobsFailed = failed

	if m.media != nil {
		expired, mediaErr := m.media.CleanupExpired(ctx)
		if mediaErr != nil {
			m.logger.Error(ctx, "Failed to clean up expired uploads", mediaErr)
			errs = append(errs, mediaErr)
		}
		stats.UploadsExpired = expired
	}

	span.SetAttributes(
		attribute.Int("maintenance.reports_closed", stats.ReportsClosed),
		attribute.Int64("maintenance.stale_jobs_failed", stats.StaleJobsFailed),
		attribute.Int64("maintenance.uploads_expired", stats.UploadsExpired),
	)
	m.logger.Info(ctx, "Maintenance completed", map[string]interface{}{
		"reports_closed":    stats.ReportsClosed,
		"stale_jobs_failed": stats.StaleJobsFailed,
		"uploads_expired":   stats.UploadsExpired,
		"duration":          time.Since(start).String(),
	})
	return stats, errors.Join(errs...)
}
