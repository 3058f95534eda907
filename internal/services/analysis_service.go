package services

import (
	"context"
	"errors"
	"time"

	"triageapp/internal/models"
	"triageapp/internal/observability"
	"triageapp/internal/queue"
	"triageapp/internal/serviceinterfaces"
	contextutils "triageapp/internal/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// FallbackAnalysisError is stored when a failure carries no message
	FallbackAnalysisError = "analysis failed"
	// StaleJobError is stored on processing jobs abandoned by a worker
	StaleJobError = "analysis timed out"

	maxStoredErrorLength = 1000
)

// Analyzer produces a triage analysis for one report
type Analyzer interface {
	Analyze(ctx context.Context, in models.AnalysisInput) (*models.AnalysisOutput, error)
}

// AnalysisService creates analysis jobs and runs them
type AnalysisService struct {
	jobs     AnalysisJobRepository
	reports  ReportRepository
	analyzer Analyzer
	queue    queue.Queue
	metrics  *observability.TriageMetrics
	logger   *observability.Logger
	now      func() time.Time
}

var _ serviceinterfaces.AnalysisServiceInterface = (*AnalysisService)(nil)

// NewAnalysisService creates a new AnalysisService. analyzer may be nil on the API server, which only creates jobs.
func NewAnalysisService(jobs AnalysisJobRepository, reports ReportRepository, analyzer Analyzer, q queue.Queue, logger *observability.Logger) *AnalysisService {
	if jobs == nil || reports == nil {
		panic("NewAnalysisService: repositories are required")
	}
	return &AnalysisService{
		jobs:     jobs,
		reports:  reports,
		analyzer: analyzer,
		queue:    q,
		metrics:  observability.NewTriageMetrics(),
		logger:   logger,
		now:      time.Now,
	}
}

// StartJob records a new pending job and hands it to the queue. Earlier jobs are kept; the newest one wins.
func (s *AnalysisService) StartJob(ctx context.Context, requestedBy models.Actor, reportID string, opts models.JobOptions) (result *models.AnalysisJob, err error) {
	ctx, span := observability.TraceAnalysisFunction(ctx, "start_job",
		observability.AttributeReportID(reportID),
		attribute.Bool("job.include_screenshot", opts.IncludeScreenshot),
		attribute.Bool("job.include_video", opts.IncludeVideo),
	)
	defer observability.FinishSpan(span, &err)

	if _, err = s.reports.GetByID(ctx, reportID); err != nil {
		return nil, err
	}

	job := &models.AnalysisJob{
		ID:                uuid.NewString(),
		ReportID:          reportID,
		Status:            models.JobPending,
		IncludeScreenshot: opts.IncludeScreenshot,
		IncludeVideo:      opts.IncludeVideo,
	}
	if requestedBy.UserID != 0 {
		job.RequestedBy.Int32 = int32(requestedBy.UserID)
		job.RequestedBy.Valid = true
	}
	if err = s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	span.SetAttributes(observability.AttributeJobID(job.ID))

	// the worker also polls for pending jobs, so a failed enqueue only delays processing
	if s.queue != nil {
		if qerr := s.queue.Enqueue(ctx, job.ID); qerr != nil {
			s.logger.Warn(ctx, "Failed to enqueue analysis job, worker poll will pick it up", map[string]interface{}{
				"job_id":    job.ID,
				"report_id": reportID,
				"backend":   s.queue.Backend(),
				"error":     qerr.Error(),
			})
		}
	}

	s.logger.Info(ctx, "Analysis job created", map[string]interface{}{
		"job_id":       job.ID,
		"report_id":    reportID,
		"requested_by": requestedBy.UserID,
	})
	return job, nil
}

// LatestJob returns the authoritative job for a report or ErrRecordNotFound
func (s *AnalysisService) LatestJob(ctx context.Context, reportID string) (result *models.AnalysisJob, err error) {
	ctx, span := observability.TraceAnalysisFunction(ctx, "latest_job", observability.AttributeReportID(reportID))
	defer observability.FinishSpan(span, &err)

	return s.jobs.Latest(ctx, reportID)
}

// ListJobs returns every job of a report, newest first
func (s *AnalysisService) ListJobs(ctx context.Context, reportID string) (result []models.AnalysisJob, err error) {
	ctx, span := observability.TraceAnalysisFunction(ctx, "list_jobs", observability.AttributeReportID(reportID))
	defer observability.FinishSpan(span, &err)

	if _, err = s.reports.GetByID(ctx, reportID); err != nil {
		return nil, err
	}
	return s.jobs.ListByReport(ctx, reportID)
}

// buildInput attaches only the media the job asked for and the report actually has
func buildInput(report *models.Report, job *models.AnalysisJob) models.AnalysisInput {
	in := models.AnalysisInput{
		ReportID:    report.ID,
		Title:       report.Title,
		Description: report.Description,
		Severity:    report.Severity,
		Category:    report.Category,
		ReportType:  report.ReportType,
		PageURL:     report.PageURL,
		UserAgent:   report.UserAgent,
	}
	if job.IncludeScreenshot && report.HasScreenshot() {
		in.ScreenshotURL = report.ScreenshotURL.String
	}
	if job.IncludeVideo && report.HasVideo() {
		in.VideoURL = report.VideoURL.String
	}
	return in
}

func failureMessage(err error) string {
	var appErr *contextutils.AppError
	msg := ""
	if errors.As(err, &appErr) {
		msg = appErr.Message
		if msg == "" {
			msg = appErr.Details
		}
	} else if err != nil {
		msg = err.Error()
	}
	msg = contextutils.TruncateUTF8(msg, maxStoredErrorLength)
	if msg == "" {
		return FallbackAnalysisError
	}
	return msg
}

// ProcessJob claims and runs one job. It reports false when the job was not pending any more.
// Analysis failures are stored on the job; the returned error only covers bookkeeping.
func (s *AnalysisService) ProcessJob(ctx context.Context, jobID string) (processed bool, err error) {
	ctx, span := observability.TraceAnalysisFunction(ctx, "process_job", observability.AttributeJobID(jobID))
	defer observability.FinishSpan(span, &err)

	if s.analyzer == nil {
		return false, contextutils.WrapError(contextutils.ErrAIConfigInvalid, "no analyzer configured")
	}

	job, err := s.jobs.Claim(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job == nil {
		s.logger.Debug(ctx, "Analysis job already claimed", map[string]interface{}{"job_id": jobID})
		return false, nil
	}
	span.SetAttributes(observability.AttributeReportID(job.ReportID))

	start := s.now()
	out, runErr := s.run(ctx, job)
	elapsed := s.now().Sub(start).Milliseconds()

	// results are stored even if the worker is shutting down
	storeCtx := context.WithoutCancel(ctx)
	if runErr != nil {
		msg := failureMessage(runErr)
		s.logger.Warn(ctx, "Analysis job failed", map[string]interface{}{
			"job_id":    job.ID,
			"report_id": job.ReportID,
			"error":     msg,
		})
		if err = s.jobs.Fail(storeCtx, job.ID, msg, elapsed); err != nil {
			return true, err
		}
		s.metrics.AnalysisFinished(ctx, string(models.JobFailed), elapsed)
		return true, nil
	}

	if err = s.jobs.Complete(storeCtx, job.ID, out, elapsed); err != nil {
		return true, err
	}
	s.metrics.AnalysisFinished(ctx, string(models.JobCompleted), elapsed)
	s.logger.Info(ctx, "Analysis job completed", map[string]interface{}{
		"job_id":             job.ID,
		"report_id":          job.ReportID,
		"model":              out.ModelUsed,
		"processing_time_ms": elapsed,
		"confidence":         string(out.Result.Confidence),
	})
	return true, nil
}

func (s *AnalysisService) run(ctx context.Context, job *models.AnalysisJob) (*models.AnalysisOutput, error) {
	report, err := s.reports.GetByID(ctx, job.ReportID)
	if err != nil {
		return nil, err
	}
	out, err := s.analyzer.Analyze(ctx, buildInput(report, job))
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, contextutils.WrapError(contextutils.ErrAnalysisFailed, "analyzer returned no result")
	}
	if err := out.Result.Validate(); err != nil {
		return nil, contextutils.WrapError(contextutils.ErrAIResponseInvalid, err.Error())
	}
	return out, nil
}

// PendingJobs lists pending job ids, oldest first
func (s *AnalysisService) PendingJobs(ctx context.Context, limit int) (result []string, err error) {
	ctx, span := observability.TraceAnalysisFunction(ctx, "pending_jobs", attribute.Int("limit", limit))
	defer observability.FinishSpan(span, &err)

	return s.jobs.ListPending(ctx, limit)
}

// FailStaleJobs fails jobs stuck in processing for longer than olderThan
func (s *AnalysisService) FailStaleJobs(ctx context.Context, olderThan time.Duration) (result int64, err error) {
	ctx, span := observability.TraceAnalysisFunction(ctx, "fail_stale_jobs", attribute.String("older_than", olderThan.String()))
	defer observability.FinishSpan(span, &err)

	n, err := s.jobs.FailStale(ctx, s.now().Add(-olderThan), StaleJobError)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn(ctx, "Failed stale analysis jobs", map[string]interface{}{"count": n})
	}
	return n, nil
}
