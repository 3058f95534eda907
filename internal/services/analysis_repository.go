package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"triageapp/internal/models"
	"triageapp/internal/observability"
	contextutils "triageapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// AnalysisJobRepository persists analysis jobs. Jobs are never deleted; superseded jobs stay for audit.
type AnalysisJobRepository interface {
	Create(ctx context.Context, job *models.AnalysisJob) error
	GetByID(ctx context.Context, id string) (*models.AnalysisJob, error)
	// Latest returns the newest job of a report or ErrRecordNotFound
	Latest(ctx context.Context, reportID string) (*models.AnalysisJob, error)
	// ListByReport returns every job of a report, newest first
	ListByReport(ctx context.Context, reportID string) ([]models.AnalysisJob, error)
	// Claim moves a pending job to processing. It returns nil, nil when another worker got there first.
	Claim(ctx context.Context, id string) (*models.AnalysisJob, error)
	Complete(ctx context.Context, id string, out *models.AnalysisOutput, processingMs int64) error
	Fail(ctx context.Context, id, message string, processingMs int64) error
	// ListPending returns ids of pending jobs, oldest first
	ListPending(ctx context.Context, limit int) ([]string, error)
	// FailStale fails processing jobs started before cutoff and returns how many were failed
	FailStale(ctx context.Context, cutoff time.Time, message string) (int64, error)
}

// AnalysisJobRepositoryImpl implements AnalysisJobRepository on PostgreSQL
type AnalysisJobRepositoryImpl struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewAnalysisJobRepository creates a new analysis job repository
func NewAnalysisJobRepository(db *sql.DB, logger *observability.Logger) AnalysisJobRepository {
	return &AnalysisJobRepositoryImpl{db: db, logger: logger}
}

const jobColumns = `id, report_id, requested_by, status, include_screenshot, include_video,
	summary, suggested_cause, confidence, screenshot_analysis, video_analysis, suggested_solutions, related_docs,
	model_used, processing_time_ms, error, created_at, started_at, completed_at`

func scanJob(row rowScanner) (*models.AnalysisJob, error) {
	var j models.AnalysisJob
	var summary, cause, confidence sql.NullString
	var screenshotJSON, videoJSON, solutionsJSON, docsJSON []byte
	err := row.Scan(&j.ID, &j.ReportID, &j.RequestedBy, &j.Status, &j.IncludeScreenshot, &j.IncludeVideo,
		&summary, &cause, &confidence, &screenshotJSON, &videoJSON, &solutionsJSON, &docsJSON,
		&j.ModelUsed, &j.ProcessingTimeMs, &j.Error, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	if j.Status != models.JobCompleted {
		return &j, nil
	}

	result := &models.AnalysisResult{
		Summary:        summary.String,
		SuggestedCause: cause.String,
		Confidence:     models.Confidence(confidence.String),
	}
	if len(screenshotJSON) > 0 {
		if err := json.Unmarshal(screenshotJSON, &result.ScreenshotAnalysis); err != nil {
			return nil, contextutils.WrapError(err, "failed to decode screenshot_analysis")
		}
	}
	if len(videoJSON) > 0 {
		if err := json.Unmarshal(videoJSON, &result.VideoAnalysis); err != nil {
			return nil, contextutils.WrapError(err, "failed to decode video_analysis")
		}
	}
	if err := json.Unmarshal(solutionsJSON, &result.SuggestedSolutions); err != nil {
		return nil, contextutils.WrapError(err, "failed to decode suggested_solutions")
	}
	if err := json.Unmarshal(docsJSON, &result.RelatedDocs); err != nil {
		return nil, contextutils.WrapError(err, "failed to decode related_docs")
	}
	j.Result = result
	return &j, nil
}

// Create inserts a pending job
func (r *AnalysisJobRepositoryImpl) Create(ctx context.Context, job *models.AnalysisJob) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "create_analysis_job",
		observability.AttributeJobID(job.ID),
		observability.AttributeReportID(job.ReportID),
	)
	defer observability.FinishSpan(span, &err)

	query := `INSERT INTO analysis_jobs (id, report_id, requested_by, status, include_screenshot, include_video, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING created_at`
	err = r.db.QueryRowContext(ctx, query, job.ID, job.ReportID, job.RequestedBy, job.Status,
		job.IncludeScreenshot, job.IncludeVideo).Scan(&job.CreatedAt)
	if err != nil {
		return contextutils.WrapError(err, "failed to insert analysis job")
	}
	return nil
}

// GetByID fetches a single job
func (r *AnalysisJobRepositoryImpl) GetByID(ctx context.Context, id string) (result *models.AnalysisJob, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_analysis_job", observability.AttributeJobID(id))
	defer observability.FinishSpan(span, &err)

	job, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.ErrRecordNotFound
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get analysis job")
	}
	return job, nil
}

// Latest picks the greatest created_at, breaking ties by id
func (r *AnalysisJobRepositoryImpl) Latest(ctx context.Context, reportID string) (result *models.AnalysisJob, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "latest_analysis_job", observability.AttributeReportID(reportID))
	defer observability.FinishSpan(span, &err)

	query := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE report_id = $1
		ORDER BY created_at DESC, id DESC LIMIT 1`
	job, err := scanJob(r.db.QueryRowContext(ctx, query, reportID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.ErrRecordNotFound
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get latest analysis job")
	}
	return job, nil
}

// ListByReport returns all jobs of a report, newest first
func (r *AnalysisJobRepositoryImpl) ListByReport(ctx context.Context, reportID string) (result []models.AnalysisJob, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "list_analysis_jobs", observability.AttributeReportID(reportID))
	defer observability.FinishSpan(span, &err)

	rows, err := r.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE report_id = $1
		ORDER BY created_at DESC, id DESC`, reportID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query analysis jobs")
	}
	defer func() {
		_ = rows.Close()
	}()

	jobs := []models.AnalysisJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan analysis job")
		}
		jobs = append(jobs, *job)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate analysis jobs")
	}
	return jobs, nil
}

// Claim atomically moves the job from pending to processing
func (r *AnalysisJobRepositoryImpl) Claim(ctx context.Context, id string) (result *models.AnalysisJob, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "claim_analysis_job", observability.AttributeJobID(id))
	defer observability.FinishSpan(span, &err)

	query := `UPDATE analysis_jobs SET status = 'processing', started_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + jobColumns
	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("analysis.claimed", false))
		return nil, nil
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to claim analysis job")
	}
	span.SetAttributes(attribute.Bool("analysis.claimed", true))
	return job, nil
}

func marshalOptional(v interface{}, present bool) ([]byte, error) {
	if !present {
		return nil, nil
	}
	return json.Marshal(v)
}

// Complete stores the result of a processing job
func (r *AnalysisJobRepositoryImpl) Complete(ctx context.Context, id string, out *models.AnalysisOutput, processingMs int64) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "complete_analysis_job", observability.AttributeJobID(id))
	defer observability.FinishSpan(span, &err)

	res := out.Result
	screenshotJSON, err := marshalOptional(res.ScreenshotAnalysis, res.ScreenshotAnalysis != nil)
	if err != nil {
		return contextutils.WrapError(err, "failed to encode screenshot analysis")
	}
	videoJSON, err := marshalOptional(res.VideoAnalysis, res.VideoAnalysis != nil)
	if err != nil {
		return contextutils.WrapError(err, "failed to encode video analysis")
	}
	solutions := res.SuggestedSolutions
	if solutions == nil {
		solutions = []models.SuggestedSolution{}
	}
	solutionsJSON, err := json.Marshal(solutions)
	if err != nil {
		return contextutils.WrapError(err, "failed to encode suggested solutions")
	}
	docs := res.RelatedDocs
	if docs == nil {
		docs = []models.RelatedDoc{}
	}
	docsJSON, err := json.Marshal(docs)
	if err != nil {
		return contextutils.WrapError(err, "failed to encode related docs")
	}

	query := `UPDATE analysis_jobs SET status = 'completed', summary = $2, suggested_cause = $3, confidence = $4,
			screenshot_analysis = $5, video_analysis = $6, suggested_solutions = $7, related_docs = $8,
			model_used = $9, processing_time_ms = $10, error = NULL, completed_at = NOW()
		WHERE id = $1 AND status = 'processing'`
	result, err := r.db.ExecContext(ctx, query, id, res.Summary, res.SuggestedCause, res.Confidence,
		nullableJSON(screenshotJSON), nullableJSON(videoJSON), solutionsJSON, docsJSON,
		models.NewNullString(out.ModelUsed), processingMs)
	if err != nil {
		return contextutils.WrapError(err, "failed to complete analysis job")
	}
	return requireOneRow(result, id)
}

// Fail stores the failure message of a processing job
func (r *AnalysisJobRepositoryImpl) Fail(ctx context.Context, id, message string, processingMs int64) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "fail_analysis_job", observability.AttributeJobID(id))
	defer observability.FinishSpan(span, &err)

	query := `UPDATE analysis_jobs SET status = 'failed', error = $2, processing_time_ms = $3, completed_at = NOW()
		WHERE id = $1 AND status = 'processing'`
	result, err := r.db.ExecContext(ctx, query, id, message, processingMs)
	if err != nil {
		return contextutils.WrapError(err, "failed to fail analysis job")
	}
	return requireOneRow(result, id)
}

func nullableJSON(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return b
}

func requireOneRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to check rows affected")
	}
	if n == 0 {
		return contextutils.WrapErrorf(contextutils.ErrConflict, "analysis job %s is not processing", id)
	}
	return nil
}

// ListPending returns the oldest pending job ids
func (r *AnalysisJobRepositoryImpl) ListPending(ctx context.Context, limit int) (result []string, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "list_pending_analysis_jobs", attribute.Int("limit", limit))
	defer observability.FinishSpan(span, &err)

	rows, err := r.db.QueryContext(ctx, `SELECT id FROM analysis_jobs WHERE status = 'pending'
		ORDER BY created_at, id LIMIT $1`, limit)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query pending jobs")
	}
	defer func() {
		_ = rows.Close()
	}()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, contextutils.WrapError(err, "failed to scan pending job")
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate pending jobs")
	}
	return ids, nil
}

// FailStale fails jobs stuck in processing since before cutoff
func (r *AnalysisJobRepositoryImpl) FailStale(ctx context.Context, cutoff time.Time, message string) (result int64, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "fail_stale_analysis_jobs")
	defer observability.FinishSpan(span, &err)

	res, err := r.db.ExecContext(ctx, `UPDATE analysis_jobs SET status = 'failed', error = $2, completed_at = NOW()
		WHERE status = 'processing' AND started_at < $1`, cutoff, message)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to fail stale jobs")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to check rows affected")
	}
	span.SetAttributes(attribute.Int64("analysis.stale_failed", n))
	return n, nil
}
