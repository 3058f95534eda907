package serviceinterfaces

import (
	"context"
	"io"
	"time"

	"triageapp/internal/models"
)

// CreateReportInput is the validated content of a new report
type CreateReportInput struct {
	ReportType    models.ReportType
	Title         string
	Description   string
	Severity      models.Severity
	Category      models.Category
	PageURL       string
	UserAgent     string
	ScreenshotURL string
	VideoURL      string
}

// ReportServiceInterface is the report lifecycle manager
type ReportServiceInterface interface {
	CreateReport(ctx context.Context, actor models.Actor, in CreateReportInput) (*models.Report, error)
	GetReport(ctx context.Context, actor models.Actor, reportID string) (*models.Report, error)
	GetReportWithMessages(ctx context.Context, actor models.Actor, reportID string) (*models.ReportThread, error)
	ListReportsForUser(ctx context.Context, userID, page, pageSize int) ([]models.Report, int, error)
	ListReports(ctx context.Context, filter models.ReportFilter, page, pageSize int) ([]models.Report, int, error)
	UpdateStatus(ctx context.Context, actor models.Actor, reportID string, status models.ReportStatus) (*models.Report, error)
	AssignReport(ctx context.Context, actor models.Actor, reportID string, assigneeID int) (*models.Report, error)
	AddMessage(ctx context.Context, author models.Actor, reportID, body string) (*models.Message, error)
	ArchiveReport(ctx context.Context, reportID string) (*models.Report, error)
	AutoCloseResolved(ctx context.Context, olderThan time.Duration) (int, error)
}

// AnalysisServiceInterface is the analysis job runner
type AnalysisServiceInterface interface {
	StartJob(ctx context.Context, requestedBy models.Actor, reportID string, opts models.JobOptions) (*models.AnalysisJob, error)
	LatestJob(ctx context.Context, reportID string) (*models.AnalysisJob, error)
	ListJobs(ctx context.Context, reportID string) ([]models.AnalysisJob, error)
	ProcessJob(ctx context.Context, jobID string) (bool, error)
	PendingJobs(ctx context.Context, limit int) ([]string, error)
	FailStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SatisfactionServiceInterface records the reporter's rating
type SatisfactionServiceInterface interface {
	Submit(ctx context.Context, actor models.Actor, reportID string, rating models.Rating, feedback string) (*models.SatisfactionRating, error)
	Get(ctx context.Context, reportID string) (*models.SatisfactionRating, error)
}

// PresignRequest asks for an upload target
type PresignRequest struct {
	Filename    string
	ContentType string
	SizeBytes   int64
	Category    models.MediaCategory
}

// PresignResult is an upload target
type PresignResult struct {
	UploadKey string
	ExpiresAt time.Time
	UploadURL string
}

// MediaServiceInterface is the server half of the media upload gateway
type MediaServiceInterface interface {
	PresignUpload(ctx context.Context, ownerID int, req PresignRequest) (*PresignResult, error)
	UploadBlob(ctx context.Context, ownerID int, uploadKey string, body io.Reader, contentType string) (string, error)
	CleanupExpired(ctx context.Context) (int64, error)
}

// UserServiceInterface looks up and manages users
type UserServiceInterface interface {
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, username, email, displayName string, isAdmin bool) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SetAdmin(ctx context.Context, userID int, isAdmin bool) error
}

// AuthAPIKeyServiceInterface manages bearer keys
type AuthAPIKeyServiceInterface interface {
	CreateAPIKey(ctx context.Context, userID int, keyName string, permissionLevel string) (*models.AuthAPIKey, string, error)
	ListAPIKeys(ctx context.Context, userID int) ([]models.AuthAPIKey, error)
	DeleteAPIKey(ctx context.Context, userID int, keyID int) error
	ValidateAPIKey(ctx context.Context, rawKey string) (*models.AuthAPIKey, error)
	UpdateLastUsed(ctx context.Context, keyID int) error
}
