// Package api defines the JSON request and response bodies of the triage HTTP API.
// The server handlers and the Go API client share these types.
package api

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
)

// Report statuses as they appear on the wire
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusClosed     = "closed"
)

// Analysis job statuses as they appear on the wire
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// Report is a submitted incident
type Report struct {
	ID            string     `json:"id"`
	UserID        int        `json:"user_id"`
	ReportType    string     `json:"report_type"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Severity      string     `json:"severity"`
	Category      string     `json:"category"`
	Status        string     `json:"status"`
	PageURL       string     `json:"page_url"`
	UserAgent     string     `json:"user_agent"`
	ScreenshotURL *string    `json:"screenshot_url,omitempty"`
	VideoURL      *string    `json:"video_url,omitempty"`
	AssignedTo    *int       `json:"assigned_to,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	ArchivedAt    *time.Time `json:"archived_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Message is one entry of a report thread
type Message struct {
	ID         string    `json:"id"`
	ReportID   string    `json:"report_id"`
	Seq        int64     `json:"seq"`
	AuthorID   *int      `json:"author_id,omitempty"`
	AuthorName string    `json:"author_name"`
	IsAdmin    bool      `json:"is_admin"`
	SystemType *string   `json:"system_type,omitempty"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}

// SatisfactionRating is the reporter's rating of a resolved report
type SatisfactionRating struct {
	ID        int       `json:"id"`
	ReportID  string    `json:"report_id"`
	UserID    int       `json:"user_id"`
	Rating    string    `json:"rating"`
	Feedback  *string   `json:"feedback,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ScreenshotAnalysis is what the analyzer saw in the screenshot
type ScreenshotAnalysis struct {
	Description     string   `json:"description"`
	VisibleErrors   []string `json:"visible_errors"`
	PotentialIssues []string `json:"potential_issues"`
}

// ErrorMoment is a point in a recording where something went wrong
type ErrorMoment struct {
	Seconds     float64 `json:"seconds"`
	Description string  `json:"description"`
}

// VideoAnalysis is what the analyzer saw in the recording
type VideoAnalysis struct {
	Description       string        `json:"description"`
	ReproductionSteps []string      `json:"reproduction_steps"`
	ErrorMoments      []ErrorMoment `json:"error_moments"`
}

// SuggestedSolution is one proposed remediation
type SuggestedSolution struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Steps           []string `json:"steps"`
	Confidence      string   `json:"confidence"`
	EstimatedEffort string   `json:"estimated_effort"`
}

// RelatedDoc is a help-center article linked by the analyzer
type RelatedDoc struct {
	SectionID    string  `json:"section_id"`
	ArticleID    string  `json:"article_id"`
	SectionTitle string  `json:"section_title"`
	ArticleTitle string  `json:"article_title"`
	Relevance    string  `json:"relevance"`
	Excerpt      *string `json:"excerpt,omitempty"`
}

// AnalysisJob is one analysis run and, once completed, its result
type AnalysisJob struct {
	ID                 string              `json:"id"`
	ReportID           string              `json:"report_id"`
	RequestedBy        *int                `json:"requested_by,omitempty"`
	Status             string              `json:"status"`
	IncludeScreenshot  bool                `json:"include_screenshot"`
	IncludeVideo       bool                `json:"include_video"`
	Summary            *string             `json:"summary,omitempty"`
	SuggestedCause     *string             `json:"suggested_cause,omitempty"`
	Confidence         *string             `json:"confidence,omitempty"`
	ScreenshotAnalysis *ScreenshotAnalysis `json:"screenshot_analysis,omitempty"`
	VideoAnalysis      *VideoAnalysis      `json:"video_analysis,omitempty"`
	SuggestedSolutions []SuggestedSolution `json:"suggested_solutions"`
	RelatedDocs        []RelatedDoc        `json:"related_docs"`
	ModelUsed          *string             `json:"model_used,omitempty"`
	ProcessingTimeMs   *int64              `json:"processing_time_ms,omitempty"`
	Error              *string             `json:"error,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	StartedAt          *time.Time          `json:"started_at,omitempty"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
}

// ReportThread is the getReportWithMessages response
type ReportThread struct {
	Report       Report              `json:"report"`
	Messages     []Message           `json:"messages"`
	Satisfaction *SatisfactionRating `json:"satisfaction,omitempty"`
	LatestJob    *AnalysisJob        `json:"latest_job,omitempty"`
}

// Pagination describes a page of a listing
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// ReportList is a page of reports
type ReportList struct {
	Reports    []Report   `json:"reports"`
	Pagination Pagination `json:"pagination"`
}

// JobList is every analysis job of a report, newest first
type JobList struct {
	Jobs []AnalysisJob `json:"jobs"`
}

// CreateReportRequest is the createReport body
type CreateReportRequest struct {
	ReportType    string  `json:"report_type" binding:"omitempty,oneof=bug support"`
	Title         string  `json:"title" binding:"required,max=200"`
	Description   string  `json:"description" binding:"required,max=10000"`
	Severity      string  `json:"severity" binding:"omitempty,oneof=low medium high critical"`
	Category      string  `json:"category" binding:"omitempty,oneof=ui functionality performance data other"`
	PageURL       string  `json:"page_url"`
	UserAgent     string  `json:"user_agent"`
	ScreenshotURL *string `json:"screenshot_url,omitempty"`
	VideoURL      *string `json:"video_url,omitempty"`
}

// CreateMessageRequest is the addMessage body
type CreateMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

// SatisfactionRequest is the submitSatisfaction body
type SatisfactionRequest struct {
	Rating   string  `json:"rating" binding:"required,oneof=positive negative"`
	Feedback *string `json:"feedback,omitempty"`
}

// UpdateStatusRequest changes a report's status
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=open in_progress resolved closed"`
}

// AssignReportRequest assigns a report to a staff member
type AssignReportRequest struct {
	AssigneeID int `json:"assignee_id" binding:"required,gt=0"`
}

// StartAnalysisRequest selects the media an analysis job may look at
type StartAnalysisRequest struct {
	IncludeScreenshot bool `json:"include_screenshot"`
	IncludeVideo      bool `json:"include_video"`
}

// PresignUploadRequest asks for an upload target
type PresignUploadRequest struct {
	Filename    string `json:"filename" binding:"required,max=255"`
	ContentType string `json:"content_type" binding:"required"`
	SizeBytes   int64  `json:"size_bytes" binding:"required,gt=0"`
	Category    string `json:"category" binding:"omitempty,oneof=screenshot video attachment"`
}

// PresignUploadResponse is an upload target. UploadURL is set when the blob may go straight to object storage.
type PresignUploadResponse struct {
	UploadKey string    `json:"upload_key"`
	ExpiresAt time.Time `json:"expires_at"`
	UploadURL *string   `json:"upload_url,omitempty"`
}

// UploadBlobResponse is the durable URL of an uploaded blob
type UploadBlobResponse struct {
	PublicURL string `json:"public_url"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Severity  string `json:"severity,omitempty"`
	Retryable bool   `json:"retryable"`
	Error     string `json:"error,omitempty"`
}

// HealthResponse is the /health body
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
}

// UserProfile is the authenticated user
type UserProfile struct {
	ID          int                  `json:"id"`
	Username    string               `json:"username"`
	DisplayName string               `json:"display_name"`
	Email       *openapi_types.Email `json:"email,omitempty"`
	IsAdmin     bool                 `json:"is_admin"`
}
