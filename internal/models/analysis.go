package models

import (
	"database/sql"
	"fmt"
	"time"
)

// JobStatus is the state of an analysis job
type JobStatus string

// Job statuses
const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// IsTerminal reports whether the job has finished either way
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Confidence of an analysis or of a suggested solution
type Confidence string

// Confidence levels
const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// IsValid reports whether c is a known confidence level
func (c Confidence) IsValid() bool {
	return c == ConfidenceLow || c == ConfidenceMedium || c == ConfidenceHigh
}

// Effort estimates the work a suggested solution needs
type Effort string

// Effort levels
const (
	EffortQuick       Effort = "quick"
	EffortModerate    Effort = "moderate"
	EffortSignificant Effort = "significant"
)

// IsValid reports whether e is a known effort level
func (e Effort) IsValid() bool {
	return e == EffortQuick || e == EffortModerate || e == EffortSignificant
}

// ScreenshotAnalysis is what the analyzer saw in the screenshot
type ScreenshotAnalysis struct {
	Description     string   `json:"description"`
	VisibleErrors   []string `json:"visibleErrors"`
	PotentialIssues []string `json:"potentialIssues"`
}

// ErrorMoment is a point in a recording where something went wrong
type ErrorMoment struct {
	Seconds     float64 `json:"seconds"`
	Description string  `json:"description"`
}

// VideoAnalysis is what the analyzer saw in the recording
type VideoAnalysis struct {
	Description       string        `json:"description"`
	ReproductionSteps []string      `json:"reproductionSteps"`
	ErrorMoments      []ErrorMoment `json:"errorMoments"`
}

// SuggestedSolution is one remediation the analyzer proposes
type SuggestedSolution struct {
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Steps           []string   `json:"steps"`
	Confidence      Confidence `json:"confidence"`
	EstimatedEffort Effort     `json:"estimatedEffort"`
}

// RelatedDoc points at a help-center article relevant to the report
type RelatedDoc struct {
	SectionID    string  `json:"sectionId"`
	ArticleID    string  `json:"articleId"`
	SectionTitle string  `json:"sectionTitle"`
	ArticleTitle string  `json:"articleTitle"`
	Relevance    string  `json:"relevance"`
	Excerpt      *string `json:"excerpt,omitempty"`
}

// AnalysisResult is the structured output of a completed job
type AnalysisResult struct {
	Summary            string              `json:"summary"`
	SuggestedCause     string              `json:"suggestedCause"`
	Confidence         Confidence          `json:"confidence"`
	ScreenshotAnalysis *ScreenshotAnalysis `json:"screenshotAnalysis,omitempty"`
	VideoAnalysis      *VideoAnalysis      `json:"videoAnalysis,omitempty"`
	SuggestedSolutions []SuggestedSolution `json:"suggestedSolutions"`
	RelatedDocs        []RelatedDoc        `json:"relatedDocs"`
}

// Validate checks the closed enums of the result
func (r *AnalysisResult) Validate() error {
	if !r.Confidence.IsValid() {
		return fmt.Errorf("invalid confidence %q", r.Confidence)
	}
	for i, s := range r.SuggestedSolutions {
		if !s.Confidence.IsValid() {
			return fmt.Errorf("suggested solution %d: invalid confidence %q", i, s.Confidence)
		}
		if !s.EstimatedEffort.IsValid() {
			return fmt.Errorf("suggested solution %d: invalid estimated effort %q", i, s.EstimatedEffort)
		}
	}
	return nil
}

// JobOptions selects which media the analyzer may look at
type JobOptions struct {
	IncludeScreenshot bool `json:"include_screenshot"`
	IncludeVideo      bool `json:"include_video"`
}

// AnalysisJob is one analysis run for a report. The newest job for a report is authoritative.
type AnalysisJob struct {
	ID                string          `json:"id" db:"id"`
	ReportID          string          `json:"report_id" db:"report_id"`
	RequestedBy       sql.NullInt32   `json:"requested_by" db:"requested_by"`
	Status            JobStatus       `json:"status" db:"status"`
	IncludeScreenshot bool            `json:"include_screenshot" db:"include_screenshot"`
	IncludeVideo      bool            `json:"include_video" db:"include_video"`
	Result            *AnalysisResult `json:"result,omitempty"`
	ModelUsed         sql.NullString  `json:"model_used" db:"model_used"`
	ProcessingTimeMs  sql.NullInt64   `json:"processing_time_ms" db:"processing_time_ms"`
	Error             sql.NullString  `json:"error" db:"error"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	StartedAt         sql.NullTime    `json:"started_at" db:"started_at"`
	CompletedAt       sql.NullTime    `json:"completed_at" db:"completed_at"`
}

// AnalysisInput is what the analyzer receives for one job
type AnalysisInput struct {
	ReportID      string
	Title         string
	Description   string
	Severity      Severity
	Category      Category
	ReportType    ReportType
	PageURL       string
	UserAgent     string
	ScreenshotURL string
	VideoURL      string
}

// AnalysisOutput is the analyzer's result plus provenance
type AnalysisOutput struct {
	Result    AnalysisResult
	ModelUsed string
}
