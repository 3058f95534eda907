package models

import (
	"database/sql"
	"time"
)

// ReportStatus is the lifecycle state of a report. Status only moves forward; a reopen is a new report.
type ReportStatus string

// Report statuses
const (
	StatusOpen       ReportStatus = "open"
	StatusInProgress ReportStatus = "in_progress"
	StatusResolved   ReportStatus = "resolved"
	StatusClosed     ReportStatus = "closed"
)

var allowedTransitions = map[ReportStatus][]ReportStatus{
	StatusOpen:       {StatusInProgress, StatusResolved, StatusClosed},
	StatusInProgress: {StatusResolved, StatusClosed},
	StatusResolved:   {StatusClosed},
}

// IsValid reports whether s is a known status
func (s ReportStatus) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a forward transition
func (s ReportStatus) CanTransitionTo(next ReportStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AcceptsFeedback reports whether a satisfaction rating may be left in this status
func (s ReportStatus) AcceptsFeedback() bool {
	return s == StatusResolved || s == StatusClosed
}

// Severity of a report
type Severity string

// Severities
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid reports whether s is a known severity
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Category of a report
type Category string

// Categories
const (
	CategoryUI            Category = "ui"
	CategoryFunctionality Category = "functionality"
	CategoryPerformance   Category = "performance"
	CategoryData          Category = "data"
	CategoryOther         Category = "other"
)

// IsValid reports whether c is a known category
func (c Category) IsValid() bool {
	switch c {
	case CategoryUI, CategoryFunctionality, CategoryPerformance, CategoryData, CategoryOther:
		return true
	}
	return false
}

// ReportType distinguishes bug reports from support requests
type ReportType string

// Report types
const (
	ReportTypeBug     ReportType = "bug"
	ReportTypeSupport ReportType = "support"
)

// IsValid reports whether t is a known report type
func (t ReportType) IsValid() bool {
	return t == ReportTypeBug || t == ReportTypeSupport
}

// Report is a user-submitted incident. Media URLs are set at creation and never modified.
type Report struct {
	ID            string         `json:"id" db:"id"`
	UserID        int            `json:"user_id" db:"user_id"`
	ReportType    ReportType     `json:"report_type" db:"report_type"`
	Title         string         `json:"title" db:"title"`
	Description   string         `json:"description" db:"description"`
	Severity      Severity       `json:"severity" db:"severity"`
	Category      Category       `json:"category" db:"category"`
	Status        ReportStatus   `json:"status" db:"status"`
	PageURL       string         `json:"page_url" db:"page_url"`
	UserAgent     string         `json:"user_agent" db:"user_agent"`
	ScreenshotURL sql.NullString `json:"screenshot_url" db:"screenshot_url"`
	VideoURL      sql.NullString `json:"video_url" db:"video_url"`
	AssignedTo    sql.NullInt32  `json:"assigned_to" db:"assigned_to"`
	ResolvedAt    sql.NullTime   `json:"resolved_at" db:"resolved_at"`
	ClosedAt      sql.NullTime   `json:"closed_at" db:"closed_at"`
	ArchivedAt    sql.NullTime   `json:"archived_at" db:"archived_at"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// HasScreenshot reports whether the report carries a screenshot URL
func (r *Report) HasScreenshot() bool {
	return r.ScreenshotURL.Valid && r.ScreenshotURL.String != ""
}

// HasVideo reports whether the report carries a video URL
func (r *Report) HasVideo() bool {
	return r.VideoURL.Valid && r.VideoURL.String != ""
}

// ReportFilter narrows the admin report listing. Zero values match everything.
type ReportFilter struct {
	Status          ReportStatus
	Severity        Severity
	Category        Category
	ReportType      ReportType
	AssignedTo      *int
	UserID          *int
	IncludeArchived bool
	Search          string
}

// ReportThread is a report together with everything shown alongside it
type ReportThread struct {
	Report       *Report
	Messages     []Message
	Satisfaction *SatisfactionRating
	LatestJob    *AnalysisJob
}
