// Package handlers provides HTTP request handlers for the triage API.
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"triageapp/internal/api"
	"triageapp/internal/config"
	"triageapp/internal/models"
	"triageapp/internal/observability"
	"triageapp/internal/serviceinterfaces"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// AdminHandler serves the staff-only report endpoints
type AdminHandler struct {
	reports  serviceinterfaces.ReportServiceInterface
	analysis serviceinterfaces.AnalysisServiceInterface
	config   *config.Config
	logger   *observability.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(reports serviceinterfaces.ReportServiceInterface, analysis serviceinterfaces.AnalysisServiceInterface, cfg *config.Config, logger *observability.Logger) *AdminHandler {
	if reports == nil || analysis == nil {
		panic("NewAdminHandler: services are required")
	}
	return &AdminHandler{reports: reports, analysis: analysis, config: cfg, logger: logger}
}

// parseReportFilter reads the listing filters from the query string. It writes a 400 and returns false on bad input.
func parseReportFilter(c *gin.Context) (models.ReportFilter, bool) {
	q := ParseFilters(c, "status", "severity", "category", "report_type", "assigned_to", "user_id", "include_archived", "q")
	filter := models.ReportFilter{
		Status:     models.ReportStatus(q["status"]),
		Severity:   models.Severity(q["severity"]),
		Category:   models.Category(q["category"]),
		ReportType: models.ReportType(q["report_type"]),
		Search:     q["q"],
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		HandleValidationError(c, "status", q["status"], "unknown status")
		return filter, false
	}
	if filter.Severity != "" && !filter.Severity.IsValid() {
		HandleValidationError(c, "severity", q["severity"], "unknown severity")
		return filter, false
	}
	if filter.Category != "" && !filter.Category.IsValid() {
		HandleValidationError(c, "category", q["category"], "unknown category")
		return filter, false
	}
	if filter.ReportType != "" && !filter.ReportType.IsValid() {
		HandleValidationError(c, "report_type", q["report_type"], "unknown report type")
		return filter, false
	}
	for _, key := range []string{"assigned_to", "user_id"} {
		raw, ok := q[key]
		if !ok {
			continue
		}
		id, err := strconv.Atoi(raw)
		if err != nil || id < 1 {
			HandleValidationError(c, key, raw, "must be a positive integer")
			return filter, false
		}
		if key == "assigned_to" {
			filter.AssignedTo = &id
		} else {
			filter.UserID = &id
		}
	}
	if raw, ok := q["include_archived"]; ok {
		include, err := strconv.ParseBool(strings.ToLower(raw))
		if err != nil {
			HandleValidationError(c, "include_archived", raw, "must be a boolean")
			return filter, false
		}
		filter.IncludeArchived = include
	}
	return filter, true
}

// ListReports handles GET /v1/admin/reports
func (h *AdminHandler) ListReports(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_list_reports")
	defer observability.FinishSpan(span, nil)

	filter, ok := parseReportFilter(c)
	if !ok {
		return
	}
	p := ParsePagination(c, defaultPageSize, maxPageSize)
	span.SetAttributes(observability.AttributePage(p.Page), observability.AttributePageSize(p.PageSize))

	reports, total, err := h.reports.ListReports(ctx, filter, p.Page, p.PageSize)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ReportList{
		Reports:    convertReportsToAPI(reports),
		Pagination: p.Of(total),
	})
}

// UpdateStatus handles PUT /v1/admin/reports/:id/status
func (h *AdminHandler) UpdateStatus(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_update_status")
	defer observability.FinishSpan(span, nil)

	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := reportIDParam(c)
	if !ok {
		return
	}

	var req api.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}
	span.SetAttributes(observability.AttributeReportID(id), observability.AttributeStatus(req.Status))

	report, err := h.reports.UpdateStatus(ctx, actor, id, models.ReportStatus(req.Status))
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertReportToAPI(report))
}

// AssignReport handles PUT /v1/admin/reports/:id/assignee
func (h *AdminHandler) AssignReport(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_assign_report")
	defer observability.FinishSpan(span, nil)

	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := reportIDParam(c)
	if !ok {
		return
	}

	var req api.AssignReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}
	span.SetAttributes(attribute.Int("report.assignee_id", req.AssigneeID))

	report, err := h.reports.AssignReport(ctx, actor, id, req.AssigneeID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertReportToAPI(report))
}

// ArchiveReport handles POST /v1/admin/reports/:id/archive
func (h *AdminHandler) ArchiveReport(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_archive_report")
	defer observability.FinishSpan(span, nil)

	id, ok := reportIDParam(c)
	if !ok {
		return
	}

	report, err := h.reports.ArchiveReport(ctx, id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertReportToAPI(report))
}

// StartAnalysis handles POST /v1/admin/reports/:id/analysis. The job runs asynchronously.
func (h *AdminHandler) StartAnalysis(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_start_analysis")
	defer observability.FinishSpan(span, nil)

	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := reportIDParam(c)
	if !ok {
		return
	}

	var req api.StartAnalysisRequest
	// an empty body means text-only analysis
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleBindError(c, err)
			return
		}
	}

	job, err := h.analysis.StartJob(ctx, actor, id, models.JobOptions{
		IncludeScreenshot: req.IncludeScreenshot,
		IncludeVideo:      req.IncludeVideo,
	})
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, convertJobToAPI(job))
}

// ListJobs handles GET /v1/admin/reports/:id/analysis
func (h *AdminHandler) ListJobs(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "admin_list_jobs")
	defer observability.FinishSpan(span, nil)

	id, ok := reportIDParam(c)
	if !ok {
		return
	}

	jobs, err := h.analysis.ListJobs(ctx, id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.JobList{Jobs: convertJobsToAPI(jobs)})
}
