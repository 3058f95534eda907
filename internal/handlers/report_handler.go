package handlers

import (
	"net/http"
	"strings"

	"triageapp/internal/api"
	"triageapp/internal/config"
	"triageapp/internal/middleware"
	"triageapp/internal/models"
	"triageapp/internal/observability"
	"triageapp/internal/serviceinterfaces"
	contextutils "triageapp/internal/utils"

	"github.com/gin-gonic/gin"
)

// ReportHandler serves the reporter-facing report endpoints
type ReportHandler struct {
	reports      serviceinterfaces.ReportServiceInterface
	analysis     serviceinterfaces.AnalysisServiceInterface
	satisfaction serviceinterfaces.SatisfactionServiceInterface
	users        serviceinterfaces.UserServiceInterface
	cfg          *config.Config
	logger       *observability.Logger
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(
	reports serviceinterfaces.ReportServiceInterface,
	analysis serviceinterfaces.AnalysisServiceInterface,
	satisfaction serviceinterfaces.SatisfactionServiceInterface,
	users serviceinterfaces.UserServiceInterface,
	cfg *config.Config,
	logger *observability.Logger,
) *ReportHandler {
	if reports == nil || analysis == nil || satisfaction == nil {
		panic("NewReportHandler: services are required")
	}
	return &ReportHandler{
		reports:      reports,
		analysis:     analysis,
		satisfaction: satisfaction,
		users:        users,
		cfg:          cfg,
		logger:       logger,
	}
}

// CreateReport handles POST /v1/reports
func (h *ReportHandler) CreateReport(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "create_report")
	defer observability.FinishSpan(span, nil)

	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req api.CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}

	in := serviceinterfaces.CreateReportInput{
		ReportType:  models.ReportType(req.ReportType),
		Title:       req.Title,
		Description: req.Description,
		Severity:    models.Severity(req.Severity),
		Category:    models.Category(req.Category),
		PageURL:     req.PageURL,
		UserAgent:   req.UserAgent,
	}
	if in.UserAgent == "" {
		in.UserAgent = c.Request.UserAgent()
	}
	if req.ScreenshotURL != nil {
		in.ScreenshotURL = strings.TrimSpace(*req.ScreenshotURL)
	}
	if req.VideoURL != nil {
		in.VideoURL = strings.TrimSpace(*req.VideoURL)
	}

	report, err := h.reports.CreateReport(ctx, actor, in)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	span.SetAttributes(observability.AttributeReportID(report.ID))
	c.JSON(http.StatusCreated, convertReportToAPI(report))
}

// ListMyReports handles GET /v1/reports
func (h *ReportHandler) ListMyReports(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "list_my_reports")
	defer observability.FinishSpan(span, nil)

	actor, ok := requireActor(c)
	if !ok {
		return
	}
	p := ParsePagination(c, defaultPageSize, maxPageSize)

	reports, total, err := h.reports.ListReportsForUser(ctx, actor.UserID, p.Page, p.PageSize)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ReportList{
		Reports:    convertReportsToAPI(reports),
		Pagination: p.Of(total),
	})
}

// GetReport handles GET /v1/reports/:id and returns the whole thread
func (h *ReportHandler) GetReport(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_report")
	defer observability.FinishSpan(span, nil)

	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := reportIDParam(c)
	if !ok {
		return
	}
	span.SetAttributes(observability.AttributeReportID(id))

	thread, err := h.reports.GetReportWithMessages(ctx, actor, id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertThreadToAPI(thread))
}

// AddMessage handles POST /v1/reports/:id/messages
func (h *ReportHandler) AddMessage(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "add_message")
	defer observability.FinishSpan(span, nil)

	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := reportIDParam(c)
	if !ok {
		return
	}

	var req api.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}

	msg, err := h.reports.AddMessage(ctx, actor, id, req.Body)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, convertMessageToAPI(msg))
}

// SubmitSatisfaction handles POST /v1/reports/:id/satisfaction
func (h *ReportHandler) SubmitSatisfaction(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "submit_satisfaction")
	defer observability.FinishSpan(span, nil)

	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := reportIDParam(c)
	if !ok {
		return
	}

	var req api.SatisfactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}
	feedback := ""
	if req.Feedback != nil {
		feedback = *req.Feedback
	}

	rating, err := h.satisfaction.Submit(ctx, actor, id, models.Rating(req.Rating), feedback)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusCreated, convertSatisfactionToAPI(rating))
}

// GetLatestAnalysis handles GET /v1/reports/:id/analysis/latest
func (h *ReportHandler) GetLatestAnalysis(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_latest_analysis")
	defer observability.FinishSpan(span, nil)

	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := reportIDParam(c)
	if !ok {
		return
	}

	// access check: owners and staff only
	if _, err := h.reports.GetReport(ctx, actor, id); err != nil {
		HandleAppError(c, err)
		return
	}

	job, err := h.analysis.LatestJob(ctx, id)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, convertJobToAPI(job))
}

// GetMe handles GET /v1/me
func (h *ReportHandler) GetMe(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "get_me")
	defer observability.FinishSpan(span, nil)

	actor, ok := requireActor(c)
	if !ok {
		return
	}

	profile := api.UserProfile{ID: actor.UserID, DisplayName: actor.Name, IsAdmin: actor.IsAdmin}
	if username, exists := c.Get(middleware.UsernameKey); exists {
		profile.Username, _ = username.(string)
	}
	if h.users != nil {
		user, err := h.users.GetUserByID(ctx, actor.UserID)
		if err != nil {
			HandleAppError(c, err)
			return
		}
		if user == nil {
			HandleAppError(c, contextutils.ErrUnauthorized)
			return
		}
		profile = convertUserToProfile(user)
		profile.IsAdmin = actor.IsAdmin
	}
	c.JSON(http.StatusOK, profile)
}
