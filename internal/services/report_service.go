package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"triageapp/internal/config"
	"triageapp/internal/models"
	"triageapp/internal/observability"
	"triageapp/internal/serviceinterfaces"
	contextutils "triageapp/internal/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultPageSize is used when a listing asks for page size 0
	DefaultPageSize = 20
	// MaxPageSize caps listing page sizes
	MaxPageSize = 100

	// maxStatusAttempts bounds how often UpdateStatus reloads after losing a concurrent update
	maxStatusAttempts = 3
	autoCloseBatch    = 100
)

// SystemActor performs maintenance operations such as auto-close
var SystemActor = models.Actor{Name: "system", IsAdmin: true}

// ReportService manages the report lifecycle: creation, threads, status and assignment
type ReportService struct {
	reports      ReportRepository
	satisfaction SatisfactionRepository
	jobs         AnalysisJobRepository
	users        serviceinterfaces.UserServiceInterface
	notifier     serviceinterfaces.Notifier
	metrics      *observability.TriageMetrics
	cfg          *config.Config
	logger       *observability.Logger
	now          func() time.Time
}

var _ serviceinterfaces.ReportServiceInterface = (*ReportService)(nil)

// NewReportService creates a new ReportService
func NewReportService(
	reports ReportRepository,
	satisfaction SatisfactionRepository,
	jobs AnalysisJobRepository,
	users serviceinterfaces.UserServiceInterface,
	notifier serviceinterfaces.Notifier,
	cfg *config.Config,
	logger *observability.Logger,
) *ReportService {
	if reports == nil {
		panic("NewReportService: reports repository is nil")
	}
	if logger == nil {
		panic("NewReportService: logger is nil")
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &ReportService{
		reports:      reports,
		satisfaction: satisfaction,
		jobs:         jobs,
		users:        users,
		notifier:     notifier,
		metrics:      observability.NewTriageMetrics(),
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

func validationError(format string, args ...interface{}) error {
	return contextutils.WrapErrorf(contextutils.ErrValidation, format, args...)
}

func normalizeCreateInput(in serviceinterfaces.CreateReportInput) (serviceinterfaces.CreateReportInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.PageURL = strings.TrimSpace(in.PageURL)
	in.ScreenshotURL = strings.TrimSpace(in.ScreenshotURL)
	in.VideoURL = strings.TrimSpace(in.VideoURL)

	if in.Title == "" {
		return in, validationError("title is required")
	}
	if in.Description == "" {
		return in, validationError("description is required")
	}
	if utf8.RuneCountInString(in.Title) > config.MaxTitleLength {
		return in, validationError("title must be at most %d characters", config.MaxTitleLength)
	}
	if utf8.RuneCountInString(in.Description) > config.MaxDescriptionLength {
		return in, validationError("description must be at most %d characters", config.MaxDescriptionLength)
	}

	if in.ReportType == "" {
		in.ReportType = models.ReportTypeBug
	}
	if in.Severity == "" {
		in.Severity = models.SeverityMedium
	}
	if in.Category == "" {
		in.Category = models.CategoryOther
	}
	if !in.ReportType.IsValid() {
		return in, validationError("invalid report type %q", in.ReportType)
	}
	if !in.Severity.IsValid() {
		return in, validationError("invalid severity %q", in.Severity)
	}
	if !in.Category.IsValid() {
		return in, validationError("invalid category %q", in.Category)
	}

	if in.ScreenshotURL != "" && !contextutils.IsDurableURL(in.ScreenshotURL) {
		return in, validationError("screenshot_url must be an uploaded http(s) URL")
	}
	if in.VideoURL != "" && !contextutils.IsDurableURL(in.VideoURL) {
		return in, validationError("video_url must be an uploaded http(s) URL")
	}
	return in, nil
}

func newSystemMessage(reportID string, actor models.Actor, systemType models.SystemMessageType, body string) *models.Message {
	msg := &models.Message{
		ID:         uuid.NewString(),
		ReportID:   reportID,
		AuthorName: actor.Name,
		IsAdmin:    actor.IsAdmin,
		SystemType: systemType,
		Body:       body,
	}
	if actor.UserID != 0 {
		msg.AuthorID.Int32 = int32(actor.UserID)
		msg.AuthorID.Valid = true
	}
	return msg
}

// CreateReport validates the input and stores an open report with its submitted message
func (s *ReportService) CreateReport(ctx context.Context, actor models.Actor, in serviceinterfaces.CreateReportInput) (result *models.Report, err error) {
	ctx, span := observability.TraceReportFunction(ctx, "create_report", observability.AttributeUserID(actor.UserID))
	defer observability.FinishSpan(span, &err)

	in, err = normalizeCreateInput(in)
	if err != nil {
		return nil, err
	}

	report := &models.Report{
		ID:            uuid.NewString(),
		UserID:        actor.UserID,
		ReportType:    in.ReportType,
		Title:         in.Title,
		Description:   in.Description,
		Severity:      in.Severity,
		Category:      in.Category,
		Status:        models.StatusOpen,
		PageURL:       in.PageURL,
		UserAgent:     in.UserAgent,
		ScreenshotURL: models.NewNullString(in.ScreenshotURL),
		VideoURL:      models.NewNullString(in.VideoURL),
	}
	span.SetAttributes(observability.AttributeReportID(report.ID), attribute.String("report.severity", string(report.Severity)))

	msg := newSystemMessage(report.ID, actor, models.SystemMessageSubmitted, fmt.Sprintf("%s submitted this %s report", actor.Name, report.ReportType))
	if err = s.reports.CreateWithMessage(ctx, report, msg); err != nil {
		return nil, err
	}

	s.metrics.ReportCreated(ctx, string(report.Severity), string(report.Category))
	s.logger.Info(ctx, "Report created", map[string]interface{}{
		"report_id":   report.ID,
		"user_id":     report.UserID,
		"severity":    string(report.Severity),
		"category":    string(report.Category),
		"report_type": string(report.ReportType),
	})
	s.notify(ctx, serviceinterfaces.Notification{Event: serviceinterfaces.EventReportSubmitted, Report: report, Actor: actor})
	return report, nil
}

// loadForActor fetches a report that the actor may see
func (s *ReportService) loadForActor(ctx context.Context, actor models.Actor, reportID string) (*models.Report, error) {
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin && report.UserID != actor.UserID {
		return nil, contextutils.WrapError(contextutils.ErrForbidden, "report belongs to another user")
	}
	return report, nil
}

// GetReport returns a report visible to the actor
func (s *ReportService) GetReport(ctx context.Context, actor models.Actor, reportID string) (result *models.Report, err error) {
	ctx, span := observability.TraceReportFunction(ctx, "get_report", observability.AttributeReportID(reportID))
	defer observability.FinishSpan(span, &err)

	return s.loadForActor(ctx, actor, reportID)
}

// GetReportWithMessages returns the report, its thread in seq order, its rating and latest analysis job
func (s *ReportService) GetReportWithMessages(ctx context.Context, actor models.Actor, reportID string) (result *models.ReportThread, err error) {
	ctx, span := observability.TraceReportFunction(ctx, "get_report_with_messages", observability.AttributeReportID(reportID))
	defer observability.FinishSpan(span, &err)

	report, err := s.loadForActor(ctx, actor, reportID)
	if err != nil {
		return nil, err
	}
	messages, err := s.reports.ListMessages(ctx, reportID)
	if err != nil {
		return nil, err
	}
	thread := &models.ReportThread{Report: report, Messages: messages}

	if s.satisfaction != nil {
		rating, err := s.satisfaction.GetByReport(ctx, reportID)
		switch {
		case errors.Is(err, contextutils.ErrRecordNotFound):
		case err != nil:
			return nil, err
		default:
			thread.Satisfaction = rating
		}
	}
	if s.jobs != nil {
		job, err := s.jobs.Latest(ctx, reportID)
		switch {
		case errors.Is(err, contextutils.ErrRecordNotFound):
		case err != nil:
			return nil, err
		default:
			thread.LatestJob = job
		}
	}

	span.SetAttributes(attribute.Int("report.messages", len(messages)))
	return thread, nil
}

func pageBounds(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return pageSize, (page - 1) * pageSize
}

// ListReportsForUser lists the user's own reports, archived ones included
func (s *ReportService) ListReportsForUser(ctx context.Context, userID, page, pageSize int) (result0 []models.Report, result1 int, err error) {
	ctx, span := observability.TraceReportFunction(ctx, "list_reports_for_user",
		observability.AttributeUserID(userID),
		observability.AttributePage(page),
		observability.AttributePageSize(pageSize),
	)
	defer observability.FinishSpan(span, &err)

	limit, offset := pageBounds(page, pageSize)
	return s.reports.List(ctx, models.ReportFilter{UserID: &userID, IncludeArchived: true}, limit, offset)
}

// ListReports is the staff listing with filters
func (s *ReportService) ListReports(ctx context.Context, filter models.ReportFilter, page, pageSize int) (result0 []models.Report, result1 int, err error) {
	ctx, span := observability.TraceReportFunction(ctx, "list_reports",
		observability.AttributePage(page),
		observability.AttributePageSize(pageSize),
		attribute.String("filter.status", string(filter.Status)),
	)
	defer observability.FinishSpan(span, &err)

	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, validationError("invalid status %q", filter.Status)
	}
	if filter.Severity != "" && !filter.Severity.IsValid() {
		return nil, 0, validationError("invalid severity %q", filter.Severity)
	}
	if filter.Category != "" && !filter.Category.IsValid() {
		return nil, 0, validationError("invalid category %q", filter.Category)
	}
	if filter.ReportType != "" && !filter.ReportType.IsValid() {
		return nil, 0, validationError("invalid report type %q", filter.ReportType)
	}

	limit, offset := pageBounds(page, pageSize)
	return s.reports.List(ctx, filter, limit, offset)
}

func statusMessage(actor models.Actor, from, to models.ReportStatus) (models.SystemMessageType, string) {
	if to == models.StatusResolved {
		return models.SystemMessageResolved, fmt.Sprintf("%s marked this report as resolved", actor.Name)
	}
	return models.SystemMessageStatusChange, fmt.Sprintf("%s changed the status from %s to %s", actor.Name, from, to)
}

// UpdateStatus moves a report forward. Setting the current status is a no-op.
func (s *ReportService) UpdateStatus(ctx context.Context, actor models.Actor, reportID string, status models.ReportStatus) (result *models.Report, err error) {
	ctx, span := observability.TraceReportFunction(ctx, "update_status",
		observability.AttributeReportID(reportID),
		observability.AttributeStatus(string(status)),
	)
	defer observability.FinishSpan(span, &err)

	if !status.IsValid() {
		return nil, validationError("invalid status %q", status)
	}

	for attempt := 1; attempt <= maxStatusAttempts; attempt++ {
		report, err := s.reports.GetByID(ctx, reportID)
		if err != nil {
			return nil, err
		}
		if report.Status == status {
			return report, nil
		}
		if !report.Status.CanTransitionTo(status) {
			return nil, contextutils.WrapErrorf(contextutils.ErrInvalidTransition,
				"cannot move report from %s to %s", report.Status, status)
		}

		systemType, body := statusMessage(actor, report.Status, status)
		updated, err := s.reports.TransitionStatus(ctx, reportID, report.Status, status, newSystemMessage(reportID, actor, systemType, body))
		if errors.Is(err, contextutils.ErrConflict) {
			s.logger.Debug(ctx, "Status changed concurrently, retrying", map[string]interface{}{
				"report_id": reportID,
				"attempt":   attempt,
			})
			continue
		}
		if err != nil {
			return nil, err
		}

		s.afterStatusChange(ctx, actor, report.Status, updated)
		return updated, nil
	}
	return nil, contextutils.WrapErrorf(contextutils.ErrConflict, "report %s kept changing, try again", reportID)
}

func (s *ReportService) afterStatusChange(ctx context.Context, actor models.Actor, from models.ReportStatus, report *models.Report) {
	s.metrics.StatusChanged(ctx, string(from), string(report.Status))
	s.metrics.MessageCreated(ctx, true, actor.IsAdmin)
	s.logger.Info(ctx, "Report status changed", map[string]interface{}{
		"report_id": report.ID,
		"from":      string(from),
		"to":        string(report.Status),
		"actor":     actor.Name,
	})

	event := serviceinterfaces.EventStatusChanged
	if report.Status == models.StatusResolved {
		event = serviceinterfaces.EventReportResolved
	}
	s.notify(ctx, serviceinterfaces.Notification{
		Event:     event,
		Report:    report,
		Actor:     actor,
		OldStatus: from,
		NewStatus: report.Status,
	})
}

// AssignReport sets the staff member responsible for a report that is not closed
func (s *ReportService) AssignReport(ctx context.Context, actor models.Actor, reportID string, assigneeID int) (result *models.Report, err error) {
	ctx, span := observability.TraceReportFunction(ctx, "assign_report",
		observability.AttributeReportID(reportID),
		attribute.Int("assignee_id", assigneeID),
	)
	defer observability.FinishSpan(span, &err)

	assigneeName := fmt.Sprintf("user %d", assigneeID)
	if s.users != nil {
		assignee, err := s.users.GetUserByID(ctx, assigneeID)
		if err != nil {
			return nil, err
		}
		if assignee == nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "user %d not found", assigneeID)
		}
		if !assignee.IsAdmin {
			return nil, validationError("assignee %s is not a staff member", assignee.Username)
		}
		assigneeName = assignee.Name()
	}

	msg := newSystemMessage(reportID, actor, models.SystemMessageAssigned, fmt.Sprintf("%s assigned this report to %s", actor.Name, assigneeName))
	report, err := s.reports.Assign(ctx, reportID, assigneeID, msg)
	if err != nil {
		return nil, err
	}

	s.metrics.MessageCreated(ctx, true, actor.IsAdmin)
	s.logger.Info(ctx, "Report assigned", map[string]interface{}{
		"report_id":   reportID,
		"assignee_id": assigneeID,
		"actor":       actor.Name,
	})
	s.notify(ctx, serviceinterfaces.Notification{
		Event:      serviceinterfaces.EventReportAssigned,
		Report:     report,
		Actor:      actor,
		AssigneeID: assigneeID,
	})
	return report, nil
}

// AddMessage appends a human message to the thread. Closed reports reject messages from everyone.
func (s *ReportService) AddMessage(ctx context.Context, author models.Actor, reportID, body string) (result *models.Message, err error) {
	ctx, span := observability.TraceReportFunction(ctx, "add_message",
		observability.AttributeReportID(reportID),
		attribute.Bool("author.is_admin", author.IsAdmin),
	)
	defer observability.FinishSpan(span, &err)

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, validationError("message body is required")
	}
	if utf8.RuneCountInString(body) > config.MaxMessageLength {
		return nil, validationError("message must be at most %d characters", config.MaxMessageLength)
	}

	report, err := s.loadForActor(ctx, author, reportID)
	if err != nil {
		return nil, err
	}
	if report.Status == models.StatusClosed {
		return nil, contextutils.WrapError(contextutils.ErrReportClosed, "cannot add a message to a closed report")
	}

	msg := &models.Message{
		ID:         uuid.NewString(),
		ReportID:   reportID,
		AuthorName: author.Name,
		IsAdmin:    author.IsAdmin,
		Body:       body,
	}
	msg.AuthorID.Int32 = int32(author.UserID)
	msg.AuthorID.Valid = true

	if err = s.reports.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	s.metrics.MessageCreated(ctx, false, author.IsAdmin)
	s.logger.Info(ctx, "Message added", map[string]interface{}{
		"report_id":  reportID,
		"message_id": msg.ID,
		"seq":        msg.Seq,
		"is_admin":   author.IsAdmin,
	})
	if author.IsAdmin && author.UserID != report.UserID {
		s.notify(ctx, serviceinterfaces.Notification{
			Event:   serviceinterfaces.EventStaffReply,
			Report:  report,
			Actor:   author,
			Message: body,
		})
	}
	return msg, nil
}

// ArchiveReport hides a report from the default staff listing
func (s *ReportService) ArchiveReport(ctx context.Context, reportID string) (result *models.Report, err error) {
	ctx, span := observability.TraceReportFunction(ctx, "archive_report", observability.AttributeReportID(reportID))
	defer observability.FinishSpan(span, &err)

	report, err := s.reports.Archive(ctx, reportID)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Report archived", map[string]interface{}{"report_id": reportID})
	return report, nil
}

// AutoCloseResolved closes reports that have been resolved for longer than olderThan
func (s *ReportService) AutoCloseResolved(ctx context.Context, olderThan time.Duration) (result int, err error) {
	ctx, span := observability.TraceReportFunction(ctx, "auto_close_resolved",
		attribute.String("older_than", olderThan.String()),
	)
	defer observability.FinishSpan(span, &err)

	if olderThan <= 0 {
		olderThan = config.DefaultAutoCloseAfter
	}
	cutoff := s.now().Add(-olderThan)

	closed := 0
	for {
		if err = ctx.Err(); err != nil {
			return closed, err
		}
		batch, err := s.reports.ListResolvedBefore(ctx, cutoff, autoCloseBatch)
		if err != nil {
			return closed, err
		}

		progressed := 0
		for i := range batch {
			report := &batch[i]
			msg := newSystemMessage(report.ID, SystemActor, models.SystemMessageStatusChange, "Report closed automatically")
			updated, err := s.reports.TransitionStatus(ctx, report.ID, models.StatusResolved, models.StatusClosed, msg)
			if errors.Is(err, contextutils.ErrConflict) {
				progressed++
				continue
			}
			if err != nil {
				s.logger.Error(ctx, "Failed to auto-close report", err, map[string]interface{}{"report_id": report.ID})
				continue
			}
			progressed++
			closed++
			s.afterStatusChange(ctx, SystemActor, models.StatusResolved, updated)
		}

		if len(batch) < autoCloseBatch || progressed == 0 {
			break
		}
	}

	span.SetAttributes(attribute.Int("reports.closed", closed))
	if closed > 0 {
		s.logger.Info(ctx, "Auto-closed resolved reports", map[string]interface{}{
			"closed": closed,
			"cutoff": cutoff.Format(time.RFC3339),
		})
	}
	return closed, nil
}

// notify dispatches synchronously; delivery failures never fail the operation
func (s *ReportService) notify(ctx context.Context, n serviceinterfaces.Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn(ctx, "Notification delivery failed", map[string]interface{}{
			"event":     string(n.Event),
			"report_id": n.Report.ID,
			"error":     err.Error(),
		})
	}
}
