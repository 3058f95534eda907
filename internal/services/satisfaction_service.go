package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"triageapp/internal/config"
	"triageapp/internal/models"
	"triageapp/internal/observability"
	"triageapp/internal/serviceinterfaces"
	contextutils "triageapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// SatisfactionService records the reporter's single rating of a resolved or closed report
type SatisfactionService struct {
	reports ReportRepository
	ratings SatisfactionRepository
	logger  *observability.Logger
}

var _ serviceinterfaces.SatisfactionServiceInterface = (*SatisfactionService)(nil)

// NewSatisfactionService creates a new SatisfactionService
func NewSatisfactionService(reports ReportRepository, ratings SatisfactionRepository, logger *observability.Logger) *SatisfactionService {
	if reports == nil || ratings == nil {
		panic("NewSatisfactionService: repositories are required")
	}
	return &SatisfactionService{reports: reports, ratings: ratings, logger: logger}
}

// Submit stores the rating. A second rating for the same report fails with ErrSatisfactionExists.
func (s *SatisfactionService) Submit(ctx context.Context, actor models.Actor, reportID string, rating models.Rating, feedback string) (result *models.SatisfactionRating, err error) {
	ctx, span := observability.TraceReportFunction(ctx, "submit_satisfaction",
		observability.AttributeReportID(reportID),
		attribute.String("rating", string(rating)),
	)
	defer observability.FinishSpan(span, &err)

	if !rating.IsValid() {
		return nil, validationError("rating must be positive or negative")
	}
	feedback = strings.TrimSpace(feedback)
	if utf8.RuneCountInString(feedback) > config.MaxFeedbackLength {
		return nil, validationError("feedback must be at most %d characters", config.MaxFeedbackLength)
	}

	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.UserID != actor.UserID {
		return nil, contextutils.WrapError(contextutils.ErrForbidden, "only the reporter can rate a report")
	}
	if !report.Status.AcceptsFeedback() {
		return nil, contextutils.WrapErrorf(contextutils.ErrSatisfactionNotAllowed, "report is %s", report.Status)
	}

	r := &models.SatisfactionRating{
		ReportID: reportID,
		UserID:   actor.UserID,
		Rating:   rating,
		Feedback: models.NewNullString(feedback),
	}
	if err = s.ratings.Create(ctx, r); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Satisfaction rating recorded", map[string]interface{}{
		"report_id":    reportID,
		"rating":       string(rating),
		"has_feedback": r.Feedback.Valid,
	})
	return r, nil
}

// Get returns the report's rating or ErrRecordNotFound
func (s *SatisfactionService) Get(ctx context.Context, reportID string) (result *models.SatisfactionRating, err error) {
	ctx, span := observability.TraceReportFunction(ctx, "get_satisfaction", observability.AttributeReportID(reportID))
	defer observability.FinishSpan(span, &err)

	return s.ratings.GetByReport(ctx, reportID)
}
