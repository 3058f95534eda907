package services

import (
	"context"
	"database/sql"
	"errors"

	"triageapp/internal/models"
	"triageapp/internal/observability"
	contextutils "triageapp/internal/utils"

	"github.com/lib/pq"
)

// SatisfactionRepository persists the single rating a report may receive
type SatisfactionRepository interface {
	// Create inserts the rating; a second rating for the same report yields ErrSatisfactionExists
	Create(ctx context.Context, rating *models.SatisfactionRating) error
	// GetByReport returns ErrRecordNotFound when the report has no rating
	GetByReport(ctx context.Context, reportID string) (*models.SatisfactionRating, error)
}

// SatisfactionRepositoryImpl implements SatisfactionRepository on PostgreSQL
type SatisfactionRepositoryImpl struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewSatisfactionRepository creates a new satisfaction repository
func NewSatisfactionRepository(db *sql.DB, logger *observability.Logger) SatisfactionRepository {
	return &SatisfactionRepositoryImpl{db: db, logger: logger}
}

// pgUniqueViolation is the SQLSTATE for unique_violation
const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

// Create inserts the rating, relying on the UNIQUE(report_id) constraint for uniqueness
func (r *SatisfactionRepositoryImpl) Create(ctx context.Context, rating *models.SatisfactionRating) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "create_satisfaction", observability.AttributeReportID(rating.ReportID))
	defer observability.FinishSpan(span, &err)

	query := `INSERT INTO report_satisfaction (report_id, user_id, rating, feedback, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at`
	err = r.db.QueryRowContext(ctx, query, rating.ReportID, rating.UserID, rating.Rating, rating.Feedback).
		Scan(&rating.ID, &rating.CreatedAt)
	if isUniqueViolation(err) {
		return contextutils.ErrSatisfactionExists
	}
	if err != nil {
		return contextutils.WrapError(err, "failed to insert satisfaction rating")
	}
	return nil
}

// GetByReport fetches the rating of a report
func (r *SatisfactionRepositoryImpl) GetByReport(ctx context.Context, reportID string) (result *models.SatisfactionRating, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_satisfaction", observability.AttributeReportID(reportID))
	defer observability.FinishSpan(span, &err)

	var s models.SatisfactionRating
	err = r.db.QueryRowContext(ctx, `SELECT id, report_id, user_id, rating, feedback, created_at
		FROM report_satisfaction WHERE report_id = $1`, reportID).
		Scan(&s.ID, &s.ReportID, &s.UserID, &s.Rating, &s.Feedback, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.ErrRecordNotFound
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get satisfaction rating")
	}
	return &s, nil
}
