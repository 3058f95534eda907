package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"triageapp/internal/models"
	"triageapp/internal/observability"
	contextutils "triageapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// ReportRepository persists reports and their message threads
type ReportRepository interface {
	// CreateWithMessage inserts the report and its first system message in one transaction
	CreateWithMessage(ctx context.Context, report *models.Report, msg *models.Message) error
	GetByID(ctx context.Context, id string) (*models.Report, error)
	List(ctx context.Context, filter models.ReportFilter, limit, offset int) ([]models.Report, int, error)
	// TransitionStatus moves the report from one status to another and appends msg.
	// It returns ErrConflict when the report is no longer in status from.
	TransitionStatus(ctx context.Context, id string, from, to models.ReportStatus, msg *models.Message) (*models.Report, error)
	// Assign sets the assignee of a report that is not closed and appends msg
	Assign(ctx context.Context, id string, assigneeID int, msg *models.Message) (*models.Report, error)
	Archive(ctx context.Context, id string) (*models.Report, error)
	// AppendMessage adds a human message unless the report is closed
	AppendMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, reportID string) ([]models.Message, error)
	ListResolvedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Report, error)
}

// ReportRepositoryImpl implements ReportRepository on PostgreSQL
type ReportRepositoryImpl struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *sql.DB, logger *observability.Logger) ReportRepository {
	return &ReportRepositoryImpl{db: db, logger: logger}
}

const reportColumns = `id, user_id, report_type, title, description, severity, category, status,
	page_url, user_agent, screenshot_url, video_url, assigned_to, resolved_at, closed_at, archived_at,
	created_at, updated_at`

const messageColumns = `id, report_id, seq, author_id, author_name, is_admin, system_type, body, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (*models.Report, error) {
	var r models.Report
	err := row.Scan(&r.ID, &r.UserID, &r.ReportType, &r.Title, &r.Description, &r.Severity, &r.Category, &r.Status,
		&r.PageURL, &r.UserAgent, &r.ScreenshotURL, &r.VideoURL, &r.AssignedTo, &r.ResolvedAt, &r.ClosedAt, &r.ArchivedAt,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var m models.Message
	var systemType sql.NullString
	err := row.Scan(&m.ID, &m.ReportID, &m.Seq, &m.AuthorID, &m.AuthorName, &m.IsAdmin, &systemType, &m.Body, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.SystemType = models.SystemMessageType(systemType.String)
	return &m, nil
}

// CreateWithMessage inserts the report and its submitted message atomically
func (r *ReportRepositoryImpl) CreateWithMessage(ctx context.Context, report *models.Report, msg *models.Message) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "create_report",
		observability.AttributeReportID(report.ID),
		observability.AttributeUserID(report.UserID),
	)
	defer observability.FinishSpan(span, &err)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseTransaction, "failed to begin transaction: %v", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `INSERT INTO reports (id, user_id, report_type, title, description, severity, category, status,
			page_url, user_agent, screenshot_url, video_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING created_at, updated_at`
	err = tx.QueryRowContext(ctx, query, report.ID, report.UserID, report.ReportType, report.Title, report.Description,
		report.Severity, report.Category, report.Status, report.PageURL, report.UserAgent,
		report.ScreenshotURL, report.VideoURL).Scan(&report.CreatedAt, &report.UpdatedAt)
	if err != nil {
		return contextutils.WrapError(err, "failed to insert report")
	}

	if err = insertMessage(ctx, tx, msg); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrDatabaseTransaction, "failed to commit report: %v", err)
	}
	return nil
}

type execQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func insertMessage(ctx context.Context, q execQuerier, msg *models.Message) error {
	query := `INSERT INTO report_messages (id, report_id, author_id, author_name, is_admin, system_type, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING seq, created_at`
	err := q.QueryRowContext(ctx, query, msg.ID, msg.ReportID, msg.AuthorID, msg.AuthorName, msg.IsAdmin,
		models.NewNullString(string(msg.SystemType)), msg.Body).Scan(&msg.Seq, &msg.CreatedAt)
	if err != nil {
		return contextutils.WrapError(err, "failed to insert message")
	}
	return nil
}

// GetByID fetches a single report
func (r *ReportRepositoryImpl) GetByID(ctx context.Context, id string) (result *models.Report, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_report", observability.AttributeReportID(id))
	defer observability.FinishSpan(span, &err)

	report, err := scanReport(r.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.ErrRecordNotFound
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get report")
	}
	return report, nil
}

// List returns a page of reports matching filter and the total match count
func (r *ReportRepositoryImpl) List(ctx context.Context, filter models.ReportFilter, limit, offset int) (result0 []models.Report, result1 int, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "list_reports",
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)
	defer observability.FinishSpan(span, &err)

	var conditions []string
	var args []interface{}
	idx := 1
	add := func(cond string, arg interface{}) {
		conditions = append(conditions, fmt.Sprintf(cond, idx))
		args = append(args, arg)
		idx++
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Severity != "" {
		add("severity = $%d", filter.Severity)
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if filter.ReportType != "" {
		add("report_type = $%d", filter.ReportType)
	}
	if filter.AssignedTo != nil {
		add("assigned_to = $%d", *filter.AssignedTo)
	}
	if filter.UserID != nil {
		add("user_id = $%d", *filter.UserID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", idx, idx))
		args = append(args, "%"+search+"%")
		idx++
	}
	if !filter.IncludeArchived {
		conditions = append(conditions, "archived_at IS NULL")
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports "+where, args...).Scan(&total); err != nil {
		return nil, 0, contextutils.WrapError(err, "failed to count reports")
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf("SELECT %s FROM reports %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		reportColumns, where, idx, idx+1)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, contextutils.WrapError(err, "failed to query reports")
	}
	defer func() {
		_ = rows.Close()
	}()

	reports := []models.Report{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, 0, contextutils.WrapError(err, "failed to scan report")
		}
		reports = append(reports, *report)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, contextutils.WrapError(err, "failed to iterate reports")
	}
	return reports, total, nil
}

// TransitionStatus updates the status only if it still equals from
func (r *ReportRepositoryImpl) TransitionStatus(ctx context.Context, id string, from, to models.ReportStatus, msg *models.Message) (result *models.Report, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "transition_report_status",
		observability.AttributeReportID(id),
		attribute.String("status.from", string(from)),
		attribute.String("status.to", string(to)),
	)
	defer observability.FinishSpan(span, &err)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseTransaction, "failed to begin transaction: %v", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `UPDATE reports SET status = $3, updated_at = NOW(),
			resolved_at = CASE WHEN $3 = 'resolved' THEN NOW() ELSE resolved_at END,
			closed_at = CASE WHEN $3 = 'closed' THEN NOW() ELSE closed_at END
		WHERE id = $1 AND status = $2
		RETURNING ` + reportColumns
	report, err := scanReport(tx.QueryRowContext(ctx, query, id, from, to))
	if errors.Is(err, sql.ErrNoRows) {
		err = contextutils.WrapErrorf(contextutils.ErrConflict, "report %s is no longer %s", id, from)
		return nil, err
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to update report status")
	}

	if err = insertMessage(ctx, tx, msg); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseTransaction, "failed to commit status change: %v", err)
	}
	return report, nil
}

// Assign sets assigned_to on a report that is not closed
func (r *ReportRepositoryImpl) Assign(ctx context.Context, id string, assigneeID int, msg *models.Message) (result *models.Report, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "assign_report",
		observability.AttributeReportID(id),
		attribute.Int("assignee_id", assigneeID),
	)
	defer observability.FinishSpan(span, &err)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseTransaction, "failed to begin transaction: %v", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `UPDATE reports SET assigned_to = $2, updated_at = NOW()
		WHERE id = $1 AND status <> 'closed'
		RETURNING ` + reportColumns
	report, err := scanReport(tx.QueryRowContext(ctx, query, id, assigneeID))
	if errors.Is(err, sql.ErrNoRows) {
		err = r.closedOrMissing(ctx, id)
		return nil, err
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to assign report")
	}

	if err = insertMessage(ctx, tx, msg); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrDatabaseTransaction, "failed to commit assignment: %v", err)
	}
	return report, nil
}

// Archive sets archived_at once; archiving again keeps the original time
func (r *ReportRepositoryImpl) Archive(ctx context.Context, id string) (result *models.Report, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "archive_report", observability.AttributeReportID(id))
	defer observability.FinishSpan(span, &err)

	query := `UPDATE reports SET archived_at = COALESCE(archived_at, NOW()), updated_at = NOW()
		WHERE id = $1
		RETURNING ` + reportColumns
	report, err := scanReport(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.ErrRecordNotFound
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to archive report")
	}
	return report, nil
}

// AppendMessage inserts the message only while the report is not closed
func (r *ReportRepositoryImpl) AppendMessage(ctx context.Context, msg *models.Message) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "append_message", observability.AttributeReportID(msg.ReportID))
	defer observability.FinishSpan(span, &err)

	query := `INSERT INTO report_messages (id, report_id, author_id, author_name, is_admin, system_type, body, created_at)
		SELECT $1::uuid, $2::uuid, $3::integer, $4::varchar, $5::boolean, NULL, $6::text, NOW()
		FROM reports WHERE id = $2::uuid AND status <> 'closed'
		RETURNING seq, created_at`
	err = r.db.QueryRowContext(ctx, query, msg.ID, msg.ReportID, msg.AuthorID, msg.AuthorName, msg.IsAdmin, msg.Body).
		Scan(&msg.Seq, &msg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r.closedOrMissing(ctx, msg.ReportID)
	}
	if err != nil {
		return contextutils.WrapError(err, "failed to insert message")
	}
	return nil
}

func (r *ReportRepositoryImpl) closedOrMissing(ctx context.Context, id string) error {
	var status models.ReportStatus
	err := r.db.QueryRowContext(ctx, `SELECT status FROM reports WHERE id = $1`, id).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return contextutils.ErrRecordNotFound
	case err != nil:
		return contextutils.WrapError(err, "failed to check report status")
	case status == models.StatusClosed:
		return contextutils.ErrReportClosed
	default:
		return contextutils.WrapErrorf(contextutils.ErrConflict, "report %s changed concurrently", id)
	}
}

// ListMessages returns the thread in seq order
func (r *ReportRepositoryImpl) ListMessages(ctx context.Context, reportID string) (result []models.Message, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "list_messages", observability.AttributeReportID(reportID))
	defer observability.FinishSpan(span, &err)

	rows, err := r.db.QueryContext(ctx, `SELECT `+messageColumns+` FROM report_messages WHERE report_id = $1 ORDER BY seq`, reportID)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query messages")
	}
	defer func() {
		_ = rows.Close()
	}()

	messages := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan message")
		}
		messages = append(messages, *m)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate messages")
	}
	return messages, nil
}

// ListResolvedBefore returns resolved reports whose resolved_at is older than cutoff, oldest first
func (r *ReportRepositoryImpl) ListResolvedBefore(ctx context.Context, cutoff time.Time, limit int) (result []models.Report, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "list_resolved_before",
		attribute.String("cutoff", cutoff.Format(time.RFC3339)),
	)
	defer observability.FinishSpan(span, &err)

	query := `SELECT ` + reportColumns + ` FROM reports
		WHERE status = 'resolved' AND resolved_at < $1
		ORDER BY resolved_at LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query resolved reports")
	}
	defer func() {
		_ = rows.Close()
	}()

	reports := []models.Report{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan report")
		}
		reports = append(reports, *report)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate reports")
	}
	return reports, nil
}
