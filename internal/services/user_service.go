package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"triageapp/internal/models"
	"triageapp/internal/observability"
	"triageapp/internal/serviceinterfaces"
	contextutils "triageapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// UserService provides methods for user management.
// Sign-up and passwords belong to the surrounding product; this service only reads and seeds identities.
type UserService struct {
	db     *sql.DB
	logger *observability.Logger
}

var _ serviceinterfaces.UserServiceInterface = (*UserService)(nil)

const userSelectFields = `id, username, email, display_name, is_admin, created_at, updated_at`

// NewUserServiceWithLogger creates a new UserService instance with logger
func NewUserServiceWithLogger(db *sql.DB, logger *observability.Logger) *UserService {
	if db == nil {
		panic("NewUserServiceWithLogger: db is nil")
	}
	if logger == nil {
		panic("NewUserServiceWithLogger: logger is nil")
	}
	return &UserService{db: db, logger: logger}
}

func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.DisplayName, &user.IsAdmin, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	return user, nil
}

// getUserByQuery returns nil, nil when no row matches
func (s *UserService) getUserByQuery(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query user")
	}
	return user, nil
}

// GetUserByID returns the user or nil when it does not exist
func (s *UserService) GetUserByID(ctx context.Context, id int) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_id", attribute.Int("user.id", id))
	defer observability.FinishSpan(span, &err)

	user, err := s.getUserByQuery(ctx, fmt.Sprintf("SELECT %s FROM users WHERE id = $1", userSelectFields), id)
	if err != nil {
		s.logger.Error(ctx, "Database error retrieving user", err, map[string]interface{}{"user_id": id})
		return nil, err
	}
	if user == nil {
		s.logger.Debug(ctx, "User not found in database", map[string]interface{}{"user_id": id})
	}
	return user, nil
}

// GetUserByUsername returns the user or nil when it does not exist
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "get_user_by_username", attribute.String("user.username", username))
	defer observability.FinishSpan(span, &err)

	return s.getUserByQuery(ctx, fmt.Sprintf("SELECT %s FROM users WHERE username = $1", userSelectFields), username)
}

// CreateUser inserts a user; a taken username or email yields ErrRecordExists
func (s *UserService) CreateUser(ctx context.Context, username, email, displayName string, isAdmin bool) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "create_user",
		attribute.String("user.username", username),
		attribute.Bool("user.is_admin", isAdmin),
	)
	defer observability.FinishSpan(span, &err)

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, contextutils.WrapError(contextutils.ErrMissingRequired, "username is required")
	}
	if email != "" && !contextutils.IsValidEmail(email) {
		return nil, contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid email %q", email)
	}

	query := fmt.Sprintf(`INSERT INTO users (username, email, display_name, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING %s`, userSelectFields)
	user, err := scanUser(s.db.QueryRowContext(ctx, query, username, models.NewNullString(email), displayName, isAdmin))
	if isUniqueViolation(err) {
		return nil, contextutils.WrapErrorf(contextutils.ErrRecordExists, "user %s already exists", username)
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to create user")
	}

	s.logger.Info(ctx, "Created user", map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
		"is_admin": user.IsAdmin,
	})
	return user, nil
}

// ListUsers returns every user ordered by id
func (s *UserService) ListUsers(ctx context.Context) (result0 []models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "list_users")
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM users ORDER BY id", userSelectFields))
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to query users")
	}
	defer func() {
		_ = rows.Close()
	}()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, contextutils.WrapError(err, "failed to scan user")
		}
		users = append(users, *user)
	}
	if err = rows.Err(); err != nil {
		return nil, contextutils.WrapError(err, "failed to iterate users")
	}
	return users, nil
}

// SetAdmin grants or revokes staff rights
func (s *UserService) SetAdmin(ctx context.Context, userID int, isAdmin bool) (err error) {
	ctx, span := observability.TraceUserFunction(ctx, "set_admin",
		attribute.Int("user.id", userID),
		attribute.Bool("user.is_admin", isAdmin),
	)
	defer observability.FinishSpan(span, &err)

	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_admin = $2, updated_at = NOW() WHERE id = $1`, userID, isAdmin)
	if err != nil {
		return contextutils.WrapError(err, "failed to update user")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return contextutils.WrapError(err, "failed to check rows affected")
	}
	if n == 0 {
		return contextutils.ErrRecordNotFound
	}
	s.logger.Info(ctx, "Updated admin flag", map[string]interface{}{"user_id": userID, "is_admin": isAdmin})
	return nil
}
