package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contextutils "triageapp/internal/utils"
)

var userRowColumns = []string{"id", "username", "email", "display_name", "is_admin", "created_at", "updated_at"}

func newTestUserService(t *testing.T) (*UserService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewUserServiceWithLogger(db, testLogger()), mock
}

func TestNewUserServiceWithLogger_NilDB(t *testing.T) {
	assert.Panics(t, func() { NewUserServiceWithLogger(nil, testLogger()) })
}

func TestUserService_GetUserByID(t *testing.T) {
	svc, mock := newTestUserService(t)
	now := time.Now()

	mock.ExpectQuery("FROM users WHERE id = \\$1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(1, "alice", "alice@example.com", "Alice", false, now, now))

	user, err := svc.GetUserByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Alice", user.Name())
	assert.Equal(t, "alice@example.com", user.Email.String)
}

func TestUserService_GetUserByID_NotFound(t *testing.T) {
	svc, mock := newTestUserService(t)

	mock.ExpectQuery("FROM users WHERE id = \\$1").
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	user, err := svc.GetUserByID(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestUserService_CreateUser(t *testing.T) {
	svc, mock := newTestUserService(t)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("sam", sqlmock.AnyArg(), "Sam Support", true).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(10, "sam", "sam@example.com", "Sam Support", true, now, now))

	user, err := svc.CreateUser(context.Background(), " sam ", "sam@example.com", "Sam Support", true)
	require.NoError(t, err)
	assert.Equal(t, 10, user.ID)
	assert.True(t, user.IsAdmin)
}

func TestUserService_CreateUser_Duplicate(t *testing.T) {
	svc, mock := newTestUserService(t)

	mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := svc.CreateUser(context.Background(), "sam", "", "", false)
	assert.True(t, errors.Is(err, contextutils.ErrRecordExists))
}

func TestUserService_CreateUser_Validation(t *testing.T) {
	svc, _ := newTestUserService(t)

	_, err := svc.CreateUser(context.Background(), "  ", "", "", false)
	assert.True(t, errors.Is(err, contextutils.ErrMissingRequired))

	_, err = svc.CreateUser(context.Background(), "sam", "not-an-email", "", false)
	assert.True(t, errors.Is(err, contextutils.ErrInvalidInput))
}

func TestUserService_SetAdmin(t *testing.T) {
	svc, mock := newTestUserService(t)

	mock.ExpectExec("UPDATE users SET is_admin").
		WithArgs(10, true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET is_admin").
		WithArgs(99, true).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, svc.SetAdmin(context.Background(), 10, true))
	assert.True(t, errors.Is(svc.SetAdmin(context.Background(), 99, true), contextutils.ErrRecordNotFound))
}

func TestUserService_ListUsers(t *testing.T) {
	svc, mock := newTestUserService(t)
	now := time.Now()

	mock.ExpectQuery("FROM users ORDER BY id").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow(1, "alice", nil, "", false, now, now).
			AddRow(10, "sam", "sam@example.com", "Sam Support", true, now, now))

	users, err := svc.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.False(t, users[0].Email.Valid)
	assert.Equal(t, "alice", users[0].Name())
}
