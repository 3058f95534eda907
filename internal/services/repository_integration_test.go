//go:build integration

package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"triageapp/internal/models"
	contextutils "triageapp/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestUser(t *testing.T, db *sql.DB, username string, admin bool) *models.User {
	t.Helper()
	user, err := NewUserServiceWithLogger(db, testLogger()).CreateUser(context.Background(), username, username+"@example.com", "", admin)
	require.NoError(t, err)
	return user
}

func createTestReport(t *testing.T, repo ReportRepository, userID int) *models.Report {
	t.Helper()
	report := &models.Report{
		ID:          uuid.NewString(),
		UserID:      userID,
		ReportType:  models.ReportTypeBug,
		Title:       "Checkout hangs",
		Description: "Spinner never stops",
		Severity:    models.SeverityHigh,
		Category:    models.CategoryUI,
		Status:      models.StatusOpen,
	}
	msg := &models.Message{ID: uuid.NewString(), ReportID: report.ID, AuthorName: "system", SystemType: models.SystemMessageSubmitted, Body: "Report submitted"}
	require.NoError(t, repo.CreateWithMessage(context.Background(), report, msg))
	return report
}

func TestReportRepository_Integration_Lifecycle(t *testing.T) {
	db := SharedTestDBSetup(t)
	repo := NewReportRepository(db, testLogger())
	ctx := context.Background()
	user := createTestUser(t, db, "alice", false)

	report := createTestReport(t, repo, user.ID)
	got, err := repo.GetByID(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, got.Status)
	assert.False(t, got.HasScreenshot())

	reply := &models.Message{ID: uuid.NewString(), ReportID: report.ID, AuthorName: "alice", Body: "still broken"}
	reply.AuthorID.Int32, reply.AuthorID.Valid = int32(user.ID), true
	require.NoError(t, repo.AppendMessage(ctx, reply))

	closing := &models.Message{ID: uuid.NewString(), ReportID: report.ID, AuthorName: "system", SystemType: models.SystemMessageStatusChange, Body: "closed"}
	closed, err := repo.TransitionStatus(ctx, report.ID, models.StatusOpen, models.StatusClosed, closing)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, closed.Status)
	assert.True(t, closed.ClosedAt.Valid)

	late := &models.Message{ID: uuid.NewString(), ReportID: report.ID, AuthorName: "alice", Body: "hello?"}
	err = repo.AppendMessage(ctx, late)
	assert.True(t, errors.Is(err, contextutils.ErrReportClosed), "got %v", err)

	_, err = repo.TransitionStatus(ctx, report.ID, models.StatusOpen, models.StatusResolved, nil)
	assert.True(t, errors.Is(err, contextutils.ErrConflict), "stale transition")

	msgs, err := repo.ListMessages(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	for i := 1; i < len(msgs); i++ {
		assert.Greater(t, msgs[i].Seq, msgs[i-1].Seq)
	}
	assert.Equal(t, models.SystemMessageSubmitted, msgs[0].SystemType)

	err = repo.AppendMessage(ctx, &models.Message{ID: uuid.NewString(), ReportID: uuid.NewString(), AuthorName: "x", Body: "y"})
	assert.True(t, errors.Is(err, contextutils.ErrRecordNotFound))
}

func TestAnalysisJobRepository_Integration_ClaimOnce(t *testing.T) {
	db := SharedTestDBSetup(t)
	reports := NewReportRepository(db, testLogger())
	jobs := NewAnalysisJobRepository(db, testLogger())
	ctx := context.Background()
	user := createTestUser(t, db, "alice", false)
	report := createTestReport(t, reports, user.ID)

	first := &models.AnalysisJob{ID: uuid.NewString(), ReportID: report.ID, Status: models.JobPending}
	require.NoError(t, jobs.Create(ctx, first))
	time.Sleep(10 * time.Millisecond)
	second := &models.AnalysisJob{ID: uuid.NewString(), ReportID: report.ID, Status: models.JobPending, IncludeScreenshot: true}
	require.NoError(t, jobs.Create(ctx, second))

	latest, err := jobs.Latest(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	var wg sync.WaitGroup
	var mu sync.Mutex
	claimed := 0
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := jobs.Claim(ctx, second.ID)
			assert.NoError(t, err)
			if job != nil {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, claimed, "exactly one worker wins the claim")

	require.NoError(t, jobs.Fail(ctx, second.ID, "provider timed out", 1200))
	all, err := jobs.ListByReport(ctx, report.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, models.JobFailed, all[0].Status)
	assert.Equal(t, "provider timed out", all[0].Error.String)

	pending, err := jobs.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, pending)
}

func TestSatisfactionRepository_Integration_Unique(t *testing.T) {
	db := SharedTestDBSetup(t)
	reports := NewReportRepository(db, testLogger())
	ratings := NewSatisfactionRepository(db, testLogger())
	ctx := context.Background()
	user := createTestUser(t, db, "alice", false)
	report := createTestReport(t, reports, user.ID)

	require.NoError(t, ratings.Create(ctx, &models.SatisfactionRating{ReportID: report.ID, UserID: user.ID, Rating: models.RatingPositive}))
	err := ratings.Create(ctx, &models.SatisfactionRating{ReportID: report.ID, UserID: user.ID, Rating: models.RatingNegative})
	assert.True(t, errors.Is(err, contextutils.ErrSatisfactionExists), "got %v", err)

	got, err := ratings.GetByReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RatingPositive, got.Rating)
}
