package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"triageapp/internal/config"
	"triageapp/internal/models"
	"triageapp/internal/observability"
	"triageapp/internal/serviceinterfaces"
	contextutils "triageapp/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockReportService struct{ mock.Mock }

func (m *mockReportService) CreateReport(ctx context.Context, actor models.Actor, in serviceinterfaces.CreateReportInput) (*models.Report, error) {
	args := m.Called(ctx, actor, in)
	r, _ := args.Get(0).(*models.Report)
	return r, args.Error(1)
}

func (m *mockReportService) GetReport(ctx context.Context, actor models.Actor, id string) (*models.Report, error) {
	args := m.Called(ctx, actor, id)
	r, _ := args.Get(0).(*models.Report)
	return r, args.Error(1)
}

func (m *mockReportService) GetReportWithMessages(ctx context.Context, actor models.Actor, id string) (*models.ReportThread, error) {
	args := m.Called(ctx, actor, id)
	t, _ := args.Get(0).(*models.ReportThread)
	return t, args.Error(1)
}

func (m *mockReportService) ListReportsForUser(ctx context.Context, userID, page, pageSize int) ([]models.Report, int, error) {
	args := m.Called(ctx, userID, page, pageSize)
	r, _ := args.Get(0).([]models.Report)
	return r, args.Int(1), args.Error(2)
}

func (m *mockReportService) ListReports(ctx context.Context, filter models.ReportFilter, page, pageSize int) ([]models.Report, int, error) {
	args := m.Called(ctx, filter, page, pageSize)
	r, _ := args.Get(0).([]models.Report)
	return r, args.Int(1), args.Error(2)
}

func (m *mockReportService) UpdateStatus(ctx context.Context, actor models.Actor, id string, status models.ReportStatus) (*models.Report, error) {
	args := m.Called(ctx, actor, id, status)
	r, _ := args.Get(0).(*models.Report)
	return r, args.Error(1)
}

func (m *mockReportService) AssignReport(ctx context.Context, actor models.Actor, id string, assigneeID int) (*models.Report, error) {
	args := m.Called(ctx, actor, id, assigneeID)
	r, _ := args.Get(0).(*models.Report)
	return r, args.Error(1)
}

func (m *mockReportService) AddMessage(ctx context.Context, author models.Actor, id, body string) (*models.Message, error) {
	args := m.Called(ctx, author, id, body)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func (m *mockReportService) ArchiveReport(ctx context.Context, id string) (*models.Report, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*models.Report)
	return r, args.Error(1)
}

func (m *mockReportService) AutoCloseResolved(ctx context.Context, olderThan time.Duration) (int, error) {
	args := m.Called(ctx, olderThan)
	return args.Int(0), args.Error(1)
}

type mockAnalysisService struct{ mock.Mock }

func (m *mockAnalysisService) StartJob(ctx context.Context, requestedBy models.Actor, reportID string, opts models.JobOptions) (*models.AnalysisJob, error) {
	args := m.Called(ctx, requestedBy, reportID, opts)
	j, _ := args.Get(0).(*models.AnalysisJob)
	return j, args.Error(1)
}

func (m *mockAnalysisService) LatestJob(ctx context.Context, reportID string) (*models.AnalysisJob, error) {
	args := m.Called(ctx, reportID)
	j, _ := args.Get(0).(*models.AnalysisJob)
	return j, args.Error(1)
}

func (m *mockAnalysisService) ListJobs(ctx context.Context, reportID string) ([]models.AnalysisJob, error) {
	args := m.Called(ctx, reportID)
	j, _ := args.Get(0).([]models.AnalysisJob)
	return j, args.Error(1)
}

func (m *mockAnalysisService) ProcessJob(ctx context.Context, jobID string) (bool, error) {
	args := m.Called(ctx, jobID)
	return args.Bool(0), args.Error(1)
}

func (m *mockAnalysisService) PendingJobs(ctx context.Context, limit int) ([]string, error) {
	args := m.Called(ctx, limit)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *mockAnalysisService) FailStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

type mockSatisfactionService struct{ mock.Mock }

func (m *mockSatisfactionService) Submit(ctx context.Context, actor models.Actor, reportID string, rating models.Rating, feedback string) (*models.SatisfactionRating, error) {
	args := m.Called(ctx, actor, reportID, rating, feedback)
	s, _ := args.Get(0).(*models.SatisfactionRating)
	return s, args.Error(1)
}

func (m *mockSatisfactionService) Get(ctx context.Context, reportID string) (*models.SatisfactionRating, error) {
	args := m.Called(ctx, reportID)
	s, _ := args.Get(0).(*models.SatisfactionRating)
	return s, args.Error(1)
}

type mockMediaService struct{ mock.Mock }

func (m *mockMediaService) PresignUpload(ctx context.Context, ownerID int, req serviceinterfaces.PresignRequest) (*serviceinterfaces.PresignResult, error) {
	args := m.Called(ctx, ownerID, req)
	r, _ := args.Get(0).(*serviceinterfaces.PresignResult)
	return r, args.Error(1)
}

func (m *mockMediaService) UploadBlob(ctx context.Context, ownerID int, uploadKey string, body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	args := m.Called(ctx, ownerID, uploadKey, data, contentType)
	return args.String(0), args.Error(1)
}

func (m *mockMediaService) CleanupExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// stubUsers serves a fixed set of users
type stubUsers struct {
	users map[int]*models.User
}

func (s *stubUsers) GetUserByID(_ context.Context, id int) (*models.User, error) {
	return s.users[id], nil
}

func (s *stubUsers) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (s *stubUsers) CreateUser(context.Context, string, string, string, bool) (*models.User, error) {
	return nil, contextutils.ErrInternalError
}

func (s *stubUsers) ListUsers(context.Context) ([]models.User, error) { return nil, nil }

func (s *stubUsers) SetAdmin(context.Context, int, bool) error { return nil }

// stubKeys maps raw bearer keys to key records
type stubKeys struct {
	keys map[string]*models.AuthAPIKey
}

func (s *stubKeys) CreateAPIKey(context.Context, int, string, string) (*models.AuthAPIKey, string, error) {
	return nil, "", contextutils.ErrInternalError
}

func (s *stubKeys) ListAPIKeys(context.Context, int) ([]models.AuthAPIKey, error) { return nil, nil }

func (s *stubKeys) DeleteAPIKey(context.Context, int, int) error { return nil }

func (s *stubKeys) ValidateAPIKey(_ context.Context, raw string) (*models.AuthAPIKey, error) {
	if k, ok := s.keys[raw]; ok {
		return k, nil
	}
	return nil, contextutils.ErrInvalidCredentials
}

func (s *stubKeys) UpdateLastUsed(context.Context, int) error { return nil }

const (
	reporterKey = "reporter-key"
	staffKey    = "staff-key"
	readonlyKey = "readonly-key"

	reporterID = 1
	staffID    = 10
)

var (
	reporter = models.Actor{UserID: reporterID, Name: "alice"}
	staff    = models.Actor{UserID: staffID, Name: "Sam Support", IsAdmin: true}
)

type testServer struct {
	router       *gin.Engine
	reports      *mockReportService
	analysis     *mockAnalysisService
	satisfaction *mockSatisfactionService
	media        *mockMediaService
	mediaRoot    string
}

func testLogger() *observability.Logger {
	return observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Server.SessionSecret = "test-session-secret"
	cfg.Server.Debug = true
	cfg.Server.AppBaseURL = "https://app.example.com"
	cfg.Storage.Driver = "filesystem"
	cfg.Storage.Filesystem.Root = t.TempDir()
	cfg.Storage.MaxScreenshotBytes = 1024
	cfg.Storage.MaxVideoBytes = 4096

	users := &stubUsers{users: map[int]*models.User{
		reporterID: {ID: reporterID, Username: "alice"},
		staffID:    {ID: staffID, Username: "sam", DisplayName: "Sam Support", IsAdmin: true, Email: sql.NullString{String: "sam@example.com", Valid: true}},
	}}
	keys := &stubKeys{keys: map[string]*models.AuthAPIKey{
		reporterKey: {ID: 1, UserID: reporterID, PermissionLevel: models.PermissionLevelFull},
		staffKey:    {ID: 2, UserID: staffID, PermissionLevel: models.PermissionLevelFull},
		readonlyKey: {ID: 3, UserID: reporterID, PermissionLevel: models.PermissionLevelReadonly},
	}}

	ts := &testServer{
		reports:      &mockReportService{},
		analysis:     &mockAnalysisService{},
		satisfaction: &mockSatisfactionService{},
		media:        &mockMediaService{},
		mediaRoot:    cfg.Storage.Filesystem.Root,
	}
	ts.router = NewRouter(cfg, ts.reports, ts.analysis, ts.satisfaction, ts.media, users, keys, RateLimiters{}, testLogger())
	t.Cleanup(func() {
		ts.reports.AssertExpectations(t)
		ts.analysis.AssertExpectations(t)
		ts.satisfaction.AssertExpectations(t)
		ts.media.AssertExpectations(t)
	})
	return ts
}

// do sends a request authenticated with key; an empty key sends no credentials
func (ts *testServer) do(t *testing.T, method, path, key string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	decode(t, w, &body)
	code, _ := body["code"].(string)
	return code
}

func sampleReport() *models.Report {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &models.Report{
		ID:          "r-1",
		UserID:      reporterID,
		ReportType:  models.ReportTypeBug,
		Title:       "Checkout hangs",
		Description: "Spinner forever",
		Severity:    models.SeverityHigh,
		Category:    models.CategoryFunctionality,
		Status:      models.StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

var anyCtx = mock.Anything
