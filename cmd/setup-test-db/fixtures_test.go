package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"triageapp/internal/models"
	"triageapp/internal/serviceinterfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUsers struct {
	serviceinterfaces.UserServiceInterface
	mock.Mock
}

func (m *mockUsers) CreateUser(ctx context.Context, username, email, displayName string, isAdmin bool) (*models.User, error) {
	args := m.Called(ctx, username, email, displayName, isAdmin)
	return args.Get(0).(*models.User), args.Error(1)
}

type mockKeys struct {
	serviceinterfaces.AuthAPIKeyServiceInterface
	mock.Mock
}

func (m *mockKeys) CreateAPIKey(ctx context.Context, userID int, keyName, permissionLevel string) (*models.AuthAPIKey, string, error) {
	args := m.Called(ctx, userID, keyName, permissionLevel)
	return args.Get(0).(*models.AuthAPIKey), args.String(1), args.Error(2)
}

type mockReports struct {
	serviceinterfaces.ReportServiceInterface
	mock.Mock
}

func (m *mockReports) CreateReport(ctx context.Context, actor models.Actor, in serviceinterfaces.CreateReportInput) (*models.Report, error) {
	args := m.Called(ctx, actor, in)
	return args.Get(0).(*models.Report), args.Error(1)
}

func (m *mockReports) AddMessage(ctx context.Context, author models.Actor, reportID, body string) (*models.Message, error) {
	args := m.Called(ctx, author, reportID, body)
	return &models.Message{}, args.Error(0)
}

func (m *mockReports) AssignReport(ctx context.Context, actor models.Actor, reportID string, assigneeID int) (*models.Report, error) {
	args := m.Called(ctx, actor, reportID, assigneeID)
	return &models.Report{}, args.Error(0)
}

func (m *mockReports) UpdateStatus(ctx context.Context, actor models.Actor, reportID string, status models.ReportStatus) (*models.Report, error) {
	args := m.Called(ctx, actor, reportID, status)
	return &models.Report{}, args.Error(0)
}

type mockSatisfaction struct {
	serviceinterfaces.SatisfactionServiceInterface
	mock.Mock
}

func (m *mockSatisfaction) Submit(ctx context.Context, actor models.Actor, reportID string, rating models.Rating, feedback string) (*models.SatisfactionRating, error) {
	args := m.Called(ctx, actor, reportID, rating, feedback)
	return &models.SatisfactionRating{}, args.Error(0)
}

func TestLoadFixtures_Bundled(t *testing.T) {
	f, err := LoadFixtures(filepath.Join("testdata", "fixtures.yaml"))
	require.NoError(t, err)
	assert.Len(t, f.Users, 3)
	assert.Len(t, f.Reports, 3)
	assert.Equal(t, models.RatingPositive, f.Reports[1].Satisfaction.Rating)
}

func TestLoadFixtures_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown reporter", "users: [{username: a}]\nreports: [{username: b, title: t}]"},
		{"bad permission", "users: [{username: a, api_keys: [{name: k, permission: root}]}]"},
		{"duplicate user", "users: [{username: a}, {username: a}]"},
		{"rating on open report", "users: [{username: a}]\nreports: [{username: a, satisfaction: {rating: positive}}]"},
		{"bad status", "users: [{username: a}]\nreports: [{username: a, status: reopened}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "f.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))
			_, err := LoadFixtures(path)
			assert.Error(t, err)
		})
	}
}

func TestSeeder_Apply(t *testing.T) {
	ctx := context.Background()
	users := &mockUsers{}
	keys := &mockKeys{}
	reports := &mockReports{}
	satisfaction := &mockSatisfaction{}

	alice := &models.User{ID: 1, Username: "alice"}
	sam := &models.User{ID: 2, Username: "sam", DisplayName: "Sam", IsAdmin: true}
	users.On("CreateUser", ctx, "alice", "", "", false).Return(alice, nil)
	users.On("CreateUser", ctx, "sam", "", "", true).Return(sam, nil)
	keys.On("CreateAPIKey", ctx, 1, "e2e", models.PermissionLevelFull).Return(&models.AuthAPIKey{ID: 5}, "raw-alice", nil)

	reports.On("CreateReport", ctx, alice.Actor(), mock.MatchedBy(func(in serviceinterfaces.CreateReportInput) bool {
		return in.Title == "Broken" && in.UserAgent == "setup-test-db"
	})).Return(&models.Report{ID: "r-1"}, nil)
	reports.On("AddMessage", ctx, sam.Actor(), "r-1", "On it").Return(nil)
	reports.On("AssignReport", ctx, sam.Actor(), "r-1", 2).Return(nil)
	reports.On("UpdateStatus", ctx, sam.Actor(), "r-1", models.StatusResolved).Return(nil)
	satisfaction.On("Submit", ctx, alice.Actor(), "r-1", models.RatingPositive, "thanks").Return(nil)

	seeder := &Seeder{Users: users, Keys: keys, Reports: reports, Satisfaction: satisfaction}
	result, err := seeder.Apply(ctx, &Fixtures{
		Users: []FixtureUser{
			{Username: "alice", APIKeys: []FixtureAPIKey{{Name: "e2e", Permission: models.PermissionLevelFull}}},
			{Username: "sam", Admin: true},
		},
		Reports: []FixtureReport{{
			Username: "alice",
			Title:    "Broken",
			Messages: []FixtureMessage{{Username: "sam", Body: "On it"}},
			AssignTo: "sam",
			Status:   models.StatusResolved,
			Satisfaction: &FixtureSatisfaction{
				Rating:   models.RatingPositive,
				Feedback: "thanks",
			},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"r-1"}, result.Reports)
	assert.Equal(t, "raw-alice", result.Users["alice"].APIKeys["e2e"])
	assert.True(t, result.Users["sam"].Admin)
	users.AssertExpectations(t)
	keys.AssertExpectations(t)
	reports.AssertExpectations(t)
	satisfaction.AssertExpectations(t)
}

func TestSeeder_StatusNeedsStaff(t *testing.T) {
	ctx := context.Background()
	users := &mockUsers{}
	reports := &mockReports{}
	alice := &models.User{ID: 1, Username: "alice"}
	users.On("CreateUser", ctx, "alice", "", "", false).Return(alice, nil)
	reports.On("CreateReport", ctx, alice.Actor(), mock.Anything).Return(&models.Report{ID: "r-1"}, nil)

	seeder := &Seeder{Users: users, Reports: reports}
	_, err := seeder.Apply(ctx, &Fixtures{
		Users:   []FixtureUser{{Username: "alice"}},
		Reports: []FixtureReport{{Username: "alice", Status: models.StatusClosed}},
	})
	assert.Error(t, err)
}
