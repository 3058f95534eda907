package models

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to ReportStatus
		allowed  bool
	}{
		{StatusOpen, StatusInProgress, true},
		{StatusOpen, StatusResolved, true},
		{StatusOpen, StatusClosed, true},
		{StatusInProgress, StatusResolved, true},
		{StatusInProgress, StatusClosed, true},
		{StatusResolved, StatusClosed, true},
		{StatusInProgress, StatusOpen, false},
		{StatusResolved, StatusOpen, false},
		{StatusResolved, StatusInProgress, false},
		{StatusClosed, StatusOpen, false},
		{StatusClosed, StatusResolved, false},
		{StatusOpen, StatusOpen, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, StatusInProgress.IsValid())
	assert.False(t, ReportStatus("reopened").IsValid())
	assert.True(t, SeverityCritical.IsValid())
	assert.False(t, Severity("urgent").IsValid())
	assert.True(t, CategoryPerformance.IsValid())
	assert.False(t, Category("billing").IsValid())
	assert.True(t, ReportTypeSupport.IsValid())
	assert.False(t, ReportType("feature").IsValid())
	assert.True(t, RatingNegative.IsValid())
	assert.False(t, Rating("neutral").IsValid())
	assert.True(t, MediaVideo.IsValid())
	assert.False(t, MediaCategory("audio").IsValid())
}

func TestReportStatus_AcceptsFeedback(t *testing.T) {
	assert.False(t, StatusOpen.AcceptsFeedback())
	assert.False(t, StatusInProgress.AcceptsFeedback())
	assert.True(t, StatusResolved.AcceptsFeedback())
	assert.True(t, StatusClosed.AcceptsFeedback())
}

func TestAnalysisResult_Validate(t *testing.T) {
	valid := AnalysisResult{
		Summary:    "Save button does nothing",
		Confidence: ConfidenceHigh,
		SuggestedSolutions: []SuggestedSolution{
			{Title: "Clear cache", Confidence: ConfidenceMedium, EstimatedEffort: EffortQuick},
		},
	}
	require.NoError(t, valid.Validate())

	badConfidence := valid
	badConfidence.Confidence = "certain"
	assert.Error(t, badConfidence.Validate())

	badEffort := valid
	badEffort.SuggestedSolutions = []SuggestedSolution{{Confidence: ConfidenceLow, EstimatedEffort: "huge"}}
	assert.Error(t, badEffort.Validate())
}

func TestAnalysisResult_JSONRoundTripKeepsEnums(t *testing.T) {
	excerpt := "Reset your browser cache"
	in := AnalysisResult{
		Summary:        "Upload fails",
		SuggestedCause: "Expired session",
		Confidence:     ConfidenceMedium,
		VideoAnalysis: &VideoAnalysis{
			Description:  "User clicks save twice",
			ErrorMoments: []ErrorMoment{{Seconds: 12.5, Description: "Spinner never stops"}},
		},
		SuggestedSolutions: []SuggestedSolution{{Title: "Sign in again", Confidence: ConfidenceHigh, EstimatedEffort: EffortSignificant}},
		RelatedDocs:        []RelatedDoc{{SectionID: "account", ArticleID: "sessions", Relevance: "high", Excerpt: &excerpt}},
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"estimatedEffort":"significant"`)
	assert.NotContains(t, string(data), "screenshotAnalysis")

	var out AnalysisResult
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.False(t, JobPending.IsTerminal())
	assert.False(t, JobProcessing.IsTerminal())
	assert.True(t, JobCompleted.IsTerminal())
	assert.True(t, JobFailed.IsTerminal())
}

func TestWorkerStatus_MarshalJSON(t *testing.T) {
	status := WorkerStatus{
		WorkerInstance:     "worker-1",
		IsRunning:          true,
		CurrentActivity:    sql.NullString{String: "Processing analysis job", Valid: true},
		LastHeartbeat:      sql.NullTime{Time: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), Valid: true},
		TotalJobsProcessed: 4,
		TotalRuns:          10,
		QueueBackend:       "redis",
	}

	data, err := json.Marshal(status)
	require.NoError(t, err)
	assert.JSONEq(t, `{"worker_instance":"worker-1","is_running":true,"is_paused":false,"current_activity":"Processing analysis job","last_heartbeat":"2026-01-01T12:00:00Z","last_run_start":null,"last_run_finish":null,"last_run_error":null,"total_jobs_processed":4,"total_jobs_failed":0,"total_runs":10,"queue_backend":"redis","next_maintenance":null}`, string(data))
}

func TestUserNameAndActor(t *testing.T) {
	u := User{ID: 7, Username: "sam", IsAdmin: true}
	assert.Equal(t, "sam", u.Name())
	u.DisplayName = "Sam Support"
	assert.Equal(t, Actor{UserID: 7, Name: "Sam Support", IsAdmin: true}, u.Actor())
}

func TestNullHelpers(t *testing.T) {
	assert.Nil(t, NullStringToPointer(sql.NullString{}))
	assert.Equal(t, "x", *NullStringToPointer(sql.NullString{String: "x", Valid: true}))
	assert.False(t, NewNullString("").Valid)
	v := 3
	assert.Equal(t, sql.NullInt32{Int32: 3, Valid: true}, NewNullInt32(&v))
	assert.Equal(t, 3, *NullInt32ToIntPointer(NewNullInt32(&v)))
}

func TestAuthAPIKey_CanPerformMethod(t *testing.T) {
	readonly := &AuthAPIKey{PermissionLevel: PermissionLevelReadonly}
	full := &AuthAPIKey{PermissionLevel: PermissionLevelFull}

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		assert.True(t, readonly.CanPerformMethod(method), method)
	}
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		assert.False(t, readonly.CanPerformMethod(method), method)
		assert.True(t, full.CanPerformMethod(method), method)
	}
	assert.False(t, IsValidPermissionLevel("admin"))
}
