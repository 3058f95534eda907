package composer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"triageapp/internal/api"
	"triageapp/internal/client/draft"
	"triageapp/internal/models"
	contextutils "triageapp/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) UploadMedia(ctx context.Context, blob []byte, contentType, filename, category string) (string, error) {
	args := m.Called(ctx, blob, contentType, filename, category)
	return args.String(0), args.Error(1)
}

func (m *mockAPI) CreateReport(ctx context.Context, req api.CreateReportRequest) (*api.Report, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*api.Report), args.Error(1)
	}
	return nil, args.Error(1)
}

type noPreviews struct{}

func (noPreviews) Create([]byte, string) string { return "blob:preview" }
func (noPreviews) Revoke(string)                {}

var env = Environment{PageURL: "https://app.example.com/checkout", UserAgent: "Mozilla/5.0"}

func filledStore() *draft.Store {
	s := draft.NewStore(noPreviews{})
	s.OpenDialog()
	s.SetTitle("  Checkout hangs ")
	s.SetDescription("Spinner never stops")
	s.SetSeverity(models.SeverityHigh)
	return s
}

func TestValidate(t *testing.T) {
	s := draft.NewStore(noPreviews{})
	c := New(s, &mockAPI{}, env)

	assert.False(t, c.CanSubmit())
	assert.True(t, errors.Is(c.Validate(), contextutils.ErrValidation))

	s.SetTitle("   ")
	s.SetDescription("something")
	assert.False(t, c.CanSubmit(), "whitespace title")

	s.SetTitle("t")
	assert.True(t, c.CanSubmit())
}

func TestSubmit_InvalidDraftMakesNoCalls(t *testing.T) {
	client := &mockAPI{}
	c := New(draft.NewStore(noPreviews{}), client, env)

	_, err := c.Submit(context.Background())
	assert.True(t, errors.Is(err, contextutils.ErrValidation))
	client.AssertNotCalled(t, "UploadMedia", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	client.AssertNotCalled(t, "CreateReport", mock.Anything, mock.Anything)
}

func TestSubmit_WithScreenshot(t *testing.T) {
	s := filledStore()
	s.SetScreenshot([]byte("png"), "image/png")
	client := &mockAPI{}
	shotURL := "https://media.example.com/s.png"

	client.On("UploadMedia", mock.Anything, []byte("png"), "image/png", "screenshot.png", "screenshot").Return(shotURL, nil).Once()
	client.On("CreateReport", mock.Anything, mock.MatchedBy(func(req api.CreateReportRequest) bool {
		return req.Title == "Checkout hangs" &&
			req.Severity == "high" &&
			req.Category == "other" &&
			req.ReportType == "bug" &&
			req.PageURL == env.PageURL &&
			req.UserAgent == env.UserAgent &&
			req.ScreenshotURL != nil && *req.ScreenshotURL == shotURL &&
			req.VideoURL == nil
	})).Return(&api.Report{ID: "r-1", Status: api.StatusOpen}, nil).Once()

	report, err := New(s, client, env).Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "r-1", report.ID)
	client.AssertExpectations(t)

	d := s.Snapshot()
	assert.Empty(t, d.Title)
	assert.Nil(t, d.Screenshot)
	assert.Equal(t, models.SeverityMedium, d.Severity)
	assert.False(t, d.DialogOpen)
}

func TestSubmit_RetryDoesNotReupload(t *testing.T) {
	s := filledStore()
	s.SetScreenshot([]byte("png"), "image/png")
	s.SetVideo([]byte("webm"), "video/webm")
	client := &mockAPI{}
	c := New(s, client, env)
	ctx := context.Background()

	client.On("UploadMedia", mock.Anything, []byte("png"), "image/png", "screenshot.png", "screenshot").Return("https://m/s.png", nil).Once()
	client.On("UploadMedia", mock.Anything, []byte("webm"), "video/webm", "recording.webm", "video").Return("", errors.New("connection reset")).Once()

	_, err := c.Submit(ctx)
	assert.True(t, errors.Is(err, contextutils.ErrUploadFailed), "got %v", err)
	client.AssertNotCalled(t, "CreateReport", mock.Anything, mock.Anything)

	d := s.Snapshot()
	assert.Equal(t, "  Checkout hangs ", d.Title, "draft untouched")
	assert.Equal(t, "https://m/s.png", d.Screenshot.UploadedURL)
	assert.False(t, d.Video.Uploaded())
	assert.True(t, d.DialogOpen)

	client.On("UploadMedia", mock.Anything, []byte("webm"), "video/webm", "recording.webm", "video").Return("https://m/v.webm", nil).Once()
	client.On("CreateReport", mock.Anything, mock.MatchedBy(func(req api.CreateReportRequest) bool {
		return req.ScreenshotURL != nil && *req.ScreenshotURL == "https://m/s.png" &&
			req.VideoURL != nil && *req.VideoURL == "https://m/v.webm"
	})).Return(&api.Report{ID: "r-2"}, nil).Once()

	_, err = c.Submit(ctx)
	require.NoError(t, err)
	client.AssertExpectations(t)
	client.AssertNumberOfCalls(t, "UploadMedia", 3)
}

type countingPreviews struct{ n int }

func (p *countingPreviews) Create([]byte, string) string {
	p.n++
	return fmt.Sprintf("blob:preview-%d", p.n)
}
func (p *countingPreviews) Revoke(string) {}

func TestSubmit_RecaptureDuringUpload(t *testing.T) {
	s := draft.NewStore(&countingPreviews{})
	s.OpenDialog()
	s.SetTitle("Checkout hangs")
	s.SetDescription("Spinner never stops")
	s.SetScreenshot([]byte("old"), "image/png")
	client := &mockAPI{}
	c := New(s, client, env)

	client.On("UploadMedia", mock.Anything, []byte("old"), "image/png", "screenshot.png", "screenshot").
		Run(func(mock.Arguments) { s.SetScreenshot([]byte("new"), "image/png") }).
		Return("https://m/old.png", nil).Once()

	_, err := c.Submit(context.Background())
	assert.True(t, errors.Is(err, contextutils.ErrConflict), "got %v", err)
	client.AssertNotCalled(t, "CreateReport", mock.Anything, mock.Anything)

	d := s.Snapshot()
	require.NotNil(t, d.Screenshot)
	assert.Equal(t, []byte("new"), d.Screenshot.Blob)
	assert.False(t, d.Screenshot.Uploaded(), "new capture must not inherit the old URL")
	assert.Equal(t, "Checkout hangs", d.Title)

	client.On("UploadMedia", mock.Anything, []byte("new"), "image/png", "screenshot.png", "screenshot").Return("https://m/new.png", nil).Once()
	client.On("CreateReport", mock.Anything, mock.MatchedBy(func(req api.CreateReportRequest) bool {
		return req.ScreenshotURL != nil && *req.ScreenshotURL == "https://m/new.png"
	})).Return(&api.Report{ID: "r-3"}, nil).Once()

	_, err = c.Submit(context.Background())
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestSubmit_CreateFailureKeepsUploads(t *testing.T) {
	s := filledStore()
	s.SetScreenshot([]byte("png"), "image/png")
	client := &mockAPI{}
	client.On("UploadMedia", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("https://m/s.png", nil).Once()
	client.On("CreateReport", mock.Anything, mock.Anything).Return(nil, contextutils.ErrRateLimit).Once()

	_, err := New(s, client, env).Submit(context.Background())
	assert.True(t, errors.Is(err, contextutils.ErrRateLimit))
	assert.Equal(t, "https://m/s.png", s.Snapshot().Screenshot.UploadedURL)
}

func TestSubmit_Concurrent(t *testing.T) {
	s := filledStore()
	client := &mockAPI{}
	entered := make(chan struct{})
	release := make(chan struct{})
	client.On("CreateReport", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(&api.Report{ID: "r-1"}, nil).Once()

	c := New(s, client, env)
	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()
	<-entered
	assert.True(t, c.Submitting())

	_, err := c.Submit(context.Background())
	assert.True(t, errors.Is(err, ErrSubmitInProgress))
	assert.True(t, errors.Is(err, contextutils.ErrConflict))

	close(release)
	require.NoError(t, <-done)
	assert.False(t, c.Submitting())
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "recording.webm", filename(models.MediaVideo, "video/webm;codecs=vp9"))
	assert.Equal(t, "screenshot.jpg", filename(models.MediaScreenshot, "image/jpeg"))
	assert.Equal(t, "screenshot.bin", filename(models.MediaScreenshot, "application/octet-stream"))
}
