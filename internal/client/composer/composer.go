// Package composer validates the report draft and turns it into a submitted report.
package composer

import (
	"context"
	"strings"
	"sync/atomic"

	"triageapp/internal/api"
	"triageapp/internal/client/draft"
	"triageapp/internal/models"
	contextutils "triageapp/internal/utils"
)

// ErrSubmitInProgress is returned when Submit is called while another submission runs
var ErrSubmitInProgress = contextutils.NewAppError(contextutils.ErrorCodeConflict, contextutils.SeverityInfo,
	"a submission is already in progress", "")

// API is the part of the triage API the composer needs
type API interface {
	UploadMedia(ctx context.Context, blob []byte, contentType, filename, category string) (string, error)
	CreateReport(ctx context.Context, req api.CreateReportRequest) (*api.Report, error)
}

// Environment describes the page the report is filed from
type Environment struct {
	PageURL   string
	UserAgent string
}

// Composer submits the draft held by a store
type Composer struct {
	store      *draft.Store
	api        API
	env        Environment
	submitting atomic.Bool
}

// New creates a composer for the draft in store
func New(store *draft.Store, client API, env Environment) *Composer {
	if store == nil || client == nil {
		panic("composer.New: store and client are required")
	}
	return &Composer{store: store, api: client, env: env}
}

func validate(d draft.Draft) error {
	var missing []string
	if strings.TrimSpace(d.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(d.Description) == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return contextutils.WrapErrorf(contextutils.ErrValidation, "missing %s", strings.Join(missing, " and "))
	}
	return nil
}

// Validate checks the current draft for required fields
func (c *Composer) Validate() error {
	return validate(c.store.Snapshot())
}

// CanSubmit reports whether the draft has a title and a description
func (c *Composer) CanSubmit() bool {
	return c.Validate() == nil
}

// Submitting reports whether a submission is running
func (c *Composer) Submitting() bool {
	return c.submitting.Load()
}

// Submit uploads pending media, creates the report and resets the draft.
// On failure the draft keeps its fields and any URLs already uploaded, so a retry skips finished uploads.
func (c *Composer) Submit(ctx context.Context) (*api.Report, error) {
	if !c.submitting.CompareAndSwap(false, true) {
		return nil, ErrSubmitInProgress
	}
	defer c.submitting.Store(false)

	d := c.store.Snapshot()
	if err := validate(d); err != nil {
		return nil, err
	}

	screenshotURL, err := c.upload(ctx, d.Screenshot, models.MediaScreenshot, c.store.MarkScreenshotUploaded)
	if err != nil {
		return nil, err
	}
	videoURL, err := c.upload(ctx, d.Video, models.MediaVideo, c.store.MarkVideoUploaded)
	if err != nil {
		return nil, err
	}

	req := api.CreateReportRequest{
		ReportType:    string(orDefault(d.ReportType, models.ReportTypeBug)),
		Title:         strings.TrimSpace(d.Title),
		Description:   strings.TrimSpace(d.Description),
		Severity:      string(orDefault(d.Severity, models.SeverityMedium)),
		Category:      string(orDefault(d.Category, models.CategoryOther)),
		PageURL:       c.env.PageURL,
		UserAgent:     c.env.UserAgent,
		ScreenshotURL: screenshotURL,
		VideoURL:      videoURL,
	}
	report, err := c.api.CreateReport(ctx, req)
	if err != nil {
		return nil, err
	}

	c.store.Reset()
	c.store.CloseDialog()
	return report, nil
}

// upload sends one media slot unless it already has a durable URL
func (c *Composer) upload(ctx context.Context, m *draft.Media, category models.MediaCategory, mark func(previewURL, url string) bool) (*string, error) {
	if m == nil || len(m.Blob) == 0 {
		return nil, nil
	}
	if m.Uploaded() {
		url := m.UploadedURL
		return &url, nil
	}
	url, err := c.api.UploadMedia(ctx, m.Blob, m.ContentType, filename(category, m.ContentType), string(category))
	if err != nil {
		if contextutils.IsError(err, contextutils.ErrUploadFailed) || contextutils.IsError(err, contextutils.ErrUploadExpired) {
			return nil, err
		}
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeUploadFailed, contextutils.SeverityWarn,
			"media upload failed", string(category), err)
	}
	if !mark(m.PreviewURL, url) {
		return nil, contextutils.WrapErrorf(contextutils.ErrConflict, "%s was replaced during upload", category)
	}
	return &url, nil
}

var extensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
	"video/webm": "webm",
	"video/mp4":  "mp4",
}

func filename(category models.MediaCategory, contentType string) string {
	base := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	ext, ok := extensions[base]
	if !ok {
		ext = "bin"
	}
	if category == models.MediaVideo {
		return "recording." + ext
	}
	return "screenshot." + ext
}

func orDefault[T ~string](v, def T) T {
	if v == "" {
		return def
	}
	return v
}
