package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"triageapp/internal/api"
	"triageapp/internal/models"
	"triageapp/internal/serviceinterfaces"
	contextutils "triageapp/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadHandler_Presign(t *testing.T) {
	ts := newTestServer(t)
	expires := time.Now().Add(15 * time.Minute).UTC().Truncate(time.Second)
	ts.media.On("PresignUpload", anyCtx, reporterID, serviceinterfaces.PresignRequest{
		Filename:    "shot.png",
		ContentType: "image/png",
		SizeBytes:   512,
		Category:    models.MediaScreenshot,
	}).Return(&serviceinterfaces.PresignResult{UploadKey: "k1", ExpiresAt: expires}, nil).Once()

	w := ts.do(t, http.MethodPost, "/v1/uploads/presign", reporterKey, api.PresignUploadRequest{
		Filename: "shot.png", ContentType: "image/png", SizeBytes: 512, Category: "screenshot",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got api.PresignUploadResponse
	decode(t, w, &got)
	assert.Equal(t, "k1", got.UploadKey)
	assert.True(t, expires.Equal(got.ExpiresAt))
	assert.Nil(t, got.UploadURL, "filesystem uploads go through the API")
}

func TestUploadHandler_PresignValidation(t *testing.T) {
	ts := newTestServer(t)
	ts.media.On("PresignUpload", anyCtx, reporterID, serviceinterfaces.PresignRequest{
		Filename: "notes.pdf", ContentType: "application/pdf", SizeBytes: 10,
	}).Return(nil, contextutils.WrapError(contextutils.ErrValidation, "content type not allowed")).Once()

	w := ts.do(t, http.MethodPost, "/v1/uploads/presign", reporterKey, api.PresignUploadRequest{Filename: "notes.pdf", ContentType: "application/pdf", SizeBytes: 10})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(contextutils.ErrorCodeValidation), errorCode(t, w))

	w = ts.do(t, http.MethodPost, "/v1/uploads/presign", reporterKey, api.PresignUploadRequest{Filename: "a.png", ContentType: "image/png"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "size is required")
}

func putBlob(ts *testServer, key, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPut, "/v1/uploads/"+key, bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+reporterKey)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func TestUploadHandler_UploadBlob(t *testing.T) {
	ts := newTestServer(t)
	blob := []byte("fake-webm-bytes")
	ts.media.On("UploadBlob", anyCtx, reporterID, "k2", blob, "video/webm").
		Return("https://media.example.com/reports/1/video/k2-clip.webm", nil).Once()

	w := putBlob(ts, "k2", "video/webm;codecs=vp9", blob)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got api.UploadBlobResponse
	decode(t, w, &got)
	assert.Equal(t, "https://media.example.com/reports/1/video/k2-clip.webm", got.PublicURL)
}

func TestUploadHandler_UploadBlobErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.media.On("UploadBlob", anyCtx, reporterID, "gone", []byte("x"), "image/png").Return("", contextutils.ErrUploadExpired).Once()
	ts.media.On("UploadBlob", anyCtx, reporterID, "theirs", []byte("x"), "image/png").Return("", contextutils.ErrForbidden).Once()
	ts.media.On("UploadBlob", anyCtx, reporterID, "broken", []byte("x"), "image/png").Return("", contextutils.ErrUploadFailed).Once()

	assert.Equal(t, http.StatusGone, putBlob(ts, "gone", "image/png", []byte("x")).Code)
	assert.Equal(t, http.StatusForbidden, putBlob(ts, "theirs", "image/png", []byte("x")).Code)
	assert.Equal(t, http.StatusBadGateway, putBlob(ts, "broken", "image/png", []byte("x")).Code)
}

func TestRouter_ServesFilesystemMedia(t *testing.T) {
	ts := newTestServer(t)
	dir := filepath.Join(ts.mediaRoot, "reports", "1", "screenshot")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k1-shot.png"), []byte("png"), 0o644))

	w := ts.do(t, http.MethodGet, "/media/reports/1/screenshot/k1-shot.png", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "png", w.Body.String())
}

func TestRouter_HealthAndUnknownRoutes(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health api.HealthResponse
	decode(t, w, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "triage-api", health.Service)

	w = ts.do(t, http.MethodGet, "/v1/nothing-here", reporterKey, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
