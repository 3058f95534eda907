package handlers

import (
	"net/http"
	"strings"

	"triageapp/internal/api"
	"triageapp/internal/config"
	"triageapp/internal/models"
	"triageapp/internal/observability"
	"triageapp/internal/serviceinterfaces"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// UploadHandler serves the media upload gateway
type UploadHandler struct {
	media   serviceinterfaces.MediaServiceInterface
	maxBody int64
	logger  *observability.Logger
}

// NewUploadHandler creates a new UploadHandler
func NewUploadHandler(media serviceinterfaces.MediaServiceInterface, cfg *config.Config, logger *observability.Logger) *UploadHandler {
	if media == nil {
		panic("NewUploadHandler: media service is required")
	}
	maxBody := cfg.Storage.MaxVideoBytes
	if cfg.Storage.MaxScreenshotBytes > maxBody {
		maxBody = cfg.Storage.MaxScreenshotBytes
	}
	return &UploadHandler{media: media, maxBody: maxBody, logger: logger}
}

// PresignUpload handles POST /v1/uploads/presign
func (h *UploadHandler) PresignUpload(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "presign_upload")
	defer observability.FinishSpan(span, nil)

	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req api.PresignUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleBindError(c, err)
		return
	}
	span.SetAttributes(
		attribute.String("upload.content_type", req.ContentType),
		attribute.Int64("upload.size_bytes", req.SizeBytes),
	)

	target, err := h.media.PresignUpload(ctx, actor.UserID, serviceinterfaces.PresignRequest{
		Filename:    req.Filename,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		Category:    models.MediaCategory(req.Category),
	})
	if err != nil {
		HandleAppError(c, err)
		return
	}

	resp := api.PresignUploadResponse{UploadKey: target.UploadKey, ExpiresAt: target.ExpiresAt}
	if target.UploadURL != "" {
		resp.UploadURL = &target.UploadURL
	}
	c.JSON(http.StatusOK, resp)
}

// UploadBlob handles PUT /v1/uploads/:uploadKey with the raw blob as the body
func (h *UploadHandler) UploadBlob(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "upload_blob")
	defer observability.FinishSpan(span, nil)

	actor, ok := requireActor(c)
	if !ok {
		return
	}
	key := strings.TrimSpace(c.Param("uploadKey"))
	if key == "" {
		HandleValidationError(c, "uploadKey", key, "upload key is required")
		return
	}
	span.SetAttributes(attribute.String("upload.key", key))

	// one byte of slack lets the service see an oversized body and reject it as a size mismatch
	body := http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody+1)
	defer func() { _ = body.Close() }()

	url, err := h.media.UploadBlob(ctx, actor.UserID, key, body, c.ContentType())
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.UploadBlobResponse{PublicURL: url})
}
