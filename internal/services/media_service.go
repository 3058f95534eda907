package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"triageapp/internal/config"
	"triageapp/internal/models"
	"triageapp/internal/observability"
	"triageapp/internal/serviceinterfaces"
	"triageapp/internal/storage"
	contextutils "triageapp/internal/utils"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.opentelemetry.io/otel/attribute"
)

// allowedMediaTypes maps accepted content types to their object key extension
var allowedMediaTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
	"video/webm": "webm",
	"video/mp4":  "mp4",
}

// MediaService hands out upload targets and stores uploaded report media
type MediaService struct {
	uploads MediaUploadRepository
	store   storage.Store
	cfg     config.StorageConfig
	metrics *observability.TriageMetrics
	logger  *observability.Logger
	now     func() time.Time
}

var _ serviceinterfaces.MediaServiceInterface = (*MediaService)(nil)

// NewMediaService creates a new MediaService
func NewMediaService(uploads MediaUploadRepository, store storage.Store, cfg config.StorageConfig, logger *observability.Logger) *MediaService {
	if uploads == nil {
		panic("NewMediaService: uploads repository is nil")
	}
	if store == nil {
		panic("NewMediaService: store is nil")
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = config.DefaultPresignExpiry
	}
	if cfg.MaxScreenshotBytes <= 0 {
		cfg.MaxScreenshotBytes = config.DefaultMaxScreenshotBytes
	}
	if cfg.MaxVideoBytes <= 0 {
		cfg.MaxVideoBytes = config.DefaultMaxVideoBytes
	}
	return &MediaService{
		uploads: uploads,
		store:   store,
		cfg:     cfg,
		metrics: observability.NewTriageMetrics(),
		logger:  logger,
		now:     time.Now,
	}
}

// baseContentType strips parameters such as codecs from a content type
func baseContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType
}

func (s *MediaService) maxBytes(category models.MediaCategory) int64 {
	if category == models.MediaVideo {
		return s.cfg.MaxVideoBytes
	}
	return s.cfg.MaxScreenshotBytes
}

// objectKey builds reports/{owner}/{category}/{uuid}-{slug}.{ext}
func objectKey(ownerID int, category models.MediaCategory, id, filename, ext string) string {
	base := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	name := slug.Make(base)
	if name == "" {
		name = string(category)
	}
	return fmt.Sprintf("reports/%d/%s/%s-%s.%s", ownerID, category, id, name, ext)
}

// PresignUpload validates the declared upload and records a target for it
func (s *MediaService) PresignUpload(ctx context.Context, ownerID int, req serviceinterfaces.PresignRequest) (result *serviceinterfaces.PresignResult, err error) {
	ctx, span := observability.TraceStorageFunction(ctx, "presign_upload",
		observability.AttributeUserID(ownerID),
		attribute.String("media.content_type", req.ContentType),
		attribute.Int64("media.size_bytes", req.SizeBytes),
	)
	defer observability.FinishSpan(span, &err)

	contentType := baseContentType(req.ContentType)
	ext, ok := allowedMediaTypes[contentType]
	if !ok {
		return nil, validationError("content type %q is not allowed", req.ContentType)
	}

	category := req.Category
	if category == "" {
		category = models.MediaAttachment
		if strings.HasPrefix(contentType, "image/") {
			category = models.MediaScreenshot
		} else if strings.HasPrefix(contentType, "video/") {
			category = models.MediaVideo
		}
	}
	if !category.IsValid() {
		return nil, validationError("invalid media category %q", category)
	}
	if category == models.MediaScreenshot && !strings.HasPrefix(contentType, "image/") {
		return nil, validationError("screenshots must be images, got %s", contentType)
	}
	if category == models.MediaVideo && !strings.HasPrefix(contentType, "video/") {
		return nil, validationError("videos must be video files, got %s", contentType)
	}

	if req.SizeBytes <= 0 {
		return nil, validationError("size_bytes must be positive")
	}
	if limit := s.maxBytes(category); req.SizeBytes > limit {
		return nil, validationError("%s uploads are limited to %d bytes", category, limit)
	}

	id := uuid.NewString()
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = fmt.Sprintf("%s.%s", category, ext)
	}
	upload := &models.MediaUpload{
		UploadKey:   id,
		UserID:      ownerID,
		ObjectKey:   objectKey(ownerID, category, id, filename, ext),
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   req.SizeBytes,
		Category:    category,
		ExpiresAt:   s.now().Add(s.cfg.PresignExpiry).UTC(),
	}
	if err = s.uploads.Create(ctx, upload); err != nil {
		return nil, err
	}

	uploadURL, err := s.store.PresignPut(ctx, upload.ObjectKey, contentType, req.SizeBytes, s.cfg.PresignExpiry)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Upload target created", map[string]interface{}{
		"upload_key": upload.UploadKey,
		"user_id":    ownerID,
		"category":   string(category),
		"size_bytes": req.SizeBytes,
		"driver":     s.store.Driver(),
	})
	return &serviceinterfaces.PresignResult{
		UploadKey: upload.UploadKey,
		ExpiresAt: upload.ExpiresAt,
		UploadURL: uploadURL,
	}, nil
}

// UploadBlob stores the blob for an upload key and returns its public URL.
// Uploading again to a completed key returns the stored URL without writing.
func (s *MediaService) UploadBlob(ctx context.Context, ownerID int, uploadKey string, body io.Reader, contentType string) (result string, err error) {
	ctx, span := observability.TraceStorageFunction(ctx, "upload_blob",
		observability.AttributeUserID(ownerID),
		attribute.String("media.upload_key", uploadKey),
	)
	defer observability.FinishSpan(span, &err)

	if _, err := uuid.Parse(uploadKey); err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "unknown upload key %q", uploadKey)
	}
	upload, err := s.uploads.GetByKey(ctx, uploadKey)
	if err != nil {
		return "", err
	}
	if upload.UserID != ownerID {
		return "", contextutils.WrapError(contextutils.ErrForbidden, "upload key belongs to another user")
	}
	if upload.IsUploaded() {
		return upload.PublicURL.String, nil
	}
	if s.now().After(upload.ExpiresAt) {
		return "", contextutils.WrapErrorf(contextutils.ErrUploadExpired, "upload key expired at %s", upload.ExpiresAt.Format(time.RFC3339))
	}
	if got := baseContentType(contentType); got != upload.ContentType {
		return "", validationError("content type %q does not match declared %q", got, upload.ContentType)
	}

	data, err := io.ReadAll(io.LimitReader(body, upload.SizeBytes+1))
	if err != nil {
		return "", contextutils.WrapError(contextutils.ErrUploadFailed, "failed to read upload body: "+err.Error())
	}
	if int64(len(data)) != upload.SizeBytes {
		return "", validationError("upload size does not match declared size of %d bytes", upload.SizeBytes)
	}

	if err = s.store.Put(ctx, upload.ObjectKey, bytes.NewReader(data), upload.SizeBytes, upload.ContentType); err != nil {
		s.logger.Error(ctx, "Failed to store upload", err, map[string]interface{}{
			"upload_key": uploadKey,
			"driver":     s.store.Driver(),
		})
		return "", err
	}

	stored, err := s.uploads.MarkUploaded(ctx, uploadKey, s.store.PublicURL(upload.ObjectKey))
	if err != nil {
		return "", err
	}

	s.metrics.MediaUploaded(ctx, string(upload.Category))
	s.logger.Info(ctx, "Upload stored", map[string]interface{}{
		"upload_key": uploadKey,
		"object_key": upload.ObjectKey,
		"size_bytes": upload.SizeBytes,
	})
	return stored.PublicURL.String, nil
}

// CleanupExpired forgets upload targets that expired unused
func (s *MediaService) CleanupExpired(ctx context.Context) (result int64, err error) {
	ctx, span := observability.TraceStorageFunction(ctx, "cleanup_expired_uploads")
	defer observability.FinishSpan(span, &err)

	n, err := s.uploads.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info(ctx, "Removed expired upload targets", map[string]interface{}{"count": n})
	}
	return n, nil
}
