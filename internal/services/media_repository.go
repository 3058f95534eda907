package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"triageapp/internal/models"
	"triageapp/internal/observability"
	contextutils "triageapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// MediaUploadRepository tracks upload targets handed out by the media gateway
type MediaUploadRepository interface {
	Create(ctx context.Context, upload *models.MediaUpload) error
	// GetByKey returns ErrRecordNotFound for unknown keys
	GetByKey(ctx context.Context, uploadKey string) (*models.MediaUpload, error)
	// MarkUploaded records the public URL the first time; later calls return the stored row unchanged
	MarkUploaded(ctx context.Context, uploadKey, publicURL string) (*models.MediaUpload, error)
	// DeleteExpired removes targets that expired before cutoff without ever being uploaded
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// MediaUploadRepositoryImpl implements MediaUploadRepository on PostgreSQL
type MediaUploadRepositoryImpl struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewMediaUploadRepository creates a new media upload repository
func NewMediaUploadRepository(db *sql.DB, logger *observability.Logger) MediaUploadRepository {
	return &MediaUploadRepositoryImpl{db: db, logger: logger}
}

const uploadColumns = `upload_key, user_id, object_key, filename, content_type, size_bytes, category,
	public_url, created_at, uploaded_at, expires_at`

func scanUpload(row rowScanner) (*models.MediaUpload, error) {
	var u models.MediaUpload
	err := row.Scan(&u.UploadKey, &u.UserID, &u.ObjectKey, &u.Filename, &u.ContentType, &u.SizeBytes, &u.Category,
		&u.PublicURL, &u.CreatedAt, &u.UploadedAt, &u.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new upload target
func (r *MediaUploadRepositoryImpl) Create(ctx context.Context, upload *models.MediaUpload) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "create_media_upload",
		attribute.String("media.upload_key", upload.UploadKey),
		attribute.String("media.category", string(upload.Category)),
	)
	defer observability.FinishSpan(span, &err)

	query := `INSERT INTO media_uploads (upload_key, user_id, object_key, filename, content_type, size_bytes, category, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), $8)
		RETURNING created_at`
	err = r.db.QueryRowContext(ctx, query, upload.UploadKey, upload.UserID, upload.ObjectKey, upload.Filename,
		upload.ContentType, upload.SizeBytes, upload.Category, upload.ExpiresAt).Scan(&upload.CreatedAt)
	if err != nil {
		return contextutils.WrapError(err, "failed to insert media upload")
	}
	return nil
}

// GetByKey fetches an upload target
func (r *MediaUploadRepositoryImpl) GetByKey(ctx context.Context, uploadKey string) (result *models.MediaUpload, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "get_media_upload", attribute.String("media.upload_key", uploadKey))
	defer observability.FinishSpan(span, &err)

	upload, err := scanUpload(r.db.QueryRowContext(ctx, `SELECT `+uploadColumns+` FROM media_uploads WHERE upload_key = $1`, uploadKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contextutils.ErrRecordNotFound
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to get media upload")
	}
	return upload, nil
}

// MarkUploaded sets public_url and uploaded_at only if they are unset
func (r *MediaUploadRepositoryImpl) MarkUploaded(ctx context.Context, uploadKey, publicURL string) (result *models.MediaUpload, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "mark_media_uploaded", attribute.String("media.upload_key", uploadKey))
	defer observability.FinishSpan(span, &err)

	query := `UPDATE media_uploads SET public_url = $2, uploaded_at = NOW()
		WHERE upload_key = $1 AND uploaded_at IS NULL
		RETURNING ` + uploadColumns
	upload, err := scanUpload(r.db.QueryRowContext(ctx, query, uploadKey, publicURL))
	if errors.Is(err, sql.ErrNoRows) {
		return r.GetByKey(ctx, uploadKey)
	}
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to mark media uploaded")
	}
	return upload, nil
}

// DeleteExpired removes unused upload targets
func (r *MediaUploadRepositoryImpl) DeleteExpired(ctx context.Context, cutoff time.Time) (result int64, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "delete_expired_media_uploads")
	defer observability.FinishSpan(span, &err)

	res, err := r.db.ExecContext(ctx, `DELETE FROM media_uploads WHERE uploaded_at IS NULL AND expires_at < $1`, cutoff)
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to delete expired media uploads")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, contextutils.WrapError(err, "failed to check rows affected")
	}
	return n, nil
}
