package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"triageapp/internal/config"
	"triageapp/internal/observability"
	contextutils "triageapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

// FilesystemStore keeps media in a local directory that the API server exposes under /media
type FilesystemStore struct {
	root          string
	publicBaseURL string
}

// NewFilesystemStore creates the root directory if needed
func NewFilesystemStore(cfg config.FilesystemStorageConfig) (*FilesystemStore, error) {
	if cfg.Root == "" {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "storage.filesystem.root is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, contextutils.WrapErrorf(err, "failed to create media root %s", cfg.Root)
	}
	base := cfg.PublicBaseURL
	if base == "" {
		base = "http://localhost:8080/media"
	}
	return &FilesystemStore{root: cfg.Root, publicBaseURL: base}, nil
}

// Root returns the directory blobs are written under
func (s *FilesystemStore) Root() string { return s.root }

// Put writes the blob to a temporary file and renames it into place
func (s *FilesystemStore) Put(ctx context.Context, key string, body io.Reader, size int64, _ string) (err error) {
	_, span := observability.TraceStorageFunction(ctx, "filesystem_put",
		attribute.String("storage.key", key),
		attribute.Int64("storage.size", size),
	)
	defer observability.FinishSpan(span, &err)

	if err := ValidateKey(key); err != nil {
		return err
	}
	dest := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrUploadFailed, "mkdir for %s: %v", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrUploadFailed, "create temp for %s: %v", key, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	written, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return contextutils.WrapErrorf(contextutils.ErrUploadFailed, "write %s: %v", key, err)
	}
	if written != size {
		return contextutils.WrapErrorf(contextutils.ErrUploadFailed, "write %s: got %d bytes, want %d", key, written, size)
	}
	if err = os.Rename(tmp.Name(), dest); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrUploadFailed, "rename %s: %v", key, err)
	}
	return nil
}

// PublicURL returns the /media URL of key
func (s *FilesystemStore) PublicURL(key string) string {
	return joinURL(s.publicBaseURL, key)
}

// PresignPut is not supported; clients upload through the API
func (s *FilesystemStore) PresignPut(_ context.Context, _, _ string, _ int64, _ time.Duration) (string, error) {
	return "", nil
}

// Driver returns "filesystem"
func (s *FilesystemStore) Driver() string { return DriverFilesystem }
