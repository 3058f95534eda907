// Package storage writes uploaded report media to object storage and hands out durable URLs.
package storage

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"triageapp/internal/config"
	contextutils "triageapp/internal/utils"
)

// Driver names
const (
	DriverS3         = "s3"
	DriverFilesystem = "filesystem"
)

// Store persists blobs under object keys
type Store interface {
	// Put writes size bytes from body under key
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	// PublicURL returns the durable URL the blob is served from
	PublicURL(key string) string
	// PresignPut returns a URL a client may PUT the blob to directly, or "" when the driver has none
	PresignPut(ctx context.Context, key, contentType string, size int64, expiry time.Duration) (string, error)
	// Driver names the backend
	Driver() string
}

// New builds the store selected by cfg.Driver
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case DriverS3:
		return NewS3Store(ctx, cfg.S3)
	case DriverFilesystem, "":
		return NewFilesystemStore(cfg.Filesystem)
	default:
		return nil, contextutils.ErrorWithContextf("unknown storage driver %q", cfg.Driver)
	}
}

// ValidateKey rejects keys that are absolute or escape the store root
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid object key %q", key)
	}
	if cleaned := path.Clean(key); cleaned != key || strings.HasPrefix(cleaned, "..") {
		return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid object key %q", key)
	}
	return nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
