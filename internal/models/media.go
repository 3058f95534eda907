package models

import (
	"database/sql"
	"time"
)

// MediaCategory selects the size limit and object key prefix for an upload
type MediaCategory string

// Media categories
const (
	MediaScreenshot MediaCategory = "screenshot"
	MediaVideo      MediaCategory = "video"
	MediaAttachment MediaCategory = "attachment"
)

// IsValid reports whether c is a known media category
func (c MediaCategory) IsValid() bool {
	switch c {
	case MediaScreenshot, MediaVideo, MediaAttachment:
		return true
	}
	return false
}

// MediaUpload tracks an upload target from presign until its blob is stored
type MediaUpload struct {
	UploadKey   string         `json:"upload_key" db:"upload_key"`
	UserID      int            `json:"user_id" db:"user_id"`
	ObjectKey   string         `json:"object_key" db:"object_key"`
	Filename    string         `json:"filename" db:"filename"`
	ContentType string         `json:"content_type" db:"content_type"`
	SizeBytes   int64          `json:"size_bytes" db:"size_bytes"`
	Category    MediaCategory  `json:"category" db:"category"`
	PublicURL   sql.NullString `json:"public_url" db:"public_url"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UploadedAt  sql.NullTime   `json:"uploaded_at" db:"uploaded_at"`
	ExpiresAt   time.Time      `json:"expires_at" db:"expires_at"`
}

// IsUploaded reports whether the blob has been stored
func (m *MediaUpload) IsUploaded() bool {
	return m.UploadedAt.Valid && m.PublicURL.Valid
}
