package models

import (
	"database/sql"
	"net/http"
	"time"
)

// User is a reporter or staff member. Authentication itself lives outside this service.
type User struct {
	ID          int            `json:"id" yaml:"id"`
	Username    string         `json:"username" yaml:"username"`
	Email       sql.NullString `json:"email" yaml:"email"`
	DisplayName string         `json:"display_name" yaml:"display_name"`
	IsAdmin     bool           `json:"is_admin" yaml:"is_admin"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"updated_at"`
}

// Name returns the display name, falling back to the username
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Actor returns the user as the actor of an operation
func (u *User) Actor() Actor {
	return Actor{UserID: u.ID, Name: u.Name(), IsAdmin: u.IsAdmin}
}

// API key permission levels
const (
	PermissionLevelReadonly = "readonly"
	PermissionLevelFull     = "full"
)

// AuthAPIKey is a bearer key used by triagectl and other programmatic clients.
// Only the hash and a short lookup prefix of the raw key are stored.
type AuthAPIKey struct {
	ID              int          `json:"id"`
	UserID          int          `json:"user_id"`
	KeyName         string       `json:"key_name"`
	KeyHash         string       `json:"-"`
	KeyPrefix       string       `json:"key_prefix"`
	PermissionLevel string       `json:"permission_level"`
	LastUsedAt      sql.NullTime `json:"last_used_at"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// IsValidPermissionLevel checks if the permission level is valid
func IsValidPermissionLevel(level string) bool {
	return level == PermissionLevelReadonly || level == PermissionLevelFull
}

// CanPerformMethod reports whether the key may issue a request with the given HTTP method.
// Readonly keys can browse reports and threads but not submit, reply or rate.
func (k *AuthAPIKey) CanPerformMethod(method string) bool {
	if k.PermissionLevel == PermissionLevelFull {
		return true
	}
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
