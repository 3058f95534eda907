package models

import (
	"database/sql"
	"time"
)

// SystemMessageType marks messages generated by the lifecycle manager. Empty for human messages.
type SystemMessageType string

// System message types
const (
	SystemMessageSubmitted    SystemMessageType = "submitted"
	SystemMessageStatusChange SystemMessageType = "status_change"
	SystemMessageAssigned     SystemMessageType = "assigned"
	SystemMessageResolved     SystemMessageType = "resolved"
)

// Message is an immutable entry in a report thread, ordered by Seq
type Message struct {
	ID         string            `json:"id" db:"id"`
	ReportID   string            `json:"report_id" db:"report_id"`
	Seq        int64             `json:"seq" db:"seq"`
	AuthorID   sql.NullInt32     `json:"author_id" db:"author_id"`
	AuthorName string            `json:"author_name" db:"author_name"`
	IsAdmin    bool              `json:"is_admin" db:"is_admin"`
	SystemType SystemMessageType `json:"system_type,omitempty" db:"system_type"`
	Body       string            `json:"body" db:"body"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
}

// IsSystem reports whether the message was generated rather than authored
func (m *Message) IsSystem() bool {
	return m.SystemType != ""
}

// Actor is the authenticated user performing an operation
type Actor struct {
	UserID  int
	Name    string
	IsAdmin bool
}
