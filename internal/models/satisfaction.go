package models

import (
	"database/sql"
	"time"
)

// Rating is the reporter's verdict on how a report was handled
type Rating string

// Ratings
const (
	RatingPositive Rating = "positive"
	RatingNegative Rating = "negative"
)

// IsValid reports whether r is a known rating
func (r Rating) IsValid() bool {
	return r == RatingPositive || r == RatingNegative
}

// SatisfactionRating is the single rating a report may receive once resolved or closed
type SatisfactionRating struct {
	ID        int            `json:"id" db:"id"`
	ReportID  string         `json:"report_id" db:"report_id"`
	UserID    int            `json:"user_id" db:"user_id"`
	Rating    Rating         `json:"rating" db:"rating"`
	Feedback  sql.NullString `json:"feedback" db:"feedback"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}
