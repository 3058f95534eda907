// Package models holds the persisted and exchanged types of the triage pipeline.
package models

import (
	"database/sql"
	"time"
)

// NullStringToPointer returns nil for an invalid NullString
func NullStringToPointer(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

// NullTimeToPointer returns nil for an invalid NullTime
func NullTimeToPointer(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// NullInt32ToIntPointer returns nil for an invalid NullInt32
func NullInt32ToIntPointer(ni sql.NullInt32) *int {
	if ni.Valid {
		v := int(ni.Int32)
		return &v
	}
	return nil
}

// NullInt64ToPointer returns nil for an invalid NullInt64
func NullInt64ToPointer(ni sql.NullInt64) *int64 {
	if ni.Valid {
		return &ni.Int64
	}
	return nil
}

// NewNullString returns a NullString that is valid only for non-empty s
func NewNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// NewNullInt32 returns a valid NullInt32 for a non-nil pointer
func NewNullInt32(v *int) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*v), Valid: true}
}

// NewNullTime returns a NullTime that is valid only for a non-zero t
func NewNullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
