// Package serviceinterfaces defines the service contracts shared by handlers, the worker and the DI container.
package serviceinterfaces

import (
	"context"

	"triageapp/internal/models"
)

// NotificationEvent names a report-state transition that users are told about
type NotificationEvent string

// Notification events
const (
	EventReportSubmitted NotificationEvent = "report_submitted"
	EventStatusChanged   NotificationEvent = "status_changed"
	EventReportResolved  NotificationEvent = "report_resolved"
	EventStaffReply      NotificationEvent = "staff_reply"
	EventReportAssigned  NotificationEvent = "report_assigned"
)

// Notification describes one event on a report
type Notification struct {
	Event     NotificationEvent
	Report    *models.Report
	Actor     models.Actor
	OldStatus models.ReportStatus
	NewStatus models.ReportStatus
	// Message is the reply body for staff_reply
	Message string
	// AssigneeID is set for report_assigned
	AssigneeID int
}

// Notifier dispatches notifications. Delivery failures are the notifier's concern; callers do not retry.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// EmailService delivers rendered notification templates. A disabled service accepts and drops mail.
type EmailService interface {
	SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) error
	IsEnabled() bool
}
