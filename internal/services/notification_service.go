package services

import (
	"context"
	"errors"
	"fmt"

	"triageapp/internal/config"
	"triageapp/internal/deeplink"
	"triageapp/internal/observability"
	"triageapp/internal/serviceinterfaces"

	"go.opentelemetry.io/otel/attribute"
)

// NotificationService turns report events into emails for the reporter, the assignee and the staff inbox
type NotificationService struct {
	users  serviceinterfaces.UserServiceInterface
	email  serviceinterfaces.EmailService
	cfg    *config.Config
	logger *observability.Logger
}

var _ serviceinterfaces.Notifier = (*NotificationService)(nil)

// NewNotificationService creates a new NotificationService
func NewNotificationService(users serviceinterfaces.UserServiceInterface, email serviceinterfaces.EmailService, cfg *config.Config, logger *observability.Logger) *NotificationService {
	if users == nil {
		panic("NewNotificationService: users is nil")
	}
	if email == nil {
		panic("NewNotificationService: email is nil")
	}
	return &NotificationService{users: users, email: email, cfg: cfg, logger: logger}
}

type emailTarget struct {
	to       string
	name     string
	subject  string
	template string
}

// Notify sends every email the event calls for. Users are never notified about their own actions.
func (s *NotificationService) Notify(ctx context.Context, n serviceinterfaces.Notification) (err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "notify",
		attribute.String("notification.event", string(n.Event)),
		observability.AttributeReportID(n.Report.ID),
	)
	defer observability.FinishSpan(span, &err)

	if !s.email.IsEnabled() {
		return nil
	}

	targets, err := s.targets(ctx, n)
	if err != nil {
		return err
	}

	data := map[string]interface{}{
		"ReportID":    n.Report.ID,
		"ReportURL":   deeplink.Build(s.cfg.Server.AppBaseURL, n.Report.ID),
		"Title":       n.Report.Title,
		"Description": n.Report.Description,
		"Severity":    string(n.Report.Severity),
		"Category":    string(n.Report.Category),
		"ReportType":  string(n.Report.ReportType),
		"ActorName":   n.Actor.Name,
		"OldStatus":   string(n.OldStatus),
		"NewStatus":   string(n.NewStatus),
		"Message":     n.Message,
	}

	var errs []error
	for _, t := range targets {
		d := make(map[string]interface{}, len(data)+1)
		for k, v := range data {
			d[k] = v
		}
		d["RecipientName"] = t.name
		if sendErr := s.email.SendEmail(ctx, t.to, t.subject, t.template, d); sendErr != nil {
			errs = append(errs, sendErr)
		}
	}
	span.SetAttributes(attribute.Int("notification.recipients", len(targets)))
	return errors.Join(errs...)
}

func (s *NotificationService) targets(ctx context.Context, n serviceinterfaces.Notification) ([]emailTarget, error) {
	title := n.Report.Title
	var (
		userID   = n.Report.UserID
		actorID  = n.Actor.UserID
		subject  string
		template string
	)

	switch n.Event {
	case serviceinterfaces.EventReportSubmitted:
		// the reporter gets a receipt even though they are the actor
		actorID = -1
		subject, template = fmt.Sprintf("We received your report: %s", title), TemplateReportSubmitted
	case serviceinterfaces.EventStatusChanged:
		subject, template = fmt.Sprintf("Your report is now %s: %s", n.NewStatus, title), TemplateStatusChanged
	case serviceinterfaces.EventReportResolved:
		subject, template = fmt.Sprintf("Your report was resolved: %s", title), TemplateReportResolved
	case serviceinterfaces.EventStaffReply:
		subject, template = fmt.Sprintf("New reply on your report: %s", title), TemplateStaffReply
	case serviceinterfaces.EventReportAssigned:
		userID = n.AssigneeID
		subject, template = fmt.Sprintf("Report assigned to you: %s", title), TemplateReportAssigned
	default:
		s.logger.Warn(ctx, "Unknown notification event", map[string]interface{}{"event": string(n.Event)})
		return nil, nil
	}

	var targets []emailTarget
	t, err := s.userTarget(ctx, userID, actorID, subject, template)
	if err != nil {
		return nil, err
	}
	if t != nil {
		targets = append(targets, *t)
	}
	if n.Event == serviceinterfaces.EventReportSubmitted && s.cfg.Reports.StaffEmail != "" {
		targets = append(targets, emailTarget{
			to:       s.cfg.Reports.StaffEmail,
			name:     "support team",
			subject:  fmt.Sprintf("[%s] New report: %s", n.Report.Severity, title),
			template: TemplateStaffInbox,
		})
	}
	return targets, nil
}

// userTarget resolves a recipient, returning nil when the user is the actor, is unknown, or has no email
func (s *NotificationService) userTarget(ctx context.Context, userID, actorID int, subject, templateName string) (*emailTarget, error) {
	if userID == actorID {
		return nil, nil
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Email.Valid || user.Email.String == "" {
		s.logger.Debug(ctx, "Recipient has no email address, skipping", map[string]interface{}{
			"user_id":  userID,
			"template": templateName,
		})
		return nil, nil
	}
	return &emailTarget{to: user.Email.String, name: user.Name(), subject: subject, template: templateName}, nil
}

// NopNotifier drops every notification
type NopNotifier struct{}

// Notify implements serviceinterfaces.Notifier
func (NopNotifier) Notify(context.Context, serviceinterfaces.Notification) error { return nil }
