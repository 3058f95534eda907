// Package services provides the business logic of the triage backend.
package services

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"triageapp/internal/config"
	"triageapp/internal/observability"
	"triageapp/internal/serviceinterfaces"
	contextutils "triageapp/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/mail.v2"
)

// Email template names
const (
	TemplateReportSubmitted = "report_submitted"
	TemplateStaffInbox      = "staff_inbox"
	TemplateStatusChanged   = "status_changed"
	TemplateReportResolved  = "report_resolved"
	TemplateStaffReply      = "staff_reply"
	TemplateReportAssigned  = "report_assigned"
)

// EmailService sends notification emails over SMTP using gomail
type EmailService struct {
	cfg    *config.Config
	logger *observability.Logger
	dialer *mail.Dialer
}

// Ensure EmailService implements the EmailService interface
var _ serviceinterfaces.EmailService = (*EmailService)(nil)

// NewEmailService creates a new EmailService instance
func NewEmailService(cfg *config.Config, logger *observability.Logger) *EmailService {
	var dialer *mail.Dialer
	if cfg.Email.Enabled && cfg.Email.SMTP.Host != "" {
		dialer = mail.NewDialer(
			cfg.Email.SMTP.Host,
			cfg.Email.SMTP.Port,
			cfg.Email.SMTP.Username,
			cfg.Email.SMTP.Password,
		)
	}

	return &EmailService{
		cfg:    cfg,
		logger: logger,
		dialer: dialer,
	}
}

// SendEmail renders the named template and sends it
func (e *EmailService) SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) (err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "send_email",
		attribute.String("email.to", to),
		attribute.String("email.template", templateName),
	)
	defer observability.FinishSpan(span, &err)

	if !e.IsEnabled() {
		e.logger.Info(ctx, "Email disabled, skipping email send", map[string]interface{}{
			"to":       to,
			"template": templateName,
		})
		return nil
	}

	if e.dialer == nil {
		return contextutils.ErrorWithContextf("email service not properly configured")
	}

	content, err := renderEmail(emailTemplates, templateName, data)
	if err != nil {
		return contextutils.WrapError(err, "failed to generate email content")
	}

	m := mail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", e.cfg.Email.SMTP.FromName, e.cfg.Email.SMTP.FromAddress))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", content)

	if err = e.dialer.DialAndSend(m); err != nil {
		e.logger.Error(ctx, "Failed to send email", err, map[string]interface{}{
			"to":       to,
			"template": templateName,
			"subject":  subject,
		})
		return contextutils.WrapError(err, "failed to send email")
	}

	e.logger.Info(ctx, "Email sent successfully", map[string]interface{}{
		"to":       to,
		"template": templateName,
		"subject":  subject,
	})
	return nil
}

// IsEnabled returns whether email functionality is enabled
func (e *EmailService) IsEnabled() bool {
	return e.cfg.Email.Enabled && e.cfg.Email.SMTP.Host != ""
}

// CreateEmailService picks the mail transport for report notifications. Test mode gets the
// in-memory TestEmailService so nothing leaves the process.
func CreateEmailService(cfg *config.Config, logger *observability.Logger) serviceinterfaces.EmailService {
	ctx := context.Background()
	if cfg.IsTest {
		logger.Info(ctx, "Using in-memory email service", map[string]interface{}{"test_mode": true})
		return NewTestEmailService(cfg, logger)
	}
	if cfg.Email.Enabled && cfg.Email.SMTP.Host == "" {
		logger.Warn(ctx, "Email is enabled but no SMTP host is set, report notifications will be dropped", nil)
	}
	return NewEmailService(cfg, logger)
}

const emailLayout = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #37474F; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { background-color: #f9f9f9; padding: 20px; }
        .quote { border-left: 3px solid #90A4AE; padding-left: 12px; color: #555; white-space: pre-wrap; }
        .button { display: inline-block; background-color: #1E88E5; color: white; padding: 12px 24px; text-decoration: none; border-radius: 5px; margin: 20px 0; }
        .footer { background-color: #eee; padding: 15px; text-align: center; font-size: 12px; color: #666; border-radius: 0 0 5px 5px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h1>{{template "heading" .}}</h1></div>
        <div class="content">
            <p>Hello {{.RecipientName}},</p>
            {{template "body" .}}
            <div style="text-align: center;">
                <a href="{{.ReportURL}}" class="button">View report</a>
            </div>
        </div>
        <div class="footer">
            <p>Report "{{.Title}}" ({{.ReportID}})</p>
        </div>
    </div>
</body>
</html>`

var emailBodies = map[string]string{
	TemplateReportSubmitted: `{{define "heading"}}We received your report{{end}}
{{define "body"}}<p>Thanks for letting us know. Our team will take a look and reply in the report thread.</p>{{end}}`,
	TemplateStaffInbox: `{{define "heading"}}New {{.Severity}} {{.ReportType}} report{{end}}
{{define "body"}}<p>{{.ActorName}} submitted a new report in category <strong>{{.Category}}</strong>.</p>
<p class="quote">{{.Description}}</p>{{end}}`,
	TemplateStatusChanged: `{{define "heading"}}Your report was updated{{end}}
{{define "body"}}<p>The status changed from <strong>{{.OldStatus}}</strong> to <strong>{{.NewStatus}}</strong>.</p>{{end}}`,
	TemplateReportResolved: `{{define "heading"}}Your report was resolved{{end}}
{{define "body"}}<p>{{.ActorName}} marked your report as resolved. Let us know how we did from the report page.</p>{{end}}`,
	TemplateStaffReply: `{{define "heading"}}New reply from support{{end}}
{{define "body"}}<p>{{.ActorName}} replied:</p>
<p class="quote">{{.Message}}</p>{{end}}`,
	TemplateReportAssigned: `{{define "heading"}}A report was assigned to you{{end}}
{{define "body"}}<p>{{.ActorName}} assigned this {{.Severity}} report to you.</p>{{end}}`,
}

var emailTemplates = parseEmailTemplates()

func parseEmailTemplates() map[string]*template.Template {
	templates := make(map[string]*template.Template, len(emailBodies))
	for name, body := range emailBodies {
		t := template.Must(template.New(name).Parse(emailLayout))
		templates[name] = template.Must(t.Parse(body))
	}
	return templates
}

func renderEmail(templates map[string]*template.Template, templateName string, data map[string]interface{}) (string, error) {
	tmpl, ok := templates[templateName]
	if !ok {
		return "", contextutils.ErrorWithContextf("unknown template: %s", templateName)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", contextutils.WrapError(err, "failed to execute template")
	}
	return buf.String(), nil
}
