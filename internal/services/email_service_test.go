package services

import (
	"context"
	"testing"

	"triageapp/internal/config"
	"triageapp/internal/observability"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestLogger creates a logger for testing
func createTestLogger() *observability.Logger {
	return observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
}

func TestNewEmailService(t *testing.T) {
	cfg := &config.Config{
		Email: config.EmailConfig{
			Enabled: true,
			SMTP: config.SMTPConfig{
				Host:        "smtp.example.com",
				Port:        587,
				Username:    "support@example.com",
				Password:    "password",
				FromAddress: "noreply@example.com",
				FromName:    "Support",
			},
		},
	}

	service := NewEmailService(cfg, createTestLogger())
	assert.NotNil(t, service)
	assert.True(t, service.IsEnabled())
	assert.NotNil(t, service.dialer)
}

func TestNewEmailService_Disabled(t *testing.T) {
	cfg := &config.Config{Email: config.EmailConfig{Enabled: false}}

	service := NewEmailService(cfg, createTestLogger())
	assert.NotNil(t, service)
	assert.False(t, service.IsEnabled())
	assert.Nil(t, service.dialer)
}

func TestNewEmailService_NoHost(t *testing.T) {
	cfg := &config.Config{Email: config.EmailConfig{Enabled: true}}

	service := NewEmailService(cfg, createTestLogger())
	assert.False(t, service.IsEnabled())
}

func TestEmailService_SendEmail_Disabled(t *testing.T) {
	cfg := &config.Config{Email: config.EmailConfig{Enabled: false}}
	service := NewEmailService(cfg, createTestLogger())

	err := service.SendEmail(context.Background(), "user@example.com", "Subject", TemplateStatusChanged, map[string]interface{}{})
	assert.NoError(t, err)
}

func TestRenderEmail_AllTemplates(t *testing.T) {
	data := map[string]interface{}{
		"RecipientName": "Alice",
		"ReportID":      "r-123",
		"ReportURL":     "https://app.example.com/support/reports/r-123",
		"Title":         "Checkout hangs",
		"Description":   "Spinner <forever>",
		"Severity":      "high",
		"Category":      "functionality",
		"ReportType":    "bug",
		"ActorName":     "Sam",
		"OldStatus":     "open",
		"NewStatus":     "in_progress",
		"Message":       "We are on it",
	}

	for name := range emailBodies {
		t.Run(name, func(t *testing.T) {
			body, err := renderEmail(emailTemplates, name, data)
			require.NoError(t, err)
			assert.Contains(t, body, "Hello Alice")
			assert.Contains(t, body, "https://app.example.com/support/reports/r-123")
			assert.Contains(t, body, "r-123")
		})
	}
}

func TestRenderEmail_EscapesUserContent(t *testing.T) {
	body, err := renderEmail(emailTemplates, TemplateStaffInbox, map[string]interface{}{
		"Description": "<script>alert(1)</script>",
	})
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
}

func TestRenderEmail_UnknownTemplate(t *testing.T) {
	_, err := renderEmail(emailTemplates, "weekly_digest", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown template")
}

func TestRenderEmail_StatusChange(t *testing.T) {
	body, err := renderEmail(emailTemplates, TemplateStatusChanged, map[string]interface{}{
		"OldStatus": "open",
		"NewStatus": "resolved",
	})
	require.NoError(t, err)
	assert.Contains(t, body, "<strong>open</strong>")
	assert.Contains(t, body, "<strong>resolved</strong>")
}

func TestCreateEmailService(t *testing.T) {
	assert.IsType(t, &TestEmailService{}, CreateEmailService(&config.Config{IsTest: true}, createTestLogger()))

	cfg := &config.Config{Email: config.EmailConfig{Enabled: true, SMTP: config.SMTPConfig{Host: "smtp.example.com"}}}
	svc := CreateEmailService(cfg, createTestLogger())
	assert.IsType(t, &EmailService{}, svc)
	assert.True(t, svc.IsEnabled())

	cfg.Email.SMTP.Host = ""
	assert.False(t, CreateEmailService(cfg, createTestLogger()).IsEnabled())
}
