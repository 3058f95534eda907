package services

import (
	"context"
	"sort"
	"sync"

	"triageapp/internal/config"
	"triageapp/internal/observability"
	"triageapp/internal/serviceinterfaces"

	"go.opentelemetry.io/otel/attribute"
)

// SentEmail is one email captured by TestEmailService
type SentEmail struct {
	To       string
	Subject  string
	Template string
	Body     string
	Data     map[string]interface{}
}

// TestEmailService renders emails but keeps them in memory instead of sending them
type TestEmailService struct {
	cfg    *config.Config
	logger *observability.Logger
	mu     sync.Mutex
	sent   []SentEmail
}

var _ serviceinterfaces.EmailService = (*TestEmailService)(nil)

// NewTestEmailService creates a new TestEmailService instance
func NewTestEmailService(cfg *config.Config, logger *observability.Logger) *TestEmailService {
	return &TestEmailService{
		cfg:    cfg,
		logger: logger,
	}
}

// SendEmail renders the template and records the result (test mode)
func (e *TestEmailService) SendEmail(ctx context.Context, to, subject, templateName string, data map[string]interface{}) (err error) {
	ctx, span := observability.TraceNotificationFunction(ctx, "test_send_email",
		attribute.String("email.to", to),
		attribute.String("email.template", templateName),
	)
	defer observability.FinishSpan(span, &err)

	body, err := renderEmail(emailTemplates, templateName, data)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.sent = append(e.sent, SentEmail{To: to, Subject: subject, Template: templateName, Body: body, Data: data})
	e.mu.Unlock()

	e.logger.Info(ctx, "TEST MODE: Would send email", map[string]interface{}{
		"to":        to,
		"subject":   subject,
		"template":  templateName,
		"test_mode": true,
		"data_keys": getMapKeys(data),
	})
	return nil
}

// IsEnabled always reports true so callers exercise the full send path
func (e *TestEmailService) IsEnabled() bool {
	return true
}

// Sent returns a copy of every recorded email in send order
func (e *TestEmailService) Sent() []SentEmail {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SentEmail, len(e.sent))
	copy(out, e.sent)
	return out
}

// Reset forgets recorded emails
func (e *TestEmailService) Reset() {
	e.mu.Lock()
	e.sent = nil
	e.mu.Unlock()
}

func getMapKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
