package workflows

import (
	"context"
	"log/slog"
	"net/http"
)

// Message is an outbound email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// WebhookMailer posts messages to a delivery service.
type WebhookMailer struct {
	URL    string
	Client *http.Client
}

// NewWebhookMailer returns a WebhookMailer with the default timeout.
func NewWebhookMailer(url string) *WebhookMailer {
	return &WebhookMailer{URL: url, Client: &http.Client{Timeout: defaultWebhookTimeout}}
}

// Send posts msg to the webhook.
func (m *WebhookMailer) Send(ctx context.Context, msg Message) error {
	return postJSON(ctx, m.Client, m.URL, msg, nil)
}

// LogMailer writes messages to the log instead of sending them. Used in development.
type LogMailer struct {
	Logger *slog.Logger
}

// Send logs msg.
func (m LogMailer) Send(_ context.Context, msg Message) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("outreach email (not sent)", "to", msg.To, "subject", msg.Subject)
	return nil
}
