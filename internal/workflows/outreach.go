package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonathan/outreach-agent/internal/llm"
	"github.com/jonathan/outreach-agent/internal/types"
)

// Outreach drafts and sends the first-contact email to a new prospect.
type Outreach struct {
	Copy    *llm.Copywriter
	Mailer  Mailer
	Fetcher PageFetcher
	Logger  *slog.Logger
}

// Invoke sends the outreach email for p.
func (o *Outreach) Invoke(ctx context.Context, p types.Prospect, _ types.Actor) (string, error) {
	if p.ContactEmail == "" {
		return "", errors.New("prospect has no contact email")
	}
	logger := o.Logger
	if logger == nil {
		logger = discardLogger()
	}

	email, err := o.Copy.OutreachEmail(ctx, briefFor(ctx, o.Fetcher, p, logger))
	if err != nil {
		return "", fmt.Errorf("failed to draft outreach email: %w", err)
	}
	if err := o.Mailer.Send(ctx, Message{To: p.ContactEmail, Subject: email.Subject, Body: email.Body}); err != nil {
		return "", fmt.Errorf("failed to send outreach email: %w", err)
	}
	logger.Info("outreach sent", "prospect_id", p.ID, "to", p.ContactEmail)
	return fmt.Sprintf("emailed %s: %q", p.ContactEmail, email.Subject), nil
}
