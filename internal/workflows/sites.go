package workflows

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/activity"
	"github.com/jonathan/outreach-agent/internal/apperrors"
	"github.com/jonathan/outreach-agent/internal/llm"
	"github.com/jonathan/outreach-agent/internal/types"
)

// Sites generates landing pages for prospects. Every generation writes a new
// site row; ready sites are never edited.
type Sites struct {
	Store     SiteStore
	Prospects ProspectReader
	Copy      *llm.Copywriter
	Fetcher   PageFetcher
	Log       *activity.Log
	// BaseURL prefixes the public site path.
	BaseURL string
	Logger  *slog.Logger
}

// Invoke generates a site for p as part of a tick.
func (s *Sites) Invoke(ctx context.Context, p types.Prospect, _ types.Actor) (string, error) {
	site, err := s.generate(ctx, p)
	if err != nil {
		return "", err
	}
	return "site ready at " + site.URL, nil
}

// Regenerate builds a fresh site for an existing prospect without changing its stage.
func (s *Sites) Regenerate(ctx context.Context, prospectID uuid.UUID, actor types.Actor) (*types.GeneratedSite, error) {
	p, err := s.Prospects.GetProspect(ctx, prospectID)
	if err != nil {
		return nil, apperrors.Internal("get prospect", err)
	}
	if p.Stage == types.StageDismissed {
		return nil, &apperrors.ConflictError{Message: fmt.Sprintf("prospect %s is dismissed", p.ID)}
	}

	site, genErr := s.generate(ctx, *p)
	entry := activity.Entry{
		Type:        types.ActivitySiteGenerated,
		ProspectID:  &p.ID,
		TargetLabel: p.Label(),
		TriggeredBy: actor,
	}
	if genErr != nil {
		entry.Status = types.StatusFailed
		entry.Detail = "site regeneration failed: " + genErr.Error()
	} else {
		entry.Detail = "site regenerated at " + site.URL
	}

	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := s.Log.Record(recCtx, entry); err != nil {
		s.logger().Error("failed to record site regeneration", "prospect_id", p.ID, "error", err)
	}
	if genErr != nil {
		return nil, apperrors.Internal("regenerate site", genErr)
	}
	return site, nil
}

func (s *Sites) generate(ctx context.Context, p types.Prospect) (*types.GeneratedSite, error) {
	site, err := s.Store.CreateSite(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create site: %w", err)
	}

	sc, err := s.Copy.SiteCopy(ctx, briefFor(ctx, s.Fetcher, p, s.logger()))
	if err != nil {
		s.fail(ctx, site.ID, err)
		return nil, fmt.Errorf("failed to write site copy: %w", err)
	}

	content := types.SiteContent{
		URL:      s.siteURL(site.ID),
		Headline: sc.Headline,
		Body:     sc.Body,
	}
	if err := s.Store.CompleteSite(ctx, site.ID, content); err != nil {
		s.fail(ctx, site.ID, err)
		return nil, fmt.Errorf("failed to complete site: %w", err)
	}
	site.Status = types.SiteReady
	site.URL, site.Headline, site.Body = content.URL, content.Headline, content.Body
	s.logger().Info("site generated", "prospect_id", p.ID, "site_id", site.ID)
	return site, nil
}

func (s *Sites) fail(ctx context.Context, id uuid.UUID, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Store.FailSite(ctx, id, cause.Error()); err != nil {
		s.logger().Error("failed to mark site failed", "site_id", id, "error", err)
	}
}

func (s *Sites) siteURL(id uuid.UUID) string {
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		base = "/sites"
	}
	return base + "/" + id.String()
}

func (s *Sites) logger() *slog.Logger {
	if s.Logger == nil {
		return discardLogger()
	}
	return s.Logger
}
