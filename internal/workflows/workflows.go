// Package workflows holds the work the agent performs for a prospect: sending
// outreach, generating a site, suggesting and activating a campaign and
// placing orders. Tick-driven workflows implement tick.Invoker.
package workflows

import (
	"context"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/fetch"
	"github.com/jonathan/outreach-agent/internal/llm"
	"github.com/jonathan/outreach-agent/internal/pipeline"
	"github.com/jonathan/outreach-agent/internal/types"
)

// SiteStore persists generated sites.
type SiteStore interface {
	CreateSite(ctx context.Context, prospectID uuid.UUID) (*types.GeneratedSite, error)
	CompleteSite(ctx context.Context, id uuid.UUID, content types.SiteContent) error
	FailSite(ctx context.Context, id uuid.UUID, reason string) error
}

// CampaignStore persists campaigns and orders.
type CampaignStore interface {
	CreateCampaign(ctx context.Context, c *types.Campaign) error
	GetCampaign(ctx context.Context, id uuid.UUID) (*types.Campaign, error)
	ClaimCampaignActivation(ctx context.Context, id uuid.UUID) (*types.Campaign, error)
	CompleteCampaignActivation(ctx context.Context, id uuid.UUID, contractAddress *string, ev *types.ActivityEvent) (*types.Campaign, error)
	ReleaseCampaignActivation(ctx context.Context, id uuid.UUID, prior types.CampaignStatus) error
	CreateOrder(ctx context.Context, o *types.Order, ev *types.ActivityEvent) error
}

// ProspectReader loads prospects.
type ProspectReader interface {
	GetProspect(ctx context.Context, id uuid.UUID) (*types.Prospect, error)
}

// Transitioner applies stage changes.
type Transitioner interface {
	Transition(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// PageFetcher loads a vendor's web page.
type PageFetcher interface {
	Page(ctx context.Context, url string) (*fetch.Page, error)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// briefFor builds the copywriter brief for p, enriched with its website when
// one can be fetched. Fetch failures only reduce the brief.
func briefFor(ctx context.Context, f PageFetcher, p types.Prospect, logger *slog.Logger) llm.Brief {
	b := llm.Brief{Name: p.Name, Website: p.Website}
	if f == nil || p.Website == "" {
		return b
	}
	page, err := f.Page(ctx, p.Website)
	if err != nil {
		logger.Warn("could not fetch vendor site", "prospect_id", p.ID, "url", p.Website, "error", err)
		return b
	}
	b.Title, b.Description, b.Text = page.Title, page.Description, page.Text
	return b
}
