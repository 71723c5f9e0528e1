package workflows

import (
	"context"
	"fmt"

	"github.com/jonathan/outreach-agent/internal/llm"
	"github.com/jonathan/outreach-agent/internal/types"
)

// Suggest proposes a campaign for a prospect with a generated site.
type Suggest struct {
	Store   CampaignStore
	Copy    *llm.Copywriter
	Fetcher PageFetcher
}

// Invoke creates a suggested campaign for p.
func (s *Suggest) Invoke(ctx context.Context, p types.Prospect, _ types.Actor) (string, error) {
	idea, err := s.Copy.CampaignIdea(ctx, briefFor(ctx, s.Fetcher, p, discardLogger()))
	if err != nil {
		return "", fmt.Errorf("failed to draft campaign: %w", err)
	}
	pid := p.ID
	c := &types.Campaign{
		ProspectID:  &pid,
		VendorID:    p.VendorID,
		Name:        idea.Name,
		Description: idea.Description,
		Status:      types.CampaignSuggested,
	}
	if err := s.Store.CreateCampaign(ctx, c); err != nil {
		return "", fmt.Errorf("failed to create campaign: %w", err)
	}
	return fmt.Sprintf("suggested campaign %q (%s)", c.Name, c.ID), nil
}
