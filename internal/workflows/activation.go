package workflows

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/activity"
	"github.com/jonathan/outreach-agent/internal/apperrors"
	"github.com/jonathan/outreach-agent/internal/pipeline"
	"github.com/jonathan/outreach-agent/internal/types"
)

// Activator turns suggested or draft campaigns into live ones.
type Activator struct {
	Store    CampaignStore
	Deployer Deployer
	Machine  Transitioner
	Log      *activity.Log
	Logger   *slog.Logger
}

// Activate claims the campaign, deploys it and marks it active. Campaigns that
// are already active, activating or terminal give a ConflictError before the
// deployer runs. A failed deployment returns the campaign to its prior status.
func (a *Activator) Activate(ctx context.Context, id uuid.UUID, actor types.Actor) (*types.Campaign, error) {
	logger := a.Logger
	if logger == nil {
		logger = discardLogger()
	}

	before, err := a.Store.ClaimCampaignActivation(ctx, id)
	if err != nil {
		return nil, apperrors.Internal("claim campaign activation", err)
	}

	address, err := a.Deployer.Deploy(ctx, *before)
	if err != nil {
		a.release(ctx, before, actor, err, logger)
		return nil, apperrors.Internal("deploy campaign", err)
	}

	var addr *string
	detail := "campaign activated"
	if address != "" {
		addr = &address
		detail = "campaign activated at " + address
	}
	ev := a.Log.New(activity.Entry{
		Type:        types.ActivityCampaignActivated,
		ProspectID:  before.ProspectID,
		CampaignID:  &before.ID,
		TargetLabel: before.Name,
		Detail:      detail,
		TriggeredBy: actor,
	})
	active, err := a.Store.CompleteCampaignActivation(ctx, id, addr, ev)
	if err != nil {
		a.release(ctx, before, actor, err, logger)
		return nil, apperrors.Internal("complete campaign activation", err)
	}
	a.Log.Publish(ev)
	logger.Info("campaign activated", "campaign_id", id, "actor", actor)

	if before.ProspectID != nil {
		a.advanceProspect(ctx, *before.ProspectID, id, actor, logger)
	}
	return active, nil
}

// advanceProspect moves the owning prospect to campaign_active when it is
// waiting on this campaign. A prospect elsewhere in the pipeline is left alone.
func (a *Activator) advanceProspect(ctx context.Context, prospectID, campaignID uuid.UUID, actor types.Actor, logger *slog.Logger) {
	_, err := a.Machine.Transition(ctx, pipeline.Request{
		ProspectID:   prospectID,
		Target:       string(types.StageCampaignActive),
		Actor:        actor,
		EventType:    types.ActivityCampaignActivated,
		Detail:       "campaign " + campaignID.String() + " activated",
		CampaignID:   &campaignID,
		ExpectedFrom: types.StageCampaignSuggested,
	})
	switch {
	case err == nil:
	case apperrors.IsConflict(err):
		logger.Debug("prospect not awaiting activation", "prospect_id", prospectID, "error", err)
	default:
		logger.Warn("failed to advance prospect after activation", "prospect_id", prospectID, "error", err)
	}
}

func (a *Activator) release(ctx context.Context, before *types.Campaign, actor types.Actor, cause error, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := a.Store.ReleaseCampaignActivation(ctx, before.ID, before.Status); err != nil {
		logger.Error("failed to release campaign activation", "campaign_id", before.ID, "error", err)
	}
	_, err := a.Log.Record(ctx, activity.Entry{
		Type:        types.ActivityCampaignActivated,
		ProspectID:  before.ProspectID,
		CampaignID:  &before.ID,
		TargetLabel: before.Name,
		Detail:      fmt.Sprintf("activation failed: %v", cause),
		Status:      types.StatusFailed,
		TriggeredBy: actor,
	})
	if err != nil {
		logger.Error("failed to record activation failure", "campaign_id", before.ID, "error", err)
	}
}
