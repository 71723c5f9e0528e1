package types

import (
	"time"

	"github.com/google/uuid"
)

// ActivityType classifies an activity event.
type ActivityType string

// Activity event types.
const (
	ActivityManualAction      ActivityType = "manual_action"
	ActivityProspectCreated   ActivityType = "prospect_created"
	ActivityOutreachSent      ActivityType = "outreach_sent"
	ActivitySiteGenerated     ActivityType = "site_generated"
	ActivityCampaignSuggested ActivityType = "campaign_suggested"
	ActivityCampaignActivated ActivityType = "campaign_activated"
	ActivityOrderPlaced       ActivityType = "order_placed"
	ActivityAgentPaused       ActivityType = "agent_paused"
	ActivityAgentResumed      ActivityType = "agent_resumed"
)

// ActivityStatus is the outcome recorded on an event.
type ActivityStatus string

// Activity statuses.
const (
	StatusInProgress ActivityStatus = "in_progress"
	StatusCompleted  ActivityStatus = "completed"
	StatusFailed     ActivityStatus = "failed"
)

// Actor identifies who triggered an action.
type Actor string

// Actors.
const (
	ActorManual Actor = "manual"
	ActorAgent  Actor = "agent"
	ActorCron   Actor = "cron"
)

// Valid reports whether a is a defined actor.
func (a Actor) Valid() bool {
	return a == ActorManual || a == ActorAgent || a == ActorCron
}

// ActivityEvent is an immutable record of one action or state change.
// The same shape is persisted and streamed to subscribers.
type ActivityEvent struct {
	ID          int64          `json:"id,string"`
	Type        ActivityType   `json:"type"`
	ProspectID  *uuid.UUID     `json:"prospectId,omitempty"`
	CampaignID  *uuid.UUID     `json:"campaignId,omitempty"`
	TargetLabel *string        `json:"targetLabel,omitempty"`
	Detail      string         `json:"detail"`
	Status      ActivityStatus `json:"status"`
	TriggeredBy Actor          `json:"triggeredBy"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// ActivityFilter narrows activity listings. Events are returned newest first.
type ActivityFilter struct {
	ProspectID *uuid.UUID
	CampaignID *uuid.UUID
	BeforeID   int64
	Limit      int
}
