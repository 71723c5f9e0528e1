package types

import (
	"time"

	"github.com/google/uuid"
)

// CampaignStatus is the lifecycle status of a campaign.
type CampaignStatus string

// Campaign statuses. Activating is held only while the deployer runs.
const (
	CampaignDraft      CampaignStatus = "draft"
	CampaignSuggested  CampaignStatus = "suggested"
	CampaignActivating CampaignStatus = "activating"
	CampaignActive     CampaignStatus = "active"
	CampaignCompleted  CampaignStatus = "completed"
	CampaignCancelled  CampaignStatus = "cancelled"
)

// Terminal reports whether the campaign can no longer change status.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignCompleted || s == CampaignCancelled
}

// CanActivate reports whether an activation may start from s.
func (s CampaignStatus) CanActivate() bool {
	return s == CampaignDraft || s == CampaignSuggested
}

// Valid reports whether s is a defined status.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignSuggested, CampaignActivating, CampaignActive, CampaignCompleted, CampaignCancelled:
		return true
	}
	return false
}

// Campaign is an outreach or loyalty campaign tied to a vendor and/or prospect.
type Campaign struct {
	ID              uuid.UUID      `json:"id"`
	ProspectID      *uuid.UUID     `json:"prospectId,omitempty"`
	VendorID        *string        `json:"vendorId,omitempty"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	Status          CampaignStatus `json:"status"`
	ContractAddress *string        `json:"contractAddress,omitempty"`
	ActivatedAt     *time.Time     `json:"activatedAt,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// CampaignFilter narrows campaign listings.
type CampaignFilter struct {
	Status     CampaignStatus
	ProspectID *uuid.UUID
	Limit      int
}

// Order is a paid order placed against an active campaign.
type Order struct {
	ID         uuid.UUID `json:"id"`
	CampaignID uuid.UUID `json:"campaignId"`
	SKU        string    `json:"sku"`
	Quantity   int       `json:"quantity"`
	Payer      string    `json:"payer,omitempty"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// OrderPlaced is the status of a freshly placed order.
const OrderPlaced = "placed"
