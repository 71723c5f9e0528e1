// Package types provides the domain types shared by the outreach agent's packages.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Stage is a prospect's position in the outreach pipeline.
type Stage string

// Pipeline stages in forward order. Dismissed is a side terminal.
const (
	StageNew               Stage = "new"
	StageContacted         Stage = "contacted"
	StageSiteGenerated     Stage = "site_generated"
	StageCampaignSuggested Stage = "campaign_suggested"
	StageCampaignActive    Stage = "campaign_active"
	StageConverted         Stage = "converted"
	StageDismissed         Stage = "dismissed"
)

// Stages lists every defined stage, forward order first.
var Stages = []Stage{
	StageNew,
	StageContacted,
	StageSiteGenerated,
	StageCampaignSuggested,
	StageCampaignActive,
	StageConverted,
	StageDismissed,
}

// ParseStage returns the Stage named by s or an error if s is not a defined stage.
func ParseStage(s string) (Stage, error) {
	for _, st := range Stages {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown pipeline stage %q", s)
}

// Valid reports whether s is a defined stage.
func (s Stage) Valid() bool {
	_, err := ParseStage(string(s))
	return err == nil
}

// Terminal reports whether no further transitions are expected from s.
func (s Stage) Terminal() bool {
	return s == StageConverted || s == StageDismissed
}

// Order returns the position of s in the forward pipeline, used for stable sorting.
// Dismissed sorts last.
func (s Stage) Order() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return len(Stages)
}

// ProspectType records how a prospect entered the pipeline.
type ProspectType string

// Prospect origins.
const (
	ProspectReferred   ProspectType = "referred"
	ProspectDiscovered ProspectType = "discovered"
	ProspectVendor     ProspectType = "vendor"
)

// Prospect is a candidate business account tracked through the pipeline.
type Prospect struct {
	ID           uuid.UUID    `json:"id"`
	VendorID     *string      `json:"vendorId,omitempty"`
	Name         string       `json:"name"`
	Stage        Stage        `json:"stage"`
	Type         ProspectType `json:"type"`
	ContactEmail string       `json:"contactEmail,omitempty"`
	ContactPhone string       `json:"contactPhone,omitempty"`
	Website      string       `json:"website,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Label is the human-readable target label used on activity events.
func (p *Prospect) Label() string {
	return p.Name
}

// VendorRecord describes a vendor that may become a prospect.
type VendorRecord struct {
	VendorID     string       `json:"vendorId" validate:"required,max=128"`
	Name         string       `json:"name" validate:"required,min=1,max=256"`
	Type         ProspectType `json:"type,omitempty" validate:"omitempty,oneof=referred discovered vendor"`
	ContactEmail string       `json:"contactEmail,omitempty" validate:"omitempty,email"`
	ContactPhone string       `json:"contactPhone,omitempty" validate:"omitempty,max=32"`
	Website      string       `json:"website,omitempty" validate:"omitempty,url"`
}

// Validate validates the VendorRecord using the validator.
func (r *VendorRecord) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// ProspectFilter narrows prospect listings.
type ProspectFilter struct {
	Stage Stage
	Limit int
}

// StageCriterion selects prospects in Stage. A non-zero UpdatedBefore further
// requires the prospect to have been idle since before that instant.
type StageCriterion struct {
	Stage         Stage
	UpdatedBefore time.Time
}

// EligibilityQuery selects a bounded batch of prospects matching any criterion,
// ordered by stage order, then last update, then id.
type EligibilityQuery struct {
	Criteria []StageCriterion
	Limit    int
}
