package types

import (
	"time"

	"github.com/google/uuid"
)

// SiteStatus is the generation status of a site.
type SiteStatus string

// Site statuses.
const (
	SitePending SiteStatus = "pending"
	SiteReady   SiteStatus = "ready"
	SiteFailed  SiteStatus = "failed"
)

// GeneratedSite is a marketing site generated for exactly one prospect.
// Content fields are written once, when the site becomes ready.
type GeneratedSite struct {
	ID         uuid.UUID  `json:"id"`
	ProspectID uuid.UUID  `json:"prospectId"`
	Status     SiteStatus `json:"status"`
	URL        string     `json:"url,omitempty"`
	Headline   string     `json:"headline,omitempty"`
	Body       string     `json:"body,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// SiteContent is the generated copy stored on a ready site.
type SiteContent struct {
	URL      string
	Headline string
	Body     string
}
