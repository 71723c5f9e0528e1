package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/apperrors"
	"github.com/jonathan/outreach-agent/internal/types"
)

// CreateCampaign stores a new campaign.
func (s *Store) CreateCampaign(_ context.Context, c *types.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = types.CampaignDraft
	}
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	s.campaigns[c.ID] = *c
	return nil
}

// GetCampaign returns a campaign by ID.
func (s *Store) GetCampaign(_ context.Context, id uuid.UUID) (*types.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Entity: "campaign", ID: id.String()}
	}
	return &c, nil
}

// ListCampaigns returns campaigns, most recently updated first.
func (s *Store) ListCampaigns(_ context.Context, filter types.CampaignFilter) ([]types.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.ProspectID != nil && (c.ProspectID == nil || *c.ProspectID != *filter.ProspectID) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if limit := clamp(filter.Limit, 100, 1000); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ClaimCampaignActivation moves a draft or suggested campaign to activating.
func (s *Store) ClaimCampaignActivation(_ context.Context, id uuid.UUID) (*types.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Entity: "campaign", ID: id.String()}
	}
	if !c.Status.CanActivate() {
		return nil, &apperrors.ConflictError{Message: fmt.Sprintf("campaign %s is %s and cannot be activated", id, c.Status)}
	}
	before := c
	c.Status = types.CampaignActivating
	c.UpdatedAt = s.now()
	s.campaigns[id] = c
	return &before, nil
}

// CompleteCampaignActivation marks an activating campaign active.
func (s *Store) CompleteCampaignActivation(
	_ context.Context,
	id uuid.UUID,
	contractAddress *string,
	ev *types.ActivityEvent,
) (*types.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[id]
	if !ok || c.Status != types.CampaignActivating {
		return nil, &apperrors.ConflictError{Message: fmt.Sprintf("campaign %s is not being activated", id)}
	}
	if err := s.appendLocked(ev); err != nil {
		return nil, err
	}
	now := s.now()
	c.Status = types.CampaignActive
	c.ContractAddress = contractAddress
	c.ActivatedAt = &now
	c.UpdatedAt = now
	s.campaigns[id] = c
	return &c, nil
}

// ReleaseCampaignActivation returns an activating campaign to prior.
func (s *Store) ReleaseCampaignActivation(_ context.Context, id uuid.UUID, prior types.CampaignStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.campaigns[id]; ok && c.Status == types.CampaignActivating {
		c.Status = prior
		c.UpdatedAt = s.now()
		s.campaigns[id] = c
	}
	return nil
}

// CreateOrder stores an order against an active campaign.
func (s *Store) CreateOrder(_ context.Context, o *types.Order, ev *types.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.campaigns[o.CampaignID]
	if !ok {
		return &apperrors.NotFoundError{Entity: "campaign", ID: o.CampaignID.String()}
	}
	if c.Status != types.CampaignActive {
		return &apperrors.ConflictError{Message: fmt.Sprintf("campaign %s is %s, orders require an active campaign", c.ID, c.Status)}
	}
	if err := s.appendLocked(ev); err != nil {
		return err
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = types.OrderPlaced
	}
	o.CreatedAt = s.now()
	s.orders[o.ID] = *o
	return nil
}

// Orders returns every stored order.
func (s *Store) Orders() []types.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	return out
}

// CreateSite stores a pending site for a prospect.
func (s *Store) CreateSite(_ context.Context, prospectID uuid.UUID) (*types.GeneratedSite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	site := types.GeneratedSite{
		ID:         uuid.New(),
		ProspectID: prospectID,
		Status:     types.SitePending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.sites[site.ID] = site
	return &site, nil
}

// CompleteSite fills in a pending site's content and marks it ready.
func (s *Store) CompleteSite(_ context.Context, id uuid.UUID, content types.SiteContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[id]
	if !ok || site.Status != types.SitePending {
		return &apperrors.ConflictError{Message: fmt.Sprintf("site %s is not pending", id)}
	}
	site.Status = types.SiteReady
	site.URL, site.Headline, site.Body = content.URL, content.Headline, content.Body
	site.UpdatedAt = s.now()
	s.sites[id] = site
	return nil
}

// FailSite marks a pending site failed.
func (s *Store) FailSite(_ context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if site, ok := s.sites[id]; ok && site.Status == types.SitePending {
		site.Status = types.SiteFailed
		site.Error = reason
		site.UpdatedAt = s.now()
		s.sites[id] = site
	}
	return nil
}

// ListSites returns a prospect's sites, newest first.
func (s *Store) ListSites(_ context.Context, prospectID uuid.UUID) ([]types.GeneratedSite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.GeneratedSite
	for _, site := range s.sites {
		if site.ProspectID == prospectID {
			out = append(out, site)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// CreateOperator stores an operator. Emails are unique.
func (s *Store) CreateOperator(_ context.Context, op *types.Operator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.operators {
		if existing.Email == op.Email {
			return &apperrors.ConflictError{Message: fmt.Sprintf("operator already exists: %s", op.Email)}
		}
	}
	if op.ID == uuid.Nil {
		op.ID = uuid.New()
	}
	op.CreatedAt = s.now()
	s.operators[op.ID] = *op
	return nil
}

// GetOperator returns an operator by ID.
func (s *Store) GetOperator(_ context.Context, id uuid.UUID) (*types.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.operators[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Entity: "operator", ID: id.String()}
	}
	return &op, nil
}

// GetOperatorByEmail returns an operator by email address.
func (s *Store) GetOperatorByEmail(_ context.Context, email string) (*types.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range s.operators {
		if op.Email == email {
			return &op, nil
		}
	}
	return nil, &apperrors.NotFoundError{Entity: "operator", ID: email}
}
