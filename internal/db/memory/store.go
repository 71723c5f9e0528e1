// Package memory is an in-process store with the same behaviour as the
// PostgreSQL store. It backs local development and unit tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/apperrors"
	"github.com/jonathan/outreach-agent/internal/types"
)

// Store holds every record in maps guarded by one mutex. Multi-record writes
// happen under the lock, which gives them the same all-or-nothing behaviour as
// a database transaction.
type Store struct {
	mu sync.Mutex

	prospects map[uuid.UUID]types.Prospect
	vendors   map[string]uuid.UUID
	sites     map[uuid.UUID]types.GeneratedSite
	campaigns map[uuid.UUID]types.Campaign
	orders    map[uuid.UUID]types.Order
	operators map[uuid.UUID]types.Operator
	events    []types.ActivityEvent
	agent     *types.AgentState

	now func() time.Time

	// FailAppend, when set, is returned by every write that records an event.
	FailAppend error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		prospects: make(map[uuid.UUID]types.Prospect),
		vendors:   make(map[string]uuid.UUID),
		sites:     make(map[uuid.UUID]types.GeneratedSite),
		campaigns: make(map[uuid.UUID]types.Campaign),
		orders:    make(map[uuid.UUID]types.Order),
		operators: make(map[uuid.UUID]types.Operator),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the store's time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) appendLocked(ev *types.ActivityEvent) error {
	if ev == nil {
		return nil
	}
	if s.FailAppend != nil {
		return fmt.Errorf("failed to append activity event: %w", s.FailAppend)
	}
	s.events = append(s.events, *ev)
	return nil
}

// AppendActivity records one event.
func (s *Store) AppendActivity(_ context.Context, ev *types.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(ev)
}

// RecentActivity returns up to limit events, newest first.
func (s *Store) RecentActivity(ctx context.Context, limit int) ([]types.ActivityEvent, error) {
	return s.ListActivity(ctx, types.ActivityFilter{Limit: limit})
}

// ListActivity returns matching events, newest first.
func (s *Store) ListActivity(_ context.Context, filter types.ActivityFilter) ([]types.ActivityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := clamp(filter.Limit, 50, 500)
	sorted := make([]types.ActivityEvent, len(s.events))
	copy(sorted, s.events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID > sorted[j].ID })

	out := make([]types.ActivityEvent, 0, limit)
	for _, ev := range sorted {
		if filter.ProspectID != nil && (ev.ProspectID == nil || *ev.ProspectID != *filter.ProspectID) {
			continue
		}
		if filter.CampaignID != nil && (ev.CampaignID == nil || *ev.CampaignID != *filter.CampaignID) {
			continue
		}
		if filter.BeforeID > 0 && ev.ID >= filter.BeforeID {
			continue
		}
		out = append(out, ev)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Events returns every stored event in insertion order.
func (s *Store) Events() []types.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ActivityEvent, len(s.events))
	copy(out, s.events)
	return out
}

// PutProspect stores p as is, replacing any prospect with the same ID.
func (s *Store) PutProspect(p types.Prospect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	s.prospects[p.ID] = p
	if p.VendorID != nil {
		s.vendors[*p.VendorID] = p.ID
	}
}

// GetProspect returns a prospect by ID.
func (s *Store) GetProspect(_ context.Context, id uuid.UUID) (*types.Prospect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prospects[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Entity: "prospect", ID: id.String()}
	}
	return &p, nil
}

// ListProspects returns prospects, most recently updated first.
func (s *Store) ListProspects(_ context.Context, filter types.ProspectFilter) ([]types.Prospect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Prospect, 0, len(s.prospects))
	for _, p := range s.prospects {
		if filter.Stage != "" && p.Stage != filter.Stage {
			continue
		}
		out = append(out, p)
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

// TransitionProspect applies a stage change and its event atomically.
func (s *Store) TransitionProspect(
	_ context.Context,
	id uuid.UUID,
	apply func(p *types.Prospect) (*types.ActivityEvent, error),
) (*types.Prospect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.prospects[id]
	if !ok {
		return nil, &apperrors.NotFoundError{Entity: "prospect", ID: id.String()}
	}
	next := cur
	ev, err := apply(&next)
	if err != nil {
		return nil, err
	}
	if err := s.appendLocked(ev); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now()
	s.prospects[id] = next
	return &next, nil
}

// GetOrCreateProspect returns the prospect for rec.VendorID, creating it if absent.
func (s *Store) GetOrCreateProspect(
	_ context.Context,
	rec types.VendorRecord,
	onCreate func(p *types.Prospect) *types.ActivityEvent,
) (*types.Prospect, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.vendors[rec.VendorID]; ok {
		p := s.prospects[id]
		return &p, false, nil
	}

	pType := rec.Type
	if pType == "" {
		pType = types.ProspectVendor
	}
	vendorID := rec.VendorID
	now := s.now()
	p := types.Prospect{
		ID:           uuid.New(),
		VendorID:     &vendorID,
		Name:         rec.Name,
		Stage:        types.StageNew,
		Type:         pType,
		ContactEmail: rec.ContactEmail,
		ContactPhone: rec.ContactPhone,
		Website:      rec.Website,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if onCreate != nil {
		if err := s.appendLocked(onCreate(&p)); err != nil {
			return nil, false, err
		}
	}
	s.prospects[p.ID] = p
	s.vendors[vendorID] = p.ID
	return &p, true, nil
}

// EligibleProspects returns prospects matching any criterion ordered by stage
// order, update time and ID.
func (s *Store) EligibleProspects(_ context.Context, q types.EligibilityQuery) ([]types.Prospect, error) {
	if len(q.Criteria) == 0 || q.Limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.Prospect
	for _, p := range s.prospects {
		for _, c := range q.Criteria {
			if p.Stage != c.Stage {
				continue
			}
			if !c.UpdatedBefore.IsZero() && p.UpdatedAt.After(c.UpdatedBefore) {
				continue
			}
			out = append(out, p)
			break
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Stage.Order() != b.Stage.Order() {
			return a.Stage.Order() < b.Stage.Order()
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// GetAgentState returns the agent state, running until first changed.
func (s *Store) GetAgentState(context.Context) (types.AgentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.agentLocked(), nil
}

func (s *Store) agentLocked() *types.AgentState {
	if s.agent == nil {
		st := types.DefaultAgentState()
		st.UpdatedAt = s.now()
		s.agent = &st
	}
	return s.agent
}

// SetAgentStatus changes the status and records ev only when it changes.
func (s *Store) SetAgentStatus(_ context.Context, status types.AgentStatus, actor types.Actor, ev *types.ActivityEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.agentLocked()
	if st.Status == status {
		return false, nil
	}
	if err := s.appendLocked(ev); err != nil {
		return false, err
	}
	st.Status = status
	st.UpdatedBy = actor
	st.UpdatedAt = s.now()
	return true, nil
}

func clamp(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
