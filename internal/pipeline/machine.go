package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/activity"
	"github.com/jonathan/outreach-agent/internal/apperrors"
	"github.com/jonathan/outreach-agent/internal/types"
)

// Store is the persistence the machine needs. TransitionProspect must run
// apply and write its result atomically.
type Store interface {
	GetProspect(ctx context.Context, id uuid.UUID) (*types.Prospect, error)
	TransitionProspect(ctx context.Context, id uuid.UUID, apply func(p *types.Prospect) (*types.ActivityEvent, error)) (*types.Prospect, error)
	GetOrCreateProspect(ctx context.Context, rec types.VendorRecord, onCreate func(p *types.Prospect) *types.ActivityEvent) (*types.Prospect, bool, error)
}

// Request describes one stage change.
type Request struct {
	ProspectID uuid.UUID
	// Target is the requested stage name. It is parsed, so any string is accepted.
	Target string
	Actor  types.Actor
	// EventType is recorded for non-manual actors. Manual changes are always manual_action.
	EventType  types.ActivityType
	Detail     string
	CampaignID *uuid.UUID
	// ExpectedFrom, when set, makes the change conditional on the current stage.
	ExpectedFrom types.Stage
	// Override skips the adjacency check. It is the manual correction path.
	Override bool
}

// Result is a committed stage change.
type Result struct {
	Prospect *types.Prospect
	Event    *types.ActivityEvent
	From     types.Stage
}

// Machine applies stage changes.
type Machine struct {
	store  Store
	log    *activity.Log
	logger *slog.Logger
}

// NewMachine creates a Machine. A nil logger discards output.
func NewMachine(store Store, log *activity.Log, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Machine{store: store, log: log, logger: logger}
}

// Transition moves a prospect to req.Target, recording exactly one event in
// the same write. The event is published only after the write commits.
func (m *Machine) Transition(ctx context.Context, req Request) (*Result, error) {
	target, err := types.ParseStage(req.Target)
	if err != nil {
		return nil, &apperrors.ValidationError{Field: "stage", Message: err.Error()}
	}
	if !req.Actor.Valid() {
		return nil, &apperrors.ValidationError{Field: "actor", Message: fmt.Sprintf("unknown actor %q", req.Actor)}
	}
	evType := req.EventType
	if req.Actor == types.ActorManual {
		evType = types.ActivityManualAction
	}
	if evType == "" {
		return nil, &apperrors.ValidationError{Field: "eventType", Message: "required for non-manual transitions"}
	}

	var (
		from types.Stage
		ev   *types.ActivityEvent
	)
	p, err := m.store.TransitionProspect(ctx, req.ProspectID, func(cur *types.Prospect) (*types.ActivityEvent, error) {
		from = cur.Stage
		if req.ExpectedFrom != "" && cur.Stage != req.ExpectedFrom {
			return nil, &apperrors.ConflictError{
				Message: fmt.Sprintf("prospect %s is %s, expected %s", cur.ID, cur.Stage, req.ExpectedFrom),
			}
		}
		if !req.Override && !CanTransition(cur.Stage, target) {
			return nil, &apperrors.ConflictError{
				Message: fmt.Sprintf("cannot move prospect from %s to %s", cur.Stage, target),
			}
		}

		cur.Stage = target
		ev = m.log.New(activity.Entry{
			Type:        evType,
			ProspectID:  &cur.ID,
			CampaignID:  req.CampaignID,
			TargetLabel: cur.Label(),
			Detail:      transitionDetail(from, target, req),
			Status:      types.StatusCompleted,
			TriggeredBy: req.Actor,
		})
		return ev, nil
	})
	if err != nil {
		return nil, apperrors.Internal("transition prospect", err)
	}

	m.logger.Info("prospect transitioned",
		"prospect_id", p.ID, "from", from, "to", target, "actor", req.Actor, "override", req.Override)
	m.log.Publish(ev)
	return &Result{Prospect: p, Event: ev, From: from}, nil
}

func transitionDetail(from, to types.Stage, req Request) string {
	detail := fmt.Sprintf("%s -> %s", from, to)
	if req.Override {
		detail += " (override)"
	}
	if req.Detail != "" {
		detail += ": " + req.Detail
	}
	return detail
}

// GetOrCreate returns the prospect for a vendor, creating it in the new stage
// with a prospect_created event if it does not exist yet.
func (m *Machine) GetOrCreate(ctx context.Context, rec types.VendorRecord, actor types.Actor) (*types.Prospect, bool, error) {
	if err := rec.Validate(); err != nil {
		return nil, false, apperrors.FromValidator(err)
	}
	if !actor.Valid() {
		return nil, false, &apperrors.ValidationError{Field: "actor", Message: fmt.Sprintf("unknown actor %q", actor)}
	}

	var ev *types.ActivityEvent
	p, created, err := m.store.GetOrCreateProspect(ctx, rec, func(p *types.Prospect) *types.ActivityEvent {
		ev = m.log.New(activity.Entry{
			Type:        types.ActivityProspectCreated,
			ProspectID:  &p.ID,
			TargetLabel: p.Label(),
			Detail:      fmt.Sprintf("prospect created from vendor %s", rec.VendorID),
			Status:      types.StatusCompleted,
			TriggeredBy: actor,
		})
		return ev
	})
	if err != nil {
		return nil, false, apperrors.Internal("get or create prospect", err)
	}
	if created {
		m.logger.Info("prospect created", "prospect_id", p.ID, "vendor_id", rec.VendorID)
		m.log.Publish(ev)
	}
	return p, created, nil
}

// Get returns a prospect by ID.
func (m *Machine) Get(ctx context.Context, id uuid.UUID) (*types.Prospect, error) {
	p, err := m.store.GetProspect(ctx, id)
	if err != nil {
		return nil, apperrors.Internal("get prospect", err)
	}
	return p, nil
}
