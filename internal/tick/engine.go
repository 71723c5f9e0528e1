// Package tick runs the agent's periodic unit of work: select a bounded batch
// of eligible prospects, run each one's workflow and advance the ones that succeed.
package tick

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/outreach-agent/internal/activity"
	"github.com/jonathan/outreach-agent/internal/apperrors"
	"github.com/jonathan/outreach-agent/internal/pipeline"
	"github.com/jonathan/outreach-agent/internal/types"
)

// Store is the persistence the engine reads and writes directly.
type Store interface {
	GetAgentState(ctx context.Context) (types.AgentState, error)
	SetAgentStatus(ctx context.Context, status types.AgentStatus, actor types.Actor, ev *types.ActivityEvent) (bool, error)
	EligibleProspects(ctx context.Context, q types.EligibilityQuery) ([]types.Prospect, error)
}

// Transitioner applies stage changes.
type Transitioner interface {
	Transition(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Invoker runs one workflow for one prospect and returns a short detail for the activity feed.
type Invoker interface {
	Invoke(ctx context.Context, p types.Prospect, actor types.Actor) (string, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, p types.Prospect, actor types.Actor) (string, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, p types.Prospect, actor types.Actor) (string, error) {
	return f(ctx, p, actor)
}

// Action binds a workflow to the stage it advances from.
type Action struct {
	Name      string
	From      types.Stage
	EventType types.ActivityType
	// StaleAfter, when positive, only selects prospects idle in From for at least this long.
	StaleAfter time.Duration
	Invoker    Invoker
}

// Config bounds a tick.
type Config struct {
	BatchSize   int
	Concurrency int
	Budget      time.Duration
}

// recordTimeout bounds writes that outlive the tick budget.
const recordTimeout = 5 * time.Second

// DefaultConfig returns the standard tick bounds.
func DefaultConfig() Config {
	return Config{BatchSize: 10, Concurrency: 4, Budget: 50 * time.Second}
}

// Engine runs ticks. At most one tick runs at a time per Engine.
type Engine struct {
	store   Store
	machine Transitioner
	log     *activity.Log
	actions map[types.Stage]Action
	order   []types.Stage
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger

	running sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock overrides the time source used for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine validates the actions and builds an Engine.
func NewEngine(store Store, machine Transitioner, log *activity.Log, actions []Action, cfg Config, opts ...Option) (*Engine, error) {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Budget <= 0 {
		cfg.Budget = def.Budget
	}

	e := &Engine{
		store:   store,
		machine: machine,
		log:     log,
		actions: make(map[types.Stage]Action, len(actions)),
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, a := range actions {
		if a.Invoker == nil {
			return nil, fmt.Errorf("action %s has no invoker", a.Name)
		}
		if _, ok := pipeline.Successor(a.From); !ok {
			return nil, fmt.Errorf("action %s starts from %s, which has no next stage", a.Name, a.From)
		}
		if _, dup := e.actions[a.From]; dup {
			return nil, fmt.Errorf("more than one action for stage %s", a.From)
		}
		e.actions[a.From] = a
		e.order = append(e.order, a.From)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// RunTick performs one tick. A paused agent does nothing. A tick requested
// while another is running fails with AlreadyRunningError without waiting.
// Per-item failures are recorded as failed events and counted, never returned.
func (e *Engine) RunTick(ctx context.Context, actor types.Actor) (types.TickSummary, error) {
	started := e.now()
	summary := types.TickSummary{StartedAt: started, Actions: map[string]types.ActionCount{}}

	state, err := e.store.GetAgentState(ctx)
	if err != nil {
		return summary, apperrors.Internal("read agent state", err)
	}
	if state.Status == types.AgentPaused {
		summary.Paused = true
		e.logger.Info("tick skipped, agent paused", "actor", actor)
		return summary, nil
	}

	if !e.running.TryLock() {
		return summary, &apperrors.AlreadyRunningError{}
	}
	defer e.running.Unlock()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Budget)
	defer cancel()

	batch, err := e.store.EligibleProspects(ctx, e.query(started))
	if err != nil {
		return summary, apperrors.Internal("select eligible prospects", err)
	}
	summary.Selected = len(batch)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.cfg.Concurrency)
	for _, p := range batch {
		action := e.actions[p.Stage]
		g.Go(func() error {
			ok := e.runItem(ctx, action, p, actor)
			mu.Lock()
			defer mu.Unlock()
			count := summary.Actions[action.Name]
			if ok {
				count.Succeeded++
			} else {
				count.Failed++
			}
			summary.Actions[action.Name] = count
			return nil
		})
	}
	_ = g.Wait()

	summary.DurationMS = e.now().Sub(started).Milliseconds()
	e.logger.Info("tick complete",
		"actor", actor, "selected", summary.Selected, "attempted", summary.Total(), "duration_ms", summary.DurationMS)
	return summary, nil
}

func (e *Engine) query(now time.Time) types.EligibilityQuery {
	q := types.EligibilityQuery{Limit: e.cfg.BatchSize}
	for _, st := range e.order {
		a := e.actions[st]
		c := types.StageCriterion{Stage: a.From}
		if a.StaleAfter > 0 {
			c.UpdatedBefore = now.Add(-a.StaleAfter)
		}
		q.Criteria = append(q.Criteria, c)
	}
	return q
}

// runItem invokes one workflow and advances the prospect on success.
func (e *Engine) runItem(ctx context.Context, action Action, p types.Prospect, actor types.Actor) bool {
	logger := e.logger.With("action", action.Name, "prospect_id", p.ID)
	if err := ctx.Err(); err != nil {
		logger.Warn("tick budget exhausted before item started")
		return false
	}

	detail, err := action.Invoker.Invoke(ctx, p, actor)
	if err != nil {
		logger.Warn("workflow failed", "error", err)
		e.recordFailure(ctx, action, p, actor, err)
		return false
	}

	// The side effect already happened, so the stage change must not be lost
	// to the tick budget running out.
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	next, _ := pipeline.Successor(action.From)
	_, err = e.machine.Transition(tctx, pipeline.Request{
		ProspectID:   p.ID,
		Target:       string(next),
		Actor:        actor,
		EventType:    action.EventType,
		Detail:       detail,
		ExpectedFrom: action.From,
	})
	if err != nil {
		if apperrors.IsConflict(err) {
			logger.Info("prospect moved by another writer", "error", err)
			return false
		}
		logger.Error("transition failed", "error", err)
		e.recordFailure(ctx, action, p, actor, fmt.Errorf("advance to %s: %w", next, err))
		return false
	}
	return true
}

func (e *Engine) recordFailure(ctx context.Context, action Action, p types.Prospect, actor types.Actor, cause error) {
	// The failure is recorded even when the tick budget ran out.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	_, err := e.log.Record(ctx, activity.Entry{
		Type:        action.EventType,
		ProspectID:  &p.ID,
		TargetLabel: p.Label(),
		Detail:      fmt.Sprintf("%s failed: %v", action.Name, cause),
		Status:      types.StatusFailed,
		TriggeredBy: actor,
	})
	if err != nil {
		e.logger.Error("failed to record workflow failure", "prospect_id", p.ID, "error", err)
	}
}

// State returns the persisted agent state.
func (e *Engine) State(ctx context.Context) (types.AgentState, error) {
	st, err := e.store.GetAgentState(ctx)
	if err != nil {
		return types.AgentState{}, apperrors.Internal("read agent state", err)
	}
	return st, nil
}

// Pause stops future ticks from doing work. Pausing a paused agent records nothing.
func (e *Engine) Pause(ctx context.Context, actor types.Actor) (types.AgentState, error) {
	return e.setStatus(ctx, types.AgentPaused, actor, types.ActivityAgentPaused)
}

// Resume re-enables ticks. Resuming a running agent records nothing.
func (e *Engine) Resume(ctx context.Context, actor types.Actor) (types.AgentState, error) {
	return e.setStatus(ctx, types.AgentRunning, actor, types.ActivityAgentResumed)
}

func (e *Engine) setStatus(ctx context.Context, status types.AgentStatus, actor types.Actor, evType types.ActivityType) (types.AgentState, error) {
	ev := e.log.New(activity.Entry{
		Type:        evType,
		TargetLabel: "agent",
		Detail:      fmt.Sprintf("agent %s by %s", status, actor),
		Status:      types.StatusCompleted,
		TriggeredBy: actor,
	})
	changed, err := e.store.SetAgentStatus(ctx, status, actor, ev)
	if err != nil {
		return types.AgentState{}, apperrors.Internal("set agent status", err)
	}
	if changed {
		e.logger.Info("agent status changed", "status", status, "actor", actor)
		e.log.Publish(ev)
	}
	return e.State(ctx)
}

// Schedule runs a tick as the agent every interval until ctx is done.
func (e *Engine) Schedule(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("tick scheduler started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("tick scheduler stopped")
			return
		case <-ticker.C:
			_, err := e.RunTick(ctx, types.ActorAgent)
			var running *apperrors.AlreadyRunningError
			switch {
			case err == nil:
			case errors.As(err, &running):
				e.logger.Info("scheduled tick skipped, another tick is running")
			default:
				e.logger.Error("scheduled tick failed", "error", err)
			}
		}
	}
}
