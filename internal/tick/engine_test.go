package tick

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/activity"
	"github.com/jonathan/outreach-agent/internal/apperrors"
	"github.com/jonathan/outreach-agent/internal/db/memory"
	"github.com/jonathan/outreach-agent/internal/pipeline"
	"github.com/jonathan/outreach-agent/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingInvoker struct {
	calls atomic.Int32
	fail  map[uuid.UUID]error
	block chan struct{}
}

func (c *countingInvoker) Invoke(ctx context.Context, p types.Prospect, _ types.Actor) (string, error) {
	c.calls.Add(1)
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := c.fail[p.ID]; err != nil {
		return "", err
	}
	return "done for " + p.Name, nil
}

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	engine   *Engine
	store    *memory.Store
	outreach *countingInvoker
	sites    *countingInvoker
	suggest  *countingInvoker
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	store := memory.New()
	store.SetClock(func() time.Time { return fixedNow })
	log, err := activity.NewLog(store, nil, 1)
	require.NoError(t, err)
	machine := pipeline.NewMachine(store, log, nil)

	h := &harness{
		store:    store,
		outreach: &countingInvoker{},
		sites:    &countingInvoker{},
		suggest:  &countingInvoker{},
	}
	h.engine, err = NewEngine(store, machine, log, []Action{
		{Name: "outreach", From: types.StageNew, EventType: types.ActivityOutreachSent, Invoker: h.outreach},
		{Name: "site_generation", From: types.StageContacted, EventType: types.ActivitySiteGenerated, StaleAfter: 72 * time.Hour, Invoker: h.sites},
		{Name: "campaign_suggestion", From: types.StageSiteGenerated, EventType: types.ActivityCampaignSuggested, Invoker: h.suggest},
	}, cfg, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return h
}

func (h *harness) seed(name string, stage types.Stage, updated time.Time) types.Prospect {
	p := types.Prospect{ID: uuid.New(), Name: name, Stage: stage, Type: types.ProspectDiscovered, UpdatedAt: updated, CreatedAt: updated}
	h.store.PutProspect(p)
	return p
}

func (h *harness) stage(t *testing.T, id uuid.UUID) types.Stage {
	t.Helper()
	p, err := h.store.GetProspect(context.Background(), id)
	require.NoError(t, err)
	return p.Stage
}

func TestRunTick_PausedIsNoop(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	p := h.seed("a", types.StageNew, fixedNow)

	_, err := h.engine.Pause(ctx, types.ActorManual)
	require.NoError(t, err)
	before := len(h.store.Events())

	summary, err := h.engine.RunTick(ctx, types.ActorCron)
	require.NoError(t, err)
	assert.True(t, summary.Paused)
	assert.Zero(t, summary.Total())
	assert.Zero(t, h.outreach.calls.Load())
	assert.Len(t, h.store.Events(), before)
	assert.Equal(t, types.StageNew, h.stage(t, p.ID))
}

func TestRunTick_AdvancesEligibleProspects(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	fresh := h.seed("fresh", types.StageNew, fixedNow)
	staleContacted := h.seed("stale", types.StageContacted, fixedNow.Add(-73*time.Hour))
	recentContacted := h.seed("recent", types.StageContacted, fixedNow.Add(-time.Hour))
	site := h.seed("site", types.StageSiteGenerated, fixedNow)
	done := h.seed("done", types.StageConverted, fixedNow.Add(-1000*time.Hour))

	summary, err := h.engine.RunTick(ctx, types.ActorCron)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Selected)
	assert.Equal(t, types.ActionCount{Succeeded: 1}, summary.Actions["outreach"])
	assert.Equal(t, types.ActionCount{Succeeded: 1}, summary.Actions["site_generation"])
	assert.Equal(t, types.ActionCount{Succeeded: 1}, summary.Actions["campaign_suggestion"])

	assert.Equal(t, types.StageContacted, h.stage(t, fresh.ID))
	assert.Equal(t, types.StageSiteGenerated, h.stage(t, staleContacted.ID))
	assert.Equal(t, types.StageContacted, h.stage(t, recentContacted.ID))
	assert.Equal(t, types.StageCampaignSuggested, h.stage(t, site.ID))
	assert.Equal(t, types.StageConverted, h.stage(t, done.ID))

	for _, ev := range h.store.Events() {
		assert.Equal(t, types.ActorCron, ev.TriggeredBy)
		assert.Equal(t, types.StatusCompleted, ev.Status)
	}
}

// erroringTransitioner fails every stage change with err.
type erroringTransitioner struct{ err error }

func (f erroringTransitioner) Transition(context.Context, pipeline.Request) (*pipeline.Result, error) {
	return nil, f.err
}

// ctxTransitioner fails like a database call would when ctx is already done.
type ctxTransitioner struct{ next Transitioner }

func (c ctxTransitioner) Transition(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Internal("begin transaction", err)
	}
	return c.next.Transition(ctx, req)
}

// lateInvoker succeeds only after the tick budget has run out.
type lateInvoker struct{}

func (lateInvoker) Invoke(ctx context.Context, _ types.Prospect, _ types.Actor) (string, error) {
	<-ctx.Done()
	return "sent", nil
}

func TestRunTick_TransitionFailureRecordsFailedEvent(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	p := h.seed("a", types.StageNew, fixedNow)
	h.engine.machine = erroringTransitioner{err: apperrors.Internal("update prospect", errors.New("connection reset"))}

	summary, err := h.engine.RunTick(ctx, types.ActorCron)
	require.NoError(t, err)
	assert.Equal(t, types.ActionCount{Failed: 1}, summary.Actions["outreach"])
	assert.Equal(t, int32(1), h.outreach.calls.Load())
	assert.Equal(t, types.StageNew, h.stage(t, p.ID))

	events := h.store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, types.StatusFailed, events[0].Status)
	assert.Equal(t, types.ActivityOutreachSent, events[0].Type)
	assert.Contains(t, events[0].Detail, "connection reset")
}

func TestRunTick_TransitionConflictRecordsNothing(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.seed("a", types.StageNew, fixedNow)
	h.engine.machine = erroringTransitioner{err: &apperrors.ConflictError{Message: "prospect is no longer new"}}

	summary, err := h.engine.RunTick(context.Background(), types.ActorCron)
	require.NoError(t, err)
	assert.Equal(t, types.ActionCount{Failed: 1}, summary.Actions["outreach"])
	assert.Empty(t, h.store.Events())
}

func TestRunTick_AdvancesAfterBudgetExpiresMidWorkflow(t *testing.T) {
	h := newHarness(t, Config{Budget: 20 * time.Millisecond})
	p := h.seed("a", types.StageNew, fixedNow)
	h.engine.machine = ctxTransitioner{next: h.engine.machine}
	action := h.engine.actions[types.StageNew]
	action.Invoker = lateInvoker{}
	h.engine.actions[types.StageNew] = action

	summary, err := h.engine.RunTick(context.Background(), types.ActorCron)
	require.NoError(t, err)
	assert.Equal(t, types.ActionCount{Succeeded: 1}, summary.Actions["outreach"])
	assert.Equal(t, types.StageContacted, h.stage(t, p.ID))
}

func TestRunTick_ItemFailureIsIsolated(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	good := h.seed("good", types.StageNew, fixedNow)
	bad := h.seed("bad", types.StageNew, fixedNow.Add(-time.Minute))
	h.outreach.fail = map[uuid.UUID]error{bad.ID: errors.New("smtp 550")}

	summary, err := h.engine.RunTick(ctx, types.ActorAgent)
	require.NoError(t, err)
	assert.Equal(t, types.ActionCount{Succeeded: 1, Failed: 1}, summary.Actions["outreach"])

	assert.Equal(t, types.StageContacted, h.stage(t, good.ID))
	assert.Equal(t, types.StageNew, h.stage(t, bad.ID))

	var failed []types.ActivityEvent
	for _, ev := range h.store.Events() {
		if ev.Status == types.StatusFailed {
			failed = append(failed, ev)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, bad.ID, *failed[0].ProspectID)
	assert.Contains(t, failed[0].Detail, "smtp 550")
}

func TestRunTick_BatchIsBoundedAndDeterministic(t *testing.T) {
	h := newHarness(t, Config{BatchSize: 3, Concurrency: 1})
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		p := h.seed("p", types.StageNew, fixedNow.Add(time.Duration(i)*time.Minute))
		ids = append(ids, p.ID)
	}

	summary, err := h.engine.RunTick(ctx, types.ActorCron)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Selected)
	for i, id := range ids {
		if i < 3 {
			assert.Equal(t, types.StageContacted, h.stage(t, id), "oldest prospects go first")
		} else {
			assert.Equal(t, types.StageNew, h.stage(t, id))
		}
	}
}

func TestRunTick_ConcurrentTickReportsAlreadyRunning(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	p := h.seed("only", types.StageNew, fixedNow)
	h.outreach.block = make(chan struct{})

	first := make(chan error, 1)
	go func() {
		_, err := h.engine.RunTick(ctx, types.ActorCron)
		first <- err
	}()
	require.Eventually(t, func() bool { return h.outreach.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err := h.engine.RunTick(ctx, types.ActorManual)
	var running *apperrors.AlreadyRunningError
	assert.ErrorAs(t, err, &running)

	close(h.outreach.block)
	require.NoError(t, <-first)

	assert.Equal(t, types.StageContacted, h.stage(t, p.ID))
	assert.Equal(t, int32(1), h.outreach.calls.Load())
	transitions := 0
	for _, ev := range h.store.Events() {
		if ev.Type == types.ActivityOutreachSent && ev.Status == types.StatusCompleted {
			transitions++
		}
	}
	assert.Equal(t, 1, transitions)
}

func TestRunTick_TwoEnginesSameStoreTransitionOnce(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	p := h.seed("shared", types.StageNew, fixedNow)

	log, err := activity.NewLog(h.store, nil, 2)
	require.NoError(t, err)
	other, err := NewEngine(h.store, pipeline.NewMachine(h.store, log, nil), log, []Action{
		{Name: "outreach", From: types.StageNew, EventType: types.ActivityOutreachSent, Invoker: h.outreach},
	}, DefaultConfig())
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]types.TickSummary, 2)
	for i, e := range []*Engine{h.engine, other} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := e.RunTick(ctx, types.ActorCron)
			assert.NoError(t, err)
			results[i] = s
		}()
	}
	wg.Wait()

	succeeded := results[0].Actions["outreach"].Succeeded + results[1].Actions["outreach"].Succeeded
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, types.StageContacted, h.stage(t, p.ID))
}

func TestPauseResume_Events(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	st, err := h.engine.Pause(ctx, types.ActorManual)
	require.NoError(t, err)
	assert.Equal(t, types.AgentPaused, st.Status)

	_, err = h.engine.Pause(ctx, types.ActorManual)
	require.NoError(t, err)

	st, err = h.engine.Resume(ctx, types.ActorManual)
	require.NoError(t, err)
	assert.Equal(t, types.AgentRunning, st.Status)

	events := h.store.Events()
	require.Len(t, events, 2)
	assert.Equal(t, types.ActivityAgentPaused, events[0].Type)
	assert.Equal(t, types.ActivityAgentResumed, events[1].Type)
}

func TestRunTick_StateReadFailure(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.engine.store = failingStore{Store: h.engine.store}

	_, err := h.engine.RunTick(context.Background(), types.ActorCron)
	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))
}

type failingStore struct{ Store }

func (failingStore) GetAgentState(context.Context) (types.AgentState, error) {
	return types.AgentState{}, errors.New("connection refused")
}

func TestNewEngine_RejectsBadActions(t *testing.T) {
	store := memory.New()
	log, err := activity.NewLog(store, nil, 1)
	require.NoError(t, err)
	machine := pipeline.NewMachine(store, log, nil)
	inv := &countingInvoker{}

	_, err = NewEngine(store, machine, log, []Action{{Name: "x", From: types.StageConverted, Invoker: inv}}, DefaultConfig())
	assert.Error(t, err)

	_, err = NewEngine(store, machine, log, []Action{
		{Name: "a", From: types.StageNew, Invoker: inv},
		{Name: "b", From: types.StageNew, Invoker: inv},
	}, DefaultConfig())
	assert.Error(t, err)

	_, err = NewEngine(store, machine, log, []Action{{Name: "nil", From: types.StageNew}}, DefaultConfig())
	assert.Error(t, err)
}

func TestSchedule_RunsUntilCancelled(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.seed("a", types.StageNew, fixedNow)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.engine.Schedule(ctx, 5*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return h.outreach.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	for _, ev := range h.store.Events() {
		assert.Equal(t, types.ActorAgent, ev.TriggeredBy)
	}
}
