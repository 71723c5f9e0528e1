package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/activity"
	"github.com/jonathan/outreach-agent/internal/apperrors"
	"github.com/jonathan/outreach-agent/internal/db/memory"
	"github.com/jonathan/outreach-agent/internal/fetch"
	"github.com/jonathan/outreach-agent/internal/llm"
	"github.com/jonathan/outreach-agent/internal/pipeline"
	"github.com/jonathan/outreach-agent/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []types.ActivityEvent
}

func (c *capturePublisher) Broadcast(ev types.ActivityEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *capturePublisher) Events() []types.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.ActivityEvent(nil), c.events...)
}

type fakeMailer struct {
	sent []Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type fakeDeployer struct {
	calls   int
	address string
	err     error
}

func (d *fakeDeployer) Deploy(context.Context, types.Campaign) (string, error) {
	d.calls++
	return d.address, d.err
}

type fakeFetcher struct {
	page *fetch.Page
	err  error
}

func (f fakeFetcher) Page(context.Context, string) (*fetch.Page, error) {
	return f.page, f.err
}

type failingClient struct{}

func (failingClient) Generate(context.Context, llm.Prompt) (string, error) {
	return "", errors.New("model unavailable")
}

func (failingClient) Close() error { return nil }

type harness struct {
	store   *memory.Store
	pub     *capturePublisher
	log     *activity.Log
	machine *pipeline.Machine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.New()
	pub := &capturePublisher{}
	log, err := activity.NewLog(store, pub, 1)
	require.NoError(t, err)
	return &harness{store: store, pub: pub, log: log, machine: pipeline.NewMachine(store, log, nil)}
}

func (h *harness) prospect(stage types.Stage) types.Prospect {
	vendor := "vendor-" + uuid.NewString()
	p := types.Prospect{
		ID:           uuid.New(),
		VendorID:     &vendor,
		Name:         "Harbor Books",
		Stage:        stage,
		Type:         types.ProspectVendor,
		ContactEmail: "owner@harborbooks.example",
		Website:      "https://harborbooks.example",
	}
	h.store.PutProspect(p)
	return p
}

func (h *harness) campaign(t *testing.T, prospectID *uuid.UUID, status types.CampaignStatus) *types.Campaign {
	t.Helper()
	c := &types.Campaign{ProspectID: prospectID, Name: "Regulars", Status: status}
	require.NoError(t, h.store.CreateCampaign(context.Background(), c))
	return c
}

func TestOutreach_SendsEmail(t *testing.T) {
	h := newHarness(t)
	p := h.prospect(types.StageNew)
	mailer := &fakeMailer{}
	o := &Outreach{
		Copy:    llm.NewCopywriter(nil),
		Mailer:  mailer,
		Fetcher: fakeFetcher{page: &fetch.Page{Title: "Harbor Books | Used books"}},
	}

	detail, err := o.Invoke(context.Background(), p, types.ActorAgent)
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, p.ContactEmail, mailer.sent[0].To)
	assert.Contains(t, mailer.sent[0].Subject, "Harbor Books")
	assert.Contains(t, detail, p.ContactEmail)
}

func TestOutreach_Failures(t *testing.T) {
	h := newHarness(t)
	o := &Outreach{Copy: llm.NewCopywriter(nil), Mailer: &fakeMailer{}}

	p := h.prospect(types.StageNew)
	p.ContactEmail = ""
	_, err := o.Invoke(context.Background(), p, types.ActorAgent)
	assert.ErrorContains(t, err, "no contact email")

	o.Mailer = &fakeMailer{err: errors.New("smtp down")}
	_, err = o.Invoke(context.Background(), h.prospect(types.StageNew), types.ActorAgent)
	assert.ErrorContains(t, err, "smtp down")
}

func TestSites_InvokeCreatesReadySite(t *testing.T) {
	h := newHarness(t)
	p := h.prospect(types.StageContacted)
	s := &Sites{
		Store:     h.store,
		Prospects: h.store,
		Copy:      llm.NewCopywriter(nil),
		Fetcher:   fakeFetcher{err: errors.New("timeout")},
		Log:       h.log,
		BaseURL:   "https://sites.example/",
	}

	detail, err := s.Invoke(context.Background(), p, types.ActorAgent)
	require.NoError(t, err)

	sites, err := h.store.ListSites(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, types.SiteReady, sites[0].Status)
	assert.Equal(t, "https://sites.example/"+sites[0].ID.String(), sites[0].URL)
	assert.Contains(t, detail, sites[0].URL)
}

func TestSites_CopyFailureMarksSiteFailed(t *testing.T) {
	h := newHarness(t)
	p := h.prospect(types.StageContacted)
	s := &Sites{Store: h.store, Prospects: h.store, Copy: llm.NewCopywriter(failingClient{}), Log: h.log}

	_, err := s.Invoke(context.Background(), p, types.ActorAgent)
	require.Error(t, err)

	sites, err := h.store.ListSites(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, types.SiteFailed, sites[0].Status)
	assert.Contains(t, sites[0].Error, "model unavailable")
}

func TestSites_RegenerateAddsSiteAndKeepsStage(t *testing.T) {
	h := newHarness(t)
	p := h.prospect(types.StageSiteGenerated)
	s := &Sites{Store: h.store, Prospects: h.store, Copy: llm.NewCopywriter(nil), Log: h.log}
	ctx := context.Background()

	first, err := s.Regenerate(ctx, p.ID, types.ActorManual)
	require.NoError(t, err)
	second, err := s.Regenerate(ctx, p.ID, types.ActorManual)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	sites, err := h.store.ListSites(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, sites, 2)
	for _, site := range sites {
		assert.Equal(t, types.SiteReady, site.Status)
	}

	got, err := h.store.GetProspect(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StageSiteGenerated, got.Stage)

	events := h.store.Events()
	require.Len(t, events, 2)
	assert.Equal(t, types.ActivitySiteGenerated, events[0].Type)
	assert.Equal(t, types.ActorManual, events[0].TriggeredBy)
	assert.Len(t, h.pub.Events(), 2)
}

func TestSites_RegenerateErrors(t *testing.T) {
	h := newHarness(t)
	s := &Sites{Store: h.store, Prospects: h.store, Copy: llm.NewCopywriter(nil), Log: h.log}
	ctx := context.Background()

	_, err := s.Regenerate(ctx, uuid.New(), types.ActorManual)
	assert.True(t, apperrors.IsNotFound(err))

	dismissed := h.prospect(types.StageDismissed)
	_, err = s.Regenerate(ctx, dismissed.ID, types.ActorManual)
	assert.True(t, apperrors.IsConflict(err))

	s.Copy = llm.NewCopywriter(failingClient{})
	p := h.prospect(types.StageSiteGenerated)
	_, err = s.Regenerate(ctx, p.ID, types.ActorManual)
	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))
	events := h.store.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, types.StatusFailed, events[len(events)-1].Status)
}

func TestSuggest_CreatesSuggestedCampaign(t *testing.T) {
	h := newHarness(t)
	p := h.prospect(types.StageSiteGenerated)
	s := &Suggest{Store: h.store, Copy: llm.NewCopywriter(nil)}

	detail, err := s.Invoke(context.Background(), p, types.ActorAgent)
	require.NoError(t, err)

	campaigns, err := h.store.ListCampaigns(context.Background(), types.CampaignFilter{ProspectID: &p.ID})
	require.NoError(t, err)
	require.Len(t, campaigns, 1)
	assert.Equal(t, types.CampaignSuggested, campaigns[0].Status)
	assert.Equal(t, p.VendorID, campaigns[0].VendorID)
	assert.Contains(t, detail, campaigns[0].ID.String())
}

func TestActivate_SuggestedCampaign(t *testing.T) {
	h := newHarness(t)
	p := h.prospect(types.StageCampaignSuggested)
	c := h.campaign(t, &p.ID, types.CampaignSuggested)
	deployer := &fakeDeployer{address: "0xabc"}
	a := &Activator{Store: h.store, Deployer: deployer, Machine: h.machine, Log: h.log}
	ctx := context.Background()

	active, err := a.Activate(ctx, c.ID, types.ActorManual)
	require.NoError(t, err)
	assert.Equal(t, 1, deployer.calls)
	assert.Equal(t, types.CampaignActive, active.Status)
	require.NotNil(t, active.ContractAddress)
	assert.Equal(t, "0xabc", *active.ContractAddress)
	assert.NotNil(t, active.ActivatedAt)

	got, err := h.store.GetProspect(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StageCampaignActive, got.Stage)

	events := h.store.Events()
	require.Len(t, events, 2)
	assert.Equal(t, types.ActivityCampaignActivated, events[0].Type)
	assert.Equal(t, c.ID, *events[0].CampaignID)
	assert.Equal(t, types.ActivityManualAction, events[1].Type)
	assert.Len(t, h.pub.Events(), 2)
}

func TestActivate_ActiveCampaignConflictsWithoutDeploying(t *testing.T) {
	for _, status := range []types.CampaignStatus{
		types.CampaignActive, types.CampaignActivating, types.CampaignCompleted, types.CampaignCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			h := newHarness(t)
			c := h.campaign(t, nil, status)
			deployer := &fakeDeployer{address: "0xabc"}
			a := &Activator{Store: h.store, Deployer: deployer, Machine: h.machine, Log: h.log}

			_, err := a.Activate(context.Background(), c.ID, types.ActorManual)
			assert.True(t, apperrors.IsConflict(err), "got %v", err)
			assert.Zero(t, deployer.calls)

			got, err := h.store.GetCampaign(context.Background(), c.ID)
			require.NoError(t, err)
			assert.Equal(t, status, got.Status)
			assert.Empty(t, h.store.Events())
		})
	}
}

func TestActivate_UnknownCampaign(t *testing.T) {
	h := newHarness(t)
	deployer := &fakeDeployer{}
	a := &Activator{Store: h.store, Deployer: deployer, Machine: h.machine, Log: h.log}

	_, err := a.Activate(context.Background(), uuid.New(), types.ActorManual)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Zero(t, deployer.calls)
}

func TestActivate_DeployFailureReleasesClaim(t *testing.T) {
	h := newHarness(t)
	c := h.campaign(t, nil, types.CampaignDraft)
	a := &Activator{Store: h.store, Deployer: &fakeDeployer{err: errors.New("rpc timeout")}, Machine: h.machine, Log: h.log}

	_, err := a.Activate(context.Background(), c.ID, types.ActorManual)
	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))

	got, err := h.store.GetCampaign(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CampaignDraft, got.Status)
	assert.Nil(t, got.ContractAddress)

	events := h.store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, types.StatusFailed, events[0].Status)
	assert.Contains(t, events[0].Detail, "rpc timeout")
}

func TestActivate_ProspectElsewhereIsLeftAlone(t *testing.T) {
	h := newHarness(t)
	p := h.prospect(types.StageConverted)
	c := h.campaign(t, &p.ID, types.CampaignDraft)
	a := &Activator{Store: h.store, Deployer: NoopDeployer{}, Machine: h.machine, Log: h.log}

	active, err := a.Activate(context.Background(), c.ID, types.ActorAgent)
	require.NoError(t, err)
	assert.Equal(t, types.CampaignActive, active.Status)
	assert.Nil(t, active.ContractAddress)

	got, err := h.store.GetProspect(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StageConverted, got.Stage)
	assert.Len(t, h.store.Events(), 1)
}

func TestOrders_Place(t *testing.T) {
	h := newHarness(t)
	active := h.campaign(t, nil, types.CampaignActive)
	draft := h.campaign(t, nil, types.CampaignDraft)
	o := &Orders{Store: h.store, Log: h.log}
	ctx := context.Background()

	order, err := o.Place(ctx, types.CreateOrderRequest{CampaignID: active.ID, SKU: "coffee", Quantity: 2},
		Payment{Payer: "0xpayer"}, types.ActorManual)
	require.NoError(t, err)
	assert.Equal(t, types.OrderPlaced, order.Status)
	require.Len(t, h.store.Orders(), 1)
	require.Len(t, h.pub.Events(), 1)
	assert.Equal(t, types.ActivityOrderPlaced, h.pub.Events()[0].Type)

	_, err = o.Place(ctx, types.CreateOrderRequest{CampaignID: draft.ID, SKU: "coffee", Quantity: 1}, Payment{}, types.ActorManual)
	assert.True(t, apperrors.IsConflict(err))

	_, err = o.Place(ctx, types.CreateOrderRequest{CampaignID: active.ID, SKU: "coffee"}, Payment{}, types.ActorManual)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = o.Place(ctx, types.CreateOrderRequest{CampaignID: uuid.New(), SKU: "coffee", Quantity: 1}, Payment{}, types.ActorManual)
	assert.True(t, apperrors.IsNotFound(err))

	assert.Len(t, h.store.Orders(), 1)
	assert.Len(t, h.store.Events(), 1)
}

func TestWebhookDeployer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req deployRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Regulars", req.Name)
		_ = json.NewEncoder(w).Encode(deployResponse{ContractAddress: "0xfeed"})
	}))
	defer server.Close()

	addr, err := NewWebhookDeployer(server.URL).Deploy(context.Background(), types.Campaign{ID: uuid.New(), Name: "Regulars"})
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", addr)
}

func TestWebhookMailer_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := NewWebhookMailer(server.URL).Send(context.Background(), Message{To: "a@b.example"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
