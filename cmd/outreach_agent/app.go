package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jonathan/outreach-agent/internal/activity"
	"github.com/jonathan/outreach-agent/internal/broadcast"
	"github.com/jonathan/outreach-agent/internal/config"
	"github.com/jonathan/outreach-agent/internal/db"
	"github.com/jonathan/outreach-agent/internal/db/memory"
	"github.com/jonathan/outreach-agent/internal/fetch"
	"github.com/jonathan/outreach-agent/internal/llm"
	"github.com/jonathan/outreach-agent/internal/pipeline"
	"github.com/jonathan/outreach-agent/internal/server"
	"github.com/jonathan/outreach-agent/internal/server/payment"
	"github.com/jonathan/outreach-agent/internal/tick"
	"github.com/jonathan/outreach-agent/internal/types"
	"github.com/jonathan/outreach-agent/internal/workflows"
)

// Store backends.
const (
	storePostgres = "postgres"
	storeMemory   = "memory"
)

// store is everything the agent persists. Both backends implement it.
type store interface {
	server.Store
	tick.Store
	pipeline.Store
	activity.Store
	workflows.SiteStore
	workflows.CampaignStore
	CreateOperator(ctx context.Context, op *types.Operator) error
	GetOperatorByEmail(ctx context.Context, email string) (*types.Operator, error)
}

// app is the wired agent shared by serve and tick.
type app struct {
	cfg       config.AgentConfig
	logger    *slog.Logger
	store     store
	hub       *broadcast.Hub
	log       *activity.Log
	machine   *pipeline.Machine
	engine    *tick.Engine
	sites     *workflows.Sites
	activator *workflows.Activator
	orders    *workflows.Orders
	gate      *payment.Gate
	closers   []func()
}

// newLogger returns a JSON logger in production and a text logger otherwise.
func newLogger(cfg config.AgentConfig, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openStore connects the configured backend.
func openStore(ctx context.Context, kind string, cfg config.AgentConfig) (store, func(), error) {
	switch kind {
	case storeMemory:
		return memory.New(), func() {}, nil
	case storePostgres, "":
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL environment variable is required")
		}
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return database, database.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q (want %s or %s)", kind, storePostgres, storeMemory)
	}
}

// loadGate builds the payment gate from the configured price table.
func loadGate(cfg config.AgentConfig, logger *slog.Logger) (*payment.Gate, error) {
	routes := payment.DefaultRoutes()
	if cfg.PaymentRoutesFile != "" {
		loaded, err := payment.LoadRoutes(cfg.PaymentRoutesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load payment routes: %w", err)
		}
		routes = loaded
	}
	table, err := payment.NewTable(routes)
	if err != nil {
		return nil, fmt.Errorf("invalid payment routes: %w", err)
	}
	if cfg.PayToAddress == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("PAY_TO_ADDRESS is required in production")
		}
		logger.Warn("PAY_TO_ADDRESS is not set, paid routes cannot settle")
	}
	return payment.NewGate(table, payment.NewHTTPFacilitator(cfg.FacilitatorURL, nil), cfg.PayToAddress, logger), nil
}

// buildApp wires the agent over the chosen store.
func buildApp(ctx context.Context, cfg config.AgentConfig, storeKind string, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	st, closeStore, err := openStore(ctx, storeKind, cfg)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, closeStore)

	a.hub = broadcast.NewHub(
		broadcast.WithLogger(logger),
		broadcast.WithKeepalive(time.Duration(cfg.KeepaliveInterval)),
		broadcast.WithCatchUpSize(cfg.CatchUpSize),
	)
	a.log, err = activity.NewLog(st, a.hub, cfg.SnowflakeNode, activity.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create activity log: %w", err)
	}
	a.machine = pipeline.NewMachine(st, a.log, logger)

	var client llm.Client
	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiClient(ctx, llm.DefaultConfig(), cfg.GeminiAPIKey)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		client = gemini
		a.closers = append(a.closers, func() { _ = gemini.Close() })
	} else {
		logger.Info("GEMINI_API_KEY not set, using template copy")
	}
	copywriter := llm.NewCopywriter(client)

	fetchOpts := []fetch.Option{}
	if cfg.UseBrowser {
		fetchOpts = append(fetchOpts, fetch.WithRenderer(fetch.BrowserRenderer(30*time.Second)))
	}
	fetcher := fetch.New(fetchOpts...)

	var mailer workflows.Mailer = workflows.LogMailer{Logger: logger}
	if cfg.MailWebhookURL != "" {
		mailer = workflows.NewWebhookMailer(cfg.MailWebhookURL)
	}
	var deployer workflows.Deployer = workflows.NoopDeployer{}
	if cfg.DeployWebhookURL != "" {
		deployer = workflows.NewWebhookDeployer(cfg.DeployWebhookURL)
	}

	a.sites = &workflows.Sites{
		Store: st, Prospects: st, Copy: copywriter, Fetcher: fetcher,
		Log: a.log, BaseURL: cfg.SiteBaseURL, Logger: logger,
	}
	a.activator = &workflows.Activator{Store: st, Deployer: deployer, Machine: a.machine, Log: a.log, Logger: logger}
	a.orders = &workflows.Orders{Store: st, Log: a.log}

	a.engine, err = tick.NewEngine(st, a.machine, a.log, []tick.Action{
		{
			Name:      "outreach",
			From:      types.StageNew,
			EventType: types.ActivityOutreachSent,
			Invoker:   &workflows.Outreach{Copy: copywriter, Mailer: mailer, Fetcher: fetcher, Logger: logger},
		},
		{
			Name:       "site_generation",
			From:       types.StageContacted,
			EventType:  types.ActivitySiteGenerated,
			StaleAfter: time.Duration(cfg.ContactedStaleAfter),
			Invoker:    a.sites,
		},
		{
			Name:      "campaign_suggestion",
			From:      types.StageSiteGenerated,
			EventType: types.ActivityCampaignSuggested,
			Invoker:   &workflows.Suggest{Store: st, Copy: copywriter, Fetcher: fetcher},
		},
	}, tick.Config{
		BatchSize:   cfg.TickBatchSize,
		Concurrency: cfg.TickConcurrency,
		Budget:      time.Duration(cfg.TickBudget),
	}, tick.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create tick engine: %w", err)
	}

	a.gate, err = loadGate(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the store and model client.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
