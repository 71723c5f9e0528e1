package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonathan/outreach-agent/internal/config"
	"github.com/jonathan/outreach-agent/internal/server"
	"github.com/jonathan/outreach-agent/internal/server/middleware"
	"github.com/jonathan/outreach-agent/internal/server/ratelimit"
	"github.com/spf13/cobra"
)

var (
	servePort       int
	serveConfigPath string
	serveStore      string
	serveVerbose    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and the agent scheduler",
	Long: `Start an HTTP server exposing the pipeline, campaign, activity and agent endpoints.
When TICK_INTERVAL is set the agent also ticks in-process on that interval.

Configuration is read from --config (optional) and the environment.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (defaults to PORT or 8080)")
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to config.json file")
	serveCmd.Flags().StringVar(&serveStore, "store", storePostgres, "Storage backend: postgres or memory")
	serveCmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	logger := newLogger(cfg, serveVerbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, serveStore, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	cookie := config.DefaultSessionCookie
	var tokens middleware.TokenValidator
	sessionCfg, err := config.NewSessionConfig()
	switch {
	case err == nil:
		tokens = server.NewJWTService(sessionCfg).AsTokenValidator()
		cookie = sessionCfg.CookieName
	case cfg.AuthBypass:
		logger.Warn("session validation disabled", "reason", err)
	default:
		return fmt.Errorf("failed to load session config: %w", err)
	}
	if cfg.AuthBypass {
		logger.Warn("AUTH_BYPASS is enabled, every request is treated as admin")
	}
	if cfg.CronSecret == "" {
		logger.Warn("CRON_SECRET is not set, /cron/tick rejects every request")
	}

	srv, err := server.New(server.Config{
		Port:       cfg.Port,
		AuthBypass: cfg.AuthBypass,
		CronSecret: cfg.CronSecret,
		CookieName: cookie,
	}, server.Deps{
		Store:     a.store,
		Machine:   a.machine,
		Engine:    a.engine,
		Hub:       a.hub,
		Log:       a.log,
		Activator: a.activator,
		Sites:     a.sites,
		Orders:    a.orders,
		Gate:      a.gate,
		Tokens:    tokens,
		Limiter:   ratelimit.NewLimiter(ratelimit.LoadConfig()),
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if interval := time.Duration(cfg.TickInterval); interval > 0 {
		logger.Info("agent scheduler enabled", "interval", interval)
		go a.engine.Schedule(ctx, interval)
	}

	return srv.Start(ctx)
}
