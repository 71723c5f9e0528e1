// Package server provides the HTTP API for the outreach agent.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/activity"
	"github.com/jonathan/outreach-agent/internal/broadcast"
	"github.com/jonathan/outreach-agent/internal/pipeline"
	"github.com/jonathan/outreach-agent/internal/server/middleware"
	"github.com/jonathan/outreach-agent/internal/server/payment"
	"github.com/jonathan/outreach-agent/internal/server/ratelimit"
	"github.com/jonathan/outreach-agent/internal/tick"
	"github.com/jonathan/outreach-agent/internal/types"
	"github.com/jonathan/outreach-agent/internal/workflows"
)

// Store is the read side the handlers query directly. Writes go through the
// pipeline machine, the workflows and the tick engine.
type Store interface {
	Ping(ctx context.Context) error
	GetProspect(ctx context.Context, id uuid.UUID) (*types.Prospect, error)
	ListProspects(ctx context.Context, filter types.ProspectFilter) ([]types.Prospect, error)
	ListSites(ctx context.Context, prospectID uuid.UUID) ([]types.GeneratedSite, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (*types.Campaign, error)
	ListCampaigns(ctx context.Context, filter types.CampaignFilter) ([]types.Campaign, error)
	GetOperator(ctx context.Context, id uuid.UUID) (*types.Operator, error)
}

// Deps are the collaborators the server routes to.
type Deps struct {
	Store     Store
	Machine   *pipeline.Machine
	Engine    *tick.Engine
	Hub       *broadcast.Hub
	Log       *activity.Log
	Activator *workflows.Activator
	Sites     *workflows.Sites
	Orders    *workflows.Orders
	Gate      *payment.Gate
	// Tokens validates session tokens. Nil rejects every session unless
	// AuthBypass is set.
	Tokens  middleware.TokenValidator
	Limiter *ratelimit.Limiter
	Logger  *slog.Logger
}

// Config holds server configuration
type Config struct {
	Port       int
	AuthBypass bool
	CronSecret string
	CookieName string
	// SSEWriteTimeout bounds each write to a stream subscriber.
	SSEWriteTimeout time.Duration
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	deps       Deps
	cfg        Config
	logger     *slog.Logger
	session    *middleware.Session
}

// New wires every route. It fails when a paid route has no price table entry.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewLimiter(ratelimit.LoadConfig())
	}
	if cfg.SSEWriteTimeout <= 0 {
		cfg.SSEWriteTimeout = 10 * time.Second
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "session"
	}

	s := &Server{deps: deps, cfg: cfg, logger: deps.Logger}
	s.session = middleware.NewSession(deps.Tokens, deps.Store, cfg.CookieName, cfg.AuthBypass, s.writeError)

	read := s.session.Require(types.CapabilityRead)
	admin := s.session.Require(types.CapabilityAdmin)
	cron := middleware.CronSecret(cfg.CronSecret, s.writeError)

	paid := func(pattern string, h http.HandlerFunc) (http.Handler, error) {
		mw, err := deps.Gate.Require(pattern)
		if err != nil {
			return nil, err
		}
		return admin(mw(h)), nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /payments/routes", s.handlePaymentRoutes)

	// Prospects
	mux.Handle("GET /prospects", read(http.HandlerFunc(s.handleListProspects)))
	mux.Handle("POST /prospects", admin(http.HandlerFunc(s.handleCreateProspect)))
	mux.Handle("GET /prospects/{id}", read(http.HandlerFunc(s.handleGetProspect)))
	mux.Handle("POST /prospects/{id}/transition", admin(http.HandlerFunc(s.handleTransitionProspect)))
	mux.Handle("GET /prospects/{id}/sites", read(http.HandlerFunc(s.handleListSites)))

	// Campaigns
	mux.Handle("GET /campaigns", read(http.HandlerFunc(s.handleListCampaigns)))
	mux.Handle("GET /campaigns/{id}", read(http.HandlerFunc(s.handleGetCampaign)))

	// Paid routes
	for _, r := range []struct {
		pattern string
		h       http.HandlerFunc
	}{
		{payment.PatternActivateCampaign, s.handleActivateCampaign},
		{payment.PatternPlaceOrder, s.handlePlaceOrder},
		{payment.PatternRegenerateSite, s.handleRegenerateSite},
	} {
		h, err := paid(r.pattern, r.h)
		if err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", r.pattern, err)
		}
		mux.Handle(r.pattern, h)
	}

	// Activity
	mux.Handle("GET /activity", read(http.HandlerFunc(s.handleListActivity)))
	mux.Handle("GET /activity/stream", admin(http.HandlerFunc(s.handleActivityStream)))

	// Agent
	mux.Handle("GET /agent", read(http.HandlerFunc(s.handleAgentState)))
	mux.Handle("POST /agent/pause", admin(http.HandlerFunc(s.handlePauseAgent)))
	mux.Handle("POST /agent/resume", admin(http.HandlerFunc(s.handleResumeAgent)))
	mux.Handle("POST /agent/tick", admin(http.HandlerFunc(s.handleManualTick)))
	mux.Handle("POST /cron/tick", cron(http.HandlerFunc(s.handleCronTick)))

	s.handler = s.withRateLimit(s.withLogging(s.withCORS(mux)))
	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     s.handler,
		ReadTimeout: 30 * time.Second,
		// Ticks run for up to the tick budget. SSE streams manage their own
		// per-write deadlines.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.deps.Limiter.Stop()
	s.logger.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-PAYMENT")
		w.Header().Set("Access-Control-Expose-Headers", "X-PAYMENT-RESPONSE")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects clients that exhausted the bucket for the route.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.deps.Limiter.Allow(s.extractClientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
		)
	})
}

// handleHealth reports liveness and store reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePaymentRoutes publishes the price table.
func (s *Server) handlePaymentRoutes(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"x402Version": payment.X402Version,
		"routes":      s.deps.Gate.Table().Routes(),
	})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

// extractClientID uses the remote IP. X-Forwarded-For is not trusted.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	s.logger.Warn("rate limit exceeded", "limit", info.Limit, "reset", info.ResetTime.Format(time.RFC3339))
	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
