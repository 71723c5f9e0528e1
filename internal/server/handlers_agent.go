package server

import (
	"net/http"

	"github.com/jonathan/outreach-agent/internal/types"
)

// handleAgentState handles GET /agent
func (s *Server) handleAgentState(w http.ResponseWriter, r *http.Request) {
	state, err := s.deps.Engine.State(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, state)
}

// handlePauseAgent handles POST /agent/pause
func (s *Server) handlePauseAgent(w http.ResponseWriter, r *http.Request) {
	state, err := s.deps.Engine.Pause(r.Context(), types.ActorManual)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, state)
}

// handleResumeAgent handles POST /agent/resume
func (s *Server) handleResumeAgent(w http.ResponseWriter, r *http.Request) {
	state, err := s.deps.Engine.Resume(r.Context(), types.ActorManual)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, state)
}

// handleManualTick handles POST /agent/tick
func (s *Server) handleManualTick(w http.ResponseWriter, r *http.Request) {
	s.runTick(w, r, types.ActorManual)
}

// handleCronTick handles POST /cron/tick
func (s *Server) handleCronTick(w http.ResponseWriter, r *http.Request) {
	s.runTick(w, r, types.ActorCron)
}

func (s *Server) runTick(w http.ResponseWriter, r *http.Request, actor types.Actor) {
	summary, err := s.deps.Engine.RunTick(r.Context(), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, summary)
}
