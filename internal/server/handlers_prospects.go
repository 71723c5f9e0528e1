package server

import (
	"net/http"

	"github.com/jonathan/outreach-agent/internal/apperrors"
	"github.com/jonathan/outreach-agent/internal/pipeline"
	"github.com/jonathan/outreach-agent/internal/types"
)

// handleListProspects handles GET /prospects?stage=&limit=
func (s *Server) handleListProspects(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter := types.ProspectFilter{Limit: limit}
	if raw := r.URL.Query().Get("stage"); raw != "" {
		stage, err := types.ParseStage(raw)
		if err != nil {
			s.writeError(w, r, &apperrors.ValidationError{Field: "stage", Message: err.Error()})
			return
		}
		filter.Stage = stage
	}

	prospects, err := s.deps.Store.ListProspects(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, apperrors.Internal("list prospects", err))
		return
	}
	if prospects == nil {
		prospects = []types.Prospect{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"prospects": prospects, "count": len(prospects)})
}

// handleCreateProspect handles POST /prospects. An existing vendor returns 200.
func (s *Server) handleCreateProspect(w http.ResponseWriter, r *http.Request) {
	var rec types.VendorRecord
	if err := decodeJSON(w, r, &rec); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, created, err := s.deps.Machine.GetOrCreate(r.Context(), rec, types.ActorManual)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.jsonResponse(w, status, p)
}

// handleGetProspect handles GET /prospects/{id}
func (s *Server) handleGetProspect(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.deps.Machine.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, p)
}

// handleTransitionProspect handles POST /prospects/{id}/transition
func (s *Server) handleTransitionProspect(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req types.TransitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, apperrors.FromValidator(err))
		return
	}

	res, err := s.deps.Machine.Transition(r.Context(), pipeline.Request{
		ProspectID: id,
		Target:     req.Stage,
		Actor:      types.ActorManual,
		Detail:     req.Note,
		Override:   req.Override,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"prospect": res.Prospect,
		"event":    res.Event,
		"from":     res.From,
	})
}

// handleListSites handles GET /prospects/{id}/sites
func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.deps.Machine.Get(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	sites, err := s.deps.Store.ListSites(r.Context(), id)
	if err != nil {
		s.writeError(w, r, apperrors.Internal("list sites", err))
		return
	}
	if sites == nil {
		sites = []types.GeneratedSite{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"sites": sites, "count": len(sites)})
}

// handleRegenerateSite handles the paid POST /prospects/{id}/site
func (s *Server) handleRegenerateSite(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	site, err := s.deps.Sites.Regenerate(r.Context(), id, types.ActorManual)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, site)
}
