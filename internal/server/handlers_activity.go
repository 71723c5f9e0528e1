package server

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/apperrors"
	"github.com/jonathan/outreach-agent/internal/types"
)

// handleListActivity handles GET /activity?limit=&prospectId=&campaignId=&before=
// Events are returned newest first.
func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter := types.ActivityFilter{Limit: limit}
	if filter.ProspectID, err = queryUUID(r, "prospectId"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if filter.CampaignID, err = queryUUID(r, "campaignId"); err != nil {
		s.writeError(w, r, err)
		return
	}
	if raw := r.URL.Query().Get("before"); raw != "" {
		before, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || before <= 0 {
			s.writeError(w, r, &apperrors.ValidationError{Field: "before", Message: "must be an event ID"})
			return
		}
		filter.BeforeID = before
	}

	events, err := s.deps.Log.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, apperrors.Internal("list activity", err))
		return
	}
	if events == nil {
		events = []types.ActivityEvent{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// handleActivityStream handles GET /activity/stream. It replays the newest
// events, then streams live ones until the client goes away.
func (s *Server) handleActivityStream(w http.ResponseWriter, r *http.Request) {
	recent, err := s.deps.Log.Recent(r.Context(), s.deps.Hub.CatchUpSize())
	if err != nil {
		s.writeError(w, r, apperrors.Internal("read recent activity", err))
		return
	}
	stream, err := newSSEStream(w, s.cfg.SSEWriteTimeout)
	if err != nil {
		s.logger.Error("failed to open event stream", "error", err)
		return
	}

	id := uuid.NewString()
	s.logger.Debug("subscriber connected", "conn_id", id)
	if err := s.deps.Hub.Serve(r.Context(), id, stream, recent); err != nil {
		s.logger.Debug("subscriber dropped", "conn_id", id, "error", err)
	}
}
