package server

import (
	"net/http"

	"github.com/jonathan/outreach-agent/internal/apperrors"
	"github.com/jonathan/outreach-agent/internal/server/payment"
	"github.com/jonathan/outreach-agent/internal/types"
	"github.com/jonathan/outreach-agent/internal/workflows"
)

var campaignStatuses = map[types.CampaignStatus]bool{
	types.CampaignDraft:      true,
	types.CampaignSuggested:  true,
	types.CampaignActivating: true,
	types.CampaignActive:     true,
	types.CampaignCompleted:  true,
	types.CampaignCancelled:  true,
}

// handleListCampaigns handles GET /campaigns?status=&prospectId=&limit=
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	prospectID, err := queryUUID(r, "prospectId")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter := types.CampaignFilter{ProspectID: prospectID, Limit: limit}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := types.CampaignStatus(raw)
		if !campaignStatuses[status] {
			s.writeError(w, r, &apperrors.ValidationError{Field: "status", Message: "unknown campaign status " + raw})
			return
		}
		filter.Status = status
	}

	campaigns, err := s.deps.Store.ListCampaigns(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, apperrors.Internal("list campaigns", err))
		return
	}
	if campaigns == nil {
		campaigns = []types.Campaign{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"campaigns": campaigns, "count": len(campaigns)})
}

// handleGetCampaign handles GET /campaigns/{id}
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.deps.Store.GetCampaign(r.Context(), id)
	if err != nil {
		s.writeError(w, r, apperrors.Internal("get campaign", err))
		return
	}
	s.jsonResponse(w, http.StatusOK, c)
}

// handleActivateCampaign handles the paid POST /campaigns/{id}/activate
func (s *Server) handleActivateCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.deps.Activator.Activate(r.Context(), id, types.ActorManual)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, c)
}

// handlePlaceOrder handles the paid POST /orders
func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req types.CreateOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	var pay workflows.Payment
	if adm, ok := payment.AdmissionFrom(r.Context()); ok {
		pay = workflows.Payment{Payer: adm.Payer}
	}
	order, err := s.deps.Orders.Place(r.Context(), req, pay, types.ActorManual)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, order)
}
