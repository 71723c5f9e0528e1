package server

import (
	"net/http"

	"github.com/jonathan/outreach-agent/internal/apperrors"
)

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindUnauthorized:
		return http.StatusUnauthorized
	case apperrors.KindForbidden:
		return http.StatusForbidden
	case apperrors.KindPaymentRequired:
		return http.StatusPaymentRequired
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict, apperrors.KindAlreadyRunning:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error   apperrors.Kind `json:"error"`
	Message string         `json:"message"`
}

// writeError maps err to its status and kind. Internal causes are logged and
// never sent to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperrors.KindOf(err)
	msg := err.Error()
	if kind == apperrors.KindInternal {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	s.jsonResponse(w, HTTPStatus(err), errorBody{Error: kind, Message: msg})
}
