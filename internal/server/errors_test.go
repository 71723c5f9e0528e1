package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jonathan/outreach-agent/internal/apperrors"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &apperrors.ValidationError{Field: "stage", Message: "unknown"}, http.StatusBadRequest},
		{"unauthorized", &apperrors.UnauthorizedError{Reason: "missing session"}, http.StatusUnauthorized},
		{"forbidden", &apperrors.ForbiddenError{Capability: "admin"}, http.StatusForbidden},
		{"payment required", &apperrors.PaymentRequiredError{}, http.StatusPaymentRequired},
		{"not found", &apperrors.NotFoundError{Entity: "prospect", ID: "x"}, http.StatusNotFound},
		{"conflict", &apperrors.ConflictError{Message: "already active"}, http.StatusConflict},
		{"already running", &apperrors.AlreadyRunningError{}, http.StatusConflict},
		{"wrapped not found", fmt.Errorf("lookup: %w", &apperrors.NotFoundError{Entity: "campaign"}), http.StatusNotFound},
		{"internal", apperrors.Internal("query", errors.New("connection reset")), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatus(tt.err); got != tt.want {
				t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
