package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", &ValidationError{Field: "stage", Message: "unknown"}, KindValidation},
		{"unauthorized", &UnauthorizedError{}, KindUnauthorized},
		{"forbidden", &ForbiddenError{Capability: "admin"}, KindForbidden},
		{"payment", &PaymentRequiredError{Reason: "missing header"}, KindPaymentRequired},
		{"not found", &NotFoundError{Entity: "prospect", ID: "p1"}, KindNotFound},
		{"conflict", &ConflictError{Message: "already active"}, KindConflict},
		{"already running", &AlreadyRunningError{}, KindAlreadyRunning},
		{"internal", &InternalError{Op: "read", Cause: errors.New("boom")}, KindInternal},
		{"plain", errors.New("boom"), KindInternal},
		{"wrapped conflict", fmt.Errorf("activate: %w", &ConflictError{Message: "x"}), KindConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestInternal_PreservesTypedErrors(t *testing.T) {
	nf := &NotFoundError{Entity: "campaign", ID: "c1"}
	assert.Same(t, nf, Internal("get campaign", nf))

	cause := errors.New("connection reset")
	err := Internal("get campaign", cause)
	var ie *InternalError
	assert.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "get campaign", ie.Op)

	assert.Same(t, err, Internal("outer", err))
	assert.NoError(t, Internal("noop", nil))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "validation error: stage - unknown", (&ValidationError{Field: "stage", Message: "unknown"}).Error())
	assert.Equal(t, "validation error: bad body", (&ValidationError{Message: "bad body"}).Error())
	assert.Equal(t, "prospect not found: p1", (&NotFoundError{Entity: "prospect", ID: "p1"}).Error())
	assert.Equal(t, "tick already in progress", (&AlreadyRunningError{}).Error())
	assert.Equal(t, "payment required", (&PaymentRequiredError{}).Error())
}

func TestFromValidator(t *testing.T) {
	type req struct {
		Name string `validate:"required"`
	}
	err := FromValidator(validator.New().Struct(req{}))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Name", ve.Field)
	assert.Contains(t, ve.Message, "required")

	assert.Nil(t, FromValidator(nil))
	assert.Equal(t, KindValidation, KindOf(FromValidator(errors.New("bad body"))))
}
