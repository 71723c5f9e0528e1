// Package middleware provides HTTP middleware for operator sessions and the cron secret.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/apperrors"
	"github.com/jonathan/outreach-agent/internal/types"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// principalKey is the context key for the authenticated principal.
const principalKey ContextKey = "principal"

// TokenValidator validates a session token.
type TokenValidator interface {
	ValidateToken(tokenString string) (OperatorIDGetter, error)
}

// OperatorIDGetter extracts the operator ID from token claims.
type OperatorIDGetter interface {
	GetOperatorID() uuid.UUID
}

// OperatorLookup loads operators named by tokens.
type OperatorLookup interface {
	GetOperator(ctx context.Context, id uuid.UUID) (*types.Operator, error)
}

// ErrorWriter renders an error response.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Principal is the authenticated caller of a request.
type Principal struct {
	Operator *types.Operator
	// Bypass is set for the synthetic development admin.
	Bypass bool
}

// Has reports whether the principal holds capability c.
func (p *Principal) Has(c types.Capability) bool {
	return p != nil && p.Operator.Has(c)
}

// WithPrincipal returns ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the principal stored by Session.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok && p != nil
}

// Session authenticates operators from a session cookie or bearer token.
type Session struct {
	tokens     TokenValidator
	operators  OperatorLookup
	cookieName string
	bypass     bool
	writeError ErrorWriter
}

// NewSession creates session middleware. With bypass every request is a
// synthetic admin; callers must only enable it outside production.
func NewSession(tokens TokenValidator, operators OperatorLookup, cookieName string, bypass bool, writeError ErrorWriter) *Session {
	if writeError == nil {
		writeError = plainError
	}
	return &Session{
		tokens:     tokens,
		operators:  operators,
		cookieName: cookieName,
		bypass:     bypass,
		writeError: writeError,
	}
}

// Require allows the request only when the caller holds capability c.
func (s *Session) Require(c types.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := s.authenticate(r)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			if !p.Has(c) {
				s.writeError(w, r, &apperrors.ForbiddenError{Capability: string(c)})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func (s *Session) authenticate(r *http.Request) (*Principal, error) {
	if s.bypass {
		return &Principal{
			Operator: &types.Operator{Email: "dev@localhost", Name: "Development", Role: types.CapabilityAdmin},
			Bypass:   true,
		}, nil
	}
	if s.tokens == nil {
		return nil, &apperrors.UnauthorizedError{Reason: "sessions are not configured"}
	}

	token := bearerToken(r)
	if token == "" && s.cookieName != "" {
		if c, err := r.Cookie(s.cookieName); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return nil, &apperrors.UnauthorizedError{Reason: "missing session"}
	}

	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, &apperrors.UnauthorizedError{Reason: "invalid session"}
	}
	op, err := s.operators.GetOperator(r.Context(), claims.GetOperatorID())
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, &apperrors.UnauthorizedError{Reason: "unknown operator"}
		}
		return nil, apperrors.Internal("load operator", err)
	}
	return &Principal{Operator: op}, nil
}

// bearerToken returns the token from an "Authorization: Bearer" header.
// The scheme is matched case-insensitively.
func bearerToken(r *http.Request) string {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

func plainError(w http.ResponseWriter, _ *http.Request, err error) {
	status := http.StatusInternalServerError
	switch apperrors.KindOf(err) {
	case apperrors.KindUnauthorized:
		status = http.StatusUnauthorized
	case apperrors.KindForbidden:
		status = http.StatusForbidden
	}
	http.Error(w, http.StatusText(status), status)
}
