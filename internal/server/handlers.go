package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jonathan/outreach-agent/internal/apperrors"
)

const (
	maxBodyBytes = 1 << 20
	defaultLimit = 50
	maxLimit     = 200
)

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &apperrors.ValidationError{Field: "body", Message: "request body is required"}
		}
		return &apperrors.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return nil
}

// pathUUID parses a UUID path parameter.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, &apperrors.ValidationError{Field: name, Message: "must be a UUID"}
	}
	return id, nil
}

// queryUUID parses an optional UUID query parameter.
func queryUUID(r *http.Request, name string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, &apperrors.ValidationError{Field: name, Message: "must be a UUID"}
	}
	return &id, nil
}

// queryLimit parses ?limit=, defaulting and capping it.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, &apperrors.ValidationError{Field: "limit", Message: "must be a positive integer"}
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}
