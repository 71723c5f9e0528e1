package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// X402Version is the protocol version spoken by the gate.
const X402Version = 1

// Requirements describes an acceptable payment for a route.
type Requirements struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	MaxAmountRequired string `json:"maxAmountRequired"`
	Resource          string `json:"resource"`
	Description       string `json:"description"`
	MimeType          string `json:"mimeType"`
	PayTo             string `json:"payTo"`
	MaxTimeoutSeconds int    `json:"maxTimeoutSeconds"`
	Asset             string `json:"asset"`
}

// Payload is the decoded X-PAYMENT header.
type Payload struct {
	X402Version int             `json:"x402Version"`
	Scheme      string          `json:"scheme"`
	Network     string          `json:"network"`
	Payload     json.RawMessage `json:"payload"`
}

// VerifyResponse is the facilitator's verification verdict.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// Settlement is the facilitator's settlement result. It is returned to the
// client in X-PAYMENT-RESPONSE.
type Settlement struct {
	Success     bool   `json:"success"`
	ErrorReason string `json:"errorReason,omitempty"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer,omitempty"`
}

// Facilitator verifies and settles payments.
type Facilitator interface {
	Verify(ctx context.Context, p Payload, req Requirements) (*VerifyResponse, error)
	Settle(ctx context.Context, p Payload, req Requirements) (*Settlement, error)
}

// HTTPFacilitator talks to a facilitator service over HTTP.
type HTTPFacilitator struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFacilitator returns a client for the facilitator at baseURL.
func NewHTTPFacilitator(baseURL string, client *http.Client) *HTTPFacilitator {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPFacilitator{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type facilitatorRequest struct {
	X402Version         int          `json:"x402Version"`
	PaymentPayload      Payload      `json:"paymentPayload"`
	PaymentRequirements Requirements `json:"paymentRequirements"`
}

// Verify calls POST /verify.
func (f *HTTPFacilitator) Verify(ctx context.Context, p Payload, req Requirements) (*VerifyResponse, error) {
	var out VerifyResponse
	if err := f.post(ctx, "/verify", p, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Settle calls POST /settle.
func (f *HTTPFacilitator) Settle(ctx context.Context, p Payload, req Requirements) (*Settlement, error) {
	var out Settlement
	if err := f.post(ctx, "/settle", p, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (f *HTTPFacilitator) post(ctx context.Context, path string, p Payload, req Requirements, out any) error {
	body, err := json.Marshal(facilitatorRequest{X402Version: X402Version, PaymentPayload: p, PaymentRequirements: req})
	if err != nil {
		return fmt.Errorf("failed to encode facilitator request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create facilitator request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("facilitator %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("facilitator %s returned status %d: %s", path, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode facilitator %s response: %w", path, err)
	}
	return nil
}
