package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jonathan/outreach-agent/internal/apperrors"
)

// Header names used by the x402 exchange.
const (
	HeaderPayment         = "X-PAYMENT"
	HeaderPaymentResponse = "X-PAYMENT-RESPONSE"
)

type admissionKey struct{}

// Admission is a verified payment that has not been settled yet.
type Admission struct {
	Route        Route
	Payer        string
	payload      Payload
	requirements Requirements
}

// AdmissionFrom returns the verified payment that admitted the request.
func AdmissionFrom(ctx context.Context) (*Admission, bool) {
	a, ok := ctx.Value(admissionKey{}).(*Admission)
	return a, ok && a != nil
}

// Gate admits requests to priced routes once their payment verifies, and
// settles it only when the handler succeeds.
type Gate struct {
	table  *Table
	fac    Facilitator
	payTo  string
	logger *slog.Logger
}

// NewGate returns a Gate. A nil logger discards output.
func NewGate(table *Table, fac Facilitator, payTo string, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Gate{table: table, fac: fac, payTo: payTo, logger: logger}
}

// Table returns the gate's price table.
func (g *Gate) Table() *Table {
	return g.table
}

// Require returns middleware bound to the table entry for pattern. A pattern
// with no entry is a configuration error.
func (g *Gate) Require(pattern string) (func(http.Handler) http.Handler, error) {
	route, ok := g.table.Lookup(pattern)
	if !ok {
		return nil, fmt.Errorf("no payment route configured for %q", pattern)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			adm, err := g.Authorize(r, route)
			if err != nil {
				g.logger.Info("payment required", "pattern", route.Pattern, "reason", err)
				g.writePaymentRequired(w, r, route, err)
				return
			}

			buf := &bufferedResponse{header: make(http.Header)}
			next.ServeHTTP(buf, r.WithContext(context.WithValue(r.Context(), admissionKey{}, adm)))
			if buf.status >= http.StatusBadRequest {
				// Rejected requests are not charged.
				buf.flushTo(w)
				return
			}

			settlement, err := g.Settle(context.WithoutCancel(r.Context()), adm)
			if err != nil {
				g.logger.Error("payment not settled after handler succeeded",
					"pattern", route.Pattern, "payer", adm.Payer, "reason", err)
				g.writePaymentRequired(w, r, route, err)
				return
			}
			g.logger.Info("payment settled",
				"pattern", route.Pattern, "payer", settlement.Payer, "transaction", settlement.Transaction)
			if encoded, err := encodeHeader(settlement); err == nil {
				buf.header.Set(HeaderPaymentResponse, encoded)
			}
			buf.flushTo(w)
		})
	}, nil
}

// bufferedResponse holds a handler's response until the payment outcome is known.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) flushTo(w http.ResponseWriter) {
	for k, v := range b.header {
		w.Header()[k] = v
	}
	if b.status == 0 {
		b.status = http.StatusOK
	}
	w.WriteHeader(b.status)
	_, _ = w.Write(b.body.Bytes())
}

// Requirements builds the payment requirements for route as served at r.
func (g *Gate) Requirements(r *http.Request, route Route) Requirements {
	amount, _ := ParsePrice(route.Price)
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return Requirements{
		Scheme:            "exact",
		Network:           route.Network,
		MaxAmountRequired: strconv.FormatInt(amount, 10),
		Resource:          scheme + "://" + r.Host + r.URL.Path,
		Description:       route.Description,
		MimeType:          "application/json",
		PayTo:             g.payTo,
		MaxTimeoutSeconds: 60,
		Asset:             networks[route.Network],
	}
}

// Authorize verifies the request's payment for route without settling it. Any
// failure is a PaymentRequiredError.
func (g *Gate) Authorize(r *http.Request, route Route) (*Admission, error) {
	header := r.Header.Get(HeaderPayment)
	if header == "" {
		return nil, &apperrors.PaymentRequiredError{Reason: "X-PAYMENT header is required"}
	}
	payload, err := decodePayload(header)
	if err != nil {
		return nil, &apperrors.PaymentRequiredError{Reason: "malformed X-PAYMENT header"}
	}
	if payload.Network != "" && payload.Network != route.Network {
		return nil, &apperrors.PaymentRequiredError{Reason: "payment is for network " + payload.Network}
	}

	req := g.Requirements(r, route)
	verdict, err := g.fac.Verify(r.Context(), payload, req)
	if err != nil {
		g.logger.Warn("payment verification failed", "pattern", route.Pattern, "error", err)
		return nil, &apperrors.PaymentRequiredError{Reason: "payment could not be verified"}
	}
	if !verdict.IsValid {
		reason := verdict.InvalidReason
		if reason == "" {
			reason = "payment is invalid"
		}
		return nil, &apperrors.PaymentRequiredError{Reason: reason}
	}
	return &Admission{Route: route, Payer: verdict.Payer, payload: payload, requirements: req}, nil
}

// Settle collects a verified payment. Any failure is a PaymentRequiredError.
func (g *Gate) Settle(ctx context.Context, adm *Admission) (*Settlement, error) {
	settlement, err := g.fac.Settle(ctx, adm.payload, adm.requirements)
	if err != nil {
		g.logger.Warn("payment settlement failed", "pattern", adm.Route.Pattern, "error", err)
		return nil, &apperrors.PaymentRequiredError{Reason: "payment could not be settled"}
	}
	if !settlement.Success {
		reason := settlement.ErrorReason
		if reason == "" {
			reason = "settlement failed"
		}
		return nil, &apperrors.PaymentRequiredError{Reason: reason}
	}
	if settlement.Payer == "" {
		settlement.Payer = adm.Payer
	}
	return settlement, nil
}

type paymentRequiredBody struct {
	X402Version int            `json:"x402Version"`
	Error       string         `json:"error"`
	Accepts     []Requirements `json:"accepts"`
}

func (g *Gate) writePaymentRequired(w http.ResponseWriter, r *http.Request, route Route, cause error) {
	reason := cause.Error()
	var pr *apperrors.PaymentRequiredError
	if errors.As(cause, &pr) {
		reason = pr.Reason
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	if err := json.NewEncoder(w).Encode(paymentRequiredBody{
		X402Version: X402Version,
		Error:       reason,
		Accepts:     []Requirements{g.Requirements(r, route)},
	}); err != nil {
		g.logger.Error("failed to write 402 response", "error", err)
	}
}

func decodePayload(header string) (Payload, error) {
	var p Payload
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		if raw, err = base64.URLEncoding.DecodeString(header); err != nil {
			return p, err
		}
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, err
	}
	if p.X402Version != X402Version || p.Scheme == "" || len(p.Payload) == 0 {
		return p, fmt.Errorf("unsupported payment payload")
	}
	return p, nil
}

// EncodePayload base64-encodes a payload for the X-PAYMENT header.
func EncodePayload(p Payload) (string, error) {
	return encodeHeader(p)
}

func encodeHeader(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
