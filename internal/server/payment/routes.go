// Package payment gates selected API routes behind a settled x402 micropayment.
package payment

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/jonathan/outreach-agent/internal/schemas"
)

// Route prices one ServeMux pattern.
type Route struct {
	Pattern     string `json:"pattern"`
	Price       string `json:"price"`
	Network     string `json:"network"`
	Description string `json:"description,omitempty"`
}

// Gated route patterns.
const (
	PatternActivateCampaign = "POST /campaigns/{id}/activate"
	PatternPlaceOrder       = "POST /orders"
	PatternRegenerateSite   = "POST /prospects/{id}/site"
)

// usdcDecimals is the number of decimals of the settlement asset.
const usdcDecimals = 6

// networks maps supported network names to their USDC contract.
var networks = map[string]string{
	"base":         "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	"base-sepolia": "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
}

// KnownNetworks returns the supported network names, sorted.
func KnownNetworks() []string {
	out := make([]string, 0, len(networks))
	for n := range networks {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// DefaultRoutes is the built-in price table.
func DefaultRoutes() []Route {
	return []Route{
		{Pattern: PatternActivateCampaign, Price: "$0.50", Network: "base-sepolia", Description: "Activate a loyalty campaign"},
		{Pattern: PatternPlaceOrder, Price: "$0.05", Network: "base-sepolia", Description: "Place an order against an active campaign"},
		{Pattern: PatternRegenerateSite, Price: "$0.25", Network: "base-sepolia", Description: "Regenerate a prospect's site"},
	}
}

type routeFile struct {
	Routes []Route `json:"routes"`
}

// LoadRoutes reads and validates a price table file.
func LoadRoutes(path string) ([]Route, error) {
	if err := schemas.ValidateFile(schemas.PaymentRoutesSchema, path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read payment routes %s: %w", path, err)
	}
	var f routeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse payment routes: %w", err)
	}
	if err := ValidateRoutes(f.Routes); err != nil {
		return nil, err
	}
	return f.Routes, nil
}

// ValidateRoutes checks what the schema cannot: prices parse, networks are
// known and no pattern is listed twice.
func ValidateRoutes(routes []Route) error {
	seen := make(map[string]bool, len(routes))
	for i, r := range routes {
		if strings.TrimSpace(r.Pattern) == "" {
			return fmt.Errorf("route %d: pattern is required", i)
		}
		if seen[r.Pattern] {
			return fmt.Errorf("route %d: duplicate pattern %q", i, r.Pattern)
		}
		seen[r.Pattern] = true
		if _, err := ParsePrice(r.Price); err != nil {
			return fmt.Errorf("route %q: %w", r.Pattern, err)
		}
		if _, ok := networks[r.Network]; !ok {
			return fmt.Errorf("route %q: unknown network %q (known: %s)", r.Pattern, r.Network, strings.Join(KnownNetworks(), ", "))
		}
	}
	return nil
}

// ParsePrice converts a dollar amount like "$0.50" into atomic USDC units.
func ParsePrice(price string) (int64, error) {
	s := strings.TrimPrefix(strings.TrimSpace(price), "$")
	if s == "" {
		return 0, fmt.Errorf("price is empty")
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > usdcDecimals {
		return 0, fmt.Errorf("price %q has more than %d decimals", price, usdcDecimals)
	}
	// ParseInt accepts a sign, so "-0.50" would otherwise read as 0.50.
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return 0, fmt.Errorf("invalid price %q", price)
	}
	frac += strings.Repeat("0", usdcDecimals-len(frac))

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", price)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", price)
	}
	amount := w*1_000_000 + f
	if amount <= 0 {
		return 0, fmt.Errorf("price %q must be positive", price)
	}
	return amount, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Table is a validated price table keyed by pattern.
type Table struct {
	routes []Route
	byKey  map[string]Route
}

// NewTable validates routes and indexes them.
func NewTable(routes []Route) (*Table, error) {
	if err := ValidateRoutes(routes); err != nil {
		return nil, err
	}
	t := &Table{routes: append([]Route(nil), routes...), byKey: make(map[string]Route, len(routes))}
	for _, r := range routes {
		t.byKey[r.Pattern] = r
	}
	return t, nil
}

// Lookup returns the route for pattern.
func (t *Table) Lookup(pattern string) (Route, bool) {
	r, ok := t.byKey[pattern]
	return r, ok
}

// Routes returns a copy of the table in declaration order.
func (t *Table) Routes() []Route {
	return append([]Route(nil), t.routes...)
}
