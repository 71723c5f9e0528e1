package ratelimit

import (
	"strings"
)

// unlimited applies to the health check.
var unlimited = EndpointConfig{Path: "/health", Method: "GET", Limit: 0}

// MatchEndpoint returns the configuration for a request, or nil to use the default.
// Exact and wildcard patterns win over trailing-slash prefixes.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	if path == unlimited.Path && method == unlimited.Method {
		return &unlimited
	}

	for i := range configs {
		c := &configs[i]
		if c.Method == method && segmentsMatch(c.Path, path) {
			return c
		}
	}

	for i := range configs {
		c := &configs[i]
		if c.Method == method && strings.HasSuffix(c.Path, "/") && strings.HasPrefix(path, c.Path) {
			return c
		}
	}
	return nil
}

// segmentsMatch compares a pattern like "/campaigns/*/activate" against a path.
func segmentsMatch(pattern, path string) bool {
	if pattern == path {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}
	ps := strings.Split(strings.Trim(pattern, "/"), "/")
	xs := strings.Split(strings.Trim(path, "/"), "/")
	if len(ps) != len(xs) {
		return false
	}
	for i := range ps {
		if ps[i] != "*" && ps[i] != xs[i] {
			return false
		}
		if ps[i] == "*" && xs[i] == "" {
			return false
		}
	}
	return true
}
