package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig is the limit for one route. Path segments may be "*" to match
// any single segment, and a trailing "/" matches any path below it.
type EndpointConfig struct {
	Path   string
	Method string
	Limit  int           // requests per window; 0 means unlimited
	Window time.Duration
	Burst  int // defaults to Limit
}

// LoadConfig reads RATE_LIMIT_* environment variables.
func LoadConfig() *Config {
	if !getEnvBool("RATE_LIMIT_ENABLED", true) {
		return &Config{Enabled: false}
	}
	return &Config{
		Enabled:         true,
		DefaultLimit:    getEnvInt("RATE_LIMIT_DEFAULT_LIMIT", 600),
		DefaultWindow:   getEnvDuration("RATE_LIMIT_DEFAULT_WINDOW", time.Minute),
		CleanupInterval: getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		Whitelist:       parseIPList(os.Getenv("RATE_LIMIT_WHITELIST")),
		Blacklist:       parseIPList(os.Getenv("RATE_LIMIT_BLACKLIST")),
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the per-route limits for the agent API.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Streams are long-lived and not metered per request.
		{Path: "/activity/stream", Method: "GET", Limit: 0},

		// Ticks do real work; the cron host calls about once a minute.
		{Path: "/agent/tick", Method: "POST", Limit: 6, Window: time.Minute, Burst: 2},
		{Path: "/cron/tick", Method: "POST", Limit: 6, Window: time.Minute, Burst: 2},

		// Paid routes call the facilitator and external services.
		{Path: "/campaigns/*/activate", Method: "POST", Limit: 30, Window: time.Hour, Burst: 5},
		{Path: "/prospects/*/site", Method: "POST", Limit: 20, Window: time.Hour, Burst: 3},
		{Path: "/orders", Method: "POST", Limit: 60, Window: time.Minute, Burst: 10},

		// Operator writes.
		{Path: "/prospects", Method: "POST", Limit: 100, Window: time.Minute, Burst: 20},
		{Path: "/prospects/*/transition", Method: "POST", Limit: 100, Window: time.Minute, Burst: 20},
		{Path: "/agent/", Method: "POST", Limit: 30, Window: time.Minute, Burst: 5},
	}
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// parseIPList parses a comma-separated list of IP addresses into a set.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
