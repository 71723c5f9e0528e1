// Package config provides configuration loading and validation for the outreach agent.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// EnvProduction is the ENVIRONMENT value that forbids development shortcuts.
const EnvProduction = "production"

// Duration is a time.Duration that reads "30s"-style strings from JSON.
type Duration time.Duration

// UnmarshalJSON accepts a Go duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", string(data))
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// MarshalJSON writes the duration as a Go duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// AgentConfig holds runtime settings. All fields may come from a JSON file;
// environment variables fill anything the file leaves empty.
type AgentConfig struct {
	// Server
	Port        int    `json:"port,omitempty"`
	DatabaseURL string `json:"database_url,omitempty"`
	Environment string `json:"environment,omitempty"`

	// Auth
	AuthBypass bool   `json:"auth_bypass,omitempty"` // local development only
	CronSecret string `json:"cron_secret,omitempty"`

	// Tick engine
	TickBatchSize       int      `json:"tick_batch_size,omitempty"`
	TickConcurrency     int      `json:"tick_concurrency,omitempty"`
	TickBudget          Duration `json:"tick_budget,omitempty"`
	TickInterval        Duration `json:"tick_interval,omitempty"` // 0 disables the in-process scheduler
	ContactedStaleAfter Duration `json:"contacted_stale_after,omitempty"`

	// Broadcast
	KeepaliveInterval Duration `json:"keepalive_interval,omitempty"`
	CatchUpSize       int      `json:"catch_up_size,omitempty"`

	// Payments
	FacilitatorURL    string `json:"facilitator_url,omitempty"`
	PayToAddress      string `json:"pay_to_address,omitempty"`
	PaymentRoutesFile string `json:"payment_routes_file,omitempty"`

	// Workflows
	GeminiAPIKey     string `json:"gemini_api_key,omitempty"`
	SiteBaseURL      string `json:"site_base_url,omitempty"`
	MailWebhookURL   string `json:"mail_webhook_url,omitempty"`
	DeployWebhookURL string `json:"deploy_webhook_url,omitempty"`
	UseBrowser       bool   `json:"use_browser,omitempty"`
	SnowflakeNode    int64  `json:"snowflake_node,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() AgentConfig {
	return AgentConfig{
		Port:                8080,
		Environment:         "development",
		TickBatchSize:       10,
		TickConcurrency:     4,
		TickBudget:          Duration(50 * time.Second),
		ContactedStaleAfter: Duration(72 * time.Hour),
		KeepaliveInterval:   Duration(25 * time.Second),
		CatchUpSize:         5,
		FacilitatorURL:      "https://x402.org/facilitator",
		SiteBaseURL:         "https://sites.example.com",
		SnowflakeNode:       1,
	}
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*AgentConfig, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg AgentConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// FromEnv reads the agent's environment variables. Unset variables leave zero values.
func FromEnv() AgentConfig {
	return AgentConfig{
		Port:                envInt("PORT"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		Environment:         os.Getenv("ENVIRONMENT"),
		AuthBypass:          envBool("AUTH_BYPASS"),
		CronSecret:          os.Getenv("CRON_SECRET"),
		TickBatchSize:       envInt("TICK_BATCH_SIZE"),
		TickConcurrency:     envInt("TICK_CONCURRENCY"),
		TickBudget:          envDuration("TICK_BUDGET"),
		TickInterval:        envDuration("TICK_INTERVAL"),
		ContactedStaleAfter: envDuration("CONTACTED_STALE_AFTER"),
		KeepaliveInterval:   envDuration("KEEPALIVE_INTERVAL"),
		CatchUpSize:         envInt("CATCH_UP_SIZE"),
		FacilitatorURL:      os.Getenv("FACILITATOR_URL"),
		PayToAddress:        os.Getenv("PAY_TO_ADDRESS"),
		PaymentRoutesFile:   os.Getenv("PAYMENT_ROUTES_FILE"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		SiteBaseURL:         os.Getenv("SITE_BASE_URL"),
		MailWebhookURL:      os.Getenv("MAIL_WEBHOOK_URL"),
		DeployWebhookURL:    os.Getenv("DEPLOY_WEBHOOK_URL"),
		UseBrowser:          envBool("USE_BROWSER"),
		SnowflakeNode:       int64(envInt("SNOWFLAKE_NODE")),
	}
}

// Load builds the effective configuration: file values first, then environment,
// then defaults. An empty path skips the file.
func Load(path string) (AgentConfig, error) {
	cfg := FromEnv()
	if path != "" {
		fileCfg, err := LoadConfig(path)
		if err != nil {
			return AgentConfig{}, err
		}
		cfg = fileCfg.MergeWithDefaults(cfg)
	}
	cfg = cfg.MergeWithDefaults(Defaults())
	if err := cfg.Validate(); err != nil {
		return AgentConfig{}, err
	}
	return cfg, nil
}

// IsProduction reports whether the configuration describes a production deployment.
func (c *AgentConfig) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvProduction)
}

// Validate checks that the configuration has valid values.
func (c *AgentConfig) Validate() error {
	if c.AuthBypass && c.IsProduction() {
		return fmt.Errorf("config error: 'auth_bypass' must not be enabled in production")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' out of range: %d", c.Port)
	}
	if c.TickBatchSize < 0 {
		return fmt.Errorf("config error: 'tick_batch_size' must be non-negative")
	}
	if c.TickConcurrency < 0 {
		return fmt.Errorf("config error: 'tick_concurrency' must be non-negative")
	}
	if c.TickBudget < 0 || c.TickInterval < 0 || c.ContactedStaleAfter < 0 || c.KeepaliveInterval < 0 {
		return fmt.Errorf("config error: durations must be non-negative")
	}
	if c.CatchUpSize < 0 {
		return fmt.Errorf("config error: 'catch_up_size' must be non-negative")
	}
	if c.SnowflakeNode < 0 || c.SnowflakeNode > 1023 {
		return fmt.Errorf("config error: 'snowflake_node' must be between 0 and 1023")
	}
	if c.PaymentRoutesFile != "" {
		if _, err := os.Stat(c.PaymentRoutesFile); os.IsNotExist(err) {
			return fmt.Errorf("config error: payment routes file not found: %s", c.PaymentRoutesFile)
		}
	}
	return nil
}

// MergeWithDefaults returns a new config with zero fields filled from defaults.
// Bool fields are OR-ed since unset and false cannot be told apart.
func (c AgentConfig) MergeWithDefaults(defaults AgentConfig) AgentConfig {
	result := c

	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.Environment == "" {
		result.Environment = defaults.Environment
	}
	if result.CronSecret == "" {
		result.CronSecret = defaults.CronSecret
	}
	if result.TickBatchSize == 0 {
		result.TickBatchSize = defaults.TickBatchSize
	}
	if result.TickConcurrency == 0 {
		result.TickConcurrency = defaults.TickConcurrency
	}
	if result.TickBudget == 0 {
		result.TickBudget = defaults.TickBudget
	}
	if result.TickInterval == 0 {
		result.TickInterval = defaults.TickInterval
	}
	if result.ContactedStaleAfter == 0 {
		result.ContactedStaleAfter = defaults.ContactedStaleAfter
	}
	if result.KeepaliveInterval == 0 {
		result.KeepaliveInterval = defaults.KeepaliveInterval
	}
	if result.CatchUpSize == 0 {
		result.CatchUpSize = defaults.CatchUpSize
	}
	if result.FacilitatorURL == "" {
		result.FacilitatorURL = defaults.FacilitatorURL
	}
	if result.PayToAddress == "" {
		result.PayToAddress = defaults.PayToAddress
	}
	if result.PaymentRoutesFile == "" {
		result.PaymentRoutesFile = defaults.PaymentRoutesFile
	}
	if result.GeminiAPIKey == "" {
		result.GeminiAPIKey = defaults.GeminiAPIKey
	}
	if result.SiteBaseURL == "" {
		result.SiteBaseURL = defaults.SiteBaseURL
	}
	if result.MailWebhookURL == "" {
		result.MailWebhookURL = defaults.MailWebhookURL
	}
	if result.DeployWebhookURL == "" {
		result.DeployWebhookURL = defaults.DeployWebhookURL
	}
	if result.SnowflakeNode == 0 {
		result.SnowflakeNode = defaults.SnowflakeNode
	}
	result.AuthBypass = result.AuthBypass || defaults.AuthBypass
	result.UseBrowser = result.UseBrowser || defaults.UseBrowser

	return result
}

func envInt(key string) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return 0
}

func envBool(key string) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return false
}

func envDuration(key string) Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return Duration(d)
		}
	}
	return 0
}
