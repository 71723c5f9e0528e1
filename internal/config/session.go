package config

import (
	"fmt"
	"os"
	"strconv"
)

// DefaultSessionCookie is the cookie that carries the session token.
const DefaultSessionCookie = "session"

// SessionConfig holds settings for validating operator session tokens.
// Tokens are issued elsewhere with the same shared secret.
type SessionConfig struct {
	Secret          string
	ExpirationHours int
	CookieName      string
}

// NewSessionConfig reads JWT_SECRET (required), JWT_EXPIRATION_HOURS (default 24)
// and SESSION_COOKIE (default "session").
func NewSessionConfig() (*SessionConfig, error) {
	cfg := &SessionConfig{
		Secret:          os.Getenv("JWT_SECRET"),
		ExpirationHours: 24,
		CookieName:      os.Getenv("SESSION_COOKIE"),
	}

	if raw := os.Getenv("JWT_EXPIRATION_HOURS"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid JWT_EXPIRATION_HOURS: %v", err)
		}
		cfg.ExpirationHours = hours
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultSessionCookie
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize validates the configuration.
func (c *SessionConfig) normalize() error {
	if c.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required but not set")
	}
	if len(c.Secret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}
