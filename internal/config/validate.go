// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/regionsync/internal/models"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateTransport(); err != nil {
		return err
	}
	if err := c.validatePush(); err != nil {
		return err
	}
	if err := c.validateReconcile(); err != nil {
		return err
	}
	if err := c.validateRegions(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateTransport() error {
	if c.Transport.URL == "" {
		return fmt.Errorf("TRANSPORT_URL is required")
	}
	if err := validateURL("TRANSPORT_URL", c.Transport.URL, "http", "https"); err != nil {
		return err
	}
	if c.Transport.Timeout <= 0 {
		return fmt.Errorf("TRANSPORT_TIMEOUT must be positive, got %v", c.Transport.Timeout)
	}
	if c.Transport.RateLimit < 0 {
		return fmt.Errorf("TRANSPORT_RATE_LIMIT must not be negative")
	}
	if r := c.Transport.Breaker.FailureRatio; c.Transport.Breaker.Enabled && (r <= 0 || r > 1) {
		return fmt.Errorf("TRANSPORT_BREAKER_FAILURE_RATIO must be in (0, 1], got %v", r)
	}
	return nil
}

func (c *Config) validatePush() error {
	switch c.Push.Mode {
	case PushNone:
		return nil
	case PushWebSocket:
		if c.Push.URL == "" {
			return fmt.Errorf("PUSH_URL is required when PUSH_MODE=websocket")
		}
		return validateURL("PUSH_URL", c.Push.URL, "ws", "wss")
	case PushNATS:
		if c.Push.URL == "" {
			return fmt.Errorf("PUSH_URL is required when PUSH_MODE=nats")
		}
		if c.Push.Subject == "" {
			return fmt.Errorf("PUSH_SUBJECT is required when PUSH_MODE=nats")
		}
		return validateURL("PUSH_URL", c.Push.URL, "nats", "tls")
	default:
		return fmt.Errorf("PUSH_MODE must be one of websocket, nats, none; got %q", c.Push.Mode)
	}
}

func (c *Config) validateReconcile() error {
	r := c.Reconcile
	if r.BatchSize <= 0 {
		return fmt.Errorf("RECONCILE_BATCH_SIZE must be positive, got %d", r.BatchSize)
	}
	if r.MaxPages <= 0 {
		return fmt.Errorf("RECONCILE_MAX_PAGES must be positive, got %d", r.MaxPages)
	}
	if r.Multiplier < 1 {
		return fmt.Errorf("reconcile.multiplier must be >= 1, got %v", r.Multiplier)
	}
	if r.Interval < 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must not be negative")
	}
	if r.Concurrency <= 0 {
		return fmt.Errorf("RECONCILE_CONCURRENCY must be positive, got %d", r.Concurrency)
	}
	return nil
}

func (c *Config) validateRegions() error {
	for _, key := range c.Regions.Startup {
		if _, err := models.ParseScopeKey(key); err != nil {
			return fmt.Errorf("REGIONS_STARTUP entry %q: %w", key, err)
		}
	}
	return nil
}

func (c *Config) validateAPI() error {
	if !c.API.Enabled {
		return nil
	}
	if c.API.Listen == "" {
		return fmt.Errorf("API_LISTEN is required when API_ENABLED=true")
	}
	if c.API.RateLimitReqs < 0 {
		return fmt.Errorf("API_RATE_LIMIT_REQS must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}

func validateURL(name, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host: %q", name, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s scheme must be one of %s, got %q", name, strings.Join(schemes, ", "), u.Scheme)
}
