// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config files searched, in priority order.
var DefaultConfigPaths = []string{
	"regionsync.yaml",
	"regionsync.yml",
	"/etc/regionsync/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			Timeout:   30 * time.Second,
			RateLimit: 20,
			RateBurst: 10,
			Breaker: BreakerConfig{
				Enabled:      true,
				MaxRequests:  3,
				Interval:     time.Minute,
				Timeout:      30 * time.Second,
				MinRequests:  10,
				FailureRatio: 0.6,
			},
		},
		Push: PushConfig{
			Mode:         PushWebSocket,
			Subject:      "regions.events",
			PingInterval: 30 * time.Second,
			ReconnectMin: time.Second,
			ReconnectMax: 32 * time.Second,
		},
		Reconcile: ReconcileConfig{
			BatchSize:       100,
			MaxPages:        1000,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     30 * time.Second,
			Multiplier:      2,
			MaxElapsedTime:  5 * time.Minute,
			MaxRetries:      8,
			Interval:        5 * time.Minute,
			Concurrency:     4,
		},
		Regions: RegionsConfig{
			RequireOwnership: false,
			Startup:          []string{"inventory"},
		},
		Journal: JournalConfig{
			Enabled: true,
			TTL:     24 * time.Hour,
		},
		API: APIConfig{
			Enabled:         true,
			Listen:          "127.0.0.1:8089",
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, the config file and the
// environment, then validates it.
func Load() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are split on commas when set from a plain string.
var sliceConfigPaths = []string{
	"regions.startup",
	"api.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"transport_url":                   "transport.url",
	"transport_token":                 "transport.token",
	"transport_timeout":               "transport.timeout",
	"transport_rate_limit":            "transport.rate_limit",
	"transport_rate_burst":            "transport.rate_burst",
	"transport_breaker_enabled":       "transport.breaker.enabled",
	"transport_breaker_timeout":       "transport.breaker.timeout",
	"transport_breaker_failure_ratio": "transport.breaker.failure_ratio",

	"push_mode":          "push.mode",
	"push_url":           "push.url",
	"push_token":         "push.token",
	"push_subject":       "push.subject",
	"push_ping_interval": "push.ping_interval",
	"push_reconnect_max": "push.reconnect_max",

	"reconcile_batch_size":  "reconcile.batch_size",
	"reconcile_max_pages":   "reconcile.max_pages",
	"reconcile_max_retries": "reconcile.max_retries",
	"reconcile_max_elapsed": "reconcile.max_elapsed_time",
	"reconcile_interval":    "reconcile.interval",
	"reconcile_concurrency": "reconcile.concurrency",

	"regions_require_ownership": "regions.require_ownership",
	"regions_startup":           "regions.startup",

	"journal_enabled": "journal.enabled",
	"journal_dir":     "journal.dir",
	"journal_ttl":     "journal.ttl",

	"api_enabled":           "api.enabled",
	"api_listen":            "api.listen",
	"cors_origins":          "api.cors_origins",
	"api_rate_limit_reqs":   "api.rate_limit_reqs",
	"api_rate_limit_window": "api.rate_limit_window",

	"log_level":        "logging.level",
	"log_format":       "logging.format",
	"log_caller":       "logging.caller",
	"log_sample_debug": "logging.sample_debug",

	"supervisor_shutdown_timeout": "supervisor.shutdown_timeout",
}

// envTransformFunc maps known environment variables onto config paths.
// Unknown variables return "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
