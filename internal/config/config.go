// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package config

import "time"

// Push source modes.
const (
	PushWebSocket = "websocket"
	PushNATS      = "nats"
	PushNone      = "none"
)

// Config holds all regionsyncd configuration.
type Config struct {
	Transport  TransportConfig  `koanf:"transport"`
	Push       PushConfig       `koanf:"push"`
	Reconcile  ReconcileConfig  `koanf:"reconcile"`
	Regions    RegionsConfig    `koanf:"regions"`
	Journal    JournalConfig    `koanf:"journal"`
	API        APIConfig        `koanf:"api"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// TransportConfig configures the remote store client.
type TransportConfig struct {
	URL       string        `koanf:"url"`
	Token     string        `koanf:"token"`
	Timeout   time.Duration `koanf:"timeout"`
	RateLimit float64       `koanf:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst int           `koanf:"rate_burst"`
	Breaker   BreakerConfig `koanf:"breaker"`
}

// BreakerConfig configures the transport circuit breaker.
type BreakerConfig struct {
	Enabled      bool          `koanf:"enabled"`
	MaxRequests  uint32        `koanf:"max_requests"`
	Interval     time.Duration `koanf:"interval"`
	Timeout      time.Duration `koanf:"timeout"`
	MinRequests  uint32        `koanf:"min_requests"`
	FailureRatio float64       `koanf:"failure_ratio"`
}

// PushConfig configures the live event source.
type PushConfig struct {
	Mode         string        `koanf:"mode"`
	URL          string        `koanf:"url"`
	Token        string        `koanf:"token"`
	Subject      string        `koanf:"subject"` // nats only
	PingInterval time.Duration `koanf:"ping_interval"`
	ReconnectMin time.Duration `koanf:"reconnect_min"`
	ReconnectMax time.Duration `koanf:"reconnect_max"`
}

// ReconcileConfig configures the hash/sync protocol.
type ReconcileConfig struct {
	BatchSize       int           `koanf:"batch_size"`
	MaxPages        int           `koanf:"max_pages"`
	InitialInterval time.Duration `koanf:"initial_interval"`
	MaxInterval     time.Duration `koanf:"max_interval"`
	Multiplier      float64       `koanf:"multiplier"`
	MaxElapsedTime  time.Duration `koanf:"max_elapsed_time"`
	MaxRetries      uint64        `koanf:"max_retries"`
	// Interval between periodic passes over every region. 0 disables them.
	Interval    time.Duration `koanf:"interval"`
	Concurrency int           `koanf:"concurrency"`
}

// RegionsConfig configures the region manager.
type RegionsConfig struct {
	RequireOwnership bool     `koanf:"require_ownership"`
	Startup          []string `koanf:"startup"` // scope keys, pinned for the process lifetime
}

// JournalConfig configures the rejected-event journal.
type JournalConfig struct {
	Enabled bool          `koanf:"enabled"`
	Dir     string        `koanf:"dir"` // empty = in memory
	TTL     time.Duration `koanf:"ttl"`
}

// APIConfig configures the debug HTTP API.
type APIConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Listen          string        `koanf:"listen"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`

	// SampleDebug keeps one in N debug entries; 0 or 1 keeps all.
	SampleDebug uint32 `koanf:"sample_debug"`
}

// SupervisorConfig configures the suture tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}
