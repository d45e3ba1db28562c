// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

// Package logging provides the zerolog-based structured logger shared by
// every regionsync component.
//
// There is one process-wide logger. cmd/regionsyncd configures it once from
// internal/config; until then it writes JSON at info level to stderr.
//
//	logging.Init(logging.Config{Level: "debug", Format: "console"})
//	logging.Info().Str("region", key).Msg("Region activated")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Reconcile attempt failed")
//
// Every entry carries a service field. Entries written through Ctx also
// carry the correlation_id and region stored in the context.
//
// The push applier logs each dropped frame at debug level; SampleDebug
// thins those out on busy channels without touching warn and above.
//
// Environment variables (read by internal/config, not by this package):
//
//	LOG_LEVEL        - trace, debug, info, warn, error (default: info)
//	LOG_FORMAT       - json, console (default: json)
//	LOG_CALLER       - include caller file:line (default: false)
//	LOG_SAMPLE_DEBUG - keep one in N debug entries (default: all)
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultService is the service field written when Config.Service is empty.
const DefaultService = "regionsyncd"

// Config holds logging configuration.
type Config struct {
	// Level is the minimum level: trace, debug, info, warn, error, fatal, panic or disabled.
	Level string

	// Format is json (default) or console.
	Format string

	Caller    bool
	Timestamp bool

	// Service names the process in every entry.
	Service string

	// SampleDebug keeps one in N debug and trace entries. 0 and 1 keep all.
	SampleDebug uint32

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns the configuration used before Init.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "json",
		Timestamp: true,
		Service:   DefaultService,
		Output:    os.Stderr,
	}
}

var (
	mu  sync.RWMutex
	log zerolog.Logger
)

//nolint:gochecknoinits // logging must work before Init is called
func init() {
	log = build(DefaultConfig())
}

// Init replaces the global logger. It may be called more than once.
func Init(cfg Config) {
	l := build(cfg)
	mu.Lock()
	log = l
	mu.Unlock()
}

func build(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.Service == "" {
		cfg.Service = DefaultService
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "time"
	zerolog.MessageFieldName = "message"

	var out io.Writer = cfg.Output
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05.000"}
	}

	ctx := zerolog.New(out).With().Str("service", cfg.Service)
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	l := ctx.Logger()

	if cfg.SampleDebug > 1 {
		sampler := &zerolog.BasicSampler{N: cfg.SampleDebug}
		l = l.Sample(zerolog.LevelSampler{TraceSampler: sampler, DebugSampler: sampler})
	}
	return l
}

// parseLevel maps a level name to zerolog. Empty and unknown names mean info.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func current() *zerolog.Logger {
	mu.RLock()
	l := log
	mu.RUnlock()
	return &l
}

// Logger returns a copy of the global logger.
func Logger() zerolog.Logger {
	return *current()
}

// SetLogger replaces the global logger. Tests use it to capture output.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	log = l
	mu.Unlock()
}

// Trace starts a trace level entry.
func Trace() *zerolog.Event { return current().Trace() }

// Debug starts a debug level entry.
func Debug() *zerolog.Event { return current().Debug() }

// Info starts an info level entry.
func Info() *zerolog.Event { return current().Info() }

// Warn starts a warn level entry.
func Warn() *zerolog.Event { return current().Warn() }

// Error starts an error level entry.
func Error() *zerolog.Event { return current().Error() }

// Fatal starts a fatal entry. The process exits after it is written.
func Fatal() *zerolog.Event { return current().Fatal() }

// WithComponent returns a child logger tagged with a component field.
//
//	log := logging.WithComponent("push")
func WithComponent(component string) zerolog.Logger {
	return current().With().Str("component", component).Logger()
}

// NewTestLogger builds a JSON logger writing to w at every level.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).Level(zerolog.TraceLevel).With().Timestamp().Logger()
}
