// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

// Package main is the regionsyncd daemon.
//
// regionsyncd keeps local mirrors ("regions") of a remote object store in
// sync. Each region is reconciled against the remote by comparing aggregate
// hashes and fetching only changed objects; between reconciles it follows a
// push channel (WebSocket or NATS) of insert, update, remove and reparent
// events.
//
// # Startup order
//
//  1. Configuration: defaults, then YAML file, then environment (Koanf v2)
//  2. Logging (zerolog)
//  3. Remote transport with rate limiting and an optional circuit breaker
//  4. Region manager and optional rejection journal (BadgerDB)
//  5. Startup regions, pinned for the process lifetime
//  6. Supervisor tree: push source, periodic reconcile, debug API
//
// # Configuration
//
// The config file is found via CONFIG_PATH or regionsync.yaml in the
// working directory. Common environment overrides:
//
//	TRANSPORT_URL=https://store.example.com/v1
//	TRANSPORT_TOKEN=...
//	PUSH_MODE=websocket|nats|none
//	PUSH_URL=wss://store.example.com/v1/events
//	REGIONS_STARTUP=inventory,children_of:box-17
//	API_LISTEN=127.0.0.1:8089
//
// # Signals
//
// SIGINT and SIGTERM cancel the supervisor tree. Services get
// supervisor.shutdown_timeout to stop, then regions are torn down and the
// journal is closed.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/regionsync/internal/config"
	"github.com/tomtom215/regionsync/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Caller:      cfg.Logging.Caller,
		SampleDebug: cfg.Logging.SampleDebug,
	})

	logging.Info().
		Str("remote", cfg.Transport.URL).
		Str("push_mode", cfg.Push.Mode).
		Strs("startup_regions", cfg.Regions.Startup).
		Bool("journal", cfg.Journal.Enabled).
		Bool("api", cfg.API.Enabled).
		Msg("Starting regionsyncd")

	d, err := newDaemon(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = d.run(ctx)
	d.close()
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
		os.Exit(1)
	}
	logging.Info().Msg("regionsyncd stopped")
}
