// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/regionsync/internal/api"
	"github.com/tomtom215/regionsync/internal/config"
	"github.com/tomtom215/regionsync/internal/dlq"
	"github.com/tomtom215/regionsync/internal/logging"
	"github.com/tomtom215/regionsync/internal/models"
	"github.com/tomtom215/regionsync/internal/push"
	"github.com/tomtom215/regionsync/internal/reconcile"
	"github.com/tomtom215/regionsync/internal/region"
	"github.com/tomtom215/regionsync/internal/supervisor"
	"github.com/tomtom215/regionsync/internal/supervisor/services"
	"github.com/tomtom215/regionsync/internal/transport"
	"github.com/tomtom215/regionsync/internal/watch"
)

// pushSource is a supervised live event source.
type pushSource interface {
	Serve(ctx context.Context) error
	IsConnected() bool
}

type daemon struct {
	cfg     *config.Config
	manager *region.Manager
	journal *dlq.Journal
	push    pushSource
	hub     *watch.Hub
	handler http.Handler
	tree    *supervisor.Tree
}

func newDaemon(cfg *config.Config) (*daemon, error) {
	var remote reconcile.Transport = transport.NewClient(transport.Config{
		URL:               cfg.Transport.URL,
		Token:             cfg.Transport.Token,
		Timeout:           cfg.Transport.Timeout,
		RequestsPerSecond: cfg.Transport.RateLimit,
		Burst:             cfg.Transport.RateBurst,
	})
	if b := cfg.Transport.Breaker; b.Enabled {
		remote = transport.NewBreakerTransport("remote-store", remote, transport.BreakerConfig{
			MaxRequests:  b.MaxRequests,
			Interval:     b.Interval,
			Timeout:      b.Timeout,
			MinRequests:  b.MinRequests,
			FailureRatio: b.FailureRatio,
		})
	}

	rc := cfg.Reconcile
	d := &daemon{cfg: cfg}
	d.manager = region.NewManager(remote, region.Config{
		Reconcile: reconcile.Config{
			BatchSize:       rc.BatchSize,
			MaxPages:        rc.MaxPages,
			InitialInterval: rc.InitialInterval,
			MaxInterval:     rc.MaxInterval,
			Multiplier:      rc.Multiplier,
			MaxElapsedTime:  rc.MaxElapsedTime,
			MaxRetries:      rc.MaxRetries,
		},
		RequireOwnership: cfg.Regions.RequireOwnership,
		Concurrency:      rc.Concurrency,
	})

	if cfg.Journal.Enabled {
		j, err := dlq.Open(dlq.Config{Dir: cfg.Journal.Dir, TTL: cfg.Journal.TTL})
		if err != nil {
			d.manager.Close()
			return nil, fmt.Errorf("open rejection journal: %w", err)
		}
		d.journal = j
		d.manager.SetJournal(j)
	}

	if err := d.openStartupRegions(); err != nil {
		d.close()
		return nil, err
	}

	d.push = newPushSource(cfg.Push, d.manager)

	d.hub = watch.NewHub(d.manager, cfg.API.CORSOrigins)
	opts := []api.HandlerOption{api.WithWatchHub(d.hub)}
	if d.journal != nil {
		opts = append(opts, api.WithJournal(d.journal))
	}
	if d.push != nil {
		opts = append(opts, api.WithConnectionStatus(d.push))
	}
	mw := api.DefaultMiddlewareConfig()
	mw.CORSAllowedOrigins = cfg.API.CORSOrigins
	mw.RateLimitRequests = cfg.API.RateLimitReqs
	mw.RateLimitWindow = cfg.API.RateLimitWindow
	d.handler = api.NewRouter(api.NewHandler(d.manager, opts...), mw)

	d.tree = d.buildTree()
	return d, nil
}

// openStartupRegions activates and pins the configured regions in order, so
// inventory listed first can authorize the children_of regions after it.
func (d *daemon) openStartupRegions() error {
	for _, key := range d.cfg.Regions.Startup {
		scope, err := models.ParseScopeKey(key)
		if err != nil {
			return fmt.Errorf("startup region %q: %w", key, err)
		}
		r, err := d.manager.Region(scope)
		if err != nil {
			return fmt.Errorf("startup region %q: %w", key, err)
		}
		d.manager.Pin(r)
		logging.Info().Str("region", r.Key()).Msg("Startup region pinned")
	}
	return nil
}

func newPushSource(cfg config.PushConfig, sink push.Sink) pushSource {
	switch cfg.Mode {
	case config.PushWebSocket:
		return push.NewWebSocketSource(push.WebSocketConfig{
			URL:          cfg.URL,
			Token:        cfg.Token,
			PingInterval: cfg.PingInterval,
			ReconnectMin: cfg.ReconnectMin,
			ReconnectMax: cfg.ReconnectMax,
		}, sink)
	case config.PushNATS:
		return push.NewNATSSource(push.NATSConfig{
			URL:           cfg.URL,
			Subject:       cfg.Subject,
			Token:         cfg.Token,
			ReconnectWait: cfg.ReconnectMin,
		}, sink)
	default:
		return nil
	}
}

func (d *daemon) buildTree() *supervisor.Tree {
	sc := d.cfg.Supervisor
	tree := supervisor.NewTree(logging.NewSlogLogger("supervisor"), supervisor.TreeConfig{
		FailureThreshold: sc.FailureThreshold,
		FailureDecay:     sc.FailureDecay,
		FailureBackoff:   sc.FailureBackoff,
		ShutdownTimeout:  sc.ShutdownTimeout,
	})

	if d.push != nil {
		tree.AddPushService(d.push)
	}
	if d.cfg.Reconcile.Interval > 0 {
		tree.AddSyncService(services.NewReconcileService(d.manager, d.cfg.Reconcile.Interval))
	}
	if d.cfg.API.Enabled {
		server := &http.Server{
			Addr:              d.cfg.API.Listen,
			Handler:           d.handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			// Forced reconciles can take as long as the retry budget.
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  2 * time.Minute,
		}
		tree.AddAPIService(d.hub)
		tree.AddAPIService(services.NewHTTPServerService(server, sc.ShutdownTimeout))
	}
	return tree
}

// run blocks until ctx is cancelled. Without a push source, startup regions
// are reconciled once up front; otherwise the first connect does it.
func (d *daemon) run(ctx context.Context) error {
	if d.push == nil {
		d.manager.OnConnect(logging.ContextWithNewCorrelationID(ctx))
	}
	err := d.tree.Serve(ctx)
	if report, rerr := d.tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}
	return err
}

func (d *daemon) close() {
	d.manager.Close()
	if d.journal != nil {
		if err := d.journal.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing rejection journal")
		}
	}
}
