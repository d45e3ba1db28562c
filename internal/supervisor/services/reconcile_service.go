// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package services

import (
	"context"
	"time"

	"github.com/tomtom215/regionsync/internal/logging"
)

// Reconciler reconciles every live region. *region.Manager satisfies it.
type Reconciler interface {
	ReconcileAll(ctx context.Context) error
}

// ReconcileService periodically reconciles all live regions so that drift
// missed by the push channel is repaired even without a reconnect.
type ReconcileService struct {
	reconciler Reconciler
	interval   time.Duration
	name       string
}

// NewReconcileService runs reconciler every interval. A non-positive
// interval means 5 minutes.
func NewReconcileService(reconciler Reconciler, interval time.Duration) *ReconcileService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ReconcileService{
		reconciler: reconciler,
		interval:   interval,
		name:       "periodic-reconcile",
	}
}

// Serve implements suture.Service. Failed passes are logged and retried on
// the next tick; they never crash the service.
func (s *ReconcileService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *ReconcileService) pass(ctx context.Context) {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	start := time.Now()
	err := s.reconciler.ReconcileAll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.Ctx(ctx).Warn().Err(err).Msg("periodic reconcile failed")
		return
	}
	logging.Ctx(ctx).Debug().Dur("duration", time.Since(start)).Msg("periodic reconcile complete")
}

// String implements fmt.Stringer for suture's logs.
func (s *ReconcileService) String() string {
	return s.name
}
