// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package transport

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/regionsync/internal/jsonvalue"
	"github.com/tomtom215/regionsync/internal/logging"
	"github.com/tomtom215/regionsync/internal/metrics"
	"github.com/tomtom215/regionsync/internal/models"
	"github.com/tomtom215/regionsync/internal/reconcile"
)

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32
	// Interval resets the counts while closed.
	Interval time.Duration
	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration
	// MinRequests is the sample size needed before the circuit may open.
	MinRequests uint32
	// FailureRatio opens the circuit once reached.
	FailureRatio float64
}

// DefaultBreakerConfig returns the production breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		MinRequests:  10,
		FailureRatio: 0.6,
	}
}

// BreakerTransport wraps a Transport with circuit breaker protection.
type BreakerTransport struct {
	next reconcile.Transport
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

var _ reconcile.Transport = (*BreakerTransport)(nil)

// NewBreakerTransport wraps next. name labels the breaker's metrics.
func NewBreakerTransport(name string, next reconcile.Transport, cfg BreakerConfig) *BreakerTransport {
	d := DefaultBreakerConfig()
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = d.MaxRequests
	}
	if cfg.Interval <= 0 {
		cfg.Interval = d.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = d.MinRequests
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = d.FailureRatio
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio < cfg.FailureRatio {
				return false
			}
			logging.Warn().Str("breaker", name).Uint32("failures", counts.TotalFailures).Float64("failure_rate", ratio*100).Msg("Opening circuit")
			return true
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", stateToString(from)).Str("to", stateToString(to)).Msg("Circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, stateToString(from), stateToString(to)).Inc()
		},
		// The remote answered; the scope is simply not readable.
		IsSuccessful: func(err error) bool {
			return err == nil || models.IsPermission(err) || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerTransport{next: next, cb: cb, name: name}
}

// State returns the current breaker state.
func (b *BreakerTransport) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerTransport) execute(op string, scope models.Scope, fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if err == nil {
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		return result, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return nil, &models.TransportError{Op: op, Scope: scope.Key(), Err: err}
	}
	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	return nil, err
}

// FetchAggregateHash implements reconcile.Transport.
func (b *BreakerTransport) FetchAggregateHash(ctx context.Context, scope models.Scope) (string, error) {
	res, err := b.execute("hash", scope, func() (any, error) {
		return b.next.FetchAggregateHash(ctx, scope)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

// FetchRevisionList implements reconcile.Transport.
func (b *BreakerTransport) FetchRevisionList(ctx context.Context, scope models.Scope, token string) (models.RevisionPage, error) {
	res, err := b.execute("revisions", scope, func() (any, error) {
		return b.next.FetchRevisionList(ctx, scope, token)
	})
	if err != nil {
		return models.RevisionPage{}, err
	}
	return res.(models.RevisionPage), nil
}

// FetchObjects implements reconcile.Transport.
func (b *BreakerTransport) FetchObjects(ctx context.Context, scope models.Scope, ids []string) ([]jsonvalue.Value, error) {
	res, err := b.execute("objects", scope, func() (any, error) {
		return b.next.FetchObjects(ctx, scope, ids)
	})
	if err != nil {
		return nil, err
	}
	return res.([]jsonvalue.Value), nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
