// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/regionsync/internal/jsonvalue"
	"github.com/tomtom215/regionsync/internal/logging"
	"github.com/tomtom215/regionsync/internal/metrics"
	"github.com/tomtom215/regionsync/internal/models"
	"github.com/tomtom215/regionsync/internal/store"
)

// Transport is the remote store surface consumed by the reconciler.
type Transport interface {
	FetchAggregateHash(ctx context.Context, scope models.Scope) (string, error)
	FetchRevisionList(ctx context.Context, scope models.Scope, token string) (models.RevisionPage, error)
	FetchObjects(ctx context.Context, scope models.Scope, ids []string) ([]jsonvalue.Value, error)
}

// Target is the region being reconciled.
type Target interface {
	Scope() models.Scope
	Store() *store.Store
	// Context is cancelled when the region is torn down.
	Context() context.Context
	// Apply runs fn against the store while holding the region's write
	// lock, then notifies observers of the changed ids. It returns
	// models.ErrRegionClosed once the region has been torn down.
	Apply(ctx context.Context, fn func(tx *store.Tx)) ([]string, error)
}

// State is the reconciler state.
type State int32

const (
	Idle State = iota
	Reconciling
)

func (s State) String() string {
	if s == Reconciling {
		return "reconciling"
	}
	return "idle"
}

// Result summarizes a Reconcile call.
type Result struct {
	Noop       bool     `json:"noop"`
	Fetched    int      `json:"fetched"`
	Removed    int      `json:"removed"`
	Dropped    int      `json:"dropped"`
	Attempts   int      `json:"attempts"`
	Changed    []string `json:"changed,omitempty"`
	LocalHash  string   `json:"local_hash"`
	RemoteHash string   `json:"remote_hash"`
}

// Reconciler reconciles one region.
type Reconciler struct {
	target    Target
	transport Transport
	cfg       Config

	state atomic.Int32
	group singleflight.Group

	last    atomic.Pointer[Run]
	newBack func() backoff.BackOff
}

// Run records a completed Reconcile call.
type Run struct {
	At     time.Time
	Result Result
	Err    error
}

// New creates a reconciler for target.
func New(target Target, transport Transport, cfg Config) *Reconciler {
	cfg = cfg.withDefaults()
	r := &Reconciler{
		target:    target,
		transport: transport,
		cfg:       cfg,
	}
	r.newBack = r.defaultBackOff
	return r
}

// State returns the current state.
func (r *Reconciler) State() State {
	return State(r.state.Load())
}

// Last returns the most recent completed Reconcile call.
func (r *Reconciler) Last() (Run, bool) {
	l := r.last.Load()
	if l == nil {
		return Run{}, false
	}
	return *l, true
}

// Reconcile brings the target in line with the remote store, retrying
// transient failures. Concurrent calls share one execution and its result.
// The execution is bound to the target's lifetime, not to any caller: a
// caller whose ctx ends returns ctx.Err() and the others keep waiting.
func (r *Reconciler) Reconcile(ctx context.Context) (Result, error) {
	ch := r.group.DoChan("reconcile", func() (any, error) {
		runCtx, cancel := r.detach(ctx)
		defer cancel()
		return r.run(runCtx)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case out := <-ch:
		res, _ := out.Val.(Result)
		return res, out.Err
	}
}

// detach keeps the values of ctx, such as the correlation id, and swaps its
// cancellation for the target's.
func (r *Reconciler) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(r.target.Context(), cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (r *Reconciler) run(ctx context.Context) (Result, error) {
	r.state.Store(int32(Reconciling))
	defer r.state.Store(int32(Idle))

	scope := r.target.Scope()
	if logging.CorrelationIDFromContext(ctx) == "" {
		ctx = logging.ContextWithNewCorrelationID(ctx)
	}
	ctx = logging.ContextWithRegion(ctx, scope.Key())
	log := logging.Ctx(ctx)

	start := time.Now()
	var res Result
	attempts := 0

	op := func() error {
		attempts++
		metrics.RecordReconcileAttempt(scope.Kind)
		var err error
		res, err = r.attempt(ctx, scope)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Int("attempt", attempts).Dur("retry_in", wait).Msg("Reconcile attempt failed, retrying")
	}

	err := backoff.RetryNotify(op, backoff.WithContext(r.newBack(), ctx), notify)
	res.Attempts = attempts

	metrics.RecordReconcile(scope.Kind, time.Since(start), res.Fetched, res.Removed, res.Noop, err)
	r.last.Store(&Run{At: time.Now(), Result: res, Err: err})

	if err != nil {
		log.Error().Err(err).Int("attempts", attempts).Msg("Reconcile failed")
		return res, fmt.Errorf("reconcile %s: %w", scope.Key(), err)
	}
	if res.Noop {
		log.Debug().Str("hash", res.LocalHash).Msg("Region already consistent")
	} else {
		log.Info().
			Int("fetched", res.Fetched).
			Int("removed", res.Removed).
			Int("dropped", res.Dropped).
			Int("attempts", attempts).
			Dur("duration", time.Since(start)).
			Msg("Region reconciled")
	}
	return res, nil
}

func (r *Reconciler) defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.Multiplier = r.cfg.Multiplier
	b.MaxElapsedTime = r.cfg.MaxElapsedTime
	b.Reset()
	return backoff.WithMaxRetries(b, r.cfg.MaxRetries)
}

// retryable reports whether err is worth another attempt. The pass's own
// cancellation is checked by the caller; a deadline seen here belongs to a
// single request, such as the HTTP client timeout.
func retryable(err error) bool {
	switch {
	case errors.Is(err, models.ErrRegionClosed):
		return false
	case models.IsPermission(err):
		return false
	case models.IsTransport(err):
		return true
	case errors.Is(err, models.ErrHashMismatch):
		return true
	default:
		return errors.Is(err, context.DeadlineExceeded)
	}
}

// attempt performs one pass of the protocol.
func (r *Reconciler) attempt(ctx context.Context, scope models.Scope) (Result, error) {
	st := r.target.Store()

	remoteHash, err := r.transport.FetchAggregateHash(ctx, scope)
	if err != nil {
		return Result{}, err
	}

	local := st.Baseline()
	res := Result{LocalHash: local.Hash, RemoteHash: remoteHash}
	if local.Hash == remoteHash {
		res.Noop = true
		return res, nil
	}

	remote, err := r.fetchRevisions(ctx, scope)
	if err != nil {
		return res, err
	}
	toFetch, toRemove := Diff(local.Entries, remote)

	fetched, dropped, err := r.fetchObjects(ctx, scope, toFetch)
	if err != nil {
		return res, err
	}
	res.Dropped = dropped

	if err := ctx.Err(); err != nil {
		return res, err
	}

	changed, err := r.target.Apply(ctx, func(tx *store.Tx) {
		for _, obj := range fetched {
			if tx.PutUnlessNewer(obj, local.Seq) {
				res.Fetched++
			}
		}
		for _, id := range toRemove {
			if tx.RemoveUnlessNewer(id, local.Seq) {
				res.Removed++
			}
		}
	})
	if err != nil {
		return res, err
	}
	res.Changed = changed

	res.LocalHash = st.AggregateHash()
	if res.LocalHash != remoteHash {
		return res, fmt.Errorf("%w: local %s, remote %s", models.ErrHashMismatch, res.LocalHash, remoteHash)
	}
	return res, nil
}

// fetchRevisions pages through the remote revision list.
func (r *Reconciler) fetchRevisions(ctx context.Context, scope models.Scope) ([]models.RevisionEntry, error) {
	var entries []models.RevisionEntry
	token := ""
	for page := 0; ; page++ {
		if page >= r.cfg.MaxPages {
			return nil, &models.TransportError{
				Op:    "revisions",
				Scope: scope.Key(),
				Err:   fmt.Errorf("revision list exceeded %d pages", r.cfg.MaxPages),
			}
		}
		p, err := r.transport.FetchRevisionList(ctx, scope, token)
		if err != nil {
			return nil, err
		}
		entries = append(entries, p.Entries...)
		if p.NextToken == "" {
			return entries, nil
		}
		if p.NextToken == token {
			return nil, &models.TransportError{
				Op:    "revisions",
				Scope: scope.Key(),
				Err:   fmt.Errorf("continuation token %q repeated", token),
			}
		}
		token = p.NextToken
	}
}

// fetchObjects downloads ids in batches and decodes them tolerantly. Only
// objects that were asked for are returned.
func (r *Reconciler) fetchObjects(ctx context.Context, scope models.Scope, ids []string) ([]*models.TrackedObject, int, error) {
	if len(ids) == 0 {
		return nil, 0, nil
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	out := make([]*models.TrackedObject, 0, len(ids))
	dropped := 0
	for start := 0; start < len(ids); start += r.cfg.BatchSize {
		end := min(start+r.cfg.BatchSize, len(ids))
		values, err := r.transport.FetchObjects(ctx, scope, ids[start:end])
		if err != nil {
			return nil, 0, err
		}
		decoded := decodeObjects(values)
		dropped += len(values) - len(decoded)
		for _, obj := range decoded {
			if !wanted[obj.ID] {
				dropped++
				continue
			}
			out = append(out, obj)
		}
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
	}
	return out, dropped, nil
}
