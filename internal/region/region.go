// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package region

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/regionsync/internal/logging"
	"github.com/tomtom215/regionsync/internal/metrics"
	"github.com/tomtom215/regionsync/internal/models"
	"github.com/tomtom215/regionsync/internal/reconcile"
	"github.com/tomtom215/regionsync/internal/store"
)

// Observer receives the ids changed by one applied mutation.
type Observer func(changedIDs []string)

// SubscriptionID identifies an observer within a region.
type SubscriptionID uint64

// Region is the local mirror of one scope.
type Region struct {
	scope models.Scope
	key   string
	store *store.Store
	rec   *reconcile.Reconciler

	// mu is the region's write domain.
	mu sync.Mutex

	obsMu     sync.Mutex
	observers map[SubscriptionID]Observer
	nextObsID SubscriptionID
	pinned    bool

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool

	createdAt time.Time
}

func newRegion(parent context.Context, scope models.Scope, transport reconcile.Transport, cfg reconcile.Config) *Region {
	ctx, cancel := context.WithCancel(parent)
	r := &Region{
		scope:     scope,
		key:       scope.Key(),
		store:     store.New(),
		observers: make(map[SubscriptionID]Observer),
		ctx:       ctx,
		cancel:    cancel,
		createdAt: time.Now(),
	}
	r.rec = reconcile.New(r, transport, cfg)
	return r
}

// Scope returns the region scope.
func (r *Region) Scope() models.Scope { return r.scope }

// Key returns the scope key.
func (r *Region) Key() string { return r.key }

// Store returns the region's object store. Writes must go through Apply.
func (r *Region) Store() *store.Store { return r.store }

// Get returns the object stored under id.
func (r *Region) Get(id string) (*models.TrackedObject, bool) { return r.store.Get(id) }

// All returns an immutable snapshot of the region in insertion order.
func (r *Region) All() []*models.TrackedObject { return r.store.All() }

// Len returns the number of objects held.
func (r *Region) Len() int { return r.store.Len() }

// Hash returns the local aggregate hash.
func (r *Region) Hash() string { return r.store.AggregateHash() }

// State returns the reconciler state.
func (r *Region) State() reconcile.State { return r.rec.State() }

// LastReconcile returns the most recent reconcile outcome.
func (r *Region) LastReconcile() (reconcile.Run, bool) { return r.rec.Last() }

// Context is cancelled when the region is torn down.
func (r *Region) Context() context.Context { return r.ctx }

// Closed reports whether the region has been torn down.
func (r *Region) Closed() bool { return r.closed.Load() }

// CreatedAt returns when the region was activated.
func (r *Region) CreatedAt() time.Time { return r.createdAt }

// Subscribers returns the number of registered observers.
func (r *Region) Subscribers() int {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	return len(r.observers)
}

// Apply runs fn under the region's write domain and notifies observers of
// the changed ids once the domain is released.
func (r *Region) Apply(ctx context.Context, fn func(tx *store.Tx)) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.mutate(fn)
}

// Reconcile runs the hash/sync protocol for this region. The pass is
// cancelled when the region is torn down; ctx only bounds the wait.
func (r *Region) Reconcile(ctx context.Context) (reconcile.Result, error) {
	if r.Closed() {
		return reconcile.Result{}, models.ErrRegionClosed
	}
	res, err := r.rec.Reconcile(ctx)
	if err != nil && r.Closed() {
		return res, models.ErrRegionClosed
	}
	return res, err
}

func (r *Region) mutate(fn func(tx *store.Tx)) ([]string, error) {
	changed, err := r.mutateQuiet(fn)
	if len(changed) > 0 {
		r.notify(changed)
	}
	return changed, err
}

// mutateQuiet applies fn under the write domain without notifying; the
// caller delivers the returned ids.
func (r *Region) mutateQuiet(fn func(tx *store.Tx)) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return nil, models.ErrRegionClosed
	}
	return dedupe(r.store.Batch(fn)), nil
}

func (r *Region) notify(changed []string) {
	r.obsMu.Lock()
	observers := make([]Observer, 0, len(r.observers))
	for _, obs := range r.observers {
		observers = append(observers, obs)
	}
	r.obsMu.Unlock()

	for _, obs := range observers {
		r.deliver(obs, changed)
	}
}

func (r *Region) deliver(obs Observer, changed []string) {
	defer func() {
		if p := recover(); p != nil {
			logging.Error().Str("region", r.key).Interface("panic", p).Msg("Observer panicked")
		}
	}()
	ids := make([]string, len(changed))
	copy(ids, changed)
	obs(ids)
	metrics.ObserverNotifications.Inc()
}

func (r *Region) subscribe(obs Observer) (SubscriptionID, error) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	if r.closed.Load() {
		return 0, models.ErrRegionClosed
	}
	r.nextObsID++
	r.observers[r.nextObsID] = obs
	return r.nextObsID, nil
}

// unsubscribe removes id and reports whether the region became idle.
func (r *Region) unsubscribe(id SubscriptionID) (idle bool) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	if _, ok := r.observers[id]; !ok {
		return false
	}
	delete(r.observers, id)
	return len(r.observers) == 0 && !r.pinned
}

// idle reports whether r is unpinned and has no observers.
func (r *Region) idle() bool {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	return len(r.observers) == 0 && !r.pinned
}

// close tears the region down and reports whether this call did so.
// Writers already inside the domain finish first; later writers get
// ErrRegionClosed.
func (r *Region) close() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Swap(true) {
		return false
	}
	r.cancel()
	r.obsMu.Lock()
	clear(r.observers)
	r.obsMu.Unlock()
	return true
}

func dedupe(ids []string) []string {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
