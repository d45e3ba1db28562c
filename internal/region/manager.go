// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package region

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/regionsync/internal/logging"
	"github.com/tomtom215/regionsync/internal/metrics"
	"github.com/tomtom215/regionsync/internal/models"
	"github.com/tomtom215/regionsync/internal/reconcile"
)

// Journal records rejected live events.
type Journal interface {
	Record(ctx context.Context, rej models.Rejection) error
}

// Warning is surfaced for absorbed per-event failures.
type Warning struct {
	Reason   models.RejectReason
	ObjectID string
	Regions  []string
	Err      error
}

// Config configures a Manager.
type Config struct {
	Reconcile reconcile.Config
	// RequireOwnership restricts children_of scopes to parents held by the
	// active inventory region.
	RequireOwnership bool
	// Concurrency bounds ReconcileAll.
	Concurrency int
}

// Manager owns the active regions.
type Manager struct {
	transport reconcile.Transport
	cfg       Config

	mu      sync.RWMutex
	regions map[string]*Region

	// dispatchMu serializes live events across push sources.
	dispatchMu sync.Mutex

	hookMu  sync.RWMutex
	warn    func(Warning)
	journal Journal

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager backed by transport.
func NewManager(transport reconcile.Transport, cfg Config) *Manager {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		transport: transport,
		cfg:       cfg,
		regions:   make(map[string]*Region),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetWarningHandler installs the handler for absorbed per-event failures.
func (m *Manager) SetWarningHandler(fn func(Warning)) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.warn = fn
}

// SetJournal installs the rejection journal.
func (m *Manager) SetJournal(j Journal) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.journal = j
}

// Region returns the active region for scope, creating it if absent. The
// scope must be valid and readable by the caller.
func (m *Manager) Region(scope models.Scope) (*Region, error) {
	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scope: %w", err)
	}
	if err := m.Authorize(scope); err != nil {
		return nil, err
	}

	key := scope.Key()
	m.mu.RLock()
	r, ok := m.regions[key]
	m.mu.RUnlock()
	if ok {
		return r, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.regions[key]; ok {
		return r, nil
	}
	if m.ctx.Err() != nil {
		return nil, models.ErrRegionClosed
	}
	r = newRegion(m.ctx, scope, m.transport, m.cfg.Reconcile)
	m.regions[key] = r
	metrics.ActiveRegions.WithLabelValues(string(scope.Kind)).Inc()
	logging.Info().Str("region", key).Msg("Region activated")
	return r, nil
}

// Pin marks a region as permanent: it is not torn down when its last
// observer leaves.
func (m *Manager) Pin(r *Region) {
	r.obsMu.Lock()
	r.pinned = true
	r.obsMu.Unlock()
}

// Lookup returns the active region for key without creating it.
func (m *Manager) Lookup(key string) (*Region, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.regions[key]
	return r, ok
}

// Regions returns the active regions sorted by key.
func (m *Manager) Regions() []*Region {
	m.mu.RLock()
	out := make([]*Region, 0, len(m.regions))
	for _, r := range m.regions {
		out = append(out, r)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// Authorize checks that the caller may read scope.
func (m *Manager) Authorize(scope models.Scope) error {
	if scope.Kind != models.ScopeChildrenOf || !m.cfg.RequireOwnership {
		return nil
	}
	inv, ok := m.Lookup(models.Inventory().Key())
	if !ok {
		return &models.ScopePermissionError{Scope: scope.Key(), Reason: "ownership cannot be verified without an active inventory region"}
	}
	if !inv.store.Has(scope.ParentID) {
		return &models.ScopePermissionError{Scope: scope.Key(), Reason: fmt.Sprintf("object %q is not in the inventory", scope.ParentID)}
	}
	return nil
}

// Subscribe registers obs on r.
func (m *Manager) Subscribe(r *Region, obs Observer) (SubscriptionID, error) {
	if obs == nil {
		return 0, errors.New("nil observer")
	}
	return r.subscribe(obs)
}

// Unsubscribe removes an observer. Removing the last observer of an
// unpinned region tears it down.
func (m *Manager) Unsubscribe(r *Region, id SubscriptionID) {
	if !r.unsubscribe(id) {
		return
	}
	m.teardown(r)
}

// Release tears r down when it is unpinned and has no observers. Callers
// that obtained r from Region but failed to subscribe use it to drop the
// region they activated.
func (m *Manager) Release(r *Region) {
	if !r.idle() {
		return
	}
	m.teardown(r)
}

func (m *Manager) teardown(r *Region) {
	m.mu.Lock()
	if cur, ok := m.regions[r.key]; ok && cur == r {
		delete(m.regions, r.key)
	}
	m.mu.Unlock()

	if !r.close() {
		return
	}
	metrics.ActiveRegions.WithLabelValues(string(r.scope.Kind)).Dec()
	logging.Info().Str("region", r.key).Msg("Region torn down")
}

// Reconcile runs the hash/sync protocol for r.
func (m *Manager) Reconcile(ctx context.Context, r *Region) (reconcile.Result, error) {
	res, err := r.Reconcile(ctx)
	m.updateObjectGauges()
	return res, err
}

// ReconcileAll reconciles every active region with bounded concurrency and
// returns the joined errors of the regions that failed.
func (m *Manager) ReconcileAll(ctx context.Context) error {
	regions := m.Regions()
	if len(regions) == 0 {
		return nil
	}

	var (
		g      errgroup.Group
		errMu  sync.Mutex
		failed []error
	)
	g.SetLimit(m.cfg.Concurrency)
	for _, r := range regions {
		g.Go(func() error {
			if _, err := r.Reconcile(ctx); err != nil && !errors.Is(err, models.ErrRegionClosed) {
				errMu.Lock()
				failed = append(failed, err)
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	m.updateObjectGauges()
	return errors.Join(failed...)
}

// OnConnect handles a push channel (re)connect: every active region is
// reconciled in the background to close the gap left by the disconnect.
func (m *Manager) OnConnect(ctx context.Context) {
	logging.Ctx(ctx).Info().Int("regions", len(m.Regions())).Msg("Push channel connected, reconciling active regions")
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		rctx := logging.ContextWithNewCorrelationID(m.ctx)
		if err := m.ReconcileAll(rctx); err != nil {
			logging.Ctx(rctx).Warn().Err(err).Msg("Reconcile after connect incomplete")
		}
	}()
}

// OnDisconnect handles a push channel loss. It is not an error: the next
// OnConnect reconciles every region.
func (m *Manager) OnDisconnect(cause error) {
	ev := logging.Warn().Err(models.ErrChannelDisconnected)
	if cause != nil {
		ev = ev.AnErr("cause", cause)
	}
	ev.Msg("Push channel lost; regions may be stale until reconnect")
}

// Close tears down every region and waits for background reconciles.
func (m *Manager) Close() {
	m.cancel()
	for _, r := range m.Regions() {
		m.teardown(r)
	}
	m.wg.Wait()
}

func (m *Manager) emitWarning(ctx context.Context, w Warning, eventType models.EventType) {
	m.hookMu.RLock()
	warn, journal := m.warn, m.journal
	m.hookMu.RUnlock()

	logging.Ctx(ctx).Warn().
		Str("reason", string(w.Reason)).
		Str("object_id", w.ObjectID).
		Strs("regions", w.Regions).
		Err(w.Err).
		Msg("Live event rejected")

	if warn != nil {
		warn(w)
	}
	if journal != nil {
		rej := models.Rejection{
			ID:         logging.GenerateCorrelationID(),
			ObjectID:   w.ObjectID,
			EventType:  eventType,
			Reason:     w.Reason,
			Regions:    w.Regions,
			ReceivedAt: time.Now().UTC(),
		}
		if w.Err != nil {
			rej.Error = w.Err.Error()
		}
		if err := journal.Record(ctx, rej); err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("Failed to journal rejected event")
		}
	}
}

// RecordFrameError surfaces a push frame that could not be decoded.
func (m *Manager) RecordFrameError(ctx context.Context, err error) {
	metrics.RecordEvent("unknown", "invalid")
	m.emitWarning(ctx, Warning{Reason: models.RejectFrame, Err: err}, "")
}

func (m *Manager) updateObjectGauges() {
	counts := map[models.ScopeKind]int{
		models.ScopeInventory:  0,
		models.ScopeChildrenOf: 0,
		models.ScopeGeoGroup:   0,
	}
	for _, r := range m.Regions() {
		counts[r.scope.Kind] += r.Len()
	}
	for kind, n := range counts {
		metrics.RegionObjects.WithLabelValues(string(kind)).Set(float64(n))
	}
}
