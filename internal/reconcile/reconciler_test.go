// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tomtom215/regionsync/internal/jsonvalue"
	"github.com/tomtom215/regionsync/internal/models"
	"github.com/tomtom215/regionsync/internal/store"
)

// fakeTarget is a region stand-in with its own write lock.
type fakeTarget struct {
	mu     sync.Mutex
	scope  models.Scope
	store  *store.Store
	closed atomic.Bool
	notify [][]string

	ctx    context.Context
	cancel context.CancelFunc
}

func newTarget() *fakeTarget {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakeTarget{scope: models.Inventory(), store: store.New(), ctx: ctx, cancel: cancel}
}

func (f *fakeTarget) Scope() models.Scope { return f.scope }
func (f *fakeTarget) Store() *store.Store { return f.store }
func (f *fakeTarget) Context() context.Context { return f.ctx }

func (f *fakeTarget) Apply(_ context.Context, fn func(tx *store.Tx)) ([]string, error) {
	f.mu.Lock()
	if f.closed.Load() {
		f.mu.Unlock()
		return nil, models.ErrRegionClosed
	}
	changed := f.store.Batch(fn)
	if len(changed) > 0 {
		f.notify = append(f.notify, changed)
	}
	f.mu.Unlock()
	return changed, nil
}

// live simulates a live event write under the region lock.
func (f *fakeTarget) live(obj *models.TrackedObject) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store.Put(obj)
}

// fakeTransport serves a mutable remote state.
type fakeTransport struct {
	mu       sync.Mutex
	remote   map[string]uint64
	order    []string
	pageSize int

	hashCalls    int
	pageCalls    int
	fetchedIDs   [][]string
	hashOverride string

	hashErrs  []error
	fetchErrs []error
	extra     []jsonvalue.Value

	hashGate    chan struct{}
	hashEntered chan struct{}
	onFetch     func()
}

func newTransport(entries map[string]uint64) *fakeTransport {
	f := &fakeTransport{remote: map[string]uint64{}, pageSize: 100}
	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		f.set(id, entries[id])
	}
	return f
}

func (f *fakeTransport) set(id string, rev uint64) {
	if _, ok := f.remote[id]; !ok {
		f.order = append(f.order, id)
	}
	f.remote[id] = rev
}

func (f *fakeTransport) entries() []models.RevisionEntry {
	out := make([]models.RevisionEntry, 0, len(f.order))
	for _, id := range f.order {
		if rev, ok := f.remote[id]; ok {
			out = append(out, models.RevisionEntry{ID: id, Revision: rev})
		}
	}
	return out
}

func (f *fakeTransport) FetchAggregateHash(ctx context.Context, _ models.Scope) (string, error) {
	if f.hashEntered != nil {
		f.hashEntered <- struct{}{}
	}
	if f.hashGate != nil {
		select {
		case <-f.hashGate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashCalls++
	if len(f.hashErrs) > 0 {
		err := f.hashErrs[0]
		f.hashErrs = f.hashErrs[1:]
		if err != nil {
			return "", err
		}
	}
	if f.hashOverride != "" {
		return f.hashOverride, nil
	}
	return models.AggregateHash(f.entries()), nil
}

func (f *fakeTransport) FetchRevisionList(_ context.Context, _ models.Scope, token string) (models.RevisionPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCalls++
	all := f.entries()
	start := 0
	if token != "" {
		fmt.Sscanf(token, "p%d", &start)
	}
	end := min(start+f.pageSize, len(all))
	page := models.RevisionPage{Entries: all[start:end]}
	if end < len(all) {
		page.NextToken = fmt.Sprintf("p%d", end)
	}
	return page, nil
}

func (f *fakeTransport) FetchObjects(_ context.Context, _ models.Scope, ids []string) ([]jsonvalue.Value, error) {
	if f.onFetch != nil {
		f.onFetch()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchedIDs = append(f.fetchedIDs, append([]string(nil), ids...))
	if len(f.fetchErrs) > 0 {
		err := f.fetchErrs[0]
		f.fetchErrs = f.fetchErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	out := make([]jsonvalue.Value, 0, len(ids))
	for _, id := range ids {
		rev, ok := f.remote[id]
		if !ok {
			continue
		}
		out = append(out, payload(id, rev))
	}
	return append(out, f.extra...), nil
}

func payload(id string, rev uint64) jsonvalue.Value {
	return jsonvalue.MustParse(fmt.Sprintf(`{"id":%q,"revision":%d,"parent":"","name":"obj-%s"}`, id, rev, id))
}

func object(id string, rev uint64) *models.TrackedObject {
	return &models.TrackedObject{ID: id, Revision: rev, Body: payload(id, rev).(jsonvalue.Object)}
}

func transient() error {
	return &models.TransportError{Op: "test", Scope: "inventory", StatusCode: 503, Err: errors.New("unavailable")}
}

func newTestReconciler(target Target, tr Transport, retries uint64) *Reconciler {
	r := New(target, tr, Config{BatchSize: 2, MaxPages: 50})
	r.newBack = func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, retries)
	}
	return r
}

func flatten(batches [][]string) []string {
	var out []string
	for _, b := range batches {
		out = append(out, b...)
	}
	sort.Strings(out)
	return out
}

func checkStrings(t *testing.T, name string, got []string, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s = %v, want %v", name, got, want)
		}
	}
}

func TestReconcileFetchesOnlyChanged(t *testing.T) {
	target := newTarget()
	target.store.Put(object("A", 1))
	target.store.Put(object("B", 1))
	origA, _ := target.store.Get("A")

	tr := newTransport(map[string]uint64{"A": 1, "B": 2, "C": 1})
	r := newTestReconciler(target, tr, 0)

	res, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	checkStrings(t, "fetched ids", flatten(tr.fetchedIDs), "B", "C")

	if res.Fetched != 2 || res.Removed != 0 || res.Noop {
		t.Errorf("result = %+v", res)
	}
	if a, _ := target.store.Get("A"); a != origA {
		t.Error("A was rewritten")
	}
	if b, _ := target.store.Get("B"); b.Revision != 2 {
		t.Errorf("B revision = %d, want 2", b.Revision)
	}
	if target.store.Len() != 3 {
		t.Errorf("len = %d, want 3", target.store.Len())
	}
	if got, want := target.store.AggregateHash(), models.AggregateHash(tr.entries()); got != want {
		t.Errorf("local hash %s != remote %s", got, want)
	}
	if r.State() != Idle {
		t.Errorf("state = %s after reconcile", r.State())
	}
}

func TestReconcileIdempotent(t *testing.T) {
	target := newTarget()
	tr := newTransport(map[string]uint64{"A": 3, "B": 1, "C": 7})
	r := newTestReconciler(target, tr, 0)

	if _, err := r.Reconcile(context.Background()); err != nil {
		t.Fatalf("first Reconcile() error = %v", err)
	}
	seq := target.store.Seq()
	notifications := len(target.notify)

	res, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}
	if !res.Noop {
		t.Errorf("second pass not a no-op: %+v", res)
	}
	if target.store.Seq() != seq || len(target.notify) != notifications {
		t.Error("second pass mutated the store")
	}
	if tr.pageCalls != 1 {
		t.Errorf("revision list fetched %d times, want 1", tr.pageCalls)
	}
}

func TestReconcileRemovesMissing(t *testing.T) {
	target := newTarget()
	target.store.Put(object("A", 1))
	target.store.Put(object("D", 4))

	tr := newTransport(map[string]uint64{"A": 1})
	r := newTestReconciler(target, tr, 0)

	res, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if res.Removed != 1 || target.store.Has("D") {
		t.Errorf("D not removed: %+v", res)
	}
	if len(tr.fetchedIDs) != 0 {
		t.Errorf("unexpected fetches %v", tr.fetchedIDs)
	}
	checkStrings(t, "changed", res.Changed, "D")
}

func TestReconcilePagesAndBatches(t *testing.T) {
	target := newTarget()
	entries := map[string]uint64{}
	for i := 0; i < 7; i++ {
		entries[fmt.Sprintf("id-%d", i)] = uint64(i + 1)
	}
	tr := newTransport(entries)
	tr.pageSize = 3
	r := newTestReconciler(target, tr, 0)

	if _, err := r.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if tr.pageCalls != 3 {
		t.Errorf("page calls = %d, want 3", tr.pageCalls)
	}
	if len(tr.fetchedIDs) != 4 {
		t.Errorf("object batches = %d, want 4 (batch size 2)", len(tr.fetchedIDs))
	}
	if target.store.Len() != 7 {
		t.Errorf("len = %d, want 7", target.store.Len())
	}
}

func TestReconcilePageCap(t *testing.T) {
	target := newTarget()
	entries := map[string]uint64{}
	for i := 0; i < 10; i++ {
		entries[fmt.Sprintf("id-%d", i)] = 1
	}
	tr := newTransport(entries)
	tr.pageSize = 1
	r := New(target, tr, Config{MaxPages: 3})
	r.newBack = func() backoff.BackOff { return &backoff.StopBackOff{} }

	_, err := r.Reconcile(context.Background())
	if !models.IsTransport(err) {
		t.Fatalf("error = %v, want TransportError", err)
	}
	if target.store.Len() != 0 {
		t.Error("store modified after failed pass")
	}
}

func TestReconcileTransportFailureLeavesStore(t *testing.T) {
	target := newTarget()
	target.store.Put(object("A", 1))
	seq := target.store.Seq()

	tr := newTransport(map[string]uint64{"A": 2, "B": 1, "C": 1})
	tr.fetchErrs = []error{nil, transient(), transient(), transient(), transient()}
	r := newTestReconciler(target, tr, 1)

	res, err := r.Reconcile(context.Background())
	var te *models.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want TransportError", err)
	}
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", res.Attempts)
	}
	if target.store.Seq() != seq {
		t.Error("store mutated despite failed fetch")
	}
	if a, _ := target.store.Get("A"); a.Revision != 1 {
		t.Errorf("A revision = %d, want 1", a.Revision)
	}
	run, ok := r.Last()
	if !ok || run.Err == nil {
		t.Errorf("Last() = %+v, %v", run, ok)
	}
}

func TestReconcileRetriesTransient(t *testing.T) {
	target := newTarget()
	tr := newTransport(map[string]uint64{"A": 1})
	tr.hashErrs = []error{transient(), transient()}
	r := newTestReconciler(target, tr, 5)

	res, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if res.Attempts != 3 || !target.store.Has("A") {
		t.Errorf("result = %+v", res)
	}
}

func TestReconcilePermissionNotRetried(t *testing.T) {
	target := newTarget()
	tr := newTransport(nil)
	tr.hashErrs = []error{&models.ScopePermissionError{Scope: "inventory", Reason: "forbidden"}}
	r := newTestReconciler(target, tr, 5)

	res, err := r.Reconcile(context.Background())
	if !models.IsPermission(err) {
		t.Fatalf("error = %v, want ScopePermissionError", err)
	}
	if res.Attempts != 1 || tr.hashCalls != 1 {
		t.Errorf("attempts = %d, hash calls = %d, want 1", res.Attempts, tr.hashCalls)
	}
}

func TestReconcileHashMismatchBounded(t *testing.T) {
	target := newTarget()
	tr := newTransport(map[string]uint64{"A": 1})
	tr.hashOverride = "deadbeefdeadbeef"
	r := newTestReconciler(target, tr, 3)

	res, err := r.Reconcile(context.Background())
	if !errors.Is(err, models.ErrHashMismatch) {
		t.Fatalf("error = %v, want ErrHashMismatch", err)
	}
	if res.Attempts != 4 {
		t.Errorf("attempts = %d, want 4", res.Attempts)
	}
	if !target.store.Has("A") {
		t.Error("A should still have been applied")
	}
}

func TestReconcileRegionClosedDiscards(t *testing.T) {
	target := newTarget()
	tr := newTransport(map[string]uint64{"A": 1, "B": 1})
	tr.onFetch = func() { target.closed.Store(true) }
	r := newTestReconciler(target, tr, 5)

	res, err := r.Reconcile(context.Background())
	if !errors.Is(err, models.ErrRegionClosed) {
		t.Fatalf("error = %v, want ErrRegionClosed", err)
	}
	if res.Attempts != 1 || target.store.Len() != 0 {
		t.Errorf("fetched results applied after close: %+v", res)
	}
}

func TestReconcileCancelledByTeardown(t *testing.T) {
	target := newTarget()
	tr := newTransport(map[string]uint64{"A": 1})
	tr.onFetch = target.cancel
	r := newTestReconciler(target, tr, 5)

	res, err := r.Reconcile(context.Background())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if res.Attempts != 1 || target.store.Len() != 0 {
		t.Errorf("cancelled pass applied results: %+v", res)
	}
}

func TestReconcileCallerCancelReturnsPromptly(t *testing.T) {
	target := newTarget()
	tr := newTransport(map[string]uint64{"A": 1})
	tr.hashGate = make(chan struct{})
	tr.hashEntered = make(chan struct{}, 1)
	r := newTestReconciler(target, tr, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Reconcile(ctx)
		done <- err
	}()
	<-tr.hashEntered
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}

	// The pass itself carries on and a later caller shares it.
	close(tr.hashGate)
	res, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !target.store.Has("A") {
		t.Errorf("A missing after pass, result %+v", res)
	}
}

func TestReconcileSharedPassOutlivesFirstCaller(t *testing.T) {
	target := newTarget()
	tr := newTransport(map[string]uint64{"A": 1})
	tr.hashGate = make(chan struct{})
	tr.hashEntered = make(chan struct{}, 1)
	r := newTestReconciler(target, tr, 0)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	errA := make(chan error, 1)
	go func() {
		_, err := r.Reconcile(short)
		errA <- err
	}()
	<-tr.hashEntered

	type outcome struct {
		res Result
		err error
	}
	outB := make(chan outcome, 1)
	go func() {
		res, err := r.Reconcile(context.Background())
		outB <- outcome{res, err}
	}()

	if err := <-errA; !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("caller A error = %v, want context.DeadlineExceeded", err)
	}
	close(tr.hashGate)

	b := <-outB
	if b.err != nil {
		t.Fatalf("caller B error = %v", b.err)
	}
	if b.res.Fetched != 1 || !target.store.Has("A") {
		t.Errorf("caller B result = %+v", b.res)
	}
	if tr.hashCalls != 1 {
		t.Errorf("hash calls = %d, want 1", tr.hashCalls)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transport", transient(), true},
		{"transport timeout", &models.TransportError{Op: "hash", Scope: "inventory", Err: fmt.Errorf("client timeout: %w", context.DeadlineExceeded)}, true},
		{"request deadline", context.DeadlineExceeded, true},
		{"hash mismatch", fmt.Errorf("%w: local a, remote b", models.ErrHashMismatch), true},
		{"cancelled", context.Canceled, false},
		{"region closed", models.ErrRegionClosed, false},
		{"permission", &models.ScopePermissionError{Scope: "children_of:x", Reason: "no"}, false},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestReconcileKeepsNewerLiveWrites(t *testing.T) {
	target := newTarget()
	target.store.Put(object("B", 1))
	target.store.Put(object("X", 1))

	tr := newTransport(map[string]uint64{"B": 2})
	var once sync.Once
	tr.onFetch = func() {
		once.Do(func() {
			// Upstream moves on while the pass is in flight: B is updated and
			// X is re-inserted by live events.
			tr.mu.Lock()
			tr.set("B", 3)
			tr.set("X", 5)
			tr.mu.Unlock()
			target.live(object("B", 3))
			target.live(object("X", 5))
		})
	}
	r := newTestReconciler(target, tr, 3)

	res, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if b, _ := target.store.Get("B"); b.Revision != 3 {
		t.Errorf("B revision = %d, want live revision 3", b.Revision)
	}
	if !target.store.Has("X") {
		t.Error("X written by a live event was removed")
	}
	if res.Attempts != 2 {
		t.Errorf("attempts = %d, want 2 (mismatch then no-op)", res.Attempts)
	}
}

func TestReconcileCountsDropped(t *testing.T) {
	target := newTarget()
	tr := newTransport(map[string]uint64{"A": 1})
	tr.extra = []jsonvalue.Value{
		jsonvalue.MustParse(`{"id":"broken"}`),
		payload("Z", 1),
	}
	r := newTestReconciler(target, tr, 0)

	res, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if res.Dropped != 2 || target.store.Has("Z") {
		t.Errorf("result = %+v", res)
	}
}

func TestReconcileCollapsesConcurrentCalls(t *testing.T) {
	target := newTarget()
	tr := newTransport(map[string]uint64{"A": 1})
	tr.hashGate = make(chan struct{})
	tr.hashEntered = make(chan struct{}, 4)
	r := newTestReconciler(target, tr, 0)

	var wg sync.WaitGroup
	results := make([]Result, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = r.Reconcile(context.Background())
		}(i)
	}

	<-tr.hashEntered
	if r.State() != Reconciling {
		t.Errorf("state = %s, want reconciling", r.State())
	}
	time.Sleep(50 * time.Millisecond)
	close(tr.hashGate)
	wg.Wait()

	if tr.hashCalls != 1 {
		t.Errorf("hash calls = %d, want 1", tr.hashCalls)
	}
	for i, res := range results {
		if res.Fetched != 1 {
			t.Errorf("caller %d result = %+v", i, res)
		}
	}
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name       string
		local      []models.RevisionEntry
		remote     []models.RevisionEntry
		wantFetch  []string
		wantRemove []string
	}{
		{
			name:      "scenario",
			local:     []models.RevisionEntry{{ID: "A", Revision: 1}, {ID: "B", Revision: 1}},
			remote:    []models.RevisionEntry{{ID: "A", Revision: 1}, {ID: "B", Revision: 2}, {ID: "C", Revision: 1}},
			wantFetch: []string{"B", "C"},
		},
		{
			name:       "remove only",
			local:      []models.RevisionEntry{{ID: "A", Revision: 1}, {ID: "B", Revision: 1}},
			remote:     []models.RevisionEntry{{ID: "B", Revision: 1}},
			wantRemove: []string{"A"},
		},
		{
			name:   "local newer kept",
			local:  []models.RevisionEntry{{ID: "A", Revision: 5}},
			remote: []models.RevisionEntry{{ID: "A", Revision: 4}},
		},
		{
			name:      "duplicate remote last wins",
			local:     []models.RevisionEntry{{ID: "A", Revision: 2}},
			remote:    []models.RevisionEntry{{ID: "A", Revision: 3}, {ID: "A", Revision: 1}},
			wantFetch: nil,
		},
		{
			name:       "empty remote",
			local:      []models.RevisionEntry{{ID: "A", Revision: 1}},
			wantRemove: []string{"A"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetch, remove := Diff(tt.local, tt.remote)
			checkStrings(t, "toFetch", fetch, tt.wantFetch...)
			checkStrings(t, "toRemove", remove, tt.wantRemove...)
		})
	}
}
