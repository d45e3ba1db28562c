// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

// Package store holds the decoded objects of one region.
//
// A Store is an insertion-ordered keyed collection. Writers are expected to
// be serialized by the owning region; the store's own lock only protects
// readers from observing a half-applied write. All returns an immutable
// snapshot that later writes never touch, and the snapshot is cached
// between writes so repeated reads are allocation free.
package store

import (
	"sync"
	"sync/atomic"

	"github.com/tomtom215/regionsync/internal/decode"
	"github.com/tomtom215/regionsync/internal/jsonvalue"
	"github.com/tomtom215/regionsync/internal/mergepatch"
	"github.com/tomtom215/regionsync/internal/models"
)

// node is an entry of the insertion-order list.
type node struct {
	obj  *models.TrackedObject
	prev *node
	next *node
}

// Decoder re-decodes a patched body.
type Decoder func(jsonvalue.Value) (*models.TrackedObject, error)

// Option configures a Store.
type Option func(*Store)

// WithDecoder replaces the decoder used by ApplyPatch.
func WithDecoder(d Decoder) Option {
	return func(s *Store) { s.decoder = d }
}

// Store is an ordered, keyed collection of tracked objects.
type Store struct {
	mu sync.RWMutex

	// items maps ids to list nodes for O(1) lookup and removal
	items map[string]*node

	// head and tail are sentinels; head.next is the oldest entry
	head *node
	tail *node

	// seq is the local mutation counter
	seq uint64

	// sum is the running aggregate of entry hashes
	sum uint64

	// removed maps ids removed since the last Baseline to the seq of the
	// removal
	removed map[string]uint64

	snapshot atomic.Pointer[[]*models.TrackedObject]
	decoder  Decoder
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		items:   make(map[string]*node),
		removed: make(map[string]uint64),
		head:    &node{},
		tail:    &node{},
		decoder: decode.Object,
	}
	s.head.next = s.tail
	s.tail.prev = s.head
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put inserts obj or replaces the stored object with the same id. A
// replacement keeps the original position. A put whose revision is lower
// than the stored revision is stale and is rejected. The stored copy is
// returned along with whether the put was applied.
func (s *Store) Put(obj *models.TrackedObject) (*models.TrackedObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.put(obj)
	if ok {
		s.invalidate()
	}
	return stored, ok
}

// Remove deletes id and returns the removed object.
func (s *Store) Remove(id string) (*models.TrackedObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed, ok := s.remove(id)
	if ok {
		s.invalidate()
	}
	return removed, ok
}

// Get returns the object stored under id.
func (s *Store) Get(id string) (*models.TrackedObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.items[id]
	if !ok {
		return nil, false
	}
	return n.obj, true
}

// Has reports whether id is stored.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[id]
	return ok
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// All returns the stored objects in insertion order. The returned slice is
// shared between callers and must not be modified.
func (s *Store) All() []*models.TrackedObject {
	if p := s.snapshot.Load(); p != nil {
		return *p
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if p := s.snapshot.Load(); p != nil {
		return *p
	}
	out := make([]*models.TrackedObject, 0, len(s.items))
	for n := s.head.next; n != s.tail; n = n.next {
		out = append(out, n.obj)
	}
	// Writers hold the exclusive lock, so out is current until released.
	s.snapshot.Store(&out)
	return out
}

// ApplyPatch merges patch into the stored body of id and re-decodes it.
// It returns (nil, nil) when id is absent. When the result does not decode,
// keeps a different id or lowers the revision, the store is left unchanged
// and a *models.PatchDecodeFailure is returned.
func (s *Store) ApplyPatch(id string, patch jsonvalue.Value) (*models.TrackedObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated, err := s.applyPatch(id, patch)
	if updated != nil {
		s.invalidate()
	}
	return updated, err
}

// applyPatch must be called with mu held.
func (s *Store) applyPatch(id string, patch jsonvalue.Value) (*models.TrackedObject, error) {
	n, ok := s.items[id]
	if !ok {
		return nil, nil
	}

	merged := mergepatch.Apply(n.obj.Body, patch)
	updated, err := s.decoder(merged)
	if err != nil {
		return nil, &models.PatchDecodeFailure{ID: id, Err: err}
	}
	if updated.ID != id {
		return nil, &models.PatchDecodeFailure{ID: id, Err: errIDChanged(updated.ID)}
	}
	if updated.Revision < n.obj.Revision {
		return nil, &models.PatchDecodeFailure{ID: id, Err: errRevisionRegressed(n.obj.Revision, updated.Revision)}
	}

	stored, _ := s.put(updated)
	return stored, nil
}

// Revisions returns the (id, revision) list in insertion order.
func (s *Store) Revisions() []models.RevisionEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RevisionEntry, 0, len(s.items))
	for n := s.head.next; n != s.tail; n = n.next {
		out = append(out, n.obj.Entry())
	}
	return out
}

// AggregateHash returns the order-independent digest of the stored
// (id, revision) set.
func (s *Store) AggregateHash() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.FormatHash(s.sum)
}

// Digest is a consistent view of the store's revision state.
type Digest struct {
	Entries []models.RevisionEntry
	Hash    string
	Seq     uint64
}

// Digest returns the revision list, aggregate hash and mutation counter
// read under a single lock acquisition.
func (s *Store) Digest() Digest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.digest()
}

// Baseline returns the Digest a reconcile pass commits against and forgets
// the removals recorded before it. Removals after the baseline make
// Tx.PutUnlessNewer refuse the id. One pass at a time may hold a baseline.
func (s *Store) Baseline() Digest {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.removed)
	return s.digest()
}

// digest must be called with mu held.
func (s *Store) digest() Digest {
	d := Digest{
		Entries: make([]models.RevisionEntry, 0, len(s.items)),
		Hash:    models.FormatHash(s.sum),
		Seq:     s.seq,
	}
	for n := s.head.next; n != s.tail; n = n.next {
		d.Entries = append(d.Entries, n.obj.Entry())
	}
	return d
}

// Seq returns the current mutation counter. Objects written after a call
// to Seq carry a larger Seq.
func (s *Store) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// put must be called with mu held.
func (s *Store) put(obj *models.TrackedObject) (*models.TrackedObject, bool) {
	delete(s.removed, obj.ID)
	if n, exists := s.items[obj.ID]; exists {
		if obj.Revision < n.obj.Revision {
			return n.obj, false
		}
		s.seq++
		stored := obj.WithSeq(s.seq)
		s.sum -= models.EntryHash(n.obj.ID, n.obj.Revision)
		s.sum += models.EntryHash(stored.ID, stored.Revision)
		n.obj = stored
		return stored, true
	}

	s.seq++
	stored := obj.WithSeq(s.seq)
	n := &node{obj: stored, prev: s.tail.prev, next: s.tail}
	s.tail.prev.next = n
	s.tail.prev = n
	s.items[stored.ID] = n
	s.sum += models.EntryHash(stored.ID, stored.Revision)
	return stored, true
}

// remove must be called with mu held.
func (s *Store) remove(id string) (*models.TrackedObject, bool) {
	n, exists := s.items[id]
	if !exists {
		return nil, false
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	delete(s.items, id)
	s.sum -= models.EntryHash(n.obj.ID, n.obj.Revision)
	s.seq++
	s.removed[id] = s.seq
	return n.obj, true
}

func (s *Store) invalidate() {
	s.snapshot.Store(nil)
}
