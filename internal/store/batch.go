// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package store

import (
	"fmt"

	"github.com/tomtom215/regionsync/internal/jsonvalue"
	"github.com/tomtom215/regionsync/internal/models"
)

// Tx applies several writes under one lock acquisition. Readers see either
// none or all of them.
type Tx struct {
	s       *Store
	changed []string
}

// Batch runs fn with a transaction and returns the ids it changed, in the
// order they were changed. An id changed twice is reported twice.
func (s *Store) Batch(fn func(tx *Tx)) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Tx{s: s}
	fn(tx)
	if len(tx.changed) > 0 {
		s.invalidate()
	}
	return tx.changed
}

// Put behaves like Store.Put.
func (tx *Tx) Put(obj *models.TrackedObject) bool {
	_, ok := tx.s.put(obj)
	if ok {
		tx.changed = append(tx.changed, obj.ID)
	}
	return ok
}

// PutUnlessNewer puts obj unless the stored object was written after
// baseline and is at least as recent as obj, or id was removed after
// baseline.
func (tx *Tx) PutUnlessNewer(obj *models.TrackedObject, baseline uint64) bool {
	if seq, ok := tx.s.removed[obj.ID]; ok && seq > baseline {
		return false
	}
	if n, ok := tx.s.items[obj.ID]; ok && n.obj.Seq > baseline && n.obj.Revision >= obj.Revision {
		return false
	}
	return tx.Put(obj)
}

// Remove behaves like Store.Remove.
func (tx *Tx) Remove(id string) bool {
	_, ok := tx.s.remove(id)
	if ok {
		tx.changed = append(tx.changed, id)
	}
	return ok
}

// RemoveUnlessNewer removes id unless it was written after baseline.
func (tx *Tx) RemoveUnlessNewer(id string, baseline uint64) bool {
	if n, ok := tx.s.items[id]; ok && n.obj.Seq > baseline {
		return false
	}
	return tx.Remove(id)
}

// ApplyPatch behaves like Store.ApplyPatch.
func (tx *Tx) ApplyPatch(id string, patch jsonvalue.Value) (*models.TrackedObject, error) {
	updated, err := tx.s.applyPatch(id, patch)
	if updated != nil {
		tx.changed = append(tx.changed, id)
	}
	return updated, err
}

// Get returns the stored object without taking the lock again.
func (tx *Tx) Get(id string) (*models.TrackedObject, bool) {
	n, ok := tx.s.items[id]
	if !ok {
		return nil, false
	}
	return n.obj, true
}

func errIDChanged(got string) error {
	return fmt.Errorf("patch changed id to %q", got)
}

func errRevisionRegressed(from, to uint64) error {
	return fmt.Errorf("patch lowered revision from %d to %d", from, to)
}
