// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package models

import (
	"github.com/tomtom215/regionsync/internal/jsonvalue"
)

// Location is an optional WGS84 position carried by geo-discoverable objects.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// TrackedObject is one remote record as held by a region's store.
//
// ID, Revision and Parent are lifted out of Body by the tolerant decoder;
// Body keeps every field, including unknown ones, so merge patches can be
// applied to the full document.
type TrackedObject struct {
	ID       string
	Revision uint64
	Parent   string
	Location *Location
	Body     jsonvalue.Object

	// Seq is the store-local mutation counter assigned when the object was
	// last written. It is unrelated to the remote Revision.
	Seq uint64
}

// WithSeq returns a copy of o stamped with seq. Stored objects are never
// modified in place.
func (o *TrackedObject) WithSeq(seq uint64) *TrackedObject {
	cp := *o
	if o.Location != nil {
		loc := *o.Location
		cp.Location = &loc
	}
	cp.Seq = seq
	return &cp
}

// Entry returns the (id, revision) pair used for digests.
func (o *TrackedObject) Entry() RevisionEntry {
	return RevisionEntry{ID: o.ID, Revision: o.Revision}
}

// MarshalJSON renders the full body, which is what renderers consume.
func (o *TrackedObject) MarshalJSON() ([]byte, error) {
	return jsonvalue.Marshal(o.Body)
}
