// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

/*
Package models defines the data shared by every regionsync component.

Key Types:

  - Scope: which slice of remote state a region mirrors (inventory,
    children_of a container, geo_group inside a bounding box) plus the
    routing predicate Matches.
  - TrackedObject: one decoded remote record (id, revision, parent,
    optional location) with its full JSON body.
  - RevisionEntry, RevisionPage, SyncDigest: the reconciliation wire model.
  - LiveEvent: the sealed set of push-channel operations (Insert, Update,
    Remove, Reparent) and DecodeFrame for the wire form.
  - Errors: DecodeError, PatchDecodeFailure, TransportError,
    ScopePermissionError and the sentinel errors of the engine.

Aggregate Hash:

AggregateHash is the order-independent digest used to detect drift. It is
the wrapping uint64 sum of xxhash64(id || 0x00 || decimal(revision)) over
every entry, rendered as 16 lower-case hex digits. Servers must compute the
same function for the hash endpoint.

All values in this package are immutable after construction and safe to
share between the push and reconcile goroutines.
*/
package models
