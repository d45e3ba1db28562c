// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

/*
Package region owns the set of active regions, routes live events into
them and notifies observers of applied changes.

# Regions

A Region mirrors one scope (inventory, children_of, geo_group). It owns one
object store, one reconciler and one write mutex. Every writer, live event
or reconcile pass, takes the mutex; observers are called after it is
released with the ids that changed. Readers use the store's snapshots and
never wait for the mutex.

# Live events

Events are applied in arrival order, one at a time:

  - Insert puts the decoded payload into every region whose scope matches
    and removes it from regions that hold it but no longer match.
  - Update merge-patches the object in every region holding it and then
    re-routes the result the same way. An unknown id is ignored.
  - Remove deletes the id everywhere.
  - Reparent is an Update of the parent field.

Payloads or patches that fail to decode are dropped, surfaced through the
warning handler and recorded in the rejection journal.

# Lifecycle

A region is created on first access and torn down when its last observer
unsubscribes. Tear-down cancels an in-flight reconcile pass, whose fetched
results are discarded. The next access builds a fresh region.
*/
package region
