// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

/*
Package reconcile implements the hash/sync protocol that brings a region's
store in line with the remote store.

One attempt:

 1. fetch the remote aggregate hash
 2. compare it with the local aggregate hash; equal means nothing to do
 3. page through the remote revision list and diff it against the local one
 4. fetch payloads for new or newer ids in batches and decode them tolerantly
 5. apply every put and remove in one store batch under the region lock
 6. recompute the local hash; a mismatch is reported as ErrHashMismatch

No network call is made while the region lock is held. Live events may
mutate the store between steps 1 and 5; objects written after the diff
baseline are neither overwritten with older data nor removed, and the hash
recheck turns the resulting drift into a retry.

Transport failures and hash mismatches are retried with capped exponential
backoff. Permission errors and cancellation are returned immediately.
*/
package reconcile
