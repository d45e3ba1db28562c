// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package reconcile

import (
	"github.com/tomtom215/regionsync/internal/decode"
	"github.com/tomtom215/regionsync/internal/jsonvalue"
	"github.com/tomtom215/regionsync/internal/models"
)

// Diff compares the local revision list with the remote one. toFetch holds
// ids missing locally or carrying a higher remote revision, in remote
// order. toRemove holds ids missing remotely, in local order. When the
// remote list repeats an id the last entry wins.
func Diff(local, remote []models.RevisionEntry) (toFetch, toRemove []string) {
	localRev := make(map[string]uint64, len(local))
	for _, e := range local {
		localRev[e.ID] = e.Revision
	}

	remoteRev := make(map[string]uint64, len(remote))
	order := make([]string, 0, len(remote))
	for _, e := range remote {
		if _, seen := remoteRev[e.ID]; !seen {
			order = append(order, e.ID)
		}
		remoteRev[e.ID] = e.Revision
	}

	for _, id := range order {
		rev, ok := localRev[id]
		if !ok || remoteRev[id] > rev {
			toFetch = append(toFetch, id)
		}
	}
	for _, e := range local {
		if _, ok := remoteRev[e.ID]; !ok {
			toRemove = append(toRemove, e.ID)
		}
	}
	return toFetch, toRemove
}

func decodeObjects(values []jsonvalue.Value) []*models.TrackedObject {
	return decode.DecodeMany(values, decode.Object, "object")
}
