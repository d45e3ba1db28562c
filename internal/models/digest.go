// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package models

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// RevisionEntry is one (id, revision) pair of a revision list.
type RevisionEntry struct {
	ID       string `json:"id" validate:"required"`
	Revision uint64 `json:"revision"`
}

// RevisionPage is one page of a remote revision list. NextToken is empty on
// the last page.
type RevisionPage struct {
	Entries   []RevisionEntry `json:"entries"`
	NextToken string          `json:"next_token,omitempty"`
}

// SyncDigest is the remote's notion of a region's contents.
type SyncDigest struct {
	Hash    string          `json:"hash"`
	Entries []RevisionEntry `json:"entries,omitempty"`
}

// EmptyHash is the aggregate hash of an empty region.
const EmptyHash = "0000000000000000"

// EntryHash hashes a single (id, revision) pair.
func EntryHash(id string, revision uint64) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(id)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(strconv.FormatUint(revision, 10))
	return d.Sum64()
}

// AggregateHash folds entries into the region digest. Addition modulo 2^64
// is commutative, so the result does not depend on entry order.
func AggregateHash(entries []RevisionEntry) string {
	var sum uint64
	for _, e := range entries {
		sum += EntryHash(e.ID, e.Revision)
	}
	return FormatHash(sum)
}

// FormatHash renders an accumulated sum as 16 hex digits.
func FormatHash(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}
