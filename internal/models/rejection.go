// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package models

import "time"

// RejectReason classifies a rejected live event.
type RejectReason string

const (
	RejectDecode      RejectReason = "decode_failed"
	RejectPatchDecode RejectReason = "patch_decode_failed"
	RejectIDMismatch  RejectReason = "id_mismatch"
	RejectFrame       RejectReason = "invalid_frame"
)

// Rejection records a live event that could not be applied. The event is
// dropped; the next reconcile pass restores consistency.
type Rejection struct {
	ID         string       `json:"id"`
	ObjectID   string       `json:"object_id,omitempty"`
	EventType  EventType    `json:"event_type,omitempty"`
	Reason     RejectReason `json:"reason"`
	Error      string       `json:"error"`
	Regions    []string     `json:"regions,omitempty"`
	ReceivedAt time.Time    `json:"received_at"`
}
