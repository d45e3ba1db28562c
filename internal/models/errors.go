// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package models

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelDisconnected marks a push channel loss. It is recorded, not
	// returned to callers: the reconnect path reconciles every region.
	ErrChannelDisconnected = errors.New("push channel disconnected")

	// ErrHashMismatch means the local digest still differs from the remote
	// digest after applying a reconcile pass. It is transient.
	ErrHashMismatch = errors.New("aggregate hash mismatch after reconcile")

	// ErrRegionClosed is returned when a torn-down region is used.
	ErrRegionClosed = errors.New("region closed")
)

// DecodeError reports one record that could not be decoded. Index is the
// position in the source collection, or -1 for a standalone value.
type DecodeError struct {
	Index int
	ID    string
	Err   error
}

func (e *DecodeError) Error() string {
	switch {
	case e.Index >= 0 && e.ID != "":
		return fmt.Sprintf("decode element %d (id %q): %v", e.Index, e.ID, e.Err)
	case e.Index >= 0:
		return fmt.Sprintf("decode element %d: %v", e.Index, e.Err)
	case e.ID != "":
		return fmt.Sprintf("decode object %q: %v", e.ID, e.Err)
	default:
		return fmt.Sprintf("decode object: %v", e.Err)
	}
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PatchDecodeFailure reports a merge patch whose result no longer decodes
// as a TrackedObject. The stored object is left unchanged.
type PatchDecodeFailure struct {
	ID  string
	Err error
}

func (e *PatchDecodeFailure) Error() string {
	return fmt.Sprintf("patched object %q failed to decode: %v", e.ID, e.Err)
}

func (e *PatchDecodeFailure) Unwrap() error { return e.Err }

// TransportError is a network, protocol or server failure talking to the
// remote store. StatusCode is 0 when no HTTP response was received.
type TransportError struct {
	Op         string
	Scope      string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport %s %s: status %d: %v", e.Op, e.Scope, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Scope, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ScopePermissionError means the caller may not read the scope. It is
// surfaced immediately and never retried.
type ScopePermissionError struct {
	Scope  string
	Reason string
}

func (e *ScopePermissionError) Error() string {
	return fmt.Sprintf("not permitted to read scope %s: %s", e.Scope, e.Reason)
}

// IsPermission reports whether err is or wraps a ScopePermissionError.
func IsPermission(err error) bool {
	var pe *ScopePermissionError
	return errors.As(err, &pe)
}

// IsTransport reports whether err is or wraps a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
