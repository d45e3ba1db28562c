// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is shared process-wide; it caches struct
// metadata, so decoding thousands of object headers per reconcile pass does
// not re-reflect the header type.
//
// Custom tags:
//   - scopekey: a string parseable by models.ParseScopeKey
//   - objectid: a non-empty id without whitespace or '/'
//
// Usage:
//
//	type header struct {
//	    ID       string  `validate:"required,objectid"`
//	    Revision *uint64 `validate:"required"`
//	}
//	if err := validation.ValidateStruct(&h); err != nil {
//	    return err
//	}
package validation
