// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

// Package mergepatch applies RFC 7386 JSON merge patches to jsonvalue trees.
//
// Semantics:
//   - A non-object patch replaces the target wholesale (arrays included).
//   - An object patch merges into the target when the target is an object,
//     or into an empty object otherwise.
//   - A null member deletes the corresponding target member.
//   - Other members recurse.
//
// Apply never mutates its inputs.
package mergepatch

import (
	"fmt"

	"github.com/tomtom215/regionsync/internal/jsonvalue"
)

// Apply returns the result of merging patch into base.
func Apply(base, patch jsonvalue.Value) jsonvalue.Value {
	p, ok := jsonvalue.AsObject(patch)
	if !ok {
		if patch == nil {
			return jsonvalue.Null{}
		}
		return patch
	}

	var result jsonvalue.Object
	if b, ok := jsonvalue.AsObject(base); ok {
		result = b.Clone()
	} else {
		result = make(jsonvalue.Object, len(p))
	}

	for key, pv := range p {
		if jsonvalue.IsNull(pv) {
			delete(result, key)
			continue
		}
		current, exists := result[key]
		if !exists {
			current = jsonvalue.Null{}
		}
		result[key] = Apply(current, pv)
	}
	return result
}

// ApplyBytes parses base and patch, applies the patch and returns canonical
// JSON.
func ApplyBytes(base, patch []byte) ([]byte, error) {
	b, err := jsonvalue.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("merge patch base: %w", err)
	}
	p, err := jsonvalue.Parse(patch)
	if err != nil {
		return nil, fmt.Errorf("merge patch document: %w", err)
	}
	return jsonvalue.Marshal(Apply(b, p))
}

// Diff builds a merge patch that turns from into to. Apply(from, Diff(from,
// to)) is Equal to to for every pair except when to contains explicit null
// members, which merge patches cannot express.
func Diff(from, to jsonvalue.Value) jsonvalue.Value {
	f, fok := jsonvalue.AsObject(from)
	t, tok := jsonvalue.AsObject(to)
	if !fok || !tok {
		return to
	}

	patch := jsonvalue.Object{}
	for key := range f {
		if _, ok := t[key]; !ok {
			patch[key] = jsonvalue.Null{}
		}
	}
	for key, tv := range t {
		fv, ok := f[key]
		if !ok {
			patch[key] = tv
			continue
		}
		if jsonvalue.Equal(fv, tv) {
			continue
		}
		patch[key] = Diff(fv, tv)
	}
	return patch
}
