// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

// Package decode implements tolerant decoding of remote records.
//
// A single malformed element never fails a collection: DecodeMany drops it,
// logs the reason and keeps the remaining elements in their original order.
package decode

import (
	"errors"
	"fmt"

	"github.com/tomtom215/regionsync/internal/jsonvalue"
	"github.com/tomtom215/regionsync/internal/logging"
	"github.com/tomtom215/regionsync/internal/metrics"
	"github.com/tomtom215/regionsync/internal/models"
)

// ErrNotArray is returned by Objects when the envelope is not a JSON array.
var ErrNotArray = errors.New("expected a JSON array")

// DecodeOne runs fn on v and wraps any failure in a *models.DecodeError.
func DecodeOne[T any](v jsonvalue.Value, fn func(jsonvalue.Value) (T, error)) (T, error) {
	out, err := fn(v)
	if err != nil {
		var zero T
		return zero, wrap(-1, v, err)
	}
	return out, nil
}

// DecodeMany decodes every element with fn and never fails. Elements that
// do not decode are dropped; survivors keep their relative order. kind
// labels the drop metric.
func DecodeMany[T any](items []jsonvalue.Value, fn func(jsonvalue.Value) (T, error), kind string) []T {
	out := make([]T, 0, len(items))
	for i, item := range items {
		v, err := fn(item)
		if err != nil {
			derr := wrap(i, item, err)
			metrics.RecordDecodeDrop(kind)
			logging.Warn().
				Str("kind", kind).
				Int("index", i).
				Str("id", derr.ID).
				Err(err).
				Msg("Dropping element that failed to decode")
			continue
		}
		out = append(out, v)
	}
	return out
}

func wrap(index int, v jsonvalue.Value, err error) *models.DecodeError {
	var existing *models.DecodeError
	if errors.As(err, &existing) {
		err = existing.Err
	}
	return &models.DecodeError{Index: index, ID: peekID(v), Err: err}
}

// peekID extracts a string id for diagnostics, if there is one.
func peekID(v jsonvalue.Value) string {
	obj, ok := jsonvalue.AsObject(v)
	if !ok {
		return ""
	}
	id, _ := jsonvalue.AsString(obj["id"])
	return id
}

// Objects parses a raw JSON array of objects and decodes it tolerantly.
// Only an unparseable or non-array envelope is an error.
func Objects(raw []byte) ([]*models.TrackedObject, error) {
	v, err := jsonvalue.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse object list: %w", err)
	}
	arr, ok := jsonvalue.AsArray(v)
	if !ok {
		return nil, fmt.Errorf("%w, got %s", ErrNotArray, v.Kind())
	}
	return DecodeMany(arr, Object, "object"), nil
}
