// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package decode

import (
	"fmt"

	"github.com/tomtom215/regionsync/internal/jsonvalue"
	"github.com/tomtom215/regionsync/internal/models"
	"github.com/tomtom215/regionsync/internal/validation"
)

// header holds the fields lifted out of an object body.
type header struct {
	ID       string          `validate:"required,objectid"`
	Revision *uint64         `validate:"required"`
	Parent   *string         `validate:"required"`
	Location *locationHeader `validate:"omitempty"`
}

type locationHeader struct {
	Lat *float64 `validate:"required,latitude"`
	Lon *float64 `validate:"required,longitude"`
}

// Object decodes a TrackedObject from a JSON value.
//
// The value must be an object with a string id, a non-negative integer
// revision and a string parent. location is optional; when present and
// not null it must carry numeric lat and lon. Every other field is kept in
// the body untouched.
func Object(v jsonvalue.Value) (*models.TrackedObject, error) {
	body, ok := jsonvalue.AsObject(v)
	if !ok {
		return nil, fmt.Errorf("expected object, got %s", kindOf(v))
	}

	var h header
	var err error
	if h.ID, err = stringField(body, "id"); err != nil {
		return nil, err
	}
	if raw, present := body["revision"]; present {
		n, ok := jsonvalue.AsNumber(raw)
		if !ok {
			return nil, fmt.Errorf("revision: expected number, got %s", kindOf(raw))
		}
		rev, err := n.Uint64()
		if err != nil {
			return nil, fmt.Errorf("revision: %q is not a non-negative integer", string(n))
		}
		h.Revision = &rev
	}
	if raw, present := body["parent"]; present {
		p, ok := jsonvalue.AsString(raw)
		if !ok {
			return nil, fmt.Errorf("parent: expected string, got %s", kindOf(raw))
		}
		h.Parent = &p
	}
	if raw, present := body["location"]; present && !jsonvalue.IsNull(raw) {
		loc, err := locationField(raw)
		if err != nil {
			return nil, err
		}
		h.Location = loc
	}

	if err := validation.ValidateStruct(&h); err != nil {
		return nil, err
	}

	obj := &models.TrackedObject{
		ID:       h.ID,
		Revision: *h.Revision,
		Parent:   *h.Parent,
		Body:     body,
	}
	if h.Location != nil {
		obj.Location = &models.Location{Lat: *h.Location.Lat, Lon: *h.Location.Lon}
	}
	return obj, nil
}

func stringField(body jsonvalue.Object, key string) (string, error) {
	raw, present := body[key]
	if !present {
		return "", nil
	}
	s, ok := jsonvalue.AsString(raw)
	if !ok {
		return "", fmt.Errorf("%s: expected string, got %s", key, kindOf(raw))
	}
	return s, nil
}

func locationField(raw jsonvalue.Value) (*locationHeader, error) {
	obj, ok := jsonvalue.AsObject(raw)
	if !ok {
		return nil, fmt.Errorf("location: expected object, got %s", kindOf(raw))
	}
	var loc locationHeader
	for key, dst := range map[string]**float64{"lat": &loc.Lat, "lon": &loc.Lon} {
		v, present := obj[key]
		if !present {
			continue
		}
		n, ok := jsonvalue.AsNumber(v)
		if !ok {
			return nil, fmt.Errorf("location.%s: expected number, got %s", key, kindOf(v))
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("location.%s: %w", key, err)
		}
		*dst = &f
	}
	return &loc, nil
}

func kindOf(v jsonvalue.Value) string {
	if v == nil {
		return "null"
	}
	return v.Kind().String()
}
