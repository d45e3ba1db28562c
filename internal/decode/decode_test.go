// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package decode

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/regionsync/internal/jsonvalue"
	"github.com/tomtom215/regionsync/internal/metrics"
	"github.com/tomtom215/regionsync/internal/models"
)

func TestObject(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		check   func(t *testing.T, obj *models.TrackedObject)
	}{
		{
			name:  "minimal",
			input: `{"id":"a1","revision":3,"parent":"box"}`,
			check: func(t *testing.T, obj *models.TrackedObject) {
				if obj.ID != "a1" || obj.Revision != 3 || obj.Parent != "box" || obj.Location != nil {
					t.Errorf("got %+v", obj)
				}
			},
		},
		{
			name:  "unknown fields kept",
			input: `{"id":"a1","revision":0,"parent":"","name":"lamp","tags":["x"]}`,
			check: func(t *testing.T, obj *models.TrackedObject) {
				if name, _ := jsonvalue.AsString(obj.Body["name"]); name != "lamp" {
					t.Errorf("name = %q", name)
				}
				if _, ok := obj.Body["tags"]; !ok {
					t.Error("tags dropped")
				}
			},
		},
		{
			name:  "location",
			input: `{"id":"a1","revision":1,"parent":"","location":{"lat":47.37,"lon":8.54}}`,
			check: func(t *testing.T, obj *models.TrackedObject) {
				if obj.Location == nil || obj.Location.Lat != 47.37 || obj.Location.Lon != 8.54 {
					t.Errorf("location = %+v", obj.Location)
				}
			},
		},
		{
			name:  "null location",
			input: `{"id":"a1","revision":1,"parent":"","location":null}`,
			check: func(t *testing.T, obj *models.TrackedObject) {
				if obj.Location != nil {
					t.Errorf("location = %+v, want nil", obj.Location)
				}
			},
		},
		{name: "not an object", input: `[1,2]`, wantErr: true},
		{name: "missing id", input: `{"revision":1,"parent":""}`, wantErr: true},
		{name: "empty id", input: `{"id":"","revision":1,"parent":""}`, wantErr: true},
		{name: "numeric id", input: `{"id":7,"revision":1,"parent":""}`, wantErr: true},
		{name: "missing revision", input: `{"id":"a","parent":""}`, wantErr: true},
		{name: "negative revision", input: `{"id":"a","revision":-1,"parent":""}`, wantErr: true},
		{name: "fractional revision", input: `{"id":"a","revision":1.5,"parent":""}`, wantErr: true},
		{name: "string revision", input: `{"id":"a","revision":"1","parent":""}`, wantErr: true},
		{name: "missing parent", input: `{"id":"a","revision":1}`, wantErr: true},
		{name: "null parent", input: `{"id":"a","revision":1,"parent":null}`, wantErr: true},
		{name: "latitude out of range", input: `{"id":"a","revision":1,"parent":"","location":{"lat":95,"lon":0}}`, wantErr: true},
		{name: "location missing lon", input: `{"id":"a","revision":1,"parent":"","location":{"lat":5}}`, wantErr: true},
		{name: "location wrong type", input: `{"id":"a","revision":1,"parent":"","location":"here"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := Object(jsonvalue.MustParse(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Object() = %+v, want error", obj)
				}
				return
			}
			if err != nil {
				t.Fatalf("Object() error = %v", err)
			}
			tt.check(t, obj)
		})
	}
}

func TestDecodeOneWrapsError(t *testing.T) {
	_, err := DecodeOne(jsonvalue.MustParse(`{"id":"x","revision":"bad","parent":""}`), Object)
	var derr *models.DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("DecodeOne() error = %v, want *DecodeError", err)
	}
	if derr.Index != -1 || derr.ID != "x" {
		t.Errorf("DecodeError = %+v", derr)
	}
}

func TestDecodeManyDropsInvalid(t *testing.T) {
	items, _ := jsonvalue.AsArray(jsonvalue.MustParse(`[
		{"id":"A","revision":1,"parent":""},
		{"id":"broken"},
		{"id":"B","revision":2,"parent":""}
	]`))

	drops := metrics.DecodeDropped.WithLabelValues("test")
	before := testutil.ToFloat64(drops)

	got := DecodeMany(items, Object, "test")
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "A" || got[1].ID != "B" {
		t.Errorf("order = [%s %s], want [A B]", got[0].ID, got[1].ID)
	}
	if after := testutil.ToFloat64(drops); after != before+1 {
		t.Errorf("drop counter = %v, want %v", after, before+1)
	}
}

func TestDecodeManyNeverFails(t *testing.T) {
	items := jsonvalue.Array{jsonvalue.Null{}, jsonvalue.String("x"), jsonvalue.Int(1)}
	if got := DecodeMany(items, Object, "test"); len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
	if got := DecodeMany(nil, Object, "test"); got == nil || len(got) != 0 {
		t.Errorf("DecodeMany(nil) = %v, want empty slice", got)
	}
}

func TestObjects(t *testing.T) {
	got, err := Objects([]byte(`[{"id":"A","revision":1,"parent":""}, 42, {"id":"C","revision":1,"parent":"A"}]`))
	if err != nil {
		t.Fatalf("Objects() error = %v", err)
	}
	if len(got) != 2 || got[1].Parent != "A" {
		t.Errorf("Objects() = %+v", got)
	}

	if _, err := Objects([]byte(`{"id":"A"}`)); !errors.Is(err, ErrNotArray) {
		t.Errorf("Objects(object) error = %v, want ErrNotArray", err)
	}
	if _, err := Objects([]byte(`[`)); err == nil {
		t.Error("Objects(truncated) succeeded")
	}
}
