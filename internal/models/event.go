// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package models

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/regionsync/internal/jsonvalue"
)

// EventType names a live event variant on the wire.
type EventType string

const (
	EventInsert   EventType = "insert"
	EventUpdate   EventType = "update"
	EventRemove   EventType = "remove"
	EventReparent EventType = "reparent"
)

// LiveEvent is one ordered change delivered by the push channel. The
// concrete type is one of Insert, Update, Remove or Reparent.
type LiveEvent interface {
	// ObjectID is the id of the object the event targets.
	ObjectID() string
	// Type is the wire name of the variant.
	Type() EventType
}

// Insert carries a full object payload.
type Insert struct {
	ID      string
	Parent  string
	Payload jsonvalue.Value
}

// Update carries a merge patch for an existing object.
type Update struct {
	ID    string
	Patch jsonvalue.Value
}

// Remove deletes an object from every region.
type Remove struct {
	ID     string
	Parent string
}

// Reparent moves an object under a new parent.
type Reparent struct {
	ID        string
	NewParent string
}

func (e Insert) ObjectID() string   { return e.ID }
func (e Update) ObjectID() string   { return e.ID }
func (e Remove) ObjectID() string   { return e.ID }
func (e Reparent) ObjectID() string { return e.ID }

func (Insert) Type() EventType   { return EventInsert }
func (Update) Type() EventType   { return EventUpdate }
func (Remove) Type() EventType   { return EventRemove }
func (Reparent) Type() EventType { return EventReparent }

// Frame is the wire form of a live event.
//
//	{"type":"insert","id":"a1","parent":"box","payload":{...}}
//	{"type":"update","id":"a1","patch":{"name":"new"}}
//	{"type":"remove","id":"a1","parent":"box"}
//	{"type":"reparent","id":"a1","parent":"other-box"}
type Frame struct {
	Type    EventType       `json:"type"`
	ID      string          `json:"id"`
	Parent  string          `json:"parent,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Patch   json.RawMessage `json:"patch,omitempty"`
}

// ErrInvalidFrame wraps every frame decoding failure.
var ErrInvalidFrame = errors.New("invalid live event frame")

// DecodeFrame parses one wire frame into its LiveEvent variant.
func DecodeFrame(data []byte) (LiveEvent, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	return f.Event()
}

// Event converts the frame into its LiveEvent variant.
func (f *Frame) Event() (LiveEvent, error) {
	if f.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidFrame)
	}

	switch f.Type {
	case EventInsert:
		payload, err := parseObjectField("payload", f.Payload)
		if err != nil {
			return nil, err
		}
		return Insert{ID: f.ID, Parent: f.Parent, Payload: payload}, nil
	case EventUpdate:
		patch, err := parseObjectField("patch", f.Patch)
		if err != nil {
			return nil, err
		}
		return Update{ID: f.ID, Patch: patch}, nil
	case EventRemove:
		return Remove{ID: f.ID, Parent: f.Parent}, nil
	case EventReparent:
		return Reparent{ID: f.ID, NewParent: f.Parent}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidFrame, f.Type)
	}
}

func parseObjectField(name string, raw json.RawMessage) (jsonvalue.Value, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidFrame, name)
	}
	v, err := jsonvalue.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFrame, name, err)
	}
	if v.Kind() != jsonvalue.KindObject {
		return nil, fmt.Errorf("%w: %s must be an object, got %s", ErrInvalidFrame, name, v.Kind())
	}
	return v, nil
}

// EncodeFrame renders a LiveEvent in wire form. Push sources never need
// it; test servers and tooling do.
func EncodeFrame(ev LiveEvent) ([]byte, error) {
	f := Frame{Type: ev.Type(), ID: ev.ObjectID()}
	switch e := ev.(type) {
	case Insert:
		f.Parent = e.Parent
		b, err := jsonvalue.Marshal(e.Payload)
		if err != nil {
			return nil, err
		}
		f.Payload = b
	case Update:
		b, err := jsonvalue.Marshal(e.Patch)
		if err != nil {
			return nil, err
		}
		f.Patch = b
	case Remove:
		f.Parent = e.Parent
	case Reparent:
		f.Parent = e.NewParent
	}
	return json.Marshal(f)
}
