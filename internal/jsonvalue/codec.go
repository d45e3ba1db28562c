// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package jsonvalue

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// ErrTrailingData is returned by Parse when bytes follow the first value.
var ErrTrailingData = errors.New("jsonvalue: trailing data after value")

// Parse decodes exactly one JSON value.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("jsonvalue: parse: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, ErrTrailingData
	}
	return fromRaw(raw)
}

// MustParse is Parse for literals in tests and fixtures; it panics on error.
func MustParse(s string) Value {
	v, err := Parse([]byte(s))
	if err != nil {
		panic(err)
	}
	return v
}

// FromGo converts any JSON-marshalable Go value into a Value.
func FromGo(x any) (Value, error) {
	if v, ok := x.(Value); ok {
		return v, nil
	}
	data, err := json.Marshal(x)
	if err != nil {
		return nil, fmt.Errorf("jsonvalue: marshal %T: %w", x, err)
	}
	return Parse(data)
}

func fromRaw(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(x), nil
	case json.Number:
		return Number(x.String()), nil
	case float64:
		return Float(x), nil
	case string:
		return String(x), nil
	case []any:
		arr := make(Array, len(x))
		for i, el := range x {
			v, err := fromRaw(el)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			arr[i] = v
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(x))
		for k, el := range x {
			v, err := fromRaw(el)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			obj[k] = v
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("jsonvalue: unsupported decoded type %T", raw)
	}
}

// Marshal encodes v with object keys sorted, so equal values always encode
// to identical bytes.
func Marshal(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v Value) error {
	switch x := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case Bool:
		if x {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		if x == "" {
			buf.WriteString("0")
			return nil
		}
		buf.WriteString(string(x))
	case String:
		b, err := json.Marshal(string(x))
		if err != nil {
			return err
		}
		buf.Write(b)
	case Array:
		buf.WriteByte('[')
		for i, el := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, el); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, k := range x.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encode(buf, x[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("jsonvalue: cannot encode %T", v)
	}
	return nil
}

// Stringify renders v as compact JSON; encoding errors render as "<invalid>".
func Stringify(v Value) string {
	b, err := Marshal(v)
	if err != nil {
		return "<invalid>"
	}
	return string(b)
}

func (n Null) MarshalJSON() ([]byte, error)   { return Marshal(n) }
func (b Bool) MarshalJSON() ([]byte, error)   { return Marshal(b) }
func (n Number) MarshalJSON() ([]byte, error) { return Marshal(n) }
func (s String) MarshalJSON() ([]byte, error) { return Marshal(s) }
func (a Array) MarshalJSON() ([]byte, error)  { return Marshal(a) }
func (o Object) MarshalJSON() ([]byte, error) { return Marshal(o) }

// UnmarshalJSON lets Object be used directly as a struct field.
func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := Parse(data)
	if err != nil {
		return err
	}
	if IsNull(v) {
		return nil
	}
	obj, ok := v.(Object)
	if !ok {
		return fmt.Errorf("jsonvalue: expected object, got %s", v.Kind())
	}
	*o = obj
	return nil
}
