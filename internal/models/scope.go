// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ScopeKind identifies the kind of region.
type ScopeKind string

const (
	ScopeInventory  ScopeKind = "inventory"
	ScopeChildrenOf ScopeKind = "children_of"
	ScopeGeoGroup   ScopeKind = "geo_group"
)

// Bounds is an inclusive latitude/longitude box. MinLon must not exceed
// MaxLon; boxes crossing the antimeridian are expressed as two regions.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether loc lies inside b.
func (b Bounds) Contains(loc Location) bool {
	return loc.Lat >= b.MinLat && loc.Lat <= b.MaxLat &&
		loc.Lon >= b.MinLon && loc.Lon <= b.MaxLon
}

// Scope describes the slice of remote state a region mirrors.
type Scope struct {
	Kind     ScopeKind `json:"kind"`
	ParentID string    `json:"parent_id,omitempty"`
	Bounds   Bounds    `json:"bounds,omitempty"`
}

// Inventory returns the scope of every object the user owns.
func Inventory() Scope {
	return Scope{Kind: ScopeInventory}
}

// ChildrenOf returns the scope of objects whose parent is parentID.
func ChildrenOf(parentID string) Scope {
	return Scope{Kind: ScopeChildrenOf, ParentID: parentID}
}

// GeoGroup returns the scope of located objects inside b.
func GeoGroup(b Bounds) Scope {
	return Scope{Kind: ScopeGeoGroup, Bounds: b}
}

// Validate checks the scope is well formed.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeInventory:
		return nil
	case ScopeChildrenOf:
		if s.ParentID == "" {
			return errors.New("children_of scope requires a parent id")
		}
		if strings.Contains(s.ParentID, "/") {
			return fmt.Errorf("children_of parent id %q must not contain '/'", s.ParentID)
		}
		return nil
	case ScopeGeoGroup:
		b := s.Bounds
		if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
			return fmt.Errorf("geo_group bounds are inverted: %+v", b)
		}
		if b.MinLat < -90 || b.MaxLat > 90 || b.MinLon < -180 || b.MaxLon > 180 {
			return fmt.Errorf("geo_group bounds out of range: %+v", b)
		}
		return nil
	default:
		return fmt.Errorf("unknown scope kind %q", s.Kind)
	}
}

// Key returns a stable identifier used for region lookup, metrics labels
// and transport URLs.
//
//	inventory
//	children_of:box-17
//	geo_group:47.1,8.2,47.9,9.0
func (s Scope) Key() string {
	switch s.Kind {
	case ScopeChildrenOf:
		return string(ScopeChildrenOf) + ":" + s.ParentID
	case ScopeGeoGroup:
		b := s.Bounds
		return fmt.Sprintf("%s:%s,%s,%s,%s", ScopeGeoGroup,
			formatCoord(b.MinLat), formatCoord(b.MinLon), formatCoord(b.MaxLat), formatCoord(b.MaxLon))
	default:
		return string(s.Kind)
	}
}

func (s Scope) String() string {
	return s.Key()
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ParseScopeKey is the inverse of Key.
func ParseScopeKey(key string) (Scope, error) {
	kind, rest, hasRest := strings.Cut(key, ":")
	var s Scope
	switch ScopeKind(kind) {
	case ScopeInventory:
		if hasRest {
			return Scope{}, fmt.Errorf("inventory scope takes no argument: %q", key)
		}
		s = Inventory()
	case ScopeChildrenOf:
		s = ChildrenOf(rest)
	case ScopeGeoGroup:
		parts := strings.Split(rest, ",")
		if len(parts) != 4 {
			return Scope{}, fmt.Errorf("geo_group scope needs 4 coordinates: %q", key)
		}
		var coords [4]float64
		for i, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return Scope{}, fmt.Errorf("geo_group coordinate %d: %w", i, err)
			}
			coords[i] = f
		}
		s = GeoGroup(Bounds{MinLat: coords[0], MinLon: coords[1], MaxLat: coords[2], MaxLon: coords[3]})
	default:
		return Scope{}, fmt.Errorf("unknown scope kind in key %q", key)
	}
	if err := s.Validate(); err != nil {
		return Scope{}, err
	}
	return s, nil
}

// Matches is the routing predicate: it reports whether obj belongs to the
// region described by s.
func (s Scope) Matches(obj *TrackedObject) bool {
	if obj == nil {
		return false
	}
	switch s.Kind {
	case ScopeInventory:
		return true
	case ScopeChildrenOf:
		return obj.Parent == s.ParentID
	case ScopeGeoGroup:
		return obj.Location != nil && s.Bounds.Contains(*obj.Location)
	default:
		return false
	}
}
