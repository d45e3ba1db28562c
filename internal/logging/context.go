// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	regionKey        contextKey = "region"
)

// GenerateCorrelationID returns the first 8 characters of a new UUID.
func GenerateCorrelationID() string {
	return uuid.New().String()[:8]
}

// ContextWithCorrelationID returns ctx carrying id.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextWithNewCorrelationID returns ctx carrying a fresh correlation ID.
// Each reconcile attempt gets one so its log lines can be grouped.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return ContextWithCorrelationID(ctx, GenerateCorrelationID())
}

// CorrelationIDFromContext returns the correlation ID or "".
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRegion returns ctx carrying the region scope key.
func ContextWithRegion(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, regionKey, key)
}

// RegionFromContext returns the region scope key or "".
func RegionFromContext(ctx context.Context) string {
	if key, ok := ctx.Value(regionKey).(string); ok {
		return key
	}
	return ""
}

// Ctx returns the global logger enriched with the correlation_id and region
// fields found in ctx.
//
//	logging.Ctx(ctx).Info().Int("fetched", n).Msg("Reconcile applied")
func Ctx(ctx context.Context) *zerolog.Logger {
	lc := Logger().With()
	if id := CorrelationIDFromContext(ctx); id != "" {
		lc = lc.Str("correlation_id", id)
	}
	if key := RegionFromContext(ctx); key != "" {
		lc = lc.Str("region", key)
	}
	l := lc.Logger()
	return &l
}
