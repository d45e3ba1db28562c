// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package push

import (
	"context"

	"github.com/tomtom215/regionsync/internal/metrics"
	"github.com/tomtom215/regionsync/internal/models"
	"github.com/tomtom215/regionsync/internal/region"
)

// Sink consumes decoded events and connection state changes.
// *region.Manager implements it.
type Sink interface {
	Dispatch(ctx context.Context, ev models.LiveEvent) region.Outcome
	OnConnect(ctx context.Context)
	OnDisconnect(cause error)
	RecordFrameError(ctx context.Context, err error)
}

var _ Sink = (*region.Manager)(nil)

// deliver decodes one frame and dispatches it. Undecodable frames are
// reported to the sink and skipped.
func deliver(ctx context.Context, sink Sink, source string, data []byte) {
	metrics.PushFramesReceived.WithLabelValues(source).Inc()
	ev, err := models.DecodeFrame(data)
	if err != nil {
		sink.RecordFrameError(ctx, err)
		return
	}
	sink.Dispatch(ctx, ev)
}
