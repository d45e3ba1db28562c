// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

/*
Package push receives live event frames and hands them to a Sink.

Two sources are provided:

  - WebSocketSource reads frames from a gorilla/websocket connection,
    sends keep-alive pings and reconnects with capped exponential backoff.
  - NATSSource reads frames from one NATS subject.

Both run as suture services. Frames from one source are dispatched in
arrival order from a single goroutine. On every (re)connect the sink's
OnConnect is called so it can reconcile what was missed; on every loss
OnDisconnect is called.
*/
package push
