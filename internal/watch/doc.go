// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

/*
Package watch streams region change notifications to WebSocket clients.

Each connected client is a region observer. Attaching a client activates
the region if needed and subscribes to it; the first message is a snapshot
of the region's ids and digest, followed by one "changed" message per
notification. When the client disconnects its subscription is dropped,
which tears the region down if it was the last observer of an unpinned
region.

# Messages

	{"type":"snapshot","region":"inventory","hash":"...","ids":["a","b"]}
	{"type":"changed","region":"inventory","hash":"...","ids":["a"]}
	{"type":"pong"}

Clients may send {"type":"ping"}. A client whose send buffer fills is
disconnected; it should reconnect and take a fresh snapshot.

# Supervision

Hub implements suture.Service. Cancelling Serve disconnects every client.
*/
package watch
