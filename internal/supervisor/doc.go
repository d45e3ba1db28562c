// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

/*
Package supervisor runs regionsyncd's long-lived services under a suture v4
tree.

	root ("regionsync")
	├── push-layer
	│   └── push-websocket | push-nats
	├── sync-layer
	│   └── periodic-reconcile
	└── api-layer
	    └── debug-api

A crash in one layer restarts only that layer's services. Supervisor
events are logged through sutureslog on top of the zerolog slog adapter.
*/
package supervisor
