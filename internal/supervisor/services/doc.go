// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

/*
Package services adapts regionsync components to suture's Serve pattern.

HTTPServerService wraps an *http.Server (the debug API) and translates the
ListenAndServe/Shutdown lifecycle into a context-aware Serve. ReconcileService
runs periodic full reconciliation of every live region on a fixed interval.

Push sources (internal/push) already implement suture.Service and are added
to the tree directly.

Return values follow suture conventions:

	nil         -> service stopped cleanly, will not restart
	error       -> service crashed, supervisor will restart
	ctx.Err()   -> shutdown requested
*/
package services
