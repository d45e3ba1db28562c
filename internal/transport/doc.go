// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

/*
Package transport implements the remote store client used by the reconciler.

Client speaks the region HTTP protocol:

	GET  {base}/regions/{scope}/hash               -> {"hash":"..."}
	GET  {base}/regions/{scope}/revisions?token=   -> {"entries":[...],"next_token":"..."}
	POST {base}/regions/{scope}/objects {"ids":[]} -> [ {...}, ... ]

Every request carries a bearer token and waits on a token bucket limiter.
Status 401 and 403 become *models.ScopePermissionError; any other failure
becomes *models.TransportError.

BreakerTransport wraps any reconcile.Transport with a sony/gobreaker circuit
breaker. Permission errors and caller cancellation do not count as failures,
and an open circuit is reported as a transport error so the reconciler
backs off and retries.
*/
package transport
