// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

/*
Package api serves the regionsyncd debug API over a Chi router.

Routes:

	GET  /healthz                              liveness and push status
	GET  /metrics                              Prometheus exposition
	GET  /api/v1/regions                       active regions with digests
	POST /api/v1/regions                       open and pin a region
	GET  /api/v1/regions/{key}                 one region
	GET  /api/v1/regions/{key}/objects         region contents
	GET  /api/v1/regions/{key}/objects/{id}    one object body
	POST /api/v1/regions/{key}/reconcile       force a reconcile pass
	GET  /api/v1/regions/{key}/watch           websocket change stream
	GET  /api/v1/rejected                      recent rejected live events
	DELETE /api/v1/rejected                    purge the rejection journal

Scope keys in paths are URL-escaped, e.g. children_of:box-17 or
geo_group:47.1,8.2,47.9,9.0.

Every /api/v1 response is wrapped in APIResponse. The API is read-mostly
and unauthenticated; bind it to loopback.
*/
package api
