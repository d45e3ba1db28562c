// Regionsync - Client-side region synchronization engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regionsync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts h behind the middleware stack described by cfg.
func NewRouter(h *Handler, cfg MiddlewareConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cfg.CORS())
	r.Use(Metrics())

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cfg.RateLimit())
		r.Use(SecurityHeaders())

		r.Get("/regions", h.ListRegions)
		r.Post("/regions", h.OpenRegion)
		r.Route("/regions/{key}", func(r chi.Router) {
			r.Get("/", h.GetRegion)
			r.Get("/objects", h.ListObjects)
			r.Get("/objects/{id}", h.GetObject)
			r.Post("/reconcile", h.ReconcileRegion)
			r.Get("/watch", h.WatchRegion)
		})

		r.Get("/rejected", h.ListRejected)
		r.Delete("/rejected", h.PurgeRejected)
	})

	return r
}
