// Crmlens - CRM Analytics and Mirror Synchronization
// Copyright 2026 Crmlens Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crmlens/crmlens

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crmlens/crmlens/internal/config"
)

// Router builds the HTTP routing tree.
type Router struct {
	handler *Handler
	cfg     *config.APIConfig
}

// NewRouter creates a router over the given handlers.
func NewRouter(handler *Handler, cfg *config.APIConfig) *Router {
	return &Router{
		handler: handler,
		cfg:     cfg,
	}
}

// Setup configures all routes and middleware.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: router.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// Health endpoints get permissive rate limiting: they are polled by
	// orchestrators and load balancers.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, router.cfg.RateLimitWindow))
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(router.cfg.RateLimitReqs, router.cfg.RateLimitWindow))
		r.Use(Observability())

		r.Post("/sync", router.handler.SyncStart)
		r.Get("/sync/status", router.handler.SyncStatus)
		r.Post("/sync/reset", router.handler.SyncReset)

		r.Get("/contacts", router.handler.Contacts)
		r.Get("/contacts/{id}", router.handler.Contact)
		r.Put("/contacts/{id}/health-score", router.handler.ContactHealthScore)
		r.Get("/deals", router.handler.Deals)
		r.Get("/stats", router.handler.Stats)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
