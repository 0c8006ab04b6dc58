// Daruma - Personal Timeline Store and Query API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/daruma

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/daruma/internal/auth"
	"github.com/tomtom215/daruma/internal/config"
	"github.com/tomtom215/daruma/internal/logging"
	"github.com/tomtom215/daruma/internal/middleware"
)

// Router wires handlers, middleware, and authentication into a Chi mux.
type Router struct {
	handler    *Handler
	middleware *ChiMiddleware
	apiKey     *auth.APIKey
}

// NewRouter creates a Router from the application config.
func NewRouter(handler *Handler, cfg *config.Config) *Router {
	return &Router{
		handler:    handler,
		middleware: NewChiMiddlewareFromConfig(&cfg.Security),
		apiKey:     auth.NewAPIKey(cfg.Security.APIKey),
	}
}

// SetupChi builds the route tree.
//
// Layout:
//
//	GET  /health              liveness, no auth, permissive rate limit
//	GET  /metrics             Prometheus scrape endpoint, no auth
//	POST /v1/entity           single ingest
//	POST /v1/entities/batch   batch ingest
//	POST /v1/query/time       time-window query
//	POST /v1/query/bbox       bounding-box query
//	GET  /v1/query/export     streaming NDJSON export
//	GET  /v1/stats            aggregate snapshot
//
// Everything under /v1 requires the X-API-Key credential when one is
// configured.
func (rt *Router) SetupChi() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(rt.middleware.CORS())

	r.Group(func(r chi.Router) {
		r.Use(rt.middleware.RateLimitHealth())
		r.Get("/health", rt.handler.Health)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		// Ingest
		r.Group(func(r chi.Router) {
			r.Use(rt.middleware.RateLimitWrite())
			r.Post("/entity", rt.authed(rt.handler.Entity))
			r.Post("/entities/batch", rt.authed(rt.handler.EntityBatch))
		})

		// Queries and stats
		r.Group(func(r chi.Router) {
			r.Use(rt.middleware.RateLimit())
			r.Use(chiMiddleware(middleware.Compression))
			r.Post("/query/time", rt.authed(rt.handler.QueryTime))
			r.Post("/query/bbox", rt.authed(rt.handler.QueryBBox))
			r.Get("/stats", rt.authed(rt.handler.Stats))
		})

		// Streaming export: compression stays on, the gzip writer is
		// flushed line-batch-wise so the stream stays incremental.
		r.Group(func(r chi.Router) {
			r.Use(rt.middleware.RateLimitExport())
			r.Use(chiMiddleware(middleware.Compression))
			r.Get("/query/export", rt.authed(rt.handler.Export))
		})
	})

	if !rt.apiKey.Enabled() {
		logging.Warn().Msg("API key authentication is disabled; all endpoints are open")
	}

	return r
}

// authed wraps a handler with the API key check.
func (rt *Router) authed(h http.HandlerFunc) http.HandlerFunc {
	return rt.apiKey.Middleware(h)
}
