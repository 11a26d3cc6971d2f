package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"marketplace-gateway/internal/auth"
	"marketplace-gateway/internal/config"
)

// NewRouter wires the middleware chain: audit records every request;
// authentication and rate limiting run per route group; CORS headers are
// emitted unconditionally.
func NewRouter(gw *GatewayHandler, mw *Middleware, cfg *config.Config, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(RequestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", auth.HeaderAPIKey},
		MaxAge:         86400,
	}))

	router.Use(mw.AuditRequests)

	window := cfg.RateLimit.Window

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"marketplace-gateway"}`))
	})

	router.Route("/api/v1", func(r chi.Router) {
		// Public, optionally authenticated reads.
		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate(false))
			r.Use(mw.RateLimit(CategoryPublic, cfg.RateLimit.Public, window))
			r.Get("/apps", gw.ListApps)
			r.Get("/apps/{appID}", gw.GetApp)
		})

		// Search gets its own, tighter bucket.
		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate(false))
			r.Use(mw.RateLimit(CategorySearch, cfg.RateLimit.Search, window))
			r.Get("/apps/search", gw.SearchApps)
		})

		// Key-holder routes.
		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate(true))
			r.Use(mw.RateLimit(CategoryAuthenticated, cfg.RateLimit.Authenticated, window))
			r.Get("/users/me", gw.Me)

			r.Group(func(r chi.Router) {
				r.Use(mw.RequirePermission("analytics:read"))
				r.Get("/analytics/{metric}", gw.GetAnalytics)
			})

			r.Group(func(r chi.Router) {
				r.Use(mw.RequirePermission("apps:write"))
				r.Post("/apps/{appID}/invalidate", gw.InvalidateApp)
			})
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint not found")
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return router
}
