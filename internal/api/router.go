package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iconidentify/grabbot/internal/api/handler"
	mw "github.com/iconidentify/grabbot/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	fetchHandler *handler.FetchHandler,
	historyHandler *handler.HistoryHandler,
	healthHandler *handler.HealthHandler,
	apiKey string,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	r.Use(mw.CORS)

	// Health and metrics endpoints (no auth)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	// API v1 (authenticated)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(apiKey, logger))

		r.Get("/stats", healthHandler.Stats)
		r.Get("/history", historyHandler.List)
		r.Post("/fetch", fetchHandler.Fetch)
	})

	return r
}
