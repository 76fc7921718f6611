// Package api wires the chi router and middleware for the optimizer's
// serve mode. The surface is JSON-only and aimed at external dashboards.
package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/ak-content/shorts-optimizer/internal/api/handlers"
	"github.com/ak-content/shorts-optimizer/internal/config"
	"github.com/ak-content/shorts-optimizer/internal/optimizer"
)

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(src handlers.VideoSource, refiner optimizer.DiagnosisRefiner, cfg *config.Config, skillRules string) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(RequestLogger)
	r.Use(Recovery)
	r.Use(CORS)

	r.Route("/api", func(api chi.Router) {
		api.Get("/healthz", handlers.Healthz(cfg.Optimizer.Mock))
		api.Get("/videos", handlers.ListVideos(src))
		api.Post("/diagnose", handlers.Diagnose(src, refiner, skillRules))
	})

	return r
}
