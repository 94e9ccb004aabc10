package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter/internal/auth"
)

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
func NewRouter(publisher Publisher, jwtService *auth.JWTService, db Pinger, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(RecoverMiddleware(log))
	r.Use(MetricsMiddleware)

	// Health and metrics endpoints (no auth required)
	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(db))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.BearerAuth(jwtService))
		r.Post("/newsletters", PublishHandler(publisher))
	})

	return r
}
