// Package router assembles the HTTP surface: public health and metrics
// endpoints, and the tenant-scoped booking API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/psicare/platform/internal/http/handlers"
	httpmiddleware "github.com/psicare/platform/internal/http/middleware"
	"github.com/psicare/platform/internal/tenancy"
	"github.com/psicare/platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Appointments       *handlers.AppointmentsHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// SessionJWTSecret protects the booking API when set; empty leaves
	// the API open (local development).
	SessionJWTSecret string
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints.
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Booking API. Every route below requires the tenant header; the
	// tenant travels in the request context from here down.
	r.Route("/api", func(api chi.Router) {
		if cfg.SessionJWTSecret != "" {
			api.Use(httpmiddleware.SessionJWT(cfg.SessionJWTSecret))
		}
		api.Use(tenancy.Middleware())

		if cfg.Appointments != nil {
			api.Post("/appointments", cfg.Appointments.Create)
			api.Get("/appointments", cfg.Appointments.List)
			api.Get("/appointments/{id}", cfg.Appointments.Get)
			api.Patch("/appointments/{id}", cfg.Appointments.Reschedule)
			api.Post("/appointments/{id}/cancel", cfg.Appointments.Cancel)
			api.Post("/appointments/{id}/complete", cfg.Appointments.Complete)
			api.Get("/psychologists/{id}/conflicts", cfg.Appointments.Conflicts)
		}
	})

	return r
}
