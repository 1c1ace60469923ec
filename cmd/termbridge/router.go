package main

import (
	"net/http"

	"github.com/gluk-w/termbridge/internal/config"
	"github.com/gluk-w/termbridge/internal/handlers"
	"github.com/gluk-w/termbridge/internal/logging"
	"github.com/gluk-w/termbridge/internal/metrics"
	"github.com/gluk-w/termbridge/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func newRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestLogger(&chimw.DefaultLogFormatter{
		Logger:  logging.For("http").StandardLog(),
		NoColor: true,
	}))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   config.Cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health and metrics (no auth)
	r.Get("/health", handlers.HealthCheck)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		// Terminal WebSocket and session management
		r.Get("/terminal", handlers.TerminalWS)
		r.Get("/terminal/sessions", handlers.ListTerminalSessions)
		r.Delete("/terminal/sessions/{connectionId}", handlers.CloseTerminalSession)

		// Inventory (read only)
		r.Get("/devices", handlers.ListDevices)
		r.Get("/devices/{id}", handlers.GetDevice)

		r.Get("/logs", handlers.GetServerLogs)
	})

	return r
}
