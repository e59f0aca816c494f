// Package server wires HTTP handlers into a chi router for the livechat
// application.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures and returns the application router: health check,
// WebSocket endpoint, and CORS policy built from the configured origins.
func SetupRoutes(hub *Hub) http.Handler {
	router := chi.NewRouter()
	router.Use(
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   hub.cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
			AllowCredentials: true,
		}),
	)

	router.Get("/healthz", HealthHandler(hub))
	router.Get("/ws", WebSocketHandler(hub))
	return router
}
