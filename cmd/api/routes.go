package main

import (
	"net/http"

	"github.com/sirupsen/logrus"

	httphandlers "fintrack/internal/interfaces/http"
	"fintrack/internal/shared/config"
	"fintrack/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config, log logrus.FieldLogger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", httphandlers.HandleRoot)
	mux.HandleFunc("GET /health", httphandlers.HandleHealth)

	// Protected routes
	authMiddleware := middleware.Auth(deps.Verifier, log.WithField("component", "auth"))
	tx := deps.TransactionHandler

	mux.Handle("GET /my-transaction", authMiddleware(http.HandlerFunc(tx.HandleList)))
	mux.Handle("POST /my-transaction", authMiddleware(http.HandlerFunc(tx.HandleCreate)))
	mux.Handle("GET /my-transaction/{id}", authMiddleware(http.HandlerFunc(tx.HandleGet)))
	mux.Handle("PUT /my-transaction/{id}", authMiddleware(http.HandlerFunc(tx.HandleUpdate)))
	mux.Handle("DELETE /my-transaction/{id}", authMiddleware(http.HandlerFunc(tx.HandleDelete)))

	// Apply global middleware
	handler := middleware.Tracing(mux)
	handler = middleware.Logging(log)(middleware.CORS(cfg.Server.AllowedHosts)(handler))

	if cfg.TLS.Enabled {
		handler = middleware.HSTS(handler)
		log.Info("HSTS enabled")
	}

	if cfg.Server.RequestTimeout > 0 {
		handler = middleware.Timeout(cfg.Server.RequestTimeout)(handler)
	}

	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(cfg.Telemetry.ServiceName)(handler)
	}

	return handler
}
