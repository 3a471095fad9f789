package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /schedule/normalize", h.NormalizeTime)
	mux.HandleFunc("POST /schedule/moment", h.ComposeMoment)
	mux.HandleFunc("POST /roster/next-code", h.NextCode)
	mux.HandleFunc("POST /palettes", h.Palettes)

	mux.HandleFunc("POST /crops", h.OpenCrop)
	mux.HandleFunc("PATCH /crops/{id}", h.UpdateCrop)
	mux.HandleFunc("PUT /crops/{id}/source", h.ReplaceCropSource)
	mux.HandleFunc("POST /crops/{id}/apply", h.ApplyCrop)

	mux.HandleFunc("POST /trims", h.OpenTrim)
	mux.HandleFunc("PUT /trims/{id}/source", h.ReplaceTrimSource)
	mux.HandleFunc("POST /trims/{id}/apply", h.ApplyTrim)

	mux.HandleFunc("GET /sessions/{id}", h.GetSession)
	mux.HandleFunc("DELETE /sessions/{id}", h.CancelSession)

	mux.HandleFunc("GET /activity", h.Activity)

	// Apply middleware chain
	chain := ChainMiddleware(
		RequestIDMiddleware(),
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
