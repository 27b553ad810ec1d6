// Package shield provides the HTTP middleware of the sugos API: security
// headers, request body limits, request tracing, and Basic authentication.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.APIStack(logger, 1<<20) {
//	    r.Use(mw)
//	}
//	r.With(shield.BasicAuth(user, hash)).Post("/api/exports", h)
package shield

import (
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// APIStack returns the middleware applied to every sugos API route, in order:
// SecurityHeaders, MaxBody, Trace.
func APIStack(logger *slog.Logger, maxBody int64) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		MaxBody(maxBody),
		Trace(logger),
	}
}
