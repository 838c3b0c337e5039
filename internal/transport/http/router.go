// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seisreview/cct-service/internal/auth"
	"github.com/seisreview/cct-service/internal/metrics"
	"github.com/seisreview/cct-service/internal/transport/middleware"
)

// Review requests are JSON envelopes; anything larger is not a review
// request.
const maxRequestBodyBytes = 1 << 20

type Deps struct {
	Dispatcher        Dispatcher
	Authorizer        auth.Authorizer
	Logger            *slog.Logger
	RequestsPerMinute int
	Version           string
	Commit            string
	BuildDate         string
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	requestsPerMinute := deps.RequestsPerMinute
	if requestsPerMinute <= 0 {
		requestsPerMinute = 120
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("health check hit")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- REVIEW API (BEARER AUTH) ----------------

	r.Group(func(r chi.Router) {
		if deps.Authorizer != nil {
			r.Use(middleware.BearerAuth(deps.Authorizer, requestsPerMinute, logger))
		}

		r.Post("/api", func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "missing or invalid bearer token", http.StatusUnauthorized)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
			if err != nil {
				http.Error(w, "could not read request body", http.StatusBadRequest)
				return
			}

			response := deps.Dispatcher.Dispatch(r.Context(), principal, body)
			writeJSON(w, http.StatusOK, response)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
