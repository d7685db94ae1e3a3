// Package opsapi exposes the operational HTTP surface: liveness,
// readiness, a status snapshot and Prometheus metrics. Inference traffic
// never flows through HTTP; it stays on the bus.
package opsapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llmq/pkg/types"
)

// Service defines the methods required by the ops HTTP layer.
type Service interface {
	Ready() bool
	Status() types.StatusResponse
}

// CORSOptions configures the optional CORS middleware. Disabled unless
// Enabled is set.
type CORSOptions struct {
	Enabled        bool
	AllowedOrigins []string
}

// NewMux builds the ops router: /healthz, /readyz, /status, /metrics.
func NewMux(svc Service, corsOpts CORSOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if corsOpts.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOpts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet},
		}))
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("warming"))
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": msg,
		"code":  status,
	})
}
