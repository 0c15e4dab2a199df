package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jonwraymond/msgops/provider"
)

// Source reports the current health of a set of providers, keyed by id.
// registry.Registry.HealthCheck satisfies it.
type Source func(ctx context.Context) map[string]provider.HealthResult

// LivenessHandler returns an HTTP handler for liveness probes.
// This is a simple check that the service is running.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// ReadinessHandler returns an HTTP handler for readiness probes. The
// service is ready while at least one provider is healthy.
func ReadinessHandler(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := Overall(src(ctx))

		w.Header().Set("Content-Type", "text/plain")

		switch status {
		case StatusHealthy:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		case StatusDegraded:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("DEGRADED"))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("UNHEALTHY"))
		}
	}
}

// Response is the JSON body of the detailed health endpoint.
type Response struct {
	Status    Status                           `json:"status"`
	Timestamp string                           `json:"timestamp"`
	Providers map[string]provider.HealthResult `json:"providers,omitempty"`
}

// DetailedHandler returns an HTTP handler reporting every provider's health.
func DetailedHandler(src Source) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		results := src(ctx)
		status := Overall(results)

		response := Response{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Providers: results,
		}

		w.Header().Set("Content-Type", "application/json")
		if status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(response)
	}
}

// RegisterHandlers registers all health check handlers on the given mux.
func RegisterHandlers(mux *http.ServeMux, src Source) {
	mux.HandleFunc("/healthz", LivenessHandler())
	mux.HandleFunc("/readyz", ReadinessHandler(src))
	mux.HandleFunc("/health", DetailedHandler(src))
}
