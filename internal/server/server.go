// Package server exposes msgopsd over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/msgops/auth"
	"github.com/jonwraymond/msgops/fault"
	"github.com/jonwraymond/msgops/health"
	"github.com/jonwraymond/msgops/observe"
	"github.com/jonwraymond/msgops/provider"
	"github.com/jonwraymond/msgops/registry"
)

// RequestIDHeader carries the correlation id of a request.
const RequestIDHeader = "X-Request-ID"

const defaultMaxBody = 1 << 20

// Registry is the part of registry.Registry the server reads.
type Registry interface {
	Status() registry.Status
	HealthCheck(ctx context.Context) map[string]provider.HealthResult
}

// Config configures a Server.
type Config struct {
	// Sender delivers messages; usually the resilience pipeline over the
	// router. Required.
	Sender provider.Provider

	// Registry backs the provider status and health endpoints. Required.
	Registry Registry

	// Authenticator guards /v1/*. Nil leaves the API open.
	Authenticator auth.Authenticator

	// Metrics serves /metrics.
	// Default: promhttp.Handler()
	Metrics http.Handler

	// Logger receives one line per request.
	// Default: observe.NopLogger()
	Logger observe.Logger

	// MaxBodyBytes caps request bodies.
	// Default: 1 MiB
	MaxBodyBytes int64
}

// Server routes HTTP requests to the orchestration layer.
type Server struct {
	cfg     Config
	handler http.Handler
}

// New creates a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Sender == nil {
		return nil, errors.New("server: sender is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("server: registry is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = promhttp.Handler()
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBody
	}

	s := &Server{cfg: cfg}

	api := http.NewServeMux()
	api.Handle("POST /v1/messages", s.scoped(auth.ScopeSend, http.HandlerFunc(s.send)))
	api.Handle("DELETE /v1/messages/{id}", s.scoped(auth.ScopeCancel, http.HandlerFunc(s.cancel)))
	api.Handle("GET /v1/providers", s.scoped(auth.ScopeRead, http.HandlerFunc(s.providers)))

	var guarded http.Handler = api
	if cfg.Authenticator != nil {
		guarded = auth.Middleware(cfg.Authenticator)(api)
	}

	mux := http.NewServeMux()
	mux.Handle("/v1/", guarded)
	health.RegisterHandlers(mux, cfg.Registry.HealthCheck)
	mux.Handle("GET /metrics", cfg.Metrics)

	s.handler = s.logged(mux)
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) scoped(scope string, h http.Handler) http.Handler {
	if s.cfg.Authenticator == nil {
		return h
	}
	return auth.RequireScope(scope, h)
}

func (s *Server) send(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		writeFault(w, fault.Local(fault.CodeInvalidRequest, "server", "request body could not be read", err))
		return
	}
	req, err := provider.DecodeRequest(body)
	if err != nil {
		writeFault(w, fault.Local(fault.CodeInvalidRequest, "server", err.Error(), err))
		return
	}
	if verr := req.Validate(); verr != nil {
		writeFault(w, verr)
		return
	}

	out := s.cfg.Sender.Send(r.Context(), req)
	if out.IsFailure() {
		writeFault(w, out.Err())
		return
	}
	res := out.Value()
	status := http.StatusOK
	if res.Status == provider.StatusPending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

type cancelResponse struct {
	MessageID string `json:"messageId"`
	Cancelled bool   `json:"cancelled"`
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cancelled, supported := provider.Cancel(r.Context(), s.cfg.Sender, id)
	switch {
	case !supported:
		writeJSON(w, http.StatusNotImplemented, errorResponse{
			Error: fault.New(fault.CodeInvalidRequest, "configured providers do not support cancellation"),
		})
	case !cancelled:
		writeJSON(w, http.StatusNotFound, cancelResponse{MessageID: id})
	default:
		writeJSON(w, http.StatusOK, cancelResponse{MessageID: id, Cancelled: true})
	}
}

func (s *Server) providers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Registry.Status())
}

type errorResponse struct {
	Error *fault.Error `json:"error"`
}

// StatusFor maps a taxonomy code to the HTTP status returned to callers.
// Backend-side failures the caller cannot fix map to 502.
func StatusFor(code fault.Code) int {
	switch code {
	case fault.CodeInvalidRequest:
		return http.StatusBadRequest
	case fault.CodeTemplateNotFound:
		return http.StatusUnprocessableEntity
	case fault.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case fault.CodeNetworkServiceUnavailable:
		return http.StatusServiceUnavailable
	case fault.CodeNetworkTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func writeFault(w http.ResponseWriter, err *fault.Error) {
	if err.Details != nil && err.Details.RetryAfter > 0 {
		secs := int((err.Details.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeJSON(w, StatusFor(err.Code), errorResponse{Error: err})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// logged assigns a correlation id and logs each request once it completes.
func (s *Server) logged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := observe.WithCorrelationID(r.Context(), id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		fields := []observe.Field{
			{Key: "method", Value: r.Method},
			{Key: "path", Value: r.URL.Path},
			{Key: "status", Value: rec.status},
			{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
		}
		if rec.status >= http.StatusInternalServerError {
			s.cfg.Logger.Warn(ctx, "request failed", fields...)
			return
		}
		s.cfg.Logger.Debug(ctx, "request handled", fields...)
	})
}
