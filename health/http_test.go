package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonwraymond/msgops/provider"
)

func staticSource(results map[string]provider.HealthResult) Source {
	return func(context.Context) map[string]provider.HealthResult { return results }
}

func TestLivenessHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	LivenessHandler()(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("Body = %v, want 'OK'", rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "text/plain" {
		t.Errorf("Content-Type = %v, want 'text/plain'", rec.Header().Get("Content-Type"))
	}
}

func TestReadinessHandler(t *testing.T) {
	up := provider.HealthResult{Healthy: true}
	down := provider.HealthResult{Issues: []string{"down"}}

	tests := []struct {
		name     string
		results  map[string]provider.HealthResult
		wantCode int
		wantBody string
	}{
		{"healthy", map[string]provider.HealthResult{"a": up}, http.StatusOK, "OK"},
		{"degraded", map[string]provider.HealthResult{"a": up, "b": down}, http.StatusOK, "DEGRADED"},
		{"unhealthy", map[string]provider.HealthResult{"b": down}, http.StatusServiceUnavailable, "UNHEALTHY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
			rec := httptest.NewRecorder()

			ReadinessHandler(staticSource(tt.results))(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("Status = %d, want %d", rec.Code, tt.wantCode)
			}
			if rec.Body.String() != tt.wantBody {
				t.Errorf("Body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestDetailedHandler(t *testing.T) {
	src := staticSource(map[string]provider.HealthResult{
		"a": {Healthy: true},
		"b": {Issues: []string{"auth rejected"}},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	DetailedHandler(src)(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Status = %d, want 200 for degraded", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %v", rec.Header().Get("Content-Type"))
	}

	var body struct {
		Status    string                           `json:"status"`
		Providers map[string]provider.HealthResult `json:"providers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Status != "degraded" {
		t.Errorf("status = %q, want degraded", body.Status)
	}
	if got := body.Providers["b"].Issues; len(got) != 1 || got[0] != "auth rejected" {
		t.Errorf("b issues = %v", got)
	}
}

func TestRegisterHandlers(t *testing.T) {
	mux := http.NewServeMux()
	RegisterHandlers(mux, staticSource(nil))

	for _, path := range []string{"/healthz", "/readyz", "/health"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}
