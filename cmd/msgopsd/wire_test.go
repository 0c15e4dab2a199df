package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jonwraymond/msgops/cache"
	"github.com/jonwraymond/msgops/internal/config"
	"github.com/jonwraymond/msgops/observe"
	"github.com/jonwraymond/msgops/provider"
	"github.com/jonwraymond/msgops/registry"
)

func newApp(t *testing.T, environ map[string]string) *app {
	t.Helper()
	environ["MSGOPS_OTEL_METRICS_EXPORTER"] = "none"
	cfg, err := config.Parse(environ)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	obsCfg := cfg.ObserveConfig()
	obsCfg.Logging.Output = io.Discard
	obs, err := observe.NewObserver(context.Background(), obsCfg)
	if err != nil {
		t.Fatalf("NewObserver: %v", err)
	}
	t.Cleanup(func() { _ = obs.Shutdown(context.Background()) })

	a, err := build(context.Background(), cfg, obs)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = a.close() })
	return a
}

func post(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, provider.SendResult) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(body)))
	var res provider.SendResult
	_ = json.Unmarshal(rec.Body.Bytes(), &res)
	return rec, res
}

func TestBuild_DefaultMockAndDedupe(t *testing.T) {
	a := newApp(t, map[string]string{})
	body := `{"kind":"short_text","messageId":"m-1","to":"+15550100","text":"hi"}`

	rec, first := post(t, a.handler, body)
	if rec.Code != http.StatusOK || first.ProviderID != "mock" {
		t.Fatalf("first send = %d %s", rec.Code, rec.Body.String())
	}
	_, second := post(t, a.handler, body)
	if len(second.Warnings) != 1 || second.Warnings[0].Code != cache.DuplicateWarning {
		t.Fatalf("second send warnings = %+v", second.Warnings)
	}
}

func TestBuild_WebhookWithResolvedSecret(t *testing.T) {
	var calls atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			return
		}
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer hook-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"remote-1"}`)
	}))
	defer backend.Close()
	t.Setenv("MSGOPS_TEST_HOOK_KEY", "hook-key")

	a := newApp(t, map[string]string{
		"MSGOPS_PROVIDERS":       "hook=" + backend.URL + ",spare=mock",
		"MSGOPS_WEBHOOK_API_KEY": "secretref:env:MSGOPS_TEST_HOOK_KEY",
		"MSGOPS_ROUTER_STRATEGY": "failover",
		"MSGOPS_DEDUPE_TTL":      "0",
	})

	rec, res := post(t, a.handler, `{"kind":"long_text","to":"+15550100","subject":"s","text":"body"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("send = %d %s", rec.Code, rec.Body.String())
	}
	if res.ProviderID != "hook" || res.ProviderMessageID != "remote-1" || calls.Load() != 1 {
		t.Fatalf("result = %+v calls = %d", res, calls.Load())
	}

	statusRec := httptest.NewRecorder()
	a.handler.ServeHTTP(statusRec, httptest.NewRequest(http.MethodGet, "/v1/providers", nil))
	var st registry.Status
	if err := json.Unmarshal(statusRec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.ActiveProviders != 2 || st.AvailableProviders[0] != "hook" || st.AvailableProviders[1] != "spare" {
		t.Fatalf("status = %+v", st)
	}
}

func TestBuild_UnresolvableSecretFails(t *testing.T) {
	cfg, err := config.Parse(map[string]string{
		"MSGOPS_PROVIDERS":             "hook=http://127.0.0.1:9",
		"MSGOPS_WEBHOOK_API_KEY":       "secretref:env:MSGOPS_TEST_MISSING_KEY",
		"MSGOPS_OTEL_METRICS_EXPORTER": "none",
	})
	if err != nil {
		t.Fatal(err)
	}
	obsCfg := cfg.ObserveConfig()
	obsCfg.Logging.Output = io.Discard
	obs, err := observe.NewObserver(context.Background(), obsCfg)
	if err != nil {
		t.Fatal(err)
	}
	defer obs.Shutdown(context.Background())

	if _, err := build(context.Background(), cfg, obs); err == nil {
		t.Fatal("build should fail when a provider secret cannot be resolved")
	}
}
