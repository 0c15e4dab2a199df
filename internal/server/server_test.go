package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonwraymond/msgops/auth"
	"github.com/jonwraymond/msgops/fault"
	"github.com/jonwraymond/msgops/provider"
	"github.com/jonwraymond/msgops/providers/mock"
	"github.com/jonwraymond/msgops/registry"
)

var jwtSecret = []byte("server-test")

type fixture struct {
	mock *mock.Provider
	srv  *httptest.Server
}

func newFixture(t *testing.T, a auth.Authenticator) *fixture {
	t.Helper()
	reg := registry.New(registry.Config{})
	if err := reg.RegisterFactory(mock.NewFactory()); err != nil {
		t.Fatal(err)
	}
	created := reg.CreateProvider(context.Background(), mock.ID, provider.Config{})
	if created.IsFailure() {
		t.Fatal(created.Err())
	}
	m := created.Value().(*mock.Provider)

	s, err := New(Config{
		Sender:        m,
		Registry:      reg,
		Authenticator: a,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{mock: m, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

const shortText = `{"kind":"short_text","messageId":"m-1","to":"+15550100","text":"hi"}`

func TestSend_OK(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do(t, http.MethodPost, "/v1/messages", shortText, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Fatal("response should carry a request id")
	}
	res := decode[provider.SendResult](t, resp)
	if res.MessageID != "m-1" || res.ProviderID != mock.ID || res.Status != provider.StatusSent {
		t.Fatalf("result = %+v", res)
	}
}

func TestSend_ScheduledIsAccepted(t *testing.T) {
	f := newFixture(t, nil)
	at := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	body := `{"kind":"short_text","messageId":"m-2","to":"+15550100","text":"later","scheduledAt":"` + at + `"}`

	resp := f.do(t, http.MethodPost, "/v1/messages", body, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	cancel := f.do(t, http.MethodDelete, "/v1/messages/m-2", "", nil)
	if cancel.StatusCode != http.StatusOK || !decode[cancelResponse](t, cancel).Cancelled {
		t.Fatalf("cancel status = %d", cancel.StatusCode)
	}
	again := f.do(t, http.MethodDelete, "/v1/messages/m-2", "", nil)
	if again.StatusCode != http.StatusNotFound {
		t.Fatalf("second cancel status = %d", again.StatusCode)
	}
}

func TestSend_Failures(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		failWith   *fault.Error
		wantStatus int
		wantCode   fault.Code
		retryAfter string
	}{
		{name: "malformed json", body: `{`, wantStatus: http.StatusBadRequest, wantCode: fault.CodeInvalidRequest},
		{name: "unknown kind", body: `{"kind":"fax"}`, wantStatus: http.StatusBadRequest, wantCode: fault.CodeInvalidRequest},
		{name: "missing recipient", body: `{"kind":"short_text","text":"hi"}`, wantStatus: http.StatusBadRequest, wantCode: fault.CodeInvalidRequest},
		{
			name:       "rate limited",
			body:       shortText,
			failWith:   fault.New(fault.CodeRateLimitExceeded, "slow down").WithDetails(fault.ProviderDetails{RetryAfter: 1500 * time.Millisecond}),
			wantStatus: http.StatusTooManyRequests,
			wantCode:   fault.CodeRateLimitExceeded,
			retryAfter: "2",
		},
		{name: "backend error", body: shortText, failWith: fault.New(fault.CodeProviderError, "boom"), wantStatus: http.StatusBadGateway, wantCode: fault.CodeProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			if tt.failWith != nil {
				f.mock.FailNext(tt.failWith)
			}
			resp := f.do(t, http.MethodPost, "/v1/messages", tt.body, nil)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if got := resp.Header.Get("Retry-After"); got != tt.retryAfter {
				t.Fatalf("Retry-After = %q, want %q", got, tt.retryAfter)
			}
			body := decode[struct {
				Error fault.Error `json:"error"`
			}](t, resp)
			if body.Error.Code != tt.wantCode {
				t.Fatalf("code = %s, want %s", body.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestSend_InvalidRequestNeverReachesSender(t *testing.T) {
	f := newFixture(t, nil)
	for range 3 {
		resp := f.do(t, http.MethodPost, "/v1/messages", `{"kind":"short_text","text":"hi"}`, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", resp.StatusCode)
		}
	}
	if f.mock.Calls() != 0 {
		t.Errorf("sender calls = %d, want 0", f.mock.Calls())
	}
}

func TestStatusFor(t *testing.T) {
	for _, code := range fault.Codes() {
		if s := StatusFor(code); s < 400 || s > 599 {
			t.Errorf("StatusFor(%s) = %d", code, s)
		}
	}
	if StatusFor(fault.CodeNetworkTimeout) != http.StatusGatewayTimeout {
		t.Error("timeouts should map to 504")
	}
}

func TestProviders(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do(t, http.MethodGet, "/v1/providers", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	st := decode[registry.Status](t, resp)
	if st.RegisteredFactories != 1 || st.ActiveProviders != 1 || st.AvailableProviders[0] != mock.ID {
		t.Fatalf("status = %+v", st)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil)
	for _, path := range []string{"/healthz", "/readyz", "/health", "/metrics"} {
		if resp := f.do(t, http.MethodGet, path, "", nil); resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d", path, resp.StatusCode)
		}
	}

	f.mock.SetHealth(provider.HealthResult{Issues: []string{"down"}})
	if resp := f.do(t, http.MethodGet, "/readyz", "", nil); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("readyz with unhealthy provider = %d", resp.StatusCode)
	}
}

func TestAuth(t *testing.T) {
	a := auth.Chain{
		auth.NewJWTAuthenticator(auth.JWTConfig{Secret: jwtSecret}),
		auth.NewAPIKeyAuthenticator(auth.APIKey{Name: "ops", Hash: auth.HashAPIKey("k-1")}),
	}
	f := newFixture(t, a)

	reader, err := auth.SignToken(jwtSecret, "dashboard", []string{auth.ScopeRead}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	bearer := func(tok string) http.Header { return http.Header{"Authorization": {"Bearer " + tok}} }

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		header http.Header
		want   int
	}{
		{name: "no credentials", method: http.MethodPost, path: "/v1/messages", body: shortText, want: http.StatusUnauthorized},
		{name: "bad key", method: http.MethodPost, path: "/v1/messages", body: shortText, header: http.Header{auth.APIKeyHeader: {"nope"}}, want: http.StatusUnauthorized},
		{name: "api key sends", method: http.MethodPost, path: "/v1/messages", body: shortText, header: http.Header{auth.APIKeyHeader: {"k-1"}}, want: http.StatusOK},
		{name: "reader cannot send", method: http.MethodPost, path: "/v1/messages", body: shortText, header: bearer(reader), want: http.StatusForbidden},
		{name: "reader lists providers", method: http.MethodGet, path: "/v1/providers", header: bearer(reader), want: http.StatusOK},
		{name: "health stays open", method: http.MethodGet, path: "/healthz", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := f.do(t, tt.method, tt.path, tt.body, tt.header); resp.StatusCode != tt.want {
				t.Fatalf("%s %s = %d, want %d", tt.method, tt.path, resp.StatusCode, tt.want)
			}
		})
	}
}

func TestSend_BodyLimit(t *testing.T) {
	reg := registry.New(registry.Config{})
	s, err := New(Config{Sender: mock.New(mock.Config{}), Registry: reg, MaxBodyBytes: 16})
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(shortText)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Config{Registry: registry.New(registry.Config{})}); err == nil {
		t.Fatal("missing sender should fail")
	}
	if _, err := New(Config{Sender: mock.New(mock.Config{})}); err == nil {
		t.Fatal("missing registry should fail")
	}
}
