// Package webhook delivers messages to a generic HTTP JSON backend.
//
// Requests are POSTed to {baseUrl}/messages in the form produced by
// provider.EncodeRequest. The backend answers 200/201 for accepted-and-sent,
// 202 for accepted-and-queued, and any other status for failure; failures
// are translated into the fault taxonomy here so nothing upstream ever sees
// an HTTP status as a code.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/jonwraymond/msgops/fault"
	"github.com/jonwraymond/msgops/provider"
)

// ID is the factory id of webhook providers.
const ID = "webhook"

const defaultTimeout = 10 * time.Second

// Config configures a webhook provider.
type Config struct {
	// ID is the provider instance id.
	// Default: "webhook"
	ID string

	// BaseURL is the backend root, e.g. https://sms.example.com/api. Required.
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds each HTTP request.
	// Default: 10s
	Timeout time.Duration

	// Client overrides the resty client. Its retry count is forced to zero;
	// retries belong to the resilience pipeline.
	Client *resty.Client
}

// Provider is a webhook backend.
type Provider struct {
	id     string
	base   string
	client *resty.Client
}

type acceptedBody struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// New creates a webhook provider.
func New(cfg Config) (*Provider, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("webhook: base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("webhook: invalid base url: %w", err)
	}
	if cfg.ID == "" {
		cfg.ID = ID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	client := cfg.Client
	if client == nil {
		client = resty.New()
	}
	client.SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &Provider{id: cfg.ID, base: base, client: client}, nil
}

// ID implements provider.Provider.
func (p *Provider) ID() string { return p.id }

// Send implements provider.Provider.
func (p *Provider) Send(ctx context.Context, req provider.SendRequest) provider.Outcome {
	if err := req.Validate(); err != nil {
		return provider.Failed(err.WithContext(fault.KeyProviderID, p.id))
	}

	messageID := req.Base().MessageID
	if messageID == "" {
		messageID = uuid.NewString()
	}
	body, err := provider.EncodeRequest(req)
	if err != nil {
		return provider.Failed(fault.Wrap(fault.CodeInvalidRequest, err, "request could not be encoded").
			WithContext(fault.KeyProviderID, p.id))
	}
	body, err = withMessageID(body, messageID)
	if err != nil {
		return provider.Failed(fault.Wrap(fault.CodeInvalidRequest, err, "request could not be encoded").
			WithContext(fault.KeyProviderID, p.id))
	}

	var accepted acceptedBody
	var rejected errorBody
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Idempotency-Key", messageID).
		SetBody(body).
		SetResult(&accepted).
		SetError(&rejected).
		Post("/messages")
	if err != nil {
		return provider.Failed(fault.From(err).WithContext(fault.KeyProviderID, p.id))
	}

	if !resp.IsSuccess() {
		return provider.Failed(p.translate(resp, rejected))
	}

	res := &provider.SendResult{
		MessageID:         messageID,
		ProviderID:        p.id,
		ProviderMessageID: accepted.ID,
		Status:            provider.StatusSent,
	}
	if res.ProviderMessageID == "" {
		res.ProviderMessageID = resp.Header().Get("X-Request-ID")
	}
	switch {
	case strings.EqualFold(accepted.Status, string(provider.StatusPending)):
		res.Status = provider.StatusPending
	case accepted.Status == "" && resp.StatusCode() == http.StatusAccepted:
		res.Status = provider.StatusPending
	}
	return provider.Sent(res)
}

// withMessageID sets the encoded request's messageId so the backend sees
// the id the result reports.
func withMessageID(body []byte, id string) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(id)
	fields["messageId"] = raw
	return json.Marshal(fields)
}

// translate maps a non-2xx response onto the taxonomy.
func (p *Provider) translate(resp *resty.Response, body errorBody) *fault.Error {
	status := resp.StatusCode()
	code := codeForStatus(status)

	msg := body.Message
	if msg == "" {
		msg = fmt.Sprintf("backend returned status %d", status)
	}
	details := fault.ProviderDetails{
		StatusCode:   status,
		ProviderCode: body.Code,
		RetryAfter:   retryAfter(resp.Header().Get("Retry-After"), time.Now()),
	}
	if details.ProviderCode == "" && body.Message == "" {
		if raw := strings.TrimSpace(resp.String()); raw != "" {
			details.Raw = map[string]any{"body": raw}
		}
	}
	return fault.New(code, msg).
		WithDetails(details).
		WithContext(fault.KeyProviderID, p.id)
}

func codeForStatus(status int) fault.Code {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fault.CodeInvalidRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return fault.CodeAuthenticationFailed
	case http.StatusPaymentRequired:
		return fault.CodeInsufficientBalance
	case http.StatusNotFound:
		return fault.CodeTemplateNotFound
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return fault.CodeNetworkTimeout
	case http.StatusTooManyRequests:
		return fault.CodeRateLimitExceeded
	case http.StatusServiceUnavailable:
		return fault.CodeNetworkServiceUnavailable
	}
	if status >= 500 {
		return fault.CodeProviderError
	}
	return fault.CodeMessageSendFailed
}

// retryAfter parses a Retry-After header given as seconds or an HTTP date.
func retryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

// HealthCheck implements provider.Provider by calling GET {baseUrl}/health.
func (p *Provider) HealthCheck(ctx context.Context) provider.HealthResult {
	resp, err := p.client.R().SetContext(ctx).Get("/health")
	if err != nil {
		return provider.HealthResult{Issues: []string{fmt.Sprintf("health request failed: %v", err)}}
	}
	if !resp.IsSuccess() {
		return provider.HealthResult{Issues: []string{fmt.Sprintf("health endpoint returned status %d", resp.StatusCode())}}
	}
	return provider.HealthResult{Healthy: true}
}

// Cancel implements provider.Canceler with DELETE {baseUrl}/messages/{id}.
func (p *Provider) Cancel(ctx context.Context, messageID string) bool {
	if messageID == "" {
		return false
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("id", messageID).
		Delete("/messages/{id}")
	return err == nil && resp.IsSuccess()
}

// Capabilities implements provider.CapabilityReporter.
func (p *Provider) Capabilities() provider.Capabilities { return metadata.Capabilities }

// Metadata implements provider.MetadataReporter.
func (p *Provider) Metadata() provider.Metadata {
	m := metadata
	m.ID = p.id
	m.Endpoints = map[string]string{
		"send":   p.base + "/messages",
		"cancel": p.base + "/messages/{id}",
		"health": p.base + "/health",
	}
	return m
}

var metadata = provider.Metadata{
	ID:      ID,
	Name:    "HTTP webhook",
	Version: "1.0.0",
	SupportedFeatures: []string{
		string(provider.KindLongText),
		string(provider.KindMultimedia),
		string(provider.KindShortText),
		string(provider.KindTemplateChat),
		"cancel",
		"scheduling",
	},
	Capabilities: provider.Capabilities{
		MaxRecipientsPerRequest: 1,
		MaxRequestsPerSecond:    100,
		SupportsScheduling:      true,
		SupportsTemplating:      true,
	},
	AuthType: "bearer",
}

// NewFactory returns the factory for webhook providers. Recognized config
// keys: id, baseUrl (required), apiKey and timeout.
func NewFactory() provider.Factory {
	return provider.NewFactory(metadata, func(cfg provider.Config) (provider.Provider, error) {
		timeout, err := cfg.Duration("timeout", defaultTimeout)
		if err != nil {
			return nil, err
		}
		return New(Config{
			ID:      cfg.String("id", ID),
			BaseURL: cfg.String("baseUrl", ""),
			APIKey:  cfg.String("apiKey", ""),
			Timeout: timeout,
		})
	})
}

var (
	_ provider.Provider           = (*Provider)(nil)
	_ provider.Canceler           = (*Provider)(nil)
	_ provider.CapabilityReporter = (*Provider)(nil)
	_ provider.MetadataReporter   = (*Provider)(nil)
)
