// Package mock provides an in-memory provider for tests and local runs.
//
// A mock accepts every valid request unless failures have been queued with
// FailNext or configured with Config.FailWith. It records every request it
// receives and treats requests scheduled in the future as pending, so they
// can be cancelled.
package mock

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/msgops/fault"
	"github.com/jonwraymond/msgops/provider"
)

// ID is the factory id of the mock provider.
const ID = "mock"

// Config configures a mock Provider.
type Config struct {
	// ID is the instance id.
	// Default: "mock"
	ID string

	// Latency delays each send. Cancellation of the send context ends the
	// delay early with the context error classified by fault.From.
	Latency time.Duration

	// FailWith, when non-nil, fails every send with this error once the
	// FailNext queue is empty.
	FailWith *fault.Error

	// Health is the result HealthCheck reports.
	// Default: healthy
	Health *provider.HealthResult

	// Now is the clock used to decide whether a request is scheduled.
	// Default: time.Now
	Now func() time.Time
}

// Provider is an in-memory provider.
type Provider struct {
	cfg Config

	mu       sync.Mutex
	queue    []*fault.Error
	requests []provider.SendRequest
	pending  map[string]bool
	health   provider.HealthResult
}

// New creates a mock provider.
func New(cfg Config) *Provider {
	if cfg.ID == "" {
		cfg.ID = ID
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	h := provider.HealthResult{Healthy: true}
	if cfg.Health != nil {
		h = *cfg.Health
	}
	return &Provider{cfg: cfg, pending: make(map[string]bool), health: h}
}

// ID implements provider.Provider.
func (p *Provider) ID() string { return p.cfg.ID }

// Send implements provider.Provider.
func (p *Provider) Send(ctx context.Context, req provider.SendRequest) provider.Outcome {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	var queued *fault.Error
	if len(p.queue) > 0 {
		queued, p.queue = p.queue[0], p.queue[1:]
	}
	p.mu.Unlock()

	if p.cfg.Latency > 0 {
		timer := time.NewTimer(p.cfg.Latency)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return provider.Failed(fault.From(ctx.Err()).WithContext(fault.KeyProviderID, p.cfg.ID))
		}
	}

	if err := req.Validate(); err != nil {
		return provider.Failed(err.WithContext(fault.KeyProviderID, p.cfg.ID))
	}
	if queued != nil {
		return provider.Failed(queued)
	}
	if p.cfg.FailWith != nil {
		return provider.Failed(p.cfg.FailWith)
	}

	env := req.Base()
	id := env.MessageID
	if id == "" {
		id = uuid.NewString()
	}

	status := provider.StatusSent
	if !env.ScheduledAt.IsZero() && env.ScheduledAt.After(p.cfg.Now()) {
		status = provider.StatusPending
		p.mu.Lock()
		p.pending[id] = true
		p.mu.Unlock()
	}

	res := &provider.SendResult{
		MessageID:         id,
		ProviderID:        p.cfg.ID,
		ProviderMessageID: "mock-" + id,
		Status:            status,
	}
	if tc, ok := req.(provider.TemplateChat); ok && tc.Fallback != nil && tc.Fallback.Subject != "" && tc.Fallback.Kind == provider.KindShortText {
		res = res.WithWarning(provider.Warning{
			Code:    "FALLBACK_PARTIAL",
			Message: "fallback subject is ignored for short_text",
		})
	}
	return provider.Sent(res)
}

// HealthCheck implements provider.Provider.
func (p *Provider) HealthCheck(context.Context) provider.HealthResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := p.health
	h.Issues = slices.Clone(h.Issues)
	return h
}

// Cancel implements provider.Canceler. Only pending messages can be
// cancelled.
func (p *Provider) Cancel(_ context.Context, messageID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.pending[messageID] {
		return false
	}
	delete(p.pending, messageID)
	return true
}

// Capabilities implements provider.CapabilityReporter.
func (p *Provider) Capabilities() provider.Capabilities {
	return metadata.Capabilities
}

// Metadata implements provider.MetadataReporter.
func (p *Provider) Metadata() provider.Metadata {
	m := metadata
	m.ID = p.cfg.ID
	return m
}

// FailNext queues errors returned by the next sends, in order.
func (p *Provider) FailNext(errs ...*fault.Error) {
	p.mu.Lock()
	p.queue = append(p.queue, errs...)
	p.mu.Unlock()
}

// SetHealth changes the result HealthCheck reports.
func (p *Provider) SetHealth(h provider.HealthResult) {
	p.mu.Lock()
	p.health = h
	p.mu.Unlock()
}

// Requests returns every request received so far.
func (p *Provider) Requests() []provider.SendRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.requests)
}

// Calls returns the number of sends received so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

var metadata = provider.Metadata{
	ID:      ID,
	Name:    "In-memory mock",
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
		MaxRequestsPerSecond:    1000,
		SupportsScheduling:      true,
		SupportsTemplating:      true,
	},
	AuthType: "none",
}

// NewFactory returns the factory for mock providers. Recognized config
// keys: id, latency, fail (an error code every send fails with), healthy
// and issue.
func NewFactory() provider.Factory {
	return provider.NewFactory(metadata, func(cfg provider.Config) (provider.Provider, error) {
		latency, err := cfg.Duration("latency", 0)
		if err != nil {
			return nil, err
		}

		c := Config{ID: cfg.String("id", ID), Latency: latency}

		if code := fault.Code(cfg.String("fail", "")); code != "" {
			if !code.Valid() {
				return nil, fmt.Errorf("mock: unknown error code %q", code)
			}
			c.FailWith = fault.New(code, "mock configured failure").WithContext(fault.KeyProviderID, c.ID)
		}

		if !cfg.Bool("healthy", true) {
			h := provider.HealthResult{Issues: []string{cfg.String("issue", "mock configured unhealthy")}}
			c.Health = &h
		}
		return New(c), nil
	})
}
