package provider

import (
	"context"

	"github.com/jonwraymond/msgops/fault"
	"github.com/jonwraymond/msgops/result"
)

// Outcome is the result of a send: a *SendResult or a *fault.Error.
type Outcome = result.Result[*SendResult, *fault.Error]

// Sent returns a successful Outcome.
func Sent(res *SendResult) Outcome {
	return result.Ok[*SendResult, *fault.Error](res)
}

// Failed returns a failed Outcome.
func Failed(err *fault.Error) Outcome {
	return result.Fail[*SendResult](err)
}

// Provider is the capability set every backend adapter satisfies.
//
// Contract:
//   - Concurrency: Send and HealthCheck must be safe for concurrent use. A
//     Provider holds configuration only; rotation, rate and circuit state
//     belong to the router and middleware layers.
//   - Errors: expected failures are returned as a failed Outcome, never
//     panicked. HealthCheck never fails; problems are reported as Issues.
//   - Context: Send and HealthCheck should honor cancellation.
type Provider interface {
	// ID returns the stable, unique identifier of this provider instance.
	ID() string

	// Send delivers a message.
	Send(ctx context.Context, req SendRequest) Outcome

	// HealthCheck reports the provider's health.
	HealthCheck(ctx context.Context) HealthResult
}

// HealthResult is the outcome of a health check.
type HealthResult struct {
	Healthy bool     `json:"healthy"`
	Issues  []string `json:"issues,omitempty"`

	// Upstreams holds the raw results of aggregated providers, keyed by id.
	// It is nil for leaf providers.
	Upstreams map[string]HealthResult `json:"upstreams,omitempty"`
}

// Canceler is implemented by providers that can cancel a scheduled or
// queued message.
type Canceler interface {
	Cancel(ctx context.Context, messageID string) bool
}

// CapabilityReporter is implemented by providers that describe their limits.
type CapabilityReporter interface {
	Capabilities() Capabilities
}

// FeatureReporter is implemented by providers that list supported features.
type FeatureReporter interface {
	SupportedFeatures() []string
}

// MetadataReporter is implemented by providers that describe themselves.
type MetadataReporter interface {
	Metadata() Metadata
}

// Unwrapper is implemented by decorators wrapping another Provider.
// Optional capability lookups walk through it.
type Unwrapper interface {
	Unwrap() Provider
}

// find returns the first provider in p's decorator chain implementing T.
func find[T any](p Provider) (T, bool) {
	for p != nil {
		if v, ok := p.(T); ok {
			return v, true
		}
		u, ok := p.(Unwrapper)
		if !ok {
			break
		}
		p = u.Unwrap()
	}
	var zero T
	return zero, false
}

// Cancel cancels messageID on p. The second return value is false when p
// does not support cancellation.
func Cancel(ctx context.Context, p Provider, messageID string) (cancelled bool, supported bool) {
	c, ok := find[Canceler](p)
	if !ok {
		return false, false
	}
	return c.Cancel(ctx, messageID), true
}

// CapabilitiesOf returns p's capabilities. It falls back to the capabilities
// carried in p's metadata.
func CapabilitiesOf(p Provider) (Capabilities, bool) {
	if c, ok := find[CapabilityReporter](p); ok {
		return c.Capabilities(), true
	}
	if m, ok := find[MetadataReporter](p); ok {
		return m.Metadata().Capabilities, true
	}
	return Capabilities{}, false
}

// FeaturesOf returns p's supported features, falling back to metadata.
func FeaturesOf(p Provider) ([]string, bool) {
	if f, ok := find[FeatureReporter](p); ok {
		return f.SupportedFeatures(), true
	}
	if m, ok := find[MetadataReporter](p); ok {
		return m.Metadata().SupportedFeatures, true
	}
	return nil, false
}

// MetadataOf returns p's metadata.
func MetadataOf(p Provider) (Metadata, bool) {
	m, ok := find[MetadataReporter](p)
	if !ok {
		return Metadata{}, false
	}
	return m.Metadata(), true
}
