package router

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/jonwraymond/msgops/fault"
	"github.com/jonwraymond/msgops/health"
	"github.com/jonwraymond/msgops/observe"
	"github.com/jonwraymond/msgops/provider"
)

const component = "router"

// ErrNoUpstreams is the cause attached when a router has no providers.
var ErrNoUpstreams = errors.New("router: no upstream providers")

// Strategy selects how a Router picks an upstream provider.
type Strategy int

const (
	// RoundRobin sends call k to providers[k mod len(providers)].
	RoundRobin Strategy = iota

	// Failover tries providers in order, moving to the next one while the
	// failure qualifies for failover.
	Failover
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case RoundRobin:
		return "round_robin"
	case Failover:
		return "failover"
	default:
		return "unknown"
	}
}

// ParseStrategy parses a strategy name as returned by Strategy.String.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "round_robin", "roundrobin":
		return RoundRobin, nil
	case "failover":
		return Failover, nil
	default:
		return 0, fmt.Errorf("router: unknown strategy %q", s)
	}
}

// Config configures a Router.
type Config struct {
	// ID is the router's provider id.
	// Default: "router"
	ID string

	// Providers is the fixed upstream sequence.
	Providers []provider.Provider

	// Strategy selects round-robin or failover dispatch.
	// Default: RoundRobin
	Strategy Strategy

	// FailoverIf reports whether a failure moves a Failover router to the
	// next upstream.
	// Default: DefaultFailoverIf
	FailoverIf func(*fault.Error) bool

	// Health configures HealthCheck fan-out.
	Health health.ProbeConfig

	// Logger receives failover events.
	// Default: observe.NopLogger()
	Logger observe.Logger
}

// DefaultFailoverIf fails over on everything except failures another
// upstream would reject the same way.
func DefaultFailoverIf(err *fault.Error) bool {
	switch err.Code {
	case fault.CodeInvalidRequest, fault.CodeTemplateNotFound:
		return false
	}
	return true
}

// Router dispatches sends across a fixed sequence of providers. It is
// itself a provider.Provider, so routers nest and can be wrapped by
// middleware.
//
// A Router never retries a failure on its own beyond failover, and returns
// upstream results unmodified except for the FAILOVER warning.
type Router struct {
	cfg       Config
	providers []provider.Provider
	next      atomic.Uint64
}

// New creates a Router. The provider slice is copied.
func New(cfg Config) *Router {
	if cfg.ID == "" {
		cfg.ID = "router"
	}
	if cfg.FailoverIf == nil {
		cfg.FailoverIf = DefaultFailoverIf
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	cfg.Logger = cfg.Logger.With(
		observe.Field{Key: "component", Value: component},
		observe.Field{Key: "router_id", Value: cfg.ID},
	)
	return &Router{cfg: cfg, providers: slices.Clone(cfg.Providers)}
}

// ID implements provider.Provider.
func (r *Router) ID() string { return r.cfg.ID }

// Providers returns the upstream sequence.
func (r *Router) Providers() []provider.Provider {
	return slices.Clone(r.providers)
}

// Send implements provider.Provider.
func (r *Router) Send(ctx context.Context, req provider.SendRequest) provider.Outcome {
	if len(r.providers) == 0 {
		return provider.Failed(
			fault.Local(fault.CodeInvalidRequest, component, "Router provider has no upstream providers", ErrNoUpstreams).
				WithContext(fault.KeyProviderID, r.cfg.ID),
		)
	}
	if r.cfg.Strategy == Failover {
		return r.failover(ctx, req)
	}
	return r.pick().Send(ctx, req)
}

// pick advances the rotation before the upstream call starts, so concurrent
// sends never observe the same slot.
func (r *Router) pick() provider.Provider {
	n := uint64(len(r.providers))
	k := r.next.Add(1) - 1
	return r.providers[k%n]
}

func (r *Router) failover(ctx context.Context, req provider.SendRequest) provider.Outcome {
	var failed []*fault.Error
	for i, p := range r.providers {
		out := p.Send(ctx, req)
		if out.IsSuccess() {
			if len(failed) == 0 {
				return out
			}
			return provider.Sent(out.Value().WithWarning(provider.Warning{
				Code:    "FAILOVER",
				Message: fmt.Sprintf("delivered by %s after %d failed upstream(s)", p.ID(), len(failed)),
				Details: map[string]any{"failed": failedIDs(r.providers[:i])},
			}))
		}

		err := out.Err()
		failed = append(failed, err)
		if i == len(r.providers)-1 || !r.cfg.FailoverIf(err) || ctx.Err() != nil {
			break
		}
		r.cfg.Logger.Warn(ctx, "upstream failed, failing over",
			observe.Field{Key: "provider_id", Value: p.ID()},
			observe.Field{Key: "error_code", Value: string(err.Code)},
			observe.Field{Key: "next_provider_id", Value: r.providers[i+1].ID()},
		)
	}

	last := failed[len(failed)-1]
	for _, earlier := range failed[:len(failed)-1] {
		last = last.WithCause(earlier)
	}
	return provider.Failed(last)
}

func failedIDs(ps []provider.Provider) []string {
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID()
	}
	return ids
}

// HealthCheck implements provider.Provider. The router is healthy when at
// least one upstream is; every upstream issue is reported prefixed with the
// upstream id.
func (r *Router) HealthCheck(ctx context.Context) provider.HealthResult {
	if len(r.providers) == 0 {
		return provider.HealthResult{Issues: []string{"no upstream providers"}}
	}

	entries := health.Probe(ctx, r.providers, r.cfg.Health)
	out := provider.HealthResult{Upstreams: make(map[string]provider.HealthResult, len(entries))}
	for _, e := range entries {
		out.Upstreams[e.ID] = e.Result
		if e.Result.Healthy {
			out.Healthy = true
		}
		for _, issue := range e.Result.Issues {
			out.Issues = append(out.Issues, e.ID+": "+issue)
		}
		if !e.Result.Healthy && len(e.Result.Issues) == 0 {
			out.Issues = append(out.Issues, e.ID+": unhealthy")
		}
	}
	return out
}

// Capabilities implements provider.CapabilityReporter with the limits every
// upstream can honor. Rates add up across upstreams.
func (r *Router) Capabilities() provider.Capabilities {
	var caps provider.Capabilities
	first := true
	for _, p := range r.providers {
		c, ok := provider.CapabilitiesOf(p)
		if !ok {
			continue
		}
		if first {
			caps = c
			first = false
			continue
		}
		caps.MaxRecipientsPerRequest = min(caps.MaxRecipientsPerRequest, c.MaxRecipientsPerRequest)
		caps.MaxRequestsPerSecond += c.MaxRequestsPerSecond
		caps.SupportsBulk = caps.SupportsBulk && c.SupportsBulk
		caps.SupportsScheduling = caps.SupportsScheduling && c.SupportsScheduling
		caps.SupportsTemplating = caps.SupportsTemplating && c.SupportsTemplating
	}
	return caps
}

// Cancel implements provider.Canceler by offering the cancellation to every
// upstream that supports it.
func (r *Router) Cancel(ctx context.Context, messageID string) bool {
	for _, p := range r.providers {
		if ok, _ := provider.Cancel(ctx, p, messageID); ok {
			return true
		}
	}
	return false
}

var (
	_ provider.Provider           = (*Router)(nil)
	_ provider.CapabilityReporter = (*Router)(nil)
	_ provider.Canceler           = (*Router)(nil)
)
