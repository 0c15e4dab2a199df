package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/jonwraymond/msgops/fault"
	"github.com/jonwraymond/msgops/health"
	"github.com/jonwraymond/msgops/observe"
	"github.com/jonwraymond/msgops/provider"
	"github.com/jonwraymond/msgops/result"
)

const component = "registry"

var (
	// ErrFactoryNotFound is the cause attached when no factory is registered
	// under the requested id.
	ErrFactoryNotFound = errors.New("registry: factory not found")

	// ErrInvalidFactory indicates a nil factory or one with an empty id.
	ErrInvalidFactory = errors.New("registry: invalid factory")
)

// Config configures a Registry.
type Config struct {
	// Logger receives registration and instantiation events.
	// Default: observe.NopLogger()
	Logger observe.Logger

	// Secrets resolves secretref: and ${ENV} values in provider
	// configuration before it reaches a factory. Nil expands the
	// environment only.
	Secrets SecretResolver

	// Health configures HealthCheck fan-out.
	Health health.ProbeConfig
}

// SecretResolver resolves references inside provider configuration.
// *secret.Resolver satisfies it.
type SecretResolver interface {
	ResolveConfig(ctx context.Context, cfg map[string]any) (map[string]any, error)
}

type entry struct {
	factory  provider.Factory
	metadata provider.Metadata
}

// Registry holds provider factories keyed by id and the provider instances
// created from them.
//
// Registering a factory under an id that is already taken replaces the
// previous factory (last write wins). Registration alone never constructs
// a provider; CreateProvider does.
//
// A Registry is safe for concurrent use.
type Registry struct {
	cfg Config

	mu        sync.RWMutex
	entries   map[string]entry
	order     []string // registration order
	instances map[string]provider.Provider
	created   []string // instantiation order
}

// New creates an empty Registry.
func New(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	cfg.Logger = cfg.Logger.With(observe.Field{Key: "component", Value: component})
	return &Registry{
		cfg:       cfg,
		entries:   make(map[string]entry),
		instances: make(map[string]provider.Provider),
	}
}

// RegisterFactory stores f under f.Metadata().ID. It fails only for a nil
// factory or an empty id.
func (r *Registry) RegisterFactory(f provider.Factory) error {
	if f == nil {
		return fmt.Errorf("%w: nil factory", ErrInvalidFactory)
	}
	meta := f.Metadata()
	id := strings.TrimSpace(meta.ID)
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidFactory)
	}

	r.mu.Lock()
	_, replaced := r.entries[id]
	r.entries[id] = entry{factory: f, metadata: meta}
	if !replaced {
		r.order = append(r.order, id)
	}
	r.mu.Unlock()

	if replaced {
		r.cfg.Logger.Warn(context.Background(), "provider factory replaced",
			observe.Field{Key: "provider_id", Value: id},
		)
	} else {
		r.cfg.Logger.Debug(context.Background(), "provider factory registered",
			observe.Field{Key: "provider_id", Value: id},
			observe.Field{Key: "version", Value: meta.Version},
		)
	}
	return nil
}

// CreateProvider instantiates the provider registered under id with cfg
// and tracks the instance under id, replacing (and closing) any instance
// created earlier.
//
// Failures are INVALID_REQUEST: an unknown id carries reason
// provider_not_found and ErrFactoryNotFound as cause; configuration the
// factory or secret resolution rejects carries reason invalid_config.
func (r *Registry) CreateProvider(ctx context.Context, id string, cfg provider.Config) result.Result[provider.Provider, *fault.Error] {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return result.Fail[provider.Provider](
			fault.Local(fault.CodeInvalidRequest, component, "Provider factory not found: "+id, ErrFactoryNotFound).
				WithContext(fault.KeyReason, "provider_not_found").
				WithContext(fault.KeyProviderID, id),
		)
	}

	resolved, err := r.resolveConfig(ctx, cfg)
	if err != nil {
		return result.Fail[provider.Provider](invalidConfig(id, "resolve provider config", err))
	}

	p, err := e.factory.Create(resolved)
	if err != nil {
		return result.Fail[provider.Provider](invalidConfig(id, "create provider", err))
	}
	if p == nil {
		return result.Fail[provider.Provider](invalidConfig(id, "create provider", errors.New("factory returned nil provider")))
	}

	r.mu.Lock()
	prev, existed := r.instances[id]
	r.instances[id] = p
	if !existed {
		r.created = append(r.created, id)
	}
	r.mu.Unlock()

	if existed {
		if err := closeProvider(prev); err != nil {
			r.cfg.Logger.Warn(ctx, "replaced provider failed to close",
				observe.Field{Key: "provider_id", Value: id},
				observe.Field{Key: "error", Value: err.Error()},
			)
		}
	}
	r.cfg.Logger.Info(ctx, "provider created", observe.Field{Key: "provider_id", Value: id})
	return result.Ok[provider.Provider, *fault.Error](p)
}

func (r *Registry) resolveConfig(ctx context.Context, cfg provider.Config) (provider.Config, error) {
	if r.cfg.Secrets == nil {
		return cfg, nil
	}
	out, err := r.cfg.Secrets.ResolveConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return provider.Config(out), nil
}

func invalidConfig(id, msg string, cause error) *fault.Error {
	return fault.Local(fault.CodeInvalidRequest, component, fmt.Sprintf("%s %s: %v", msg, id, cause), cause).
		WithContext(fault.KeyReason, "invalid_config").
		WithContext(fault.KeyProviderID, id)
}

// Provider returns the instance created under id.
func (r *Registry) Provider(id string) (provider.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.instances[id]
	return p, ok
}

// Providers returns the created instances in creation order.
func (r *Registry) Providers() []provider.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]provider.Provider, 0, len(r.created))
	for _, id := range r.created {
		out = append(out, r.instances[id])
	}
	return out
}

// AvailableProviders returns every registered id in registration order.
func (r *Registry) AvailableProviders() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// ProviderMetadata returns the metadata stored for id.
func (r *Registry) ProviderMetadata(id string) (provider.Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e.metadata, ok
}

// FindProvidersByFeature returns the metadata of every registered provider
// supporting feature, in registration order.
func (r *Registry) FindProvidersByFeature(feature string) []provider.Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []provider.Metadata
	for _, id := range r.order {
		if m := r.entries[id].metadata; m.Supports(feature) {
			out = append(out, m)
		}
	}
	return out
}

// HealthCheck checks every created provider concurrently and returns the
// results by id. Registered but never created providers are not checked.
func (r *Registry) HealthCheck(ctx context.Context) map[string]provider.HealthResult {
	return health.Results(health.Probe(ctx, r.Providers(), r.cfg.Health))
}

// Status summarizes a registry.
type Status struct {
	RegisteredFactories int                 `json:"registeredFactories"`
	ActiveProviders     int                 `json:"activeProviders"`
	AvailableProviders  []string            `json:"availableProviders"`
	Metadata            []provider.Metadata `json:"metadata"`
}

// Status returns counts, ids and metadata in registration order.
func (r *Registry) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := Status{
		RegisteredFactories: len(r.entries),
		ActiveProviders:     len(r.instances),
		AvailableProviders:  slices.Clone(r.order),
		Metadata:            make([]provider.Metadata, 0, len(r.order)),
	}
	for _, id := range r.order {
		st.Metadata = append(st.Metadata, r.entries[id].metadata)
	}
	return st
}

// Close closes every created provider that implements io.Closer (looking
// through decorators) and forgets all instances. Factories stay registered.
func (r *Registry) Close() error {
	r.mu.Lock()
	instances := r.instances
	created := r.created
	r.instances = make(map[string]provider.Provider)
	r.created = nil
	r.mu.Unlock()

	var errs []error
	for _, id := range created {
		if err := closeProvider(instances[id]); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func closeProvider(p provider.Provider) error {
	for p != nil {
		if c, ok := p.(io.Closer); ok {
			return c.Close()
		}
		u, ok := p.(provider.Unwrapper)
		if !ok {
			return nil
		}
		p = u.Unwrap()
	}
	return nil
}
