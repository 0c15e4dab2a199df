package cache

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/msgops/observe"
	"github.com/jonwraymond/msgops/provider"
)

// DuplicateWarning is the warning code attached to suppressed sends.
const DuplicateWarning = "DUPLICATE_SUPPRESSED"

// Config configures Dedupe.
type Config struct {
	// Cache stores sent results.
	// Default: NewMemoryCache(nil)
	Cache Cache

	// Keyer derives keys.
	// Default: MessageIDKeyer{}
	Keyer Keyer

	// TTL is how long a sent result suppresses duplicates. Zero disables
	// deduplication.
	TTL DurationPolicy

	// Logger receives suppressed-send events.
	// Default: observe.NopLogger()
	Logger observe.Logger
}

// Dedupe wraps providers with duplicate suppression.
type Dedupe struct {
	cfg   Config
	group singleflight.Group
}

// New creates a Dedupe.
func New(cfg Config) *Dedupe {
	if cfg.Cache == nil {
		cfg.Cache = NewMemoryCache(nil)
	}
	if cfg.Keyer == nil {
		cfg.Keyer = MessageIDKeyer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	return &Dedupe{cfg: cfg}
}

// Wrap returns p with duplicate suppression.
func (d *Dedupe) Wrap(p provider.Provider) provider.Provider {
	return &deduped{next: p, d: d}
}

type deduped struct {
	next provider.Provider
	d    *Dedupe
}

func (p *deduped) ID() string                 { return p.next.ID() }
func (p *deduped) Unwrap() provider.Provider { return p.next }

func (p *deduped) HealthCheck(ctx context.Context) provider.HealthResult {
	return p.next.HealthCheck(ctx)
}

func (p *deduped) Send(ctx context.Context, req provider.SendRequest) provider.Outcome {
	ttl := p.d.cfg.TTL.For(req)
	if ttl <= 0 {
		return p.next.Send(ctx, req)
	}
	key, err := p.d.cfg.Keyer.Key(p.next.ID(), req)
	if err != nil || key == "" || ValidateKey(key) != nil {
		return p.next.Send(ctx, req)
	}

	if res, ok := p.lookup(ctx, key); ok {
		return p.suppressed(ctx, key, res)
	}

	// Only the caller whose own send reached the backend gets an unmarked
	// result; everyone sharing it sees a duplicate.
	led := false
	v, _, _ := p.d.group.Do(key, func() (any, error) {
		if res, ok := p.lookup(ctx, key); ok {
			return provider.Sent(res), nil
		}
		led = true
		out := p.next.Send(ctx, req)
		if out.IsSuccess() {
			if raw, err := json.Marshal(out.Value()); err == nil {
				_ = p.d.cfg.Cache.Set(ctx, key, raw, ttl)
			}
		}
		return out, nil
	})
	out := v.(provider.Outcome)
	if !led && out.IsSuccess() {
		return p.suppressed(ctx, key, out.Value())
	}
	return out
}

func (p *deduped) lookup(ctx context.Context, key string) (*provider.SendResult, bool) {
	raw, ok := p.d.cfg.Cache.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var res provider.SendResult
	if err := json.Unmarshal(raw, &res); err != nil {
		_ = p.d.cfg.Cache.Delete(ctx, key)
		return nil, false
	}
	return &res, true
}

func (p *deduped) suppressed(ctx context.Context, key string, res *provider.SendResult) provider.Outcome {
	p.d.cfg.Logger.Info(ctx, "duplicate send suppressed",
		observe.Field{Key: "provider_id", Value: p.next.ID()},
		observe.Field{Key: "message_id", Value: res.MessageID},
	)
	return provider.Sent(res.WithWarning(provider.Warning{
		Code:    DuplicateWarning,
		Message: "an identical send was accepted recently; the backend was not called again",
		Details: map[string]any{"key": key},
	}))
}

var _ provider.Unwrapper = (*deduped)(nil)
