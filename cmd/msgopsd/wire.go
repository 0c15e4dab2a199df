package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jonwraymond/msgops/cache"
	"github.com/jonwraymond/msgops/fault"
	"github.com/jonwraymond/msgops/health"
	"github.com/jonwraymond/msgops/internal/config"
	"github.com/jonwraymond/msgops/internal/server"
	"github.com/jonwraymond/msgops/observe"
	"github.com/jonwraymond/msgops/provider"
	"github.com/jonwraymond/msgops/providers/mock"
	"github.com/jonwraymond/msgops/providers/webhook"
	"github.com/jonwraymond/msgops/registry"
	"github.com/jonwraymond/msgops/resilience"
	"github.com/jonwraymond/msgops/router"
	"github.com/jonwraymond/msgops/secret"
)

// app is the assembled daemon.
type app struct {
	registry *registry.Registry
	secrets  *secret.Resolver
	dedupe   *cache.MemoryCache
	sender   provider.Provider
	handler  http.Handler
}

// build assembles the send path:
//
//	dedupe -> pipeline(rate limit, retry) -> router -> per upstream:
//	pipeline(rate limit per provider, circuit breaker) -> observed provider
func build(ctx context.Context, cfg config.Config, obs observe.Observer) (*app, error) {
	logger := obs.Logger()

	providers := []secret.Provider{secret.EnvProvider{}}
	if cfg.SecretsDir != "" {
		providers = append(providers, secret.FileProvider{Dir: cfg.SecretsDir})
	}
	secrets := secret.NewResolver(true, providers...)

	probe := health.ProbeConfig{Timeout: cfg.HealthTimeout}
	reg := registry.New(registry.Config{Logger: logger, Secrets: secrets, Health: probe})

	instrument, err := observe.MiddlewareFromObserver(obs)
	if err != nil {
		return nil, fmt.Errorf("instrument providers: %w", err)
	}

	limitCfg, limited := cfg.RateLimiterConfig()
	var limiter *resilience.RateLimiter
	if limited {
		limiter = resilience.NewRateLimiter(limitCfg)
	}
	breakerCfg, breaking := cfg.CircuitBreakerConfig()

	upstreams := make([]provider.Provider, 0, len(cfg.Providers))
	for _, up := range cfg.Providers {
		base, err := factoryFor(up.Factory)
		if err != nil {
			return nil, err
		}
		if err := reg.RegisterFactory(provider.Alias(up.ID, base)); err != nil {
			return nil, err
		}
		created := reg.CreateProvider(ctx, up.ID, up.Config)
		if created.IsFailure() {
			return nil, created.Err()
		}

		var opts []resilience.Option
		opts = append(opts, resilience.WithLogger(logger))
		if limited && cfg.RateLimit.PerProvider {
			opts = append(opts, resilience.WithRateLimiter(limiter))
		}
		if breaking {
			bc := breakerCfg
			id := up.ID
			bc.OnStateChange = func(from, to resilience.State) {
				logger.Warn(context.Background(), "circuit state changed",
					observe.Field{Key: "provider_id", Value: id},
					observe.Field{Key: "from", Value: from.String()},
					observe.Field{Key: "to", Value: to.String()},
				)
			}
			opts = append(opts, resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(bc)))
		}
		upstreams = append(upstreams, resilience.NewPipeline(instrument.Wrap(created.Value()), opts...))
	}

	rt := router.New(router.Config{
		Providers: upstreams,
		Strategy:  cfg.RouterStrategy(),
		Health:    probe,
		Logger:    logger,
	})

	opts := []resilience.Option{resilience.WithLogger(logger)}
	if limited && !cfg.RateLimit.PerProvider {
		opts = append(opts, resilience.WithRateLimiter(limiter))
	}
	if retryCfg, ok := cfg.RetryConfig(); ok {
		retryCfg.OnRetry = func(retry int, err *fault.Error, delay time.Duration) {
			logger.Info(context.Background(), "send failed, retrying",
				observe.Field{Key: "retry", Value: retry},
				observe.Field{Key: "code", Value: string(err.Code)},
				observe.Field{Key: "delay_ms", Value: delay.Milliseconds()},
			)
		}
		opts = append(opts, resilience.WithRetry(retryCfg))
	}
	var sender provider.Provider = resilience.NewPipeline(rt, opts...)

	a := &app{registry: reg, secrets: secrets}
	if cfg.Dedupe.TTL > 0 {
		a.dedupe = cache.NewMemoryCache(nil)
		sender = cache.New(cache.Config{
			Cache:  a.dedupe,
			TTL:    cache.DurationPolicy{Default: cfg.Dedupe.TTL, Max: cfg.Dedupe.MaxTTL},
			Logger: logger,
		}).Wrap(sender)
	}
	a.sender = sender

	authn, err := cfg.Authenticator()
	if err != nil {
		return nil, err
	}
	srv, err := server.New(server.Config{
		Sender:        sender,
		Registry:      reg,
		Authenticator: authn,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	a.handler = srv.Handler()
	return a, nil
}

func factoryFor(name string) (provider.Factory, error) {
	switch name {
	case mock.ID:
		return mock.NewFactory(), nil
	case webhook.ID:
		return webhook.NewFactory(), nil
	}
	return nil, fmt.Errorf("unknown provider type %q", name)
}

// sweep drops expired dedupe entries until ctx is done.
func (a *app) sweep(ctx context.Context, every time.Duration) {
	if a.dedupe == nil {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.dedupe.Sweep()
		}
	}
}

// close releases providers and secret backends.
func (a *app) close() error {
	regErr := a.registry.Close()
	secErr := a.secrets.Close()
	if regErr != nil {
		return regErr
	}
	return secErr
}
