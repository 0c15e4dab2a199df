package health

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/msgops/provider"
)

// ProbeConfig configures a probe run.
type ProbeConfig struct {
	// Timeout bounds each provider's health check.
	// Default: 10 seconds
	Timeout time.Duration

	// Concurrency caps the number of checks in flight. Zero is unbounded.
	Concurrency int
}

// Entry is the health of one provider within a probe run.
type Entry struct {
	ID       string
	Result   provider.HealthResult
	Duration time.Duration
}

// Probe runs HealthCheck on every provider concurrently and returns the
// entries in input order.
//
// One provider cannot affect another's entry: a check that panics or
// exceeds the timeout is reported as unhealthy with an issue describing
// what happened, and the remaining checks continue.
func Probe(ctx context.Context, providers []provider.Provider, cfg ProbeConfig) []Entry {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	entries := make([]Entry, len(providers))
	if len(providers) == 0 {
		return entries
	}

	var g errgroup.Group
	if cfg.Concurrency > 0 {
		g.SetLimit(cfg.Concurrency)
	}

	for i, p := range providers {
		g.Go(func() error {
			entries[i] = runCheck(ctx, p, cfg.Timeout)
			return nil
		})
	}
	_ = g.Wait()

	return entries
}

// Results flattens entries into a map keyed by provider id. When ids repeat
// the last entry wins.
func Results(entries []Entry) map[string]provider.HealthResult {
	out := make(map[string]provider.HealthResult, len(entries))
	for _, e := range entries {
		out[e.ID] = e.Result
	}
	return out
}

func runCheck(ctx context.Context, p provider.Provider, timeout time.Duration) Entry {
	start := time.Now()
	entry := Entry{ID: p.ID()}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan provider.HealthResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- unhealthy(fmt.Errorf("%w: %v", ErrCheckPanicked, r))
			}
		}()
		resultCh <- p.HealthCheck(ctx)
	}()

	select {
	case entry.Result = <-resultCh:
	case <-ctx.Done():
		entry.Result = unhealthy(ErrCheckTimeout)
	}
	entry.Duration = time.Since(start)
	return entry
}

func unhealthy(err error) provider.HealthResult {
	return provider.HealthResult{Healthy: false, Issues: []string{err.Error()}}
}
