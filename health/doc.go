// Package health probes providers and exposes the results over HTTP.
//
// Probe fans HealthCheck out across providers with a per-check timeout and
// panic isolation. Overall folds a result set into one Status:
//
//	entries := health.Probe(ctx, providers, health.ProbeConfig{Timeout: 2 * time.Second})
//	status := health.Overall(health.Results(entries))
//
// The HTTP handlers read from a Source, typically a registry:
//
//	health.RegisterHandlers(mux, reg.HealthCheck)
//
// which serves /healthz (liveness), /readyz (ready while any provider is
// healthy) and /health (per-provider JSON detail).
package health
