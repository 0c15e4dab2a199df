// Package router distributes sends across several providers.
//
// A Router holds a fixed, ordered upstream sequence. With RoundRobin, send
// k goes to providers[k mod len(providers)]; with Failover, upstreams are
// tried in order until one accepts or a failure does not qualify for
// failover. An empty router fails every send with INVALID_REQUEST before
// any upstream is involved.
//
// Health is aggregated: the router is healthy while any upstream is, and
// the raw upstream results are kept in HealthResult.Upstreams.
package router
