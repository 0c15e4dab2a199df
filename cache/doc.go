// Package cache suppresses duplicate sends.
//
// Dedupe wraps a provider and remembers successful sends by key for a TTL.
// A repeated request with the same key returns the remembered SendResult
// with a DUPLICATE_SUPPRESSED warning instead of reaching the backend
// again; concurrent duplicates share one backend call. Failures are never
// remembered, so a failed send can be retried.
//
// By default the key is the caller's message id; requests without one are
// sent as usual. ContentKeyer also keys by the request body.
package cache
