// Package fault defines the closed error taxonomy of the send path.
//
// Every failure that crosses a package boundary on the send path is an
// *Error carrying one of a fixed set of codes. Backend adapters translate
// their native signals at the boundary; the orchestration layer only
// substitutes errors of its own (unknown provider, open circuit, rate
// limited) and tags them so callers can tell "never reached a backend"
// from "the backend said no":
//
//	err := fault.Local(fault.CodeRateLimitExceeded, "rate_limiter",
//	    "rate limit exceeded", nil)
//	err.ReachedBackend() // false
//
// Errors compose with the standard library. errors.Is matches two *Error
// values by code, and the cause chain is walked for sentinels:
//
//	if errors.Is(err, fault.New(fault.CodeNetworkTimeout, "")) { ... }
//	if errors.Is(err, resilience.ErrCircuitOpen) { ... }
package fault
