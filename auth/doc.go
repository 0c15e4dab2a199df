// Package auth authenticates callers of the msgopsd HTTP API.
//
// Two methods are supported: HMAC-signed JWT bearer tokens and static API
// keys. Middleware wraps an http.Handler, attaches the caller's Identity to
// the request context and rejects unauthenticated requests with 401.
// RequireScope rejects identities lacking a scope with 403.
package auth
