package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jonwraymond/msgops/fault"
)

// Middleware authenticates every request with a. Requests without a
// supported credential, or with a rejected one, get 401 and a JSON
// AUTHENTICATION_FAILED error; internal authenticator errors get 500.
func Middleware(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Supports(r.Header) {
				writeError(w, http.StatusUnauthorized, ErrMissingCredentials)
				return
			}
			id, err := a.Authenticate(r.Context(), r.Header)
			switch {
			case err == nil:
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
			case isCredentialError(err):
				writeError(w, http.StatusUnauthorized, err)
			default:
				writeError(w, http.StatusInternalServerError, err)
			}
		})
	}
}

// RequireScope rejects requests whose identity lacks scope with 403.
func RequireScope(scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IdentityFromContext(r.Context()).HasScope(scope) {
			writeError(w, http.StatusForbidden, ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isCredentialError(err error) bool {
	return errors.Is(err, ErrMissingCredentials) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenMalformed)
}

func writeError(w http.ResponseWriter, status int, err error) {
	code := fault.CodeAuthenticationFailed
	if status == http.StatusInternalServerError {
		code = fault.CodeUnknownError
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="msgops"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": fault.New(code, err.Error())})
}
