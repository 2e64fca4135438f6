package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// CallerHeader names the header an authenticated client uses to declare the
// principal it acts as. The value is bound into the request context and takes
// precedence over any identity carried in a request body.
const CallerHeader = "X-Caller"

type callerKey struct{}

// Caller returns the principal the auth layer bound to the request context,
// if any.
func Caller(ctx context.Context) (string, bool) {
	principal, ok := ctx.Value(callerKey{}).(string)
	return principal, ok
}

// Auth validates requests against the shared API key, carried either as a
// Bearer token in the Authorization header or in the X-API-Key header, then
// binds the declared caller principal into the request context. An empty key
// disables validation; principal binding still applies so standalone
// deployments keep per-caller identity.
func Auth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey != "" {
				credential := requestCredential(r)
				if credential == "" {
					deny(w, "missing credentials")
					return
				}
				// Constant-time comparison to prevent timing attacks.
				if subtle.ConstantTimeCompare([]byte(credential), []byte(apiKey)) != 1 {
					deny(w, "invalid credentials")
					return
				}
			}

			if caller := strings.TrimSpace(r.Header.Get(CallerHeader)); caller != "" {
				r = r.WithContext(context.WithValue(r.Context(), callerKey{}, caller))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestCredential extracts the API key from the Authorization header
// (Bearer scheme) or the X-API-Key header.
func requestCredential(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if scheme, rest, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(rest)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

// deny sends a 401 response with a JSON error body.
func deny(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
