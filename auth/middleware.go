package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/not-mt/zapd/errors"
	"github.com/not-mt/zapd/logger"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// IdentityContextKey is the context key for the authenticated identity
const IdentityContextKey contextKey = "auth_identity"

// Require wraps a handler with authentication plus an ACL check for one
// section/permission pair. If auth is disabled globally, it passes
// through all requests.
func (e *Evaluator) Require(section string, perm Permission) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !e.enabled {
				next(w, r)
				return
			}

			identity, err := e.Authenticate(KeyFromRequest(r))
			if err != nil {
				e.logger.Debugw("Request rejected: authentication failed",
					logger.FieldPath, r.URL.Path,
					logger.FieldError, err)
				writeError(w, http.StatusUnauthorized, err)
				return
			}

			if err := e.AuthorizeCached(identity, section, perm); err != nil {
				e.logger.Debugw("Request rejected: permission denied",
					logger.FieldKeyName, identity.Name,
					logger.FieldPath, r.URL.Path,
					logger.FieldError, err)
				writeError(w, http.StatusForbidden, err)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
			next(w, r.WithContext(ctx))
		}
	}
}

// KeyFromRequest extracts the API key from a request. Checks the
// X-API-Key header first, then falls back to a query param (for
// WebSocket clients, which cannot set headers).
func KeyFromRequest(r *http.Request) string {
	if key := r.Header.Get(HeaderAPIKey); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

// IdentityFromContext extracts the authenticated identity from a request
// context. Returns nil when auth is disabled or the request never passed
// through Require.
func IdentityFromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(IdentityContextKey).(*Identity)
	return identity
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()}) //nolint:errcheck
}

// StatusForAuthError maps an auth failure to its HTTP status. Handlers
// that run the Check path themselves (WebSocket upgrades) use this
// instead of Require.
func StatusForAuthError(err error) int {
	switch {
	case errors.IsUnauthorizedError(err):
		return http.StatusUnauthorized
	case errors.IsForbiddenError(err):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
