package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/vittordeaguiar/blog-api/internal/httputil"
)

type contextKey struct{}

var identityKey contextKey

// IdentityFrom extracts the authenticated identity stored by RequireAuth.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// IdentityFromRequest verifies the bearer token on a request directly,
// without requiring the middleware to have run. Rate limit partitioning
// uses it to key authenticated traffic by user on public routes too.
func (t *TokenIssuer) IdentityFromRequest(r *http.Request) (Identity, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return Identity{}, false
	}

	identity, err := t.Verify(token)
	if err != nil {
		return Identity{}, false
	}

	return identity, true
}

// RequireAuth rejects requests without a valid bearer token and stores
// the verified identity in the request context.
func (t *TokenIssuer) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httputil.WriteError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		identity, err := t.Verify(token)
		if err != nil {
			httputil.WriteError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects authenticated requests whose identity does not
// carry the given role. It must run after RequireAuth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFrom(r.Context())
			if !ok {
				httputil.WriteError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if identity.Role != role {
				httputil.WriteError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}

	return strings.TrimSpace(header[len(prefix):]), true
}
