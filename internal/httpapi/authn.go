package httpapi

import (
	"net/http"
	"strings"

	"rollcall.app/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Authenticate verifies the access token and stores the identity and its
// tenant namespace in the request context.
func (a *API) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		token := accessToken(r)
		if token == "" {
			respondMissingToken(w)
			return
		}
		identity, namespace, err := a.service.Authenticate(token)
		if err != nil {
			respondServiceError(w, r, a.logger, err)
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), identity)
		ctx = auth.ContextWithNamespace(ctx, namespace)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission rejects callers whose role may not perform op. It must
// run after Authenticate.
func (a *API) RequirePermission(op auth.Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				respondMissingToken(w)
				return
			}
			if err := a.service.Authorize(identity, op); err != nil {
				respondServiceError(w, r, a.logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// accessToken prefers the Authorization header over the access_token cookie.
func accessToken(r *http.Request) string {
	if token, ok := bearerToken(r.Header.Get(authHeader)); ok {
		return token
	}
	if c, err := r.Cookie(accessCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearer):])
	return token, token != ""
}
