package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sandeepkv93/session-authority-service/internal/http/response"
	"github.com/sandeepkv93/session-authority-service/internal/security"
	"github.com/sandeepkv93/session-authority-service/internal/service"
)

type contextKey string

const identityContextKey contextKey = "identity"

// TokenValidator is the piece of the token service the route guard needs.
type TokenValidator interface {
	Validate(ctx context.Context, raw string) (*service.Identity, error)
}

// AuthMiddleware is the route guard. It extracts the access token from the
// cookie or Authorization header and validates it against the session
// registry on every request. Session-integrity failures force logout by
// clearing the client's cookies; an unreachable registry is an infrastructure
// error, never grounds for invalidation.
func AuthMiddleware(validator TokenValidator, secureCookies bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := security.GetCookie(r, security.AccessTokenCookie)
			if raw == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
					raw = strings.TrimSpace(auth[7:])
				}
			}
			if raw == "" {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}

			identity, err := validator.Validate(r.Context(), raw)
			if err != nil {
				if errors.Is(err, service.ErrSessionInvalid) {
					security.ClearAuthCookies(w, secureCookies)
					response.Error(w, r, http.StatusUnauthorized, "SESSION_INVALID", "session revoked or expired", nil)
					return
				}
				if errors.Is(err, service.ErrTokenInvalid) {
					response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
					return
				}
				response.Error(w, r, http.StatusServiceUnavailable, "REGISTRY_UNAVAILABLE", "session registry unavailable", nil)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func IdentityFromContext(ctx context.Context) (*service.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(*service.Identity)
	return id, ok
}
