package middleware

import (
	"net/http"

	"github.com/sandeepkv93/session-authority-service/internal/domain"
	"github.com/sandeepkv93/session-authority-service/internal/http/response"
)

// RequireRole gates a route on the validated identity's role. It runs after
// AuthMiddleware by construction: the error-state check always precedes the
// role check, so a role is never evaluated against an invalid token. An
// authenticated caller with an insufficient role gets a distinct 403, never
// conflated with an authentication failure.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	allowed := make(map[domain.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
				return
			}
			if _, ok := allowed[identity.Role]; !ok {
				response.Error(w, r, http.StatusForbidden, "ACCESS_DENIED", "insufficient role", map[string]any{
					"required": roles,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
