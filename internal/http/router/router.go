// Package router assembles the HTTP surface: public auth endpoints, the
// authenticated session endpoints and the admin-only registry views.
package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/session-authority-service/internal/domain"
	"github.com/sandeepkv93/session-authority-service/internal/http/handler"
	"github.com/sandeepkv93/session-authority-service/internal/http/middleware"
	"github.com/sandeepkv93/session-authority-service/internal/http/response"
)

const maxBodyBytes = 1 << 20

// Deps carries the fully constructed handlers and cross-cutting middleware
// inputs the router needs.
type Deps struct {
	Auth          *handler.AuthHandler
	Verification  *handler.VerificationHandler
	Sessions      *handler.SessionHandler
	Validator     middleware.TokenValidator
	SecureCookies bool

	// Ready reports whether downstream stores are reachable. Nil means
	// always ready.
	Ready func(ctx context.Context) error
}

func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.BodyLimit(maxBodyBytes))

	live := func(w http.ResponseWriter, req *http.Request) {
		response.JSON(w, req, http.StatusOK, map[string]string{"status": "ok"})
	}
	r.Get("/healthz", live)
	r.Get("/health/live", live)
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		if deps.Ready != nil {
			if err := deps.Ready(req.Context()); err != nil {
				response.Error(w, req, http.StatusServiceUnavailable, "NOT_READY", "dependency unavailable", nil)
				return
			}
		}
		response.JSON(w, req, http.StatusOK, map[string]string{"status": "ready"})
	})

	auth := middleware.AuthMiddleware(deps.Validator, deps.SecureCookies)
	adminOnly := middleware.RequireRole(domain.RoleAdmin)

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/auth", func(a chi.Router) {
			a.Post("/register", deps.Auth.Register)
			a.Post("/login", deps.Auth.Login)
			a.Post("/refresh", deps.Auth.Refresh)
			a.Post("/verify-email", deps.Verification.VerifyEmail)
			a.Post("/resend-verification", deps.Verification.ResendVerification)
			a.Post("/forgot-password", deps.Verification.ForgotPassword)
			a.Post("/reset-password", deps.Verification.ResetPassword)

			a.Group(func(p chi.Router) {
				p.Use(auth)
				p.Post("/logout", deps.Auth.Logout)
			})
		})

		api.Route("/sessions", func(s chi.Router) {
			s.Use(auth)
			s.Get("/current", deps.Sessions.Current)

			s.Group(func(admin chi.Router) {
				admin.Use(adminOnly)
				admin.Get("/", deps.Sessions.List)
				admin.Delete("/{sessionID}", deps.Sessions.Revoke)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		response.Error(w, req, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		response.Error(w, req, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	return otelhttp.NewHandler(r, "session-authority-service")
}
