package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sandeepkv93/session-authority-service/internal/http/middleware"
	"github.com/sandeepkv93/session-authority-service/internal/http/response"
	"github.com/sandeepkv93/session-authority-service/internal/observability"
	"github.com/sandeepkv93/session-authority-service/internal/repository"
	"github.com/sandeepkv93/session-authority-service/internal/security"
	"github.com/sandeepkv93/session-authority-service/internal/service"
)

type AuthHandler struct {
	auth          *service.AuthService
	tokens        *service.TokenService
	refreshTTL    time.Duration
	secureCookies bool
}

func NewAuthHandler(auth *service.AuthService, tokens *service.TokenService, refreshTTL time.Duration, secureCookies bool) *AuthHandler {
	return &AuthHandler{auth: auth, tokens: tokens, refreshTTL: refreshTTL, secureCookies: secureCookies}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if req.Email == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email and password are required", nil)
		return
	}

	user, err := h.auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, security.ErrPasswordTooWeak):
			response.Error(w, r, http.StatusBadRequest, "WEAK_PASSWORD", "password does not meet the strength policy", nil)
		case errors.Is(err, repository.ErrEmailTaken):
			response.Error(w, r, http.StatusConflict, "EMAIL_TAKEN", "a user with this email already exists", nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "registration failed", nil)
		}
		return
	}
	observability.Audit(r, "auth.register", "user_id", user.ID)
	response.JSON(w, r, http.StatusCreated, map[string]any{"id": user.ID, "email": user.Email})
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if req.Email == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email and password are required", nil)
		return
	}

	ip := clientIP(r)
	pair, err := h.auth.Login(r.Context(), req.Email, req.Password, req.RememberMe, ip, r.UserAgent())
	if err != nil {
		var banned *service.IPBannedError
		switch {
		case errors.As(err, &banned):
			observability.Audit(r, "auth.login.banned", "ip", ip)
			response.RetryAfter(w, r, http.StatusForbidden, "IP_BANNED", "too many failed login attempts", banned.RetryAfter)
		case errors.Is(err, service.ErrEmailNotVerified):
			response.Error(w, r, http.StatusForbidden, "EMAIL_NOT_VERIFIED", "email address is not verified", nil)
		case errors.Is(err, service.ErrInvalidCredentials):
			response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials", nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "login failed", nil)
		}
		return
	}

	security.SetAuthCookies(w, pair.AccessToken, pair.RefreshToken, h.refreshTTL, h.secureCookies)
	observability.Audit(r, "auth.login.success", "session_id", pair.SessionID)
	response.JSON(w, r, http.StatusOK, map[string]any{
		"access_token":       pair.AccessToken,
		"session_id":         pair.SessionID,
		"session_expires_at": pair.SessionExpiresAt.UTC(),
	})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refresh := security.GetCookie(r, security.RefreshTokenCookie)
	staleAccess := security.GetCookie(r, security.AccessTokenCookie)

	pair, err := h.tokens.Rotate(r.Context(), refresh, staleAccess, r.UserAgent(), clientIP(r))
	if err != nil {
		if errors.Is(err, service.ErrSessionInvalid) {
			observability.RecordAuthRefresh("invalid")
			security.ClearAuthCookies(w, h.secureCookies)
			response.Error(w, r, http.StatusUnauthorized, "SESSION_INVALID", "refresh credential invalid or expired", nil)
			return
		}
		observability.RecordAuthRefresh("error")
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "refresh failed", nil)
		return
	}

	observability.RecordAuthRefresh("success")
	security.SetAuthCookies(w, pair.AccessToken, pair.RefreshToken, h.refreshTTL, h.secureCookies)
	response.JSON(w, r, http.StatusOK, map[string]any{
		"access_token":       pair.AccessToken,
		"session_id":         pair.SessionID,
		"session_expires_at": pair.SessionExpiresAt.UTC(),
	})
}

// Logout always succeeds: deleting an already-deleted session is a no-op.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFromContext(r.Context())
	if identity != nil {
		if err := h.auth.Logout(r.Context(), identity); err != nil {
			observability.RecordAuthLogout("error")
		}
		observability.Audit(r, "auth.logout", "session_id", identity.SessionID)
	}
	security.ClearAuthCookies(w, h.secureCookies)
	response.JSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}

func clientIP(r *http.Request) string {
	// chi's RealIP middleware rewrites RemoteAddr from X-Forwarded-For /
	// X-Real-Ip set by the edge.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
