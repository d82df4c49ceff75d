package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/session-authority-service/internal/domain"
	"github.com/sandeepkv93/session-authority-service/internal/http/middleware"
	"github.com/sandeepkv93/session-authority-service/internal/http/response"
	"github.com/sandeepkv93/session-authority-service/internal/observability"
	"github.com/sandeepkv93/session-authority-service/internal/session"
)

type SessionHandler struct {
	registry *session.Registry
}

func NewSessionHandler(registry *session.Registry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

type sessionView struct {
	SessionID  string    `json:"session_id"`
	UserID     uint      `json:"user_id"`
	Role       string    `json:"role"`
	LoginTime  time.Time `json:"login_time"`
	ExpiresAt  time.Time `json:"expires_at"`
	TTLSeconds int64     `json:"ttl_seconds"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
}

func viewOf(rec *domain.SessionRecord) sessionView {
	return sessionView{
		SessionID:  rec.SessionID,
		UserID:     rec.UserID,
		Role:       string(rec.Role),
		LoginTime:  rec.LoginTime.UTC(),
		ExpiresAt:  rec.ExpiresAt.UTC(),
		TTLSeconds: int64(rec.TTL.Seconds()),
		IPAddress:  rec.IPAddress,
		UserAgent:  rec.UserAgent,
	}
}

// List returns every live session. Admin only; wired behind RequireRole.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.registry.List(r.Context())
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not list sessions", nil)
		return
	}
	views := make([]sessionView, 0, len(records))
	for i := range records {
		views = append(views, viewOf(&records[i]))
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": views, "count": len(views)})
}

// Revoke deletes the named session. Revoking a missing session still returns
// 200: the end state is the same.
func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "session id is required", nil)
		return
	}
	if err := h.registry.Delete(r.Context(), sessionID); err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not revoke session", nil)
		return
	}
	observability.Audit(r, "session.revoked", "session_id", sessionID)
	response.JSON(w, r, http.StatusOK, map[string]bool{"revoked": true})
}

// Current returns the caller's own session record.
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	rec, err := h.registry.Get(r.Context(), identity.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			response.Error(w, r, http.StatusUnauthorized, "SESSION_INVALID", "session no longer exists", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not read session", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, viewOf(rec))
}
