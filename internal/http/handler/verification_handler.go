package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sandeepkv93/session-authority-service/internal/http/response"
	"github.com/sandeepkv93/session-authority-service/internal/observability"
	"github.com/sandeepkv93/session-authority-service/internal/security"
	"github.com/sandeepkv93/session-authority-service/internal/service"
)

type VerificationHandler struct {
	verification *service.VerificationCodeService
	reset        *service.PasswordResetService
}

func NewVerificationHandler(verification *service.VerificationCodeService, reset *service.PasswordResetService) *VerificationHandler {
	return &VerificationHandler{verification: verification, reset: reset}
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (h *VerificationHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if req.Email == "" || req.Code == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email and code are required", nil)
		return
	}

	if err := h.verification.Verify(r.Context(), req.Email, req.Code); err != nil {
		if errors.Is(err, service.ErrCodeInvalid) {
			// One generic rejection for unknown email, wrong code and
			// expired code alike.
			response.Error(w, r, http.StatusBadRequest, "CODE_INVALID", "verification code is invalid or expired", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "verification failed", nil)
		return
	}
	observability.Audit(r, "auth.email_verified", "email", req.Email)
	response.JSON(w, r, http.StatusOK, map[string]bool{"verified": true})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *VerificationHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email is required", nil)
		return
	}

	if err := h.verification.Issue(r.Context(), req.Email); err != nil {
		var cooldown *service.CooldownError
		switch {
		case errors.As(err, &cooldown):
			response.RetryAfter(w, r, http.StatusTooManyRequests, "RESEND_COOLDOWN", "a code was sent recently", cooldown.RetryAfter)
		case errors.Is(err, service.ErrAlreadyVerified):
			response.Error(w, r, http.StatusConflict, "ALREADY_VERIFIED", "email address is already verified", nil)
		case errors.Is(err, service.ErrUserNotFound):
			response.Error(w, r, http.StatusNotFound, "USER_NOT_FOUND", "no user with this email", nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not send verification code", nil)
		}
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]bool{"sent": true})
}

func (h *VerificationHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email is required", nil)
		return
	}

	if err := h.reset.Request(r.Context(), req.Email); err != nil {
		var cooldown *service.CooldownError
		if errors.As(err, &cooldown) {
			response.RetryAfter(w, r, http.StatusTooManyRequests, "RESET_COOLDOWN", "a reset link was sent recently", cooldown.RetryAfter)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not process the request", nil)
		return
	}
	// Same response whether or not the email is registered.
	response.JSON(w, r, http.StatusOK, map[string]bool{"sent": true})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (h *VerificationHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "token and newPassword are required", nil)
		return
	}

	if err := h.reset.Reset(r.Context(), req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, security.ErrPasswordTooWeak):
			response.Error(w, r, http.StatusBadRequest, "WEAK_PASSWORD", "password does not meet the strength policy", nil)
		case errors.Is(err, service.ErrResetTokenInvalid):
			response.Error(w, r, http.StatusBadRequest, "RESET_TOKEN_INVALID", "reset token is invalid or expired", nil)
		default:
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "password reset failed", nil)
		}
		return
	}
	observability.Audit(r, "auth.password_reset")
	response.JSON(w, r, http.StatusOK, map[string]bool{"reset": true})
}
