package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/session-authority-service/internal/kv"
	"github.com/sandeepkv93/session-authority-service/internal/mailer"
	"github.com/sandeepkv93/session-authority-service/internal/observability"
	"github.com/sandeepkv93/session-authority-service/internal/repository"
	"github.com/sandeepkv93/session-authority-service/internal/security"
)

const forgotCooldownPrefix = "forgot_password_cooldown:"

// PasswordResetService issues and consumes password-reset tokens. The token
// is a 256-bit random secret sent by email; only its SHA-256 hash is stored.
// Responses are identical whether or not the email exists.
type PasswordResetService struct {
	users    repository.UserRepository
	store    *kv.Store
	mail     mailer.Mailer
	tokenTTL time.Duration
	cooldown time.Duration
}

func NewPasswordResetService(
	users repository.UserRepository,
	store *kv.Store,
	mail mailer.Mailer,
	tokenTTL, cooldown time.Duration,
) *PasswordResetService {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &PasswordResetService{users: users, store: store, mail: mail, tokenTTL: tokenTTL, cooldown: cooldown}
}

// Request issues a reset token for email. An unknown email still arms the
// cooldown and returns success, so the caller cannot probe for accounts.
func (s *PasswordResetService) Request(ctx context.Context, email string) error {
	cooldownKey := forgotCooldownPrefix + email
	remaining, err := s.store.TTL(ctx, cooldownKey)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("check forgot-password cooldown: %w", err)
	}
	if remaining > 0 {
		observability.RecordVerificationEvent("password_reset_request", "cooldown")
		return &CooldownError{RetryAfter: remaining}
	}

	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			if err := s.store.SetWithTTL(ctx, cooldownKey, "1", s.cooldown); err != nil {
				return fmt.Errorf("set forgot-password cooldown: %w", err)
			}
			observability.RecordVerificationEvent("password_reset_request", "unknown_user")
			return nil
		}
		return fmt.Errorf("look up user: %w", err)
	}

	token, err := security.NewOpaqueToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	hash := security.HashToken(token)
	expiresAt := time.Now().Add(s.tokenTTL)
	if err := s.users.SetPasswordResetToken(user.ID, &hash, &expiresAt); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	if err := s.mail.SendPasswordReset(user.Email, token); err != nil {
		observability.RecordVerificationEvent("password_reset_request", "send_failed")
		return fmt.Errorf("send reset email: %w", err)
	}
	if err := s.store.SetWithTTL(ctx, cooldownKey, "1", s.cooldown); err != nil {
		return fmt.Errorf("set forgot-password cooldown: %w", err)
	}
	observability.RecordVerificationEvent("password_reset_request", "sent")
	return nil
}

// Reset consumes a presented token, replaces the password, and clears the
// stored token fields so the link is single-use.
func (s *PasswordResetService) Reset(ctx context.Context, token, newPassword string) error {
	if err := security.ValidatePasswordStrength(newPassword); err != nil {
		return err
	}
	user, err := s.users.FindByPasswordResetTokenHash(security.HashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordVerificationEvent("password_reset", "rejected")
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("look up reset token: %w", err)
	}
	if user.PasswordResetExpiresAt == nil || !user.PasswordResetExpiresAt.After(time.Now()) {
		observability.RecordVerificationEvent("password_reset", "rejected")
		return ErrResetTokenInvalid
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdateCredentials(user.ID, hash); err != nil {
		return fmt.Errorf("update credentials: %w", err)
	}
	observability.RecordVerificationEvent("password_reset", "reset")
	return nil
}
