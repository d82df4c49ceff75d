package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/session-authority-service/internal/domain"
	"github.com/sandeepkv93/session-authority-service/internal/kv"
	"github.com/sandeepkv93/session-authority-service/internal/mailer"
	"github.com/sandeepkv93/session-authority-service/internal/observability"
	"github.com/sandeepkv93/session-authority-service/internal/repository"
	"github.com/sandeepkv93/session-authority-service/internal/security"
)

const resendCooldownPrefix = "resend_cooldown:"

// VerificationCodeService issues and consumes one-time email verification
// codes. Code rows live in the durable store; the resend cooldown lives in
// Redis and gates issuance only, never validity.
type VerificationCodeService struct {
	users    repository.UserRepository
	tokens   repository.VerificationTokenRepository
	store    *kv.Store
	mail     mailer.Mailer
	codeTTL  time.Duration
	cooldown time.Duration
}

func NewVerificationCodeService(
	users repository.UserRepository,
	tokens repository.VerificationTokenRepository,
	store *kv.Store,
	mail mailer.Mailer,
	codeTTL, cooldown time.Duration,
) *VerificationCodeService {
	if codeTTL <= 0 {
		codeTTL = 10 * time.Minute
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &VerificationCodeService{
		users:    users,
		tokens:   tokens,
		store:    store,
		mail:     mail,
		codeTTL:  codeTTL,
		cooldown: cooldown,
	}
}

// Issue generates a fresh 6-digit code for email, replacing any prior live
// code, sends it, and only then arms the cooldown so a transient send failure
// does not silently block retries.
func (s *VerificationCodeService) Issue(ctx context.Context, email string) error {
	cooldownKey := resendCooldownPrefix + email
	remaining, err := s.store.TTL(ctx, cooldownKey)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("check resend cooldown: %w", err)
	}
	if remaining > 0 {
		observability.RecordVerificationEvent("issue", "cooldown")
		return &CooldownError{RetryAfter: remaining}
	}

	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordVerificationEvent("issue", "unknown_user")
			return ErrUserNotFound
		}
		return fmt.Errorf("look up user: %w", err)
	}
	if user.Verified() {
		observability.RecordVerificationEvent("issue", "already_verified")
		return ErrAlreadyVerified
	}

	code, err := security.NewVerificationCode()
	if err != nil {
		return fmt.Errorf("generate verification code: %w", err)
	}
	if err := s.tokens.Replace(&domain.VerificationToken{
		UserID:    user.ID,
		Token:     code,
		ExpiresAt: time.Now().Add(s.codeTTL),
	}); err != nil {
		return fmt.Errorf("store verification code: %w", err)
	}

	if err := s.mail.SendVerificationCode(user.Email, code); err != nil {
		observability.RecordVerificationEvent("issue", "send_failed")
		return fmt.Errorf("send verification email: %w", err)
	}
	if err := s.store.SetWithTTL(ctx, cooldownKey, "1", s.cooldown); err != nil {
		return fmt.Errorf("set resend cooldown: %w", err)
	}
	observability.RecordVerificationEvent("issue", "sent")
	return nil
}

// Verify consumes a presented code. Failure is generic: the response never
// distinguishes a wrong code from an expired one or an unknown email.
func (s *VerificationCodeService) Verify(ctx context.Context, email, code string) error {
	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordVerificationEvent("verify", "rejected")
			return ErrCodeInvalid
		}
		return fmt.Errorf("look up user: %w", err)
	}

	token, err := s.tokens.FindValid(user.ID, code, time.Now())
	if err != nil {
		if errors.Is(err, repository.ErrVerificationTokenNotFound) {
			observability.RecordVerificationEvent("verify", "rejected")
			return ErrCodeInvalid
		}
		return fmt.Errorf("look up verification code: %w", err)
	}

	if err := s.tokens.Consume(token.ID, user.ID, time.Now()); err != nil {
		if errors.Is(err, repository.ErrVerificationTokenNotFound) {
			// Lost a race with a concurrent verify of the same code.
			observability.RecordVerificationEvent("verify", "rejected")
			return ErrCodeInvalid
		}
		return fmt.Errorf("consume verification code: %w", err)
	}
	observability.RecordVerificationEvent("verify", "verified")
	return nil
}
