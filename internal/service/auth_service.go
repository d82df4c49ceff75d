package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sandeepkv93/session-authority-service/internal/domain"
	"github.com/sandeepkv93/session-authority-service/internal/observability"
	"github.com/sandeepkv93/session-authority-service/internal/repository"
	"github.com/sandeepkv93/session-authority-service/internal/security"
	"github.com/sandeepkv93/session-authority-service/internal/session"
)

// AuthService orchestrates registration, login and logout. Login runs the
// throttle guard before credential verification and resets the attempt
// counter only after a fully successful authentication.
type AuthService struct {
	users        repository.UserRepository
	guard        *LoginThrottleGuard
	tokens       *TokenService
	registry     *session.Registry
	verification *VerificationCodeService
}

func NewAuthService(
	users repository.UserRepository,
	guard *LoginThrottleGuard,
	tokens *TokenService,
	registry *session.Registry,
	verification *VerificationCodeService,
) *AuthService {
	return &AuthService{users: users, guard: guard, tokens: tokens, registry: registry, verification: verification}
}

// Register creates an unverified user and issues the first verification code.
// A failure to deliver the code is not fatal: the user can request a resend.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*domain.User, error) {
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
	}
	if err := s.users.Create(user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, repository.ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	if err := s.verification.Issue(ctx, user.Email); err != nil {
		observability.RecordVerificationEvent("register", "code_issue_failed")
	}
	return user, nil
}

// Login authenticates credentials for the given origin IP. The ban check runs
// first; a failed credential check increments the attempt counter; a verified
// success resets it and issues a token pair.
func (s *AuthService) Login(ctx context.Context, email, password string, rememberMe bool, ip, ua string) (*TokenPair, error) {
	banned, retryAfter, err := s.guard.Check(ctx, ip)
	if err != nil {
		return nil, fmt.Errorf("throttle check: %w", err)
	}
	if banned {
		observability.RecordAuthLogin("banned")
		return nil, &IPBannedError{RetryAfter: retryAfter}
	}

	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, s.failLogin(ctx, ip)
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if !security.VerifyPassword(password, user.PasswordHash) {
		return nil, s.failLogin(ctx, ip)
	}
	if !user.Verified() {
		// Credentials were correct: not a throttled failure, but no
		// session is ever issued to an unverified user.
		observability.RecordAuthLogin("email_not_verified")
		return nil, ErrEmailNotVerified
	}

	if err := s.guard.Reset(ctx, ip); err != nil {
		return nil, fmt.Errorf("reset throttle: %w", err)
	}
	pair, err := s.tokens.Issue(ctx, user, rememberMe, ua, ip)
	if err != nil {
		return nil, err
	}
	observability.RecordAuthLogin("success")
	return pair, nil
}

func (s *AuthService) failLogin(ctx context.Context, ip string) error {
	if err := s.guard.RegisterFailure(ctx, ip); err != nil {
		return fmt.Errorf("record failed attempt: %w", err)
	}
	observability.RecordAuthLogin("invalid_credentials")
	return ErrInvalidCredentials
}

// Logout deletes the caller's session record and clears the persisted refresh
// credential. Both operations are idempotent, so logout always succeeds.
func (s *AuthService) Logout(ctx context.Context, identity *Identity) error {
	if identity == nil {
		return nil
	}
	if err := s.registry.Delete(ctx, identity.SessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := s.tokens.RevokeRefresh(ctx, identity.UserID); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	observability.RecordAuthLogout("success")
	return nil
}
