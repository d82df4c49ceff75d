package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sandeepkv93/session-authority-service/internal/domain"
	"github.com/sandeepkv93/session-authority-service/internal/observability"
	"github.com/sandeepkv93/session-authority-service/internal/repository"
	"github.com/sandeepkv93/session-authority-service/internal/security"
	"github.com/sandeepkv93/session-authority-service/internal/session"
)

// TokenPair is the bearer credential handed to the client: a signed access
// token referencing the session record, and an opaque refresh secret whose
// hash is mirrored in the user row.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	SessionID        string
	SessionExpiresAt time.Time
	RefreshExpiresAt time.Time
}

// Identity is a validated principal for a single request. Role comes from the
// session record, never from the token's own claims.
type Identity struct {
	UserID    uint
	Role      domain.Role
	SessionID string
	ExpiresAt time.Time
}

type TokenTTLs struct {
	Access     time.Duration
	Session    time.Duration
	RememberMe time.Duration
	Refresh    time.Duration
}

// TokenService mints and validates bearer tokens. Validation re-checks the
// session registry on every call; trusting the signed claims alone would make
// server-side revocation impossible.
type TokenService struct {
	jwtMgr   *security.JWTManager
	registry *session.Registry
	users    repository.UserRepository
	ttls     TokenTTLs
}

func NewTokenService(jwtMgr *security.JWTManager, registry *session.Registry, users repository.UserRepository, ttls TokenTTLs) *TokenService {
	return &TokenService{jwtMgr: jwtMgr, registry: registry, users: users, ttls: ttls}
}

// Issue creates a session record and mints a token pair for an authenticated,
// verified user.
func (s *TokenService) Issue(ctx context.Context, user *domain.User, rememberMe bool, ua, ip string) (*TokenPair, error) {
	if !user.Verified() {
		return nil, ErrEmailNotVerified
	}
	sessionTTL := s.ttls.Session
	if rememberMe {
		sessionTTL = s.ttls.RememberMe
	}
	sessionID, err := s.registry.Create(ctx, user.ID, user.Role, sessionTTL, ip, ua)
	if err != nil {
		return nil, fmt.Errorf("create session record: %w", err)
	}

	access, err := s.jwtMgr.SignAccessToken(user.ID, user.Role, sessionID, s.ttls.Access, rememberMe)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := security.NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}
	refreshHash := security.HashToken(refresh)
	refreshExpiry := time.Now().Add(s.ttls.Refresh)
	if err := s.users.SetRefreshToken(user.ID, &refreshHash, &refreshExpiry); err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		SessionID:        sessionID,
		SessionExpiresAt: time.Now().Add(sessionTTL),
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

// Validate checks a presented access token against the session registry. The
// registry is the source of truth: a missing or mismatched record yields
// ErrSessionInvalid regardless of the token's own unexpired claims. An
// unreachable registry surfaces as a plain error, never as invalidity.
func (s *TokenService) Validate(ctx context.Context, raw string) (*Identity, error) {
	claims, err := s.jwtMgr.ParseAccessToken(raw)
	if err != nil {
		observability.RecordTokenValidation(ctx, "parse_error", "access")
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		observability.RecordTokenValidation(ctx, "malformed_subject", "access")
		return nil, ErrSessionInvalid
	}

	record, err := s.registry.Get(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			observability.RecordTokenValidation(ctx, "revoked", "access")
			return nil, ErrSessionInvalid
		}
		observability.RecordTokenValidation(ctx, "registry_error", "access")
		return nil, fmt.Errorf("session registry: %w", err)
	}
	if record.UserID != uint(userID) {
		observability.RecordTokenValidation(ctx, "mismatch", "access")
		return nil, ErrSessionInvalid
	}
	if record.Expired(time.Now()) {
		_ = s.registry.Delete(ctx, claims.SessionID)
		observability.RecordTokenValidation(ctx, "expired", "access")
		return nil, ErrSessionInvalid
	}

	observability.RecordTokenValidation(ctx, "valid", "access")
	return &Identity{
		UserID:    record.UserID,
		Role:      record.Role,
		SessionID: record.SessionID,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// Rotate exchanges a still-valid refresh credential for a fresh token pair and
// invalidates the old refresh value. A second use of a rotated token finds no
// matching stored hash and yields ErrSessionInvalid; a stored credential past
// its own expiry is cleared before the same error is returned. staleAccess, if
// parseable, locates the previous session record so it can be revoked and
// carries the remember-me choice forward into the reissued session.
func (s *TokenService) Rotate(ctx context.Context, refreshToken, staleAccess, ua, ip string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrSessionInvalid
	}
	presentedHash := security.HashToken(refreshToken)
	user, err := s.users.FindByRefreshTokenHash(presentedHash)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("look up refresh token: %w", err)
	}

	// Re-read immediately before comparing: narrows the window for a
	// concurrent duplicate use, one of which must lose.
	user, err = s.users.FindByID(user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("re-read user: %w", err)
	}
	if user.RefreshTokenHash == nil || *user.RefreshTokenHash != presentedHash {
		return nil, ErrSessionInvalid
	}
	if user.RefreshTokenExpiresAt == nil || !user.RefreshTokenExpiresAt.After(time.Now()) {
		if err := s.users.SetRefreshToken(user.ID, nil, nil); err != nil {
			return nil, fmt.Errorf("clear expired refresh token: %w", err)
		}
		return nil, ErrSessionInvalid
	}

	// Revoke the session the stale access token still references, if any.
	rememberMe := false
	if staleAccess != "" {
		if claims, err := s.jwtMgr.ParseExpiredAccessToken(staleAccess); err == nil {
			rememberMe = claims.Remember
			if rec, err := s.registry.Get(ctx, claims.SessionID); err == nil && rec.UserID == user.ID {
				_ = s.registry.Delete(ctx, claims.SessionID)
			}
		}
	}

	pair, err := s.Issue(ctx, user, rememberMe, ua, ip)
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// RevokeRefresh clears the persisted refresh credential so it can never be
// exchanged again. Used on logout alongside session deletion.
func (s *TokenService) RevokeRefresh(ctx context.Context, userID uint) error {
	return s.users.SetRefreshToken(userID, nil, nil)
}
