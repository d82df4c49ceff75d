package service

import (
	"errors"
	"fmt"
	"time"
)

// Closed set of authentication failure variants. Callers match these with
// errors.Is / errors.As; the route layer owns the mapping to HTTP shapes.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrCodeInvalid        = errors.New("invalid or expired verification code")
	ErrResetTokenInvalid  = errors.New("invalid or expired reset token")
	ErrUserNotFound       = errors.New("user not found")

	// ErrTokenInvalid marks a presented token that failed signature or
	// claim validation before any source-of-truth check.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrSessionInvalid is the terminal token state: registry miss or
	// mismatch, revocation, or a dead refresh credential. It always forces
	// logout at the edge and is never suppressed internally.
	ErrSessionInvalid = errors.New("session invalid")
)

// IPBannedError is returned while a temporary ban is active for the origin IP.
type IPBannedError struct {
	RetryAfter time.Duration
}

func (e *IPBannedError) Error() string {
	return fmt.Sprintf("ip banned, retry after %s", e.RetryAfter.Round(time.Second))
}

// CooldownError is returned when a one-time-code issuance is requested before
// the previous cooldown has elapsed.
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active, retry after %s", e.RetryAfter.Round(time.Second))
}
