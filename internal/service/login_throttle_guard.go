package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/session-authority-service/internal/kv"
	"github.com/sandeepkv93/session-authority-service/internal/observability"
)

// ThrottlePolicy bounds repeated failed logins per origin IP.
type ThrottlePolicy struct {
	MaxAttempts   int
	AttemptWindow time.Duration
	BanDuration   time.Duration
}

func DefaultThrottlePolicy() ThrottlePolicy {
	return ThrottlePolicy{
		MaxAttempts:   3,
		AttemptWindow: 10 * time.Minute,
		BanDuration:   time.Hour,
	}
}

// LoginThrottleGuard counts failed login attempts per IP and enforces
// temporary bans. State lives entirely in Redis so multiple server instances
// share it; atomic single-key operations replace in-process locking.
type LoginThrottleGuard struct {
	store  *kv.Store
	policy ThrottlePolicy
}

func NewLoginThrottleGuard(store *kv.Store, policy ThrottlePolicy) *LoginThrottleGuard {
	if policy.MaxAttempts <= 0 {
		policy = DefaultThrottlePolicy()
	}
	return &LoginThrottleGuard{store: store, policy: policy}
}

func attemptsKey(ip string) string { return "login_attempts:" + ip }
func banKey(ip string) string      { return "login_ban:" + ip }

// Check reports whether ip is currently banned and, if so, the remaining ban
// duration. It is called before credential verification.
func (g *LoginThrottleGuard) Check(ctx context.Context, ip string) (banned bool, retryAfter time.Duration, err error) {
	ttl, err := g.store.TTL(ctx, banKey(ip))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("check ban key: %w", err)
	}
	if ttl <= 0 {
		return false, 0, nil
	}
	observability.RecordThrottleDecision("banned")
	return true, ttl, nil
}

// RegisterFailure atomically increments the attempt counter for ip. The first
// failure sets the window TTL; reaching the threshold sets the ban key and
// propagates the ban duration to the counter. The increment-then-expire pair
// may set the TTL twice under a race, which is benign; it can never skip
// setting it, so the counter cannot grow without a bound.
func (g *LoginThrottleGuard) RegisterFailure(ctx context.Context, ip string) error {
	count, err := g.store.Incr(ctx, attemptsKey(ip))
	if err != nil {
		return fmt.Errorf("increment attempt counter: %w", err)
	}
	if count == 1 {
		if err := g.store.Expire(ctx, attemptsKey(ip), g.policy.AttemptWindow); err != nil {
			return fmt.Errorf("set attempt window: %w", err)
		}
	}
	if count >= int64(g.policy.MaxAttempts) {
		if err := g.store.SetWithTTL(ctx, banKey(ip), "1", g.policy.BanDuration); err != nil {
			return fmt.Errorf("set ban key: %w", err)
		}
		if err := g.store.Expire(ctx, attemptsKey(ip), g.policy.BanDuration); err != nil {
			return fmt.Errorf("extend attempt counter: %w", err)
		}
		observability.RecordThrottleDecision("ban_set")
		return nil
	}
	observability.RecordThrottleDecision("failure_counted")
	return nil
}

// Reset deletes the attempt counter for ip unconditionally. Called after a
// fully successful authentication.
func (g *LoginThrottleGuard) Reset(ctx context.Context, ip string) error {
	if err := g.store.Del(ctx, attemptsKey(ip)); err != nil {
		return fmt.Errorf("reset attempt counter: %w", err)
	}
	observability.RecordThrottleDecision("reset")
	return nil
}
