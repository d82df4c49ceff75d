// Package session implements the session registry: server-side, revocable
// session records in Redis, keyed session:{id}, with a store TTL equal to the
// logical expiry.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/session-authority-service/internal/domain"
	"github.com/sandeepkv93/session-authority-service/internal/kv"
	"github.com/sandeepkv93/session-authority-service/internal/security"
)

const keyPrefix = "session:"

var ErrSessionNotFound = errors.New("session not found")

type Registry struct {
	store *kv.Store
}

func NewRegistry(store *kv.Store) *Registry {
	return &Registry{store: store}
}

// Create writes a new session record and sets the store TTL to ttl in an
// at-least-once idempotent write-then-expire pair: a crash between the two
// calls can only shorten the session's lifetime, never lengthen it, because
// HSet is followed immediately by Expire and an unexpired leftover is bounded
// by the logical ExpiresAt check on read.
func (r *Registry) Create(ctx context.Context, userID uint, role domain.Role, ttl time.Duration, ip, userAgent string) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("session ttl must be positive, got %v", ttl)
	}
	sessionID, err := security.NewSessionID()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	now := time.Now()
	expiresAt := now.Add(ttl)

	key := keyPrefix + sessionID
	fields := map[string]any{
		"user_id":    strconv.FormatUint(uint64(userID), 10),
		"role":       string(role),
		"expires_at": strconv.FormatInt(expiresAt.UnixMilli(), 10),
		"login_time": strconv.FormatInt(now.UnixMilli(), 10),
		"ip_address": ip,
		"user_agent": userAgent,
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return "", fmt.Errorf("write session record: %w", err)
	}
	if err := r.store.Expire(ctx, key, ttl); err != nil {
		// The record exists without a TTL. Delete it rather than leave an
		// unbounded session behind.
		_ = r.store.Del(ctx, key)
		return "", fmt.Errorf("set session ttl: %w", err)
	}
	return sessionID, nil
}

// Get returns the full record plus remaining store TTL. A missing record means
// the session was revoked or expired, regardless of client-held claims.
func (r *Registry) Get(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	key := keyPrefix + sessionID
	fields, err := r.store.HGetAll(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("read session record: %w", err)
	}
	ttl, err := r.store.TTL(ctx, key)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("read session ttl: %w", err)
	}
	rec, err := recordFromFields(sessionID, fields)
	if err != nil {
		return nil, err
	}
	rec.TTL = ttl
	return rec, nil
}

// Delete revokes a session. Deleting a missing session is not an error.
func (r *Registry) Delete(ctx context.Context, sessionID string) error {
	return r.store.Del(ctx, keyPrefix+sessionID)
}

// List walks the keyspace incrementally and returns every live session record.
// O(live sessions); administrative tooling only.
func (r *Registry) List(ctx context.Context) ([]domain.SessionRecord, error) {
	keys, err := r.store.ScanKeys(ctx, keyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan session keys: %w", err)
	}
	records := make([]domain.SessionRecord, 0, len(keys))
	for _, key := range keys {
		sessionID := strings.TrimPrefix(key, keyPrefix)
		rec, err := r.Get(ctx, sessionID)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				// Expired between scan and read.
				continue
			}
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

func recordFromFields(sessionID string, fields map[string]string) (*domain.SessionRecord, error) {
	userID, err := strconv.ParseUint(fields["user_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed session record %s: user_id: %w", sessionID, err)
	}
	expiresMs, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed session record %s: expires_at: %w", sessionID, err)
	}
	loginMs, err := strconv.ParseInt(fields["login_time"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed session record %s: login_time: %w", sessionID, err)
	}
	return &domain.SessionRecord{
		SessionID: sessionID,
		UserID:    uint(userID),
		Role:      domain.Role(fields["role"]),
		ExpiresAt: time.UnixMilli(expiresMs),
		LoginTime: time.UnixMilli(loginMs),
		IPAddress: fields["ip_address"],
		UserAgent: fields["user_agent"],
	}, nil
}
