package domain

import "time"

// SessionRecord is the server-side, revocable state for an authenticated
// principal. It lives in Redis under session:{id} with a store TTL equal to
// the logical expiry, so the store's own expiry and ExpiresAt never diverge.
type SessionRecord struct {
	SessionID string    `json:"session_id"`
	UserID    uint      `json:"user_id"`
	Role      Role      `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
	LoginTime time.Time `json:"login_time"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`

	// TTL is the remaining store TTL observed at read time, not a stored field.
	TTL time.Duration `json:"ttl_seconds"`
}

func (s *SessionRecord) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
