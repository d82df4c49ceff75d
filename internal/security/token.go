package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// NewSessionID returns a 128-bit random identifier encoded as 32 hex chars.
func NewSessionID() (string, error) {
	return randomHex(16)
}

// NewOpaqueToken returns a 256-bit random bearer secret (refresh credential,
// password-reset token). Only its SHA-256 hash is ever persisted.
func NewOpaqueToken() (string, error) {
	return randomHex(32)
}

// HashToken returns the hex SHA-256 digest of a long-lived secret token,
// suitable for indexed lookup without storing the cleartext value.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewVerificationCode returns a uniform random 6-digit numeric code.
func NewVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func randomHex(bytes int) (string, error) {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
