package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sandeepkv93/session-authority-service/internal/domain"
)

// Claims carried by the access token. SessionID references the authoritative
// SessionRecord in the registry; Role is a denormalized snapshot and is never
// trusted beyond a single request.
type Claims struct {
	TokenType string      `json:"token_type"`
	SessionID string      `json:"session_id"`
	Role      domain.Role `json:"role,omitempty"`
	Remember  bool        `json:"remember,omitempty"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	issuer       string
	audience     string
	accessSecret []byte
}

func NewJWTManager(issuer, audience, accessSecret string) *JWTManager {
	return &JWTManager{
		issuer:       issuer,
		audience:     audience,
		accessSecret: []byte(accessSecret),
	}
}

// SignAccessToken mints an access token. remember records the login's
// remember-me choice so refresh rotation can reissue with the same session
// lifetime.
func (m *JWTManager) SignAccessToken(userID uint, role domain.Role, sessionID string, ttl time.Duration, remember bool) (string, error) {
	claims := Claims{
		TokenType: "access",
		SessionID: sessionID,
		Role:      role,
		Remember:  remember,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   fmt.Sprintf("%d", userID),
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.accessSecret)
}

func (m *JWTManager) ParseAccessToken(raw string) (*Claims, error) {
	return m.parse(raw, true)
}

// ParseExpiredAccessToken parses an access token without enforcing expiry.
// The refresh path uses it to recover the session reference from a token
// whose access expiry has already passed; the signature is still verified.
func (m *JWTManager) ParseExpiredAccessToken(raw string) (*Claims, error) {
	return m.parse(raw, false)
}

func (m *JWTManager) parse(raw string, enforceExpiry bool) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithIssuer(m.issuer), jwt.WithAudience(m.audience)}
	if !enforceExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.accessSecret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if !enforceExpiry {
		// WithoutClaimsValidation skips every claim check, not only expiry;
		// issuer and audience still have to hold.
		if claims.Issuer != m.issuer {
			return nil, jwt.ErrTokenInvalidIssuer
		}
		if !audienceContains(claims.Audience, m.audience) {
			return nil, jwt.ErrTokenInvalidAudience
		}
	}
	if claims.TokenType != "access" {
		return nil, fmt.Errorf("unexpected token type: %s", claims.TokenType)
	}
	return claims, nil
}

func audienceContains(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
