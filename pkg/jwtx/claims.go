package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTLs issued by the identity service.
const (
	DefaultSessionTokenTTL = 5 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// Claims are the session token claims shared by the SDK and the identity
// service. The SDK only ever reads them; it never trusts them for anything
// beyond scheduling and display.
type Claims struct {
	jwt.RegisteredClaims

	// Session ID
	SID string `json:"sid,omitempty"`

	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`

	// Authentication Methods Reference ["pwd","otp","hwk"]
	AMR []string `json:"amr,omitempty"`
}

// NewSessionClaims builds minimally-correct session claims.
func NewSessionClaims(subject, sid, email string, amr []string, ttl time.Duration, issuer string, audience []string, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		SID:           sid,
		Email:         email,
		EmailVerified: email != "",
		AMR:           amr,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil // nothing to enforce
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidateUnexpiredAt checks exp only. A token whose exp equals now is
// already expired.
func (c *Claims) ValidateUnexpiredAt(now time.Time) error {
	if c.ExpiresAt == nil {
		return ErrInvalidClaim
	}
	if !now.Before(c.ExpiresAt.Time) {
		return ErrExpired
	}
	return nil
}

// ValidateExpiryAt checks exp and nbf against now. Issuers verifying their
// own tokens use it; clients with a skewed clock use ValidateUnexpiredAt.
func (c *Claims) ValidateExpiryAt(now time.Time) error {
	if err := c.ValidateUnexpiredAt(now); err != nil {
		return err
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}
	return nil
}

// ExpiresIn returns the time left until exp, clamped at zero.
func (c *Claims) ExpiresIn(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return max(0, c.ExpiresAt.Sub(now))
}
