package jwtx

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Decode reads the claims of a token without verifying its signature. The
// client never holds the verification key, so this is only fit for reading
// exp and display fields.
func Decode(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMalformed
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return claims, nil
}

// IsValidAt reports whether token decodes and has not expired at now. nbf
// is ignored. It never returns an error; anything unreadable is simply
// invalid.
func IsValidAt(token string, now time.Time) bool {
	claims, err := Decode(token)
	if err != nil {
		return false
	}
	return claims.ValidateUnexpiredAt(now) == nil
}
