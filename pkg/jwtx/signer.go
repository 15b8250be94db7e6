package jwtx

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer is our interface for anything that can sign and verify JWTs.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	Verify(token string, now time.Time) (*Claims, error)
}

// EdDSASigner signs and verifies with one Ed25519 keypair.
type EdDSASigner struct {
	kid      string
	key      ed25519.PrivateKey
	pub      ed25519.PublicKey
	issuer   string
	audience []string
}

// NewSignerEdDSA loads an Ed25519 private key from PEM bytes. Ed25519 keys
// must be in PKCS8 format. Issuer and audience are enforced by Verify.
func NewSignerEdDSA(kid string, pemKey []byte, issuer string, audience []string) (*EdDSASigner, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: invalid PEM for Ed25519 key")
	}
	if block.Type != "PRIVATE KEY" {
		return nil, fmt.Errorf("jwtx: expected PRIVATE KEY, got %q (Ed25519 requires PKCS8)", block.Type)
	}

	priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err)
	}

	key, ok := priv.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwtx: not Ed25519 private key")
	}

	return &EdDSASigner{
		kid:      kid,
		key:      key,
		pub:      key.Public().(ed25519.PublicKey),
		issuer:   issuer,
		audience: audience,
	}, nil
}

func (s *EdDSASigner) Alg() string { return jwt.SigningMethodEdDSA.Alg() }
func (s *EdDSASigner) KID() string { return s.kid }

// Sign takes your claims and turns them into a signed JWT string.
func (s *EdDSASigner) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

// Verify validates the signature and the claim requirements at now.
func (s *EdDSASigner) Verify(tokenStr string, now time.Time) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if kid, _ := t.Header["kid"].(string); kid != s.kid {
			return nil, fmt.Errorf("jwtx: unknown kid %q", kid)
		}
		return s.pub, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSig
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		}
		return nil, fmt.Errorf("jwtx: parse or verify: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaim
	}
	if err := claims.ValidateIssuer(s.issuer); err != nil {
		return nil, err
	}
	if err := claims.ValidateAudience(s.audience); err != nil {
		return nil, err
	}
	if err := claims.ValidateExpiryAt(now); err != nil {
		return nil, err
	}
	return claims, nil
}
