package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	h := PasswordHasher{Pepper: "pepper"}

	tests := []struct {
		name     string
		password string
	}{
		{"simple password", "password123"},
		{"complex password", "P@ssw0rd!#$%^&*()"},
		{"empty password", ""},
		{"whitespace password", "   spaces   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := h.Hash(tt.password)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))
			require.Len(t, strings.Split(hash, "$"), 6)
			require.Contains(t, hash, "m=19456")

			require.NoError(t, h.Verify(tt.password, hash))
			require.ErrorIs(t, h.Verify(tt.password+"x", hash), ErrPasswordMismatch)
		})
	}
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	h := PasswordHasher{}

	hash1, err := h.Hash("same")
	require.NoError(t, err)
	hash2, err := h.Hash("same")
	require.NoError(t, err)

	require.NotEqual(t, hash1, hash2, "hashes should differ due to unique salts")
}

func TestVerifyPassword_PepperMatters(t *testing.T) {
	hash, err := PasswordHasher{Pepper: "a"}.Hash("secret")
	require.NoError(t, err)

	require.ErrorIs(t, PasswordHasher{Pepper: "b"}.Verify("secret", hash), ErrPasswordMismatch)
}

func TestVerifyPassword_InvalidFormat(t *testing.T) {
	h := PasswordHasher{}
	for _, bad := range []string{
		"",
		"plain",
		"$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$garbage$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$!!!$aGFzaA",
	} {
		require.ErrorIs(t, h.Verify("x", bad), ErrInvalidHash, bad)
	}
}
