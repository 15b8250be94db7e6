// Package tokenstore persists the session credentials of an SDK instance.
// It is pure storage: no expiry checks, no refresh logic.
package tokenstore

import (
	"context"
	"errors"
)

// Key names a persisted value.
type Key string

// Fixed keys. They match the names the identity service uses in its
// redirect hand-off so stores can be inspected by hand.
const (
	KeyToken        Key = "token"
	KeyRefreshToken Key = "refresh_token"
	KeySignInID     Key = "signInId"
)

// SessionKeys lists every key the SDK writes.
var SessionKeys = []Key{KeyToken, KeyRefreshToken, KeySignInID}

var ErrClosed = errors.New("tokenstore: closed")

// Store is a durable key/value store.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key Key) (string, bool, error)

	// Put writes every entry atomically. An empty value deletes the key.
	Put(ctx context.Context, values map[Key]string) error

	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...Key) error

	Close() error
}

// Load reads every session key in one go. Missing keys come back as "".
func Load(ctx context.Context, s Store) (map[Key]string, error) {
	out := make(map[Key]string, len(SessionKeys))
	for _, k := range SessionKeys {
		v, _, err := s.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}
