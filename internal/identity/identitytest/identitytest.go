// Package identitytest runs the reference identity service in-process.
package identitytest

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/passport/internal/identity"
	identityhttp "github.com/aussiebroadwan/passport/internal/identity/http"
	"github.com/aussiebroadwan/passport/pkg/cryptox"
	"github.com/aussiebroadwan/passport/pkg/httpx"
	"github.com/aussiebroadwan/passport/pkg/jwtx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const (
	Issuer   = "https://passport.test"
	Password = "correct horse battery staple"
)

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock { return &Clock{now: start} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Env is a running service.
type Env struct {
	Service *identity.Service
	Outbox  *identity.MemoryOutbox
	Signer  jwtx.Signer
	Server  *httptest.Server
}

// URL is the server base URL.
func (e *Env) URL() string { return e.Server.URL }

// NewSigner returns a fresh EdDSA signer for Issuer.
func NewSigner(t testing.TB) jwtx.Signer {
	t.Helper()
	pem, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	signer, err := jwtx.NewSignerEdDSA("test", pem, Issuer, nil)
	require.NoError(t, err)
	return signer
}

// Unlimited disables rate limiting in practice.
func Unlimited() httpx.RateLimits {
	l := httpx.RateLimit{Requests: 1 << 20, Window: time.Second, Burst: 1 << 20}
	return httpx.RateLimits{Credential: l, SignIn: l, Session: l, Public: l}
}

// Start seeds a service and serves it until the test ends. now may be nil.
func Start(t testing.TB, seed identity.Seed, now func() time.Time, opts ...func(*identity.Options)) *Env {
	t.Helper()

	o := identity.Options{Issuer: Issuer, Now: now}
	for _, fn := range opts {
		fn(&o)
	}

	signer := NewSigner(t)
	outbox := &identity.MemoryOutbox{}
	svc := identity.NewService(o, signer, outbox, slogx.Discard())
	require.NoError(t, svc.ApplySeed(seed))

	router := identityhttp.NewRouter(svc, outbox, Unlimited(), "test", slogx.Discard())
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &Env{Service: svc, Outbox: outbox, Signer: signer, Server: srv}
}

// User returns a seed user with the shared test password.
func User(email string, profile map[string]any) identity.SeedUser {
	return identity.SeedUser{Email: email, Password: Password, Profile: profile}
}
