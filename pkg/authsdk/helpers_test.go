package authsdk_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/passport/internal/identity"
	"github.com/aussiebroadwan/passport/internal/identity/identitytest"
	"github.com/aussiebroadwan/passport/pkg/authsdk"
	"github.com/aussiebroadwan/passport/pkg/captcha"
	"github.com/aussiebroadwan/passport/pkg/slogx"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const email = "ada@example.com"

// ============================================================================
// Manual clock
// ============================================================================

type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	at      time.Time
	fn      func()
	stopped atomic.Bool
	fired   bool
}

func (t *manualTimer) Stop() bool { return !t.stopped.Swap(true) }

func newManualClock() *manualClock { return &manualClock{now: epoch} }

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) authsdk.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs due timers in order, outside the lock.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped.Load() && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		if !t.stopped.Load() {
			t.fn()
		}
	}
}

// pending counts armed timers.
func (c *manualClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped.Load() {
			n++
		}
	}
	return n
}

// ============================================================================
// Fakes
// ============================================================================

var passkeySecret = []byte("0123456789abcdef0123456789abcdef")

// passkeyAuthenticator signs challenges the way the reference service checks them.
type passkeyAuthenticator struct {
	id     string
	secret []byte
	err    error
}

func (a *passkeyAuthenticator) GetAssertion(_ context.Context, opts authsdk.PasskeyOptions) (json.RawMessage, error) {
	if a.err != nil {
		return nil, a.err
	}
	return json.Marshal(identity.PasskeyAssertion{
		ID:        a.id,
		Challenge: opts.Challenge,
		Signature: identity.SignPasskeyChallenge(a.secret, opts.Challenge),
	})
}

// captchaHost runs invisible challenges only.
type captchaHost struct {
	loads    atomic.Int32
	executes atomic.Int32
	token    string
	loadErr  error
}

func (h *captchaHost) LoadScript(context.Context, string) error {
	h.loads.Add(1)
	return h.loadErr
}

func (h *captchaHost) ExecuteInvisible(context.Context, string, string) (string, error) {
	h.executes.Add(1)
	return h.token, nil
}

func (h *captchaHost) RenderWidget(context.Context, captcha.ProviderName, string, string) (string, error) {
	return "", errors.New("widgets unsupported")
}

func (h *captchaHost) WidgetResponse(context.Context, string) (string, error) { return "", nil }
func (h *captchaHost) ResetWidget(string)                                    {}
func (h *captchaHost) RemoveWidget(string)                                   {}

// countingTransport counts requests per path and can hold one path until released.
type countingTransport struct {
	mu     sync.Mutex
	counts map[string]int

	holdPath string
	release  chan struct{}
}

func newCountingTransport() *countingTransport {
	return &countingTransport{counts: map[string]int{}}
}

// hold blocks requests to path until the returned channel is closed.
func (c *countingTransport) hold(path string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holdPath = path
	c.release = make(chan struct{})
	return c.release
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	c.counts[req.URL.Path]++
	var release chan struct{}
	if c.holdPath == req.URL.Path {
		release = c.release
	}
	c.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}
	return http.DefaultTransport.RoundTrip(req)
}

func (c *countingTransport) count(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[path]
}

// ============================================================================
// Environment
// ============================================================================

type env struct {
	*identitytest.Env
	clock     *manualClock
	transport *countingTransport
}

func defaultSeed() identity.Seed {
	return identity.Seed{
		Users: []identity.SeedUser{{
			Email:    email,
			Password: identitytest.Password,
			Profile:  map[string]any{"name": "Ada"},
			Passkeys: []identity.SeedPasskey{{ID: "pk-1", Secret: base64.StdEncoding.EncodeToString(passkeySecret)}},
		}},
		Applications: []identity.SeedApp{{
			ClientID:       "app_shop",
			Name:           "Shop",
			Scopes:         []string{"profile"},
			RequiredFields: []string{"name", "country"},
			RedirectURIs:   []string{"https://shop.example.com/callback"},
		}},
	}
}

func newEnv(t *testing.T, seed identity.Seed) *env {
	t.Helper()
	clock := newManualClock()
	return &env{
		Env:       identitytest.Start(t, seed, clock.Now),
		clock:     clock,
		transport: newCountingTransport(),
	}
}

// sdk builds and initializes an SDK against the environment. mutate may
// adjust the config first.
func (e *env) sdk(t *testing.T, mutate ...func(*authsdk.Config)) *authsdk.SDK {
	t.Helper()
	cfg := authsdk.Config{
		BaseURL:    e.URL(),
		HTTPClient: &http.Client{Transport: e.transport},
		Clock:      e.clock,
		Logger:     slogx.Discard(),
		Passkeys:   &passkeyAuthenticator{id: "pk-1", secret: passkeySecret},
	}
	for _, fn := range mutate {
		fn(&cfg)
	}

	sdk, err := authsdk.New(cfg)
	require.NoError(t, err)
	t.Cleanup(sdk.Close)
	require.NoError(t, sdk.Init(t.Context()))
	return sdk
}

// signIn runs email and password to completion.
func signIn(t *testing.T, sdk *authsdk.SDK) {
	t.Helper()
	ctx := t.Context()

	code, err := sdk.SignIn().CreateSignIn(ctx, email)
	require.NoError(t, err)
	require.Empty(t, code)

	code, err = sdk.SignIn().AuthenticateWithPassword(ctx, identitytest.Password)
	require.NoError(t, err)
	require.Empty(t, code)
	require.True(t, sdk.Session().Snapshot().Authenticated)
}
