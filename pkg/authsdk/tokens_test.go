package authsdk_test

import (
	"net/http"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/passport/pkg/authsdk"
	"github.com/aussiebroadwan/passport/pkg/tokenstore"
	"github.com/aussiebroadwan/passport/pkg/tokenstore/sqlite"
	"github.com/stretchr/testify/require"
)

const refreshPath = "/v1/auth/tokens/refresh"

func TestScheduledRefreshBeforeExpiry(t *testing.T) {
	t.Parallel()

	e := newEnv(t, defaultSeed())
	sdk := e.sdk(t)
	signIn(t, sdk)

	first := sdk.Session().Snapshot()
	require.Equal(t, 1, e.clock.pending())

	// Session tokens last 5m and the lead time is 60s.
	e.clock.Advance(3 * time.Minute)
	require.Zero(t, e.transport.count(refreshPath))

	e.clock.Advance(time.Minute)
	require.Equal(t, 1, e.transport.count(refreshPath))

	st := sdk.Session().Snapshot()
	require.True(t, st.Authenticated)
	require.NotEqual(t, first.Token, st.Token)
	require.NotEqual(t, first.RefreshToken, st.RefreshToken)
	require.True(t, sdk.Tokens().IsValid(st.Token))
	require.Equal(t, 1, e.clock.pending())
}

func TestConcurrentRefreshesShareOneRequest(t *testing.T) {
	t.Parallel()

	e := newEnv(t, defaultSeed())
	sdk := e.sdk(t)
	signIn(t, sdk)

	release := e.transport.hold(refreshPath)

	const callers = 5
	codes := make([]authsdk.ErrorCode, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = sdk.Tokens().RefreshToken(t.Context())
		}()
	}

	require.Eventually(t, func() bool { return e.transport.count(refreshPath) == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, sdk.Session().Snapshot().Refreshing)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, 1, e.transport.count(refreshPath))
	for _, code := range codes {
		require.Empty(t, code)
	}
	require.False(t, sdk.Session().Snapshot().Refreshing)
}

func TestGetToken(t *testing.T) {
	t.Parallel()

	t.Run("nothing to refresh with", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, defaultSeed())
		sdk := e.sdk(t)

		_, err := sdk.Tokens().GetToken(t.Context())
		require.True(t, authsdk.IsAuthError(err, authsdk.TokenExpired))
		require.False(t, sdk.Tokens().IsAuthenticated(t.Context()))
		require.Zero(t, e.transport.count(refreshPath))
	})

	t.Run("valid token returned as is", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, defaultSeed())
		sdk := e.sdk(t)
		signIn(t, sdk)

		tok, err := sdk.Tokens().GetToken(t.Context())
		require.NoError(t, err)
		require.Equal(t, sdk.Session().Snapshot().Token, tok)
		require.Zero(t, e.transport.count(refreshPath))
	})

	t.Run("refresh rejected", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, defaultSeed())
		store := tokenstore.NewMemory()
		require.NoError(t, store.Put(t.Context(), map[tokenstore.Key]string{
			tokenstore.KeyRefreshToken: "not-a-refresh-token",
			tokenstore.KeySignInID:     "sin_unknown",
		}))
		sdk := e.sdk(t, func(c *authsdk.Config) { c.Store = store })

		// Init already tried once.
		require.Equal(t, 1, e.transport.count(refreshPath))

		_, err := sdk.Tokens().GetToken(t.Context())
		var authErr *authsdk.AuthError
		require.ErrorAs(t, err, &authErr)
		require.Equal(t, authsdk.RefreshFailed, authErr.Kind)
		require.Equal(t, authsdk.CodeInvalidRefreshToken, authErr.Code)

		st := sdk.Session().Snapshot()
		require.False(t, st.Authenticated)
		require.Equal(t, authsdk.CodeInvalidRefreshToken, st.Errors[authsdk.GlobalField])
		require.Equal(t, "not-a-refresh-token", st.RefreshToken)
	})
}

func TestIsValid(t *testing.T) {
	t.Parallel()

	e := newEnv(t, defaultSeed())
	sdk := e.sdk(t)
	signIn(t, sdk)
	token := sdk.Session().Snapshot().Token
	require.NoError(t, sdk.Logout(t.Context()))

	tests := []struct {
		name  string
		token string
		after time.Duration
		want  bool
	}{
		{name: "fresh", token: token, want: true},
		{name: "empty", token: "", want: false},
		{name: "garbage", token: "a.b.c", want: false},
		{name: "expired", token: token, after: 6 * time.Minute, want: false},
		{name: "client clock behind issuer", token: token, after: -10 * time.Second, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newManualClock()
			c.Advance(tt.after)
			other, err := authsdk.New(authsdk.Config{BaseURL: e.URL(), Clock: c})
			require.NoError(t, err)
			t.Cleanup(other.Close)
			require.Equal(t, tt.want, other.Tokens().IsValid(tt.token))
		})
	}
}

func TestInitRefreshesExpiredSession(t *testing.T) {
	t.Parallel()

	e := newEnv(t, defaultSeed())
	store := tokenstore.NewMemory()
	first := e.sdk(t, func(c *authsdk.Config) { c.Store = store })
	signIn(t, first)
	first.Close()
	require.Zero(t, e.clock.pending())

	e.clock.Advance(10 * time.Minute)

	second := e.sdk(t, func(c *authsdk.Config) { c.Store = store })
	require.Equal(t, 1, e.transport.count(refreshPath))

	st := second.Session().Snapshot()
	require.True(t, st.Authenticated)
	require.Equal(t, authsdk.StepAuthenticated, st.Step)
	require.True(t, second.Tokens().IsValid(st.Token))
}

func TestClientClockBehindIssuerKeepsSession(t *testing.T) {
	t.Parallel()

	e := newEnv(t, defaultSeed())
	store := tokenstore.NewMemory()
	first := e.sdk(t, func(c *authsdk.Config) { c.Store = store })
	signIn(t, first)
	token := first.Session().Snapshot().Token
	first.Close()

	behind := newManualClock()
	behind.Advance(-5 * time.Second)
	second := e.sdk(t, func(c *authsdk.Config) {
		c.Store = store
		c.Clock = behind
	})

	got, err := second.Tokens().GetToken(t.Context())
	require.NoError(t, err)
	require.Equal(t, token, got)
	require.Zero(t, e.transport.count(refreshPath))
	require.True(t, second.Session().Snapshot().Authenticated)
}

func TestSQLiteStoreSurvivesRestart(t *testing.T) {
	t.Parallel()

	e := newEnv(t, defaultSeed())
	path := filepath.Join(t.TempDir(), "tokens.db")

	open := func() *sqlite.Store {
		s, err := sqlite.Open(path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	first := e.sdk(t, func(c *authsdk.Config) { c.Store = open() })
	signIn(t, first)
	token := first.Session().Snapshot().Token
	first.Close()

	second := e.sdk(t, func(c *authsdk.Config) { c.Store = open() })
	st := second.Session().Snapshot()
	require.True(t, st.Authenticated)
	require.Equal(t, token, st.Token)
	require.Zero(t, e.transport.count(refreshPath))
}

func TestLogout(t *testing.T) {
	t.Parallel()

	t.Run("clears state and store", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, defaultSeed())
		store := tokenstore.NewMemory()
		sdk := e.sdk(t, func(c *authsdk.Config) { c.Store = store })
		signIn(t, sdk)
		sdk.Profile().Set("country", authsdk.StringValue("AU"))

		require.NoError(t, sdk.Logout(t.Context()))

		st := sdk.Session().Snapshot()
		require.Equal(t, authsdk.StepEmail, st.Step)
		require.False(t, st.Authenticated)
		require.Empty(t, st.Token)
		require.Empty(t, st.RefreshToken)
		require.Empty(t, st.SignInID)
		require.Zero(t, e.clock.pending())
		_, ok := sdk.Profile().Get("country")
		require.False(t, ok)

		vals, err := tokenstore.Load(t.Context(), store)
		require.NoError(t, err)
		require.Empty(t, vals)
	})

	t.Run("in-flight refresh discarded", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, defaultSeed())
		store := tokenstore.NewMemory()
		sdk := e.sdk(t, func(c *authsdk.Config) { c.Store = store })
		signIn(t, sdk)

		release := e.transport.hold(refreshPath)
		done := make(chan authsdk.ErrorCode, 1)
		go func() { done <- sdk.Tokens().RefreshToken(t.Context()) }()

		require.Eventually(t, func() bool { return e.transport.count(refreshPath) == 1 }, time.Second, 5*time.Millisecond)
		require.NoError(t, sdk.Logout(t.Context()))
		close(release)

		require.Equal(t, authsdk.CodeNotAuthenticated, <-done)
		st := sdk.Session().Snapshot()
		require.False(t, st.Authenticated)
		require.Empty(t, st.Token)

		vals, err := tokenstore.Load(t.Context(), store)
		require.NoError(t, err)
		require.Empty(t, vals)
	})
}

func TestURLHandoff(t *testing.T) {
	t.Parallel()

	e := newEnv(t, defaultSeed())
	origin := e.sdk(t)
	signIn(t, origin)
	st := origin.Session().Snapshot()
	origin.Close()

	q := url.Values{"sid": {st.SignInID}, "refresh_token": {st.RefreshToken}, "keep": {"1"}}
	loc := authsdk.NewMemoryLocation("https://app.example.com/welcome?" + q.Encode())

	sdk := e.sdk(t, func(c *authsdk.Config) { c.Location = loc })

	got := sdk.Session().Snapshot()
	require.True(t, got.Authenticated)
	require.Equal(t, st.SignInID, got.SignInID)
	require.NotEqual(t, st.RefreshToken, got.RefreshToken)

	u := loc.URL()
	require.Equal(t, "/welcome", u.Path)
	require.Equal(t, "keep=1", u.RawQuery)
}

func TestEchoStoreKeepsInstancesInStep(t *testing.T) {
	t.Parallel()

	e := newEnv(t, defaultSeed())
	echo := tokenstore.NewEcho(tokenstore.NewMemory())
	a := e.sdk(t, func(c *authsdk.Config) { c.Store = echo })
	b := e.sdk(t, func(c *authsdk.Config) { c.Store = echo })

	var steps []authsdk.Step
	unsubscribe := b.Session().OnChange(authsdk.KeyStep, func(st authsdk.State) { steps = append(steps, st.Step) })
	defer unsubscribe()

	signIn(t, a)

	got := b.Session().Snapshot()
	require.True(t, got.Authenticated)
	require.Equal(t, a.Session().Snapshot().Token, got.Token)
	require.Equal(t, []authsdk.Step{authsdk.StepAuthenticated}, steps)

	require.NoError(t, a.Logout(t.Context()))
	got = b.Session().Snapshot()
	require.False(t, got.Authenticated)
	require.Empty(t, got.Token)
	require.Equal(t, authsdk.StepEmail, got.Step)
}

func TestHTTPClientAttachesBearer(t *testing.T) {
	t.Parallel()

	e := newEnv(t, defaultSeed())
	sdk := e.sdk(t)

	client := sdk.HTTPClient(t.Context())
	_, err := client.Get(e.URL() + "/v1/oauth/consent?client_id=app_shop")
	require.True(t, authsdk.IsAuthError(err, authsdk.TokenExpired))

	signIn(t, sdk)
	resp, err := client.Get(e.URL() + "/v1/oauth/consent?client_id=app_shop&scopes=profile")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
