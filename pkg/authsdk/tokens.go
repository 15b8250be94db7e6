package authsdk

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/passport/pkg/jwtx"
	"github.com/aussiebroadwan/passport/pkg/tokenstore"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshLeadTime is how long before expiry the scheduler refreshes.
const DefaultRefreshLeadTime = 60 * time.Second

// Tokens is the token lifecycle manager. It is the only writer of the token
// store besides logout, and the only way other features get credentials.
type Tokens struct {
	client  *SDKClient
	session *Session
	store   tokenstore.Store
	loc     Location
	clock   Clock
	lead    time.Duration
	timeout time.Duration
	log     *slog.Logger

	group singleflight.Group

	mu     sync.Mutex
	timer  Timer
	closed bool
}

func newTokens(client *SDKClient, session *Session, store tokenstore.Store, loc Location, clock Clock, lead, timeout time.Duration, log *slog.Logger) *Tokens {
	return &Tokens{
		client:  client,
		session: session,
		store:   store,
		loc:     loc,
		clock:   clock,
		lead:    lead,
		timeout: timeout,
		log:     log,
	}
}

// IsValid reports whether token decodes and has not expired. Malformed input
// is simply invalid.
func (t *Tokens) IsValid(token string) bool {
	return jwtx.IsValidAt(token, t.clock.Now())
}

// IsAuthenticated reports whether a valid token is available, refreshing when
// the stored one has expired. Without a refresh token it answers false
// without touching the network.
func (t *Tokens) IsAuthenticated(ctx context.Context) bool {
	st := t.session.Snapshot()
	if t.IsValid(st.Token) {
		return true
	}
	if st.RefreshToken == "" || st.SignInID == "" {
		return false
	}
	if code := t.RefreshToken(ctx); code != "" {
		return false
	}
	return t.IsValid(t.session.Snapshot().Token)
}

// GetToken returns a token valid for immediate use. GetToken fails only
// with an *AuthError: TOKEN_EXPIRED when there is nothing to refresh with,
// REFRESH_FAILED when the refresh call failed.
func (t *Tokens) GetToken(ctx context.Context) (string, error) {
	st := t.session.Snapshot()
	if t.IsValid(st.Token) {
		return st.Token, nil
	}

	if (st.RefreshToken == "" || st.SignInID == "") && !t.hasHandoff() {
		return "", &AuthError{Kind: TokenExpired}
	}

	if code := t.RefreshToken(ctx); code != "" {
		return "", &AuthError{Kind: RefreshFailed, Code: code}
	}

	token := t.session.Snapshot().Token
	if !t.IsValid(token) {
		// The service handed back something already expired.
		return "", &AuthError{Kind: RefreshFailed, Code: CodeExpired}
	}
	return token, nil
}

// RefreshToken rotates the session. Concurrent callers share one request.
// On failure the previous tokens stay in place and a global error is set.
func (t *Tokens) RefreshToken(ctx context.Context) ErrorCode {
	v, _, _ := t.group.Do("refresh", func() (any, error) {
		return t.refresh(ctx), nil
	})
	return v.(ErrorCode)
}

func (t *Tokens) refresh(ctx context.Context) ErrorCode {
	if t.isClosed() {
		return CodeNotAuthenticated
	}

	if sid, rt, ok := takeHandoff(t.loc); ok {
		t.log.Debug("adopting refresh token from url")
		t.session.Update(func(st *State) {
			st.SignInID = sid
			st.RefreshToken = rt
		})
		if err := t.store.Put(ctx, map[tokenstore.Key]string{
			tokenstore.KeySignInID:     sid,
			tokenstore.KeyRefreshToken: rt,
		}); err != nil {
			t.log.Warn("persist handoff tokens", "error", err)
		}
	}

	var st State
	t.session.Update(func(s *State) {
		st = *s
		if s.RefreshToken != "" && s.SignInID != "" {
			s.Refreshing = true
		}
	})
	if st.RefreshToken == "" || st.SignInID == "" {
		return CodeNotAuthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := t.client.RefreshToken(ctx, st.SignInID, st.RefreshToken)
	if err != nil {
		code := CodeOf(err)
		t.log.Warn("token refresh failed", "code", code)
		t.session.Update(func(s *State) {
			s.Refreshing = false
			if s.epoch != st.epoch {
				return
			}
			s.setError(code)
			if !jwtx.IsValidAt(s.Token, t.clock.Now()) {
				s.Authenticated = false
				if s.Step == StepAuthenticated {
					s.Step = StepEmail
				}
			}
		})
		return code
	}

	epoch := st.epoch
	if !t.commit(ctx, *resp, func(s *State) bool {
		s.Refreshing = false
		return s.epoch == epoch
	}) {
		return CodeNotAuthenticated
	}
	return ""
}

// commit installs a new token pair: state first, then the store, then the
// refresh timer. guard runs inside the same state update and rejects stale
// responses, e.g. tokens issued before a logout.
func (t *Tokens) commit(ctx context.Context, resp TokenResponse, guard func(*State) bool) bool {
	accepted := false
	var sid, refresh string
	t.session.Update(func(s *State) {
		if !guard(s) {
			return
		}
		accepted = true

		s.Token = resp.JWT
		if resp.RefreshToken != "" {
			s.RefreshToken = resp.RefreshToken
		}
		s.Authenticated = true
		s.enterStep(StepAuthenticated)
		delete(s.Errors, GlobalField)
		sid, refresh = s.SignInID, s.RefreshToken
	})
	if !accepted {
		t.log.Debug("discarding stale tokens")
		return false
	}

	if err := t.store.Put(ctx, map[tokenstore.Key]string{
		tokenstore.KeyToken:        resp.JWT,
		tokenstore.KeyRefreshToken: refresh,
		tokenstore.KeySignInID:     sid,
	}); err != nil {
		t.log.Warn("persist tokens", "error", err)
	}

	t.schedule(resp.JWT)
	return true
}

// rememberSignIn persists the in-progress sign-in id.
func (t *Tokens) rememberSignIn(ctx context.Context, sid string) {
	if err := t.store.Put(ctx, map[tokenstore.Key]string{tokenstore.KeySignInID: sid}); err != nil {
		t.log.Warn("persist sign-in id", "error", err)
	}
}

// forgetSignIn drops an abandoned, unauthenticated sign-in id.
func (t *Tokens) forgetSignIn(ctx context.Context) error {
	return t.store.Delete(ctx, tokenstore.KeySignInID)
}

// hydrate loads persisted credentials into the session.
func (t *Tokens) hydrate(ctx context.Context) error {
	vals, err := tokenstore.Load(ctx, t.store)
	if err != nil {
		return err
	}

	token := vals[tokenstore.KeyToken]
	valid := t.IsValid(token)
	t.session.Update(func(s *State) {
		s.Token = token
		s.RefreshToken = vals[tokenstore.KeyRefreshToken]
		s.SignInID = vals[tokenstore.KeySignInID]
		s.Authenticated = valid
		if valid {
			s.Step = StepAuthenticated
		}
	})

	if valid {
		t.schedule(token)
	}
	return nil
}

// needsRefresh reports whether Init should refresh right away.
func (t *Tokens) needsRefresh() bool {
	if t.hasHandoff() {
		return true
	}
	st := t.session.Snapshot()
	return !t.IsValid(st.Token) && st.RefreshToken != "" && st.SignInID != ""
}

func (t *Tokens) hasHandoff() bool {
	if t.loc == nil {
		return false
	}
	u := t.loc.URL()
	if u == nil {
		return false
	}
	q := u.Query()
	return q.Get(paramSID) != "" && q.Get(paramRefreshToken) != ""
}

// schedule arms the proactive refresh for token, replacing any earlier timer.
func (t *Tokens) schedule(token string) {
	claims, err := jwtx.Decode(token)
	if err != nil {
		return
	}
	delay := max(0, claims.ExpiresIn(t.clock.Now())-t.lead)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = t.clock.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if code := t.RefreshToken(ctx); code != "" {
			t.log.Info("scheduled refresh failed", "code", code)
		}
	})
}

func (t *Tokens) cancelSchedule() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// logout clears credentials from state and store.
func (t *Tokens) logout(ctx context.Context) error {
	t.cancelSchedule()
	t.session.Update(func(s *State) {
		gen, epoch := s.gen, s.epoch
		*s = initialState()
		s.gen, s.epoch = gen+1, epoch+1
	})
	return t.store.Delete(ctx, tokenstore.SessionKeys...)
}

func (t *Tokens) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Tokens) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// ============================================================================
// oauth2 integration
// ============================================================================

// Token implements oauth2.TokenSource with a background context.
func (t *Tokens) Token() (*oauth2.Token, error) {
	return t.TokenSource(context.Background()).Token()
}

// TokenSource returns an oauth2.TokenSource whose refreshes run under ctx.
func (t *Tokens) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSource{ctx: ctx, t: t}
}

type tokenSource struct {
	ctx context.Context
	t   *Tokens
}

func (s tokenSource) Token() (*oauth2.Token, error) {
	raw, err := s.t.GetToken(s.ctx)
	if err != nil {
		return nil, err
	}

	tok := &oauth2.Token{AccessToken: raw, TokenType: "Bearer"}
	if claims, err := jwtx.Decode(raw); err == nil && claims.ExpiresAt != nil {
		tok.Expiry = claims.ExpiresAt.Time
	}
	return tok, nil
}
