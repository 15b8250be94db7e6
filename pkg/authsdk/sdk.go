package authsdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/aussiebroadwan/passport/pkg/captcha"
	"github.com/aussiebroadwan/passport/pkg/observable"
	"github.com/aussiebroadwan/passport/pkg/slogx"
	"github.com/aussiebroadwan/passport/pkg/tokenstore"
	"golang.org/x/oauth2"
)

// Config configures an SDK instance. Only BaseURL is required.
type Config struct {
	// BaseURL of the identity service, e.g. https://id.example.com
	BaseURL string

	// HTTPClient used for every call. Nil means a client with RequestTimeout.
	HTTPClient *http.Client

	// RefreshLeadTime is how long before expiry tokens are refreshed.
	RefreshLeadTime time.Duration

	// RequestTimeout bounds each remote call made by a transition.
	RequestTimeout time.Duration

	Logger *slog.Logger
	Clock  Clock

	// Store persists tokens. Nil means an in-memory store. A *tokenstore.Echo
	// keeps SDK instances sharing it in step.
	Store tokenstore.Store

	// Location is read for the sid/refresh_token hand-off. Optional.
	Location Location

	// Navigator performs the consent auto-redirect. Optional.
	Navigator Navigator

	// CaptchaHost runs provider scripts. Without one, captcha-protected
	// features fail with script_load_failed.
	CaptchaHost captcha.Host

	// Passkeys enables the passkey step. Optional.
	Passkeys PasskeyAuthenticator
}

func (c Config) withDefaults() Config {
	if c.RefreshLeadTime <= 0 {
		c.RefreshLeadTime = DefaultRefreshLeadTime
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	c.Logger = slogx.OrDefault(c.Logger)
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Store == nil {
		c.Store = tokenstore.NewMemory()
	}
	return c
}

// SDK is one authentication context: a session, its state machines and its
// token lifecycle. Instances share nothing unless given the same Store.
type SDK struct {
	cfg     Config
	log     *slog.Logger
	client  *SDKClient
	session *Session
	profile *Profile
	tokens  *Tokens
	signIn  *SignIn
	gate    *captcha.Gate

	ready    *future[struct{}]
	remote   *future[*RemoteConfig]
	initOnce sync.Once

	mu       sync.Mutex
	consents []*Consent
	unwatch  func()
	closed   bool
}

// New builds an SDK. Call Init before using the state machines.
func New(cfg Config) (*SDK, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("authsdk: invalid base url %q", cfg.BaseURL)
	}
	cfg = cfg.withDefaults()
	log := cfg.Logger.With("component", "authsdk")

	s := &SDK{
		cfg:     cfg,
		log:     log,
		client:  NewSDKClientWith(cfg.BaseURL, cfg.HTTPClient, log),
		session: newSession(),
		profile: newProfile(),
		ready:   newFuture[struct{}](),
		remote:  newFuture[*RemoteConfig](),
	}
	s.tokens = newTokens(s.client, s.session, cfg.Store, cfg.Location, cfg.Clock,
		cfg.RefreshLeadTime, cfg.RequestTimeout, log.With("component", "tokens"))

	source := captcha.ConfigFunc(s.captchaConfig)
	if cfg.CaptchaHost != nil {
		s.gate = captcha.NewGate(source, cfg.CaptchaHost, log)
	} else {
		s.gate = captcha.NewGateWithFactory(source, func(name captcha.ProviderName) (captcha.Provider, error) {
			return nil, &captcha.Error{Code: captcha.CodeScriptLoadFailed, Provider: name, Err: errors.New("no captcha host configured")}
		}, log)
	}

	s.signIn = &SignIn{
		client:   s.client,
		session:  s.session,
		tokens:   s.tokens,
		gate:     s.gate,
		profile:  s.profile,
		passkeys: cfg.Passkeys,
		ready:    s.ready.settled,
		timeout:  cfg.RequestTimeout,
		log:      log.With("component", "signin"),
	}

	if echo, ok := cfg.Store.(*tokenstore.Echo); ok {
		s.unwatch = echo.Watch(s.syncFromStore)
	}
	return s, nil
}

// Init hydrates the session from the store, starts the remote
// configuration fetch and adopts or refreshes tokens as needed. Only the
// first call does work; later calls return its result.
func (s *SDK) Init(ctx context.Context) error {
	s.initOnce.Do(func() {
		go s.fetchRemoteConfig()

		if err := s.tokens.hydrate(ctx); err != nil {
			s.ready.resolve(struct{}{}, fmt.Errorf("authsdk: hydrate session: %w", err))
			return
		}
		if s.tokens.needsRefresh() {
			if code := s.tokens.RefreshToken(ctx); code != "" {
				s.log.Info("initial refresh failed", "code", code)
			}
		}
		st := s.session.Snapshot()
		s.log.Debug("sdk ready", "authenticated", st.Authenticated, "step", st.Step)
		s.ready.resolve(struct{}{}, nil)
	})
	_, err := s.ready.wait(ctx)
	return err
}

// Wait blocks until Init has completed.
func (s *SDK) Wait(ctx context.Context) error {
	_, err := s.ready.wait(ctx)
	return err
}

func (s *SDK) fetchRemoteConfig() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()

	rc, err := s.client.GetConfig(ctx)
	if err != nil {
		s.log.Warn("remote config unavailable", "code", CodeOf(err))
	}
	s.remote.resolve(rc, err)
}

// RemoteConfig waits for the configuration fetched during Init.
func (s *SDK) RemoteConfig(ctx context.Context) (*RemoteConfig, error) {
	return s.remote.wait(ctx)
}

func (s *SDK) captchaConfig(ctx context.Context) (captcha.Config, error) {
	rc, err := s.remote.wait(ctx)
	if err != nil {
		return captcha.Config{}, err
	}
	return rc.Captcha, nil
}

// SignIn returns the sign-in state machine.
func (s *SDK) SignIn() *SignIn { return s.signIn }

// Tokens returns the token lifecycle manager.
func (s *SDK) Tokens() *Tokens { return s.tokens }

// Session exposes the session record to observers.
func (s *SDK) Session() observable.View[State, StateKey] { return s.session }

// Profile returns the shared profile field data.
func (s *SDK) Profile() *Profile { return s.profile }

// Captcha returns the captcha gate, for pages that render widgets.
func (s *SDK) Captcha() *captcha.Gate { return s.gate }

// Client returns the remote transport.
func (s *SDK) Client() *SDKClient { return s.client }

// OAuth creates a consent state machine for cfg.ClientID.
func (s *SDK) OAuth(cfg OAuthConfig) *Consent {
	c := newConsent(cfg, s.client, s.tokens, s.profile, s.cfg.Navigator, s.cfg.RequestTimeout, s.log.With("component", "oauth"))

	s.mu.Lock()
	s.consents = append(s.consents, c)
	s.mu.Unlock()
	return c
}

// HTTPClient returns a client that authenticates every request with a
// currently valid token. Requests fail with an *AuthError when none can be
// obtained.
func (s *SDK) HTTPClient(ctx context.Context) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client.HTTPClient)
	return oauth2.NewClient(ctx, s.tokens.TokenSource(ctx))
}

// Logout clears tokens and sign-in id everywhere and returns every state
// machine to its initial step.
func (s *SDK) Logout(ctx context.Context) error {
	if err := s.tokens.logout(ctx); err != nil {
		return fmt.Errorf("authsdk: logout: %w", err)
	}

	s.mu.Lock()
	consents := append([]*Consent(nil), s.consents...)
	s.mu.Unlock()
	for _, c := range consents {
		c.Cancel()
	}
	s.profile.Reset()

	s.log.Info("logged out")
	return nil
}

// Close stops the refresh timer and detaches every observer. The store is
// left open; it belongs to the caller.
func (s *SDK) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	consents := s.consents
	unwatch := s.unwatch
	s.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	s.tokens.close()
	for _, c := range consents {
		c.close()
	}
	s.gate.Destroy()
	s.session.Close()
	s.profile.Close()
}

// syncFromStore applies writes made through a shared Echo by another
// instance.
func (s *SDK) syncFromStore(changes []tokenstore.Change) {
	var (
		schedule string
		lost     bool
	)
	s.session.Update(func(st *State) {
		prev := st.Token
		for _, c := range changes {
			switch c.Key {
			case tokenstore.KeyToken:
				st.Token = c.Value
			case tokenstore.KeyRefreshToken:
				st.RefreshToken = c.Value
			case tokenstore.KeySignInID:
				st.SignInID = c.Value
			}
		}

		valid := s.tokens.IsValid(st.Token)
		switch {
		case valid && st.Token != prev:
			schedule = st.Token
			if !st.Authenticated {
				st.gen++
				st.Loading = false
				st.Authenticated = true
				st.enterStep(StepAuthenticated)
			}
		case st.Authenticated && st.Token == "":
			// Logged out elsewhere.
			gen, epoch := st.gen, st.epoch
			*st = initialState()
			st.gen, st.epoch = gen+1, epoch+1
			lost = true
		}
	})

	switch {
	case schedule != "":
		s.tokens.schedule(schedule)
	case lost:
		s.tokens.cancelSchedule()
		s.profile.Reset()
	}
}
