package authsdk

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/aussiebroadwan/passport/pkg/observable"
)

// OAuthConfig is supplied by the embedding page and survives Cancel.
type OAuthConfig struct {
	ClientID    string
	Scopes      []string
	RedirectURI string

	// AutoRedirect navigates as soon as a one-time token is issued. When
	// false the caller reads RedirectURL and navigates itself.
	AutoRedirect bool
}

// ConsentStep is the active consent screen.
type ConsentStep string

const (
	ConsentIdle        ConsentStep = "idle"
	ConsentLoading     ConsentStep = "loading"
	ConsentRequired    ConsentStep = "consent"
	ConsentSubmitting  ConsentStep = "submitting"
	ConsentRedirecting ConsentStep = "redirecting"
	ConsentFailed      ConsentStep = "error"
)

// ConsentState is the record a consent screen renders from.
type ConsentState struct {
	Step   ConsentStep
	Config OAuthConfig

	HasConsent     bool
	Application    *Application
	RequiredFields []string
	MissingFields  []string
	FieldValues    ProfileData

	// Token is the one-time login token, set only while redirecting.
	Token string
	Error ErrorCode

	consumed bool
	gen      uint64
}

// ConsentKey names a ConsentState field for change subscriptions.
type ConsentKey string

const (
	ConsentKeyStep           ConsentKey = "step"
	ConsentKeyConfig         ConsentKey = "config"
	ConsentKeyHasConsent     ConsentKey = "hasConsent"
	ConsentKeyApplication    ConsentKey = "application"
	ConsentKeyRequiredFields ConsentKey = "requiredFields"
	ConsentKeyMissingFields  ConsentKey = "missingFields"
	ConsentKeyFieldValues    ConsentKey = "fieldValues"
	ConsentKeyToken          ConsentKey = "token"
	ConsentKeyError          ConsentKey = "error"
)

func cloneConsent(s ConsentState) ConsentState {
	s.Config.Scopes = slices.Clone(s.Config.Scopes)
	if s.Application != nil {
		app := *s.Application
		app.Scopes = slices.Clone(app.Scopes)
		s.Application = &app
	}
	s.RequiredFields = slices.Clone(s.RequiredFields)
	s.MissingFields = slices.Clone(s.MissingFields)
	if s.FieldValues != nil {
		s.FieldValues = cloneProfile(s.FieldValues)
	}
	return s
}

func diffConsent(a, b ConsentState) []ConsentKey {
	var keys []ConsentKey
	add := func(changed bool, k ConsentKey) {
		if changed {
			keys = append(keys, k)
		}
	}
	add(a.Step != b.Step, ConsentKeyStep)
	add(!equalConfig(a.Config, b.Config), ConsentKeyConfig)
	add(a.HasConsent != b.HasConsent, ConsentKeyHasConsent)
	add(!equalApplication(a.Application, b.Application), ConsentKeyApplication)
	add(!slices.Equal(a.RequiredFields, b.RequiredFields), ConsentKeyRequiredFields)
	add(!slices.Equal(a.MissingFields, b.MissingFields), ConsentKeyMissingFields)
	add(len(diffProfile(a.FieldValues, b.FieldValues)) > 0, ConsentKeyFieldValues)
	add(a.Token != b.Token, ConsentKeyToken)
	add(a.Error != b.Error, ConsentKeyError)
	return keys
}

func equalConfig(a, b OAuthConfig) bool {
	return a.ClientID == b.ClientID && a.RedirectURI == b.RedirectURI &&
		a.AutoRedirect == b.AutoRedirect && slices.Equal(a.Scopes, b.Scopes)
}

func equalApplication(a, b *Application) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ClientID == b.ClientID && a.Name == b.Name && a.Description == b.Description &&
		a.LogoURL == b.LogoURL && slices.Equal(a.Scopes, b.Scopes)
}

// Consent is the OAuth consent state machine for one client id.
type Consent struct {
	client  *SDKClient
	tokens  *Tokens
	profile *Profile
	nav     Navigator
	timeout time.Duration
	log     *slog.Logger

	record *observable.Record[ConsentState, ConsentKey]
}

func newConsent(cfg OAuthConfig, client *SDKClient, tokens *Tokens, profile *Profile, nav Navigator, timeout time.Duration, log *slog.Logger) *Consent {
	initial := ConsentState{Step: ConsentIdle, Config: cfg}
	return &Consent{
		client:  client,
		tokens:  tokens,
		profile: profile,
		nav:     nav,
		timeout: timeout,
		log:     log.With("client_id", cfg.ClientID),
		record:  observable.New(cloneConsent(initial), diffConsent, cloneConsent),
	}
}

// State returns a snapshot of the consent record.
func (c *Consent) State() ConsentState { return c.record.Snapshot() }

// View exposes the record to observers.
func (c *Consent) View() observable.View[ConsentState, ConsentKey] { return c.record }

type consentCall struct {
	gen uint64
	st  ConsentState
}

func (c *Consent) begin(to ConsentStep, from ...ConsentStep) (consentCall, ErrorCode, error) {
	var (
		call consentCall
		code ErrorCode
		err  error
	)
	c.record.Update(func(st *ConsentState) {
		switch {
		case st.Step == ConsentLoading || st.Step == ConsentSubmitting:
			code = CodeRequestInFlight
		case !slices.Contains(from, st.Step):
			err = fmt.Errorf("consent %s from %s: %w", to, st.Step, ErrIllegalTransition)
		default:
			st.gen++
			st.Step = to
			st.Error = ""
			call = consentCall{gen: st.gen, st: cloneConsent(*st)}
		}
	})
	return call, code, err
}

func (c *Consent) finish(call consentCall, fn func(*ConsentState)) bool {
	applied := false
	c.record.Update(func(st *ConsentState) {
		if st.gen != call.gen {
			return
		}
		applied = true
		fn(st)
	})
	return applied
}

func (c *Consent) fail(call consentCall, code ErrorCode) ErrorCode {
	c.log.Info("consent failed", "code", code)
	c.finish(call, func(st *ConsentState) {
		st.Step = ConsentFailed
		st.Error = code
	})
	return code
}

// Connect checks consent and grants it in one round trip when nothing is
// missing. An unauthenticated session fails with not_authenticated before
// any consent traffic.
func (c *Consent) Connect(ctx context.Context) (ErrorCode, error) {
	call, code, err := c.begin(ConsentLoading, ConsentIdle, ConsentFailed, ConsentRequired)
	if err != nil || code != "" {
		return code, err
	}

	bearer, err := c.tokens.GetToken(ctx)
	if err != nil {
		return c.fail(call, CodeNotAuthenticated), nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cfg := call.st.Config
	res, err := c.client.Connect(ctx, bearer, ConsentRequest{
		ClientID:    cfg.ClientID,
		Scopes:      cfg.Scopes,
		RedirectURI: cfg.RedirectURI,
	})
	if err != nil {
		return c.fail(call, CodeOf(err)), nil
	}
	if res.Token != "" {
		c.redirect(call, res.Token)
		return "", nil
	}
	return c.showConsent(call, *res.Consent, res.Code), nil
}

// Submit sends the missing fields, if any, then grants consent.
func (c *Consent) Submit(ctx context.Context) (ErrorCode, error) {
	call, code, err := c.begin(ConsentSubmitting, ConsentRequired)
	if err != nil || code != "" {
		return code, err
	}

	bearer, err := c.tokens.GetToken(ctx)
	if err != nil {
		return c.fail(call, CodeNotAuthenticated), nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cfg := call.st.Config
	if missing := call.st.MissingFields; len(missing) > 0 {
		status, err := c.client.UpdateConsent(ctx, bearer, cfg.ClientID, c.profile.BuildPayload(missing))
		if err != nil {
			code := CodeOf(err)
			if code == CodeInvalidUserUpdates || code == CodeSchemaValidationError {
				// The user can correct the values and retry.
				c.finish(call, func(st *ConsentState) {
					st.Step = ConsentRequired
					st.Error = code
				})
				return code, nil
			}
			return c.fail(call, code), nil
		}
		if len(status.MissingFields) > 0 {
			return c.showConsent(call, *status, CodeMissingRequiredFields), nil
		}
	}

	tok, err := c.client.GrantConsent(ctx, bearer, ConsentRequest{
		ClientID:    cfg.ClientID,
		Scopes:      cfg.Scopes,
		RedirectURI: cfg.RedirectURI,
	})
	if err != nil {
		code := CodeOf(err)
		if code != CodeMissingRequiredFields {
			return c.fail(call, code), nil
		}

		// The server's view of the profile moved on; show its field list.
		status, err := c.client.CheckConsent(ctx, bearer, cfg.ClientID, cfg.Scopes)
		if err != nil {
			return c.fail(call, CodeOf(err)), nil
		}
		return c.showConsent(call, *status, code), nil
	}

	c.redirect(call, tok.Token)
	return "", nil
}

// showConsent moves to the consent screen, seeding field values from the
// shared profile.
func (c *Consent) showConsent(call consentCall, status ConsentStatus, code ErrorCode) ErrorCode {
	if status.HasConsent && len(status.MissingFields) == 0 {
		// Nothing left for the user to do here, yet no token was issued.
		return c.fail(call, code)
	}

	c.profile.Seed(status.Values)
	values := fieldValuesOf(c.profile.Snapshot(), slices.Concat(status.RequiredFields, status.MissingFields))

	c.finish(call, func(st *ConsentState) {
		st.Step = ConsentRequired
		st.HasConsent = status.HasConsent
		st.Application = status.Application
		st.RequiredFields = slices.Clone(status.RequiredFields)
		st.MissingFields = slices.Clone(status.MissingFields)
		st.FieldValues = values
		st.Error = code
	})
	return code
}

func (c *Consent) redirect(call consentCall, token string) {
	if !c.finish(call, func(st *ConsentState) {
		st.Step = ConsentRedirecting
		st.HasConsent = true
		st.MissingFields = nil
		st.Token = token
		st.consumed = false
	}) {
		return
	}

	if !call.st.Config.AutoRedirect {
		return
	}
	if c.nav == nil {
		c.log.Warn("auto redirect requested without a navigator")
		return
	}
	target, err := c.RedirectURL()
	if err != nil {
		c.log.Warn("build redirect url", "error", err)
		return
	}
	if err := c.nav.Navigate(target); err != nil {
		c.log.Warn("navigate to one-time login", "error", err)
	}
}

// RedirectURL returns the one-time login URL. The token inside it is
// single-use, so only the first call succeeds.
func (c *Consent) RedirectURL() (string, error) {
	var (
		token, redirectURI string
		err                error
	)
	c.record.Update(func(st *ConsentState) {
		switch {
		case st.Step != ConsentRedirecting || st.Token == "":
			err = fmt.Errorf("redirect url from %s: %w", st.Step, ErrIllegalTransition)
		case st.consumed:
			err = ErrTokenConsumed
		default:
			st.consumed = true
			token, redirectURI = st.Token, st.Config.RedirectURI
		}
	})
	if err != nil {
		return "", err
	}
	return c.client.OneTimeLoginURL(token, redirectURI), nil
}

// SetFieldValue records a user-entered value in the consent record and the
// shared profile.
func (c *Consent) SetFieldValue(field string, v Value) {
	c.profile.Set(field, v)
	c.record.Update(func(st *ConsentState) {
		if st.FieldValues == nil {
			st.FieldValues = ProfileData{}
		}
		st.FieldValues[field] = v.clone()
	})
}

// Cancel returns to idle, keeping the config. Any in-flight call is
// discarded when it lands.
func (c *Consent) Cancel() {
	c.record.Update(func(st *ConsentState) {
		cfg, gen := st.Config, st.gen
		*st = ConsentState{Step: ConsentIdle, Config: cfg, gen: gen + 1}
	})
}

// Configure replaces the config, e.g. when the embedding page changes
// scopes. Only legal while idle.
func (c *Consent) Configure(cfg OAuthConfig) error {
	var err error
	c.record.Update(func(st *ConsentState) {
		if st.Step != ConsentIdle {
			err = fmt.Errorf("configure from %s: %w", st.Step, ErrIllegalTransition)
			return
		}
		st.Config = cfg
		st.Config.Scopes = slices.Clone(cfg.Scopes)
	})
	return err
}

func (c *Consent) close() { c.record.Close() }

// fieldValuesOf returns vals restricted to fields.
func fieldValuesOf(vals ProfileData, fields []string) ProfileData {
	out := ProfileData{}
	for _, f := range fields {
		if v, ok := vals[f]; ok {
			out[f] = v.clone()
		}
	}
	return out
}
