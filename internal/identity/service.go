package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/passport/pkg/captcha"
	"github.com/aussiebroadwan/passport/pkg/cryptox"
	"github.com/aussiebroadwan/passport/pkg/idx"
	"github.com/aussiebroadwan/passport/pkg/jwtx"
	"github.com/aussiebroadwan/passport/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Options tune the reference service. Zero values take defaults.
type Options struct {
	Issuer   string
	Audience []string

	SessionTTL        time.Duration
	RefreshTTL        time.Duration
	SignInTTL         time.Duration
	MagicCodeTTL      time.Duration
	MagicCodeCooldown time.Duration
	OneTimeTTL        time.Duration
	RefreshReuseGrace time.Duration

	MaxPasswordAttempts int

	// RPID is the relying party id handed to passkey authenticators.
	RPID string

	Pepper string
	Now    func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Issuer == "" {
		o.Issuer = "passport"
	}
	if o.SessionTTL <= 0 {
		o.SessionTTL = jwtx.DefaultSessionTokenTTL
	}
	if o.RefreshTTL <= 0 {
		o.RefreshTTL = jwtx.DefaultRefreshTokenTTL
	}
	if o.SignInTTL <= 0 {
		o.SignInTTL = 15 * time.Minute
	}
	if o.MagicCodeTTL <= 0 {
		o.MagicCodeTTL = 5 * time.Minute
	}
	if o.MagicCodeCooldown <= 0 {
		o.MagicCodeCooldown = 30 * time.Second
	}
	if o.OneTimeTTL <= 0 {
		o.OneTimeTTL = time.Minute
	}
	if o.RefreshReuseGrace <= 0 {
		o.RefreshReuseGrace = 10 * time.Second
	}
	if o.MaxPasswordAttempts <= 0 {
		o.MaxPasswordAttempts = 5
	}
	if o.RPID == "" {
		o.RPID = "localhost"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Service is an in-memory identity service. All state is lost on restart.
type Service struct {
	opts   Options
	signer jwtx.Signer
	hasher cryptox.PasswordHasher
	outbox Outbox
	log    *slog.Logger

	mu             sync.Mutex
	requiredFields []string
	captcha        captcha.Config
	users          map[string]*User
	byEmail        map[string]*User
	apps           map[string]*Application
	signIns        map[string]*signIn
	refresh        map[string]*refreshToken
	oneTime        map[string]*oneTimeToken
	consents       map[string]map[string][]string
}

// NewService creates an empty service. Load accounts with ApplySeed.
func NewService(opts Options, signer jwtx.Signer, outbox Outbox, logger *slog.Logger) *Service {
	opts = opts.withDefaults()
	if outbox == nil {
		outbox = &MemoryOutbox{}
	}
	return &Service{
		opts:     opts,
		signer:   signer,
		hasher:   cryptox.PasswordHasher{Pepper: opts.Pepper},
		outbox:   outbox,
		log:      slogx.OrDefault(logger),
		users:    make(map[string]*User),
		byEmail:  make(map[string]*User),
		apps:     make(map[string]*Application),
		signIns:  make(map[string]*signIn),
		refresh:  make(map[string]*refreshToken),
		oneTime:  make(map[string]*oneTimeToken),
		consents: make(map[string]map[string][]string),
	}
}

// ApplySeed adds the seeded users and applications and replaces the
// captcha and required-field settings.
func (s *Service) ApplySeed(seed Seed) error {
	users := make([]*User, 0, len(seed.Users))
	for _, su := range seed.Users {
		hash, err := s.hasher.Hash(su.Password)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", su.Email, err)
		}
		u := &User{
			ID:           idx.Prefixed("usr"),
			Email:        normalizeEmail(su.Email),
			PasswordHash: hash,
			Locked:       su.Locked,
			Profile:      map[string]any{},
		}
		for k, v := range su.Profile {
			nv, ok := normalizeValue(v)
			if !ok {
				return fmt.Errorf("user %s: profile field %q has unsupported type %T", su.Email, k, v)
			}
			u.Profile[k] = nv
		}
		for _, sp := range su.Passkeys {
			pk, err := sp.decode()
			if err != nil {
				return fmt.Errorf("user %s: %w", su.Email, err)
			}
			u.Passkeys = append(u.Passkeys, pk)
		}
		users = append(users, u)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requiredFields = slices.Clone(seed.RequiredFields)
	s.captcha = seed.Captcha
	for _, u := range users {
		s.users[u.ID] = u
		s.byEmail[u.Email] = u
	}
	for _, a := range seed.Applications {
		s.apps[a.ClientID] = &Application{
			ClientID:       a.ClientID,
			Name:           a.Name,
			Description:    a.Description,
			LogoURL:        a.LogoURL,
			Scopes:         slices.Clone(a.Scopes),
			RequiredFields: slices.Clone(a.RequiredFields),
			RedirectURIs:   slices.Clone(a.RedirectURIs),
		}
	}
	s.log.Info("seed applied", "users", len(users), "applications", len(seed.Applications))
	return nil
}

// Config returns the public client configuration.
func (s *Service) Config() PublicConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PublicConfig{Captcha: s.captcha}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ============================================================================
// Sign-in
// ============================================================================

// CreateSignIn starts a sign-in for email.
func (s *Service) CreateSignIn(_ context.Context, email, captchaToken, captchaProvider string) (SignInInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.captcha.Enabled(captcha.FeatureLogin) {
		if captchaToken == "" || captcha.ProviderName(captchaProvider) != s.captcha.Provider {
			return SignInInfo{}, ErrCaptchaRequired
		}
	}

	u, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return SignInInfo{}, ErrAccountNotFound
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.opts.Issuer,
		AccountName: u.Email,
		Period:      s.magicPeriod(),
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return SignInInfo{}, fmt.Errorf("generate magic code secret: %w", err)
	}

	si := &signIn{
		ID:          idx.Prefixed("sin"),
		UserID:      u.ID,
		ExpiresAt:   s.opts.Now().Add(s.opts.SignInTTL),
		magicSecret: key.Secret(),
		magicIssued: make(map[string]time.Time),
		magicUsed:   make(map[string]bool),
	}
	s.signIns[si.ID] = si

	return SignInInfo{SID: si.ID, Status: "pending", Email: u.Email}, nil
}

// lookupSignIn returns the active sign-in. Callers hold s.mu.
func (s *Service) lookupSignIn(sid string) (*signIn, *User, error) {
	si, ok := s.signIns[sid]
	if !ok {
		return nil, nil, ErrSignInNotFound
	}
	if !s.opts.Now().Before(si.ExpiresAt) {
		delete(s.signIns, sid)
		return nil, nil, ErrSignInExpired
	}
	u, ok := s.users[si.UserID]
	if !ok {
		return nil, nil, ErrAccountNotFound
	}
	return si, u, nil
}

// AuthenticatePassword checks the account password. Repeated failures lock
// the account.
func (s *Service) AuthenticatePassword(_ context.Context, sid, password string) (TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	si, u, err := s.lookupSignIn(sid)
	if err != nil {
		return TokenPair{}, err
	}
	if u.Locked {
		return TokenPair{}, ErrAccountLocked
	}

	if err := s.hasher.Verify(password, u.PasswordHash); err != nil {
		u.failedPasswords++
		if u.failedPasswords >= s.opts.MaxPasswordAttempts {
			u.Locked = true
			s.log.Warn("account locked after failed passwords", "user_id", u.ID)
			return TokenPair{}, ErrAccountLocked
		}
		return TokenPair{}, ErrInvalidPassword
	}
	u.failedPasswords = 0
	return s.complete(si, u, "pwd")
}

func (s *Service) magicPeriod() uint {
	return uint(math.Max(1, s.opts.MagicCodeTTL.Seconds()))
}

func (s *Service) magicOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    s.magicPeriod(),
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// SendMagicCode mails a code. It returns the resend cooldown in seconds.
func (s *Service) SendMagicCode(ctx context.Context, sid string) (int, error) {
	s.mu.Lock()
	si, u, err := s.lookupSignIn(sid)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}

	now := s.opts.Now()
	if !si.magicSentAt.IsZero() {
		if wait := si.magicSentAt.Add(s.opts.MagicCodeCooldown).Sub(now); wait > 0 {
			s.mu.Unlock()
			return 0, ErrMagicCodeRecent.with(map[string]any{
				"enable_resend_after": int(math.Ceil(wait.Seconds())),
			})
		}
	}

	code, err := totp.GenerateCodeCustom(si.magicSecret, now, s.magicOpts())
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("generate magic code: %w", err)
	}
	si.magicIssued[code] = now
	si.magicSentAt = now
	email := u.Email
	s.mu.Unlock()

	if err := s.outbox.SendMagicCode(ctx, email, code); err != nil {
		return 0, fmt.Errorf("deliver magic code: %w", err)
	}
	return int(s.opts.MagicCodeCooldown.Seconds()), nil
}

// AuthenticateMagicCode exchanges a mailed code for a session.
func (s *Service) AuthenticateMagicCode(_ context.Context, sid, code string) (TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	si, u, err := s.lookupSignIn(sid)
	if err != nil {
		return TokenPair{}, err
	}
	if u.Locked {
		return TokenPair{}, ErrAccountLocked
	}
	if si.magicUsed[code] {
		return TokenPair{}, ErrCodeUsed
	}

	now := s.opts.Now()
	issuedAt, issued := si.magicIssued[code]
	if issued && now.Sub(issuedAt) > s.opts.MagicCodeTTL {
		return TokenPair{}, ErrCodeExpired
	}
	valid, _ := totp.ValidateCustom(code, si.magicSecret, now, s.magicOpts())
	switch {
	case issued && !valid:
		return TokenPair{}, ErrCodeExpired
	case !issued || !valid:
		return TokenPair{}, ErrCodeNotValid
	}

	si.magicUsed[code] = true
	return s.complete(si, u, "otp")
}

// PasskeyAssertion is the credential a passkey authenticator posts.
type PasskeyAssertion struct {
	ID        string `json:"id"`
	Challenge string `json:"challenge"`
	Signature string `json:"signature"`
}

// SignPasskeyChallenge computes the assertion signature the reference
// service expects for secret.
func SignPasskeyChallenge(secret []byte, challenge string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(challenge))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// PasskeyOptions issues a fresh challenge for the sign-in.
func (s *Service) PasskeyOptions(_ context.Context, sid string) (PasskeyOptions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	si, u, err := s.lookupSignIn(sid)
	if err != nil {
		return PasskeyOptions{}, err
	}
	if len(u.Passkeys) == 0 {
		return PasskeyOptions{}, ErrPasskeyNotFound
	}

	challenge, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return PasskeyOptions{}, fmt.Errorf("generate challenge: %w", err)
	}
	si.passkeyChallenge = challenge

	ids := make([]string, 0, len(u.Passkeys))
	for _, pk := range u.Passkeys {
		ids = append(ids, pk.ID)
	}
	return PasskeyOptions{Challenge: challenge, RPID: s.opts.RPID, AllowCredentials: ids, TimeoutMS: 60000}, nil
}

// AuthenticatePasskey verifies an assertion against the issued challenge.
func (s *Service) AuthenticatePasskey(_ context.Context, sid string, credential json.RawMessage) (TokenPair, error) {
	var a PasskeyAssertion
	if err := json.Unmarshal(credential, &a); err != nil || a.ID == "" {
		return TokenPair{}, ErrInvalidRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	si, u, err := s.lookupSignIn(sid)
	if err != nil {
		return TokenPair{}, err
	}
	if u.Locked {
		return TokenPair{}, ErrAccountLocked
	}

	i := slices.IndexFunc(u.Passkeys, func(pk Passkey) bool { return pk.ID == a.ID })
	if i < 0 {
		return TokenPair{}, ErrPasskeyNotFound
	}
	challenge := si.passkeyChallenge
	si.passkeyChallenge = ""
	if challenge == "" || !cryptox.EqualTokens(challenge, a.Challenge) {
		return TokenPair{}, ErrPasskeyRejected
	}
	if !cryptox.EqualTokens(SignPasskeyChallenge(u.Passkeys[i].Secret, challenge), a.Signature) {
		return TokenPair{}, ErrPasskeyRejected
	}
	return s.complete(si, u, "hwk")
}

// SendPasswordReset mails a reset link once per sign-in.
func (s *Service) SendPasswordReset(ctx context.Context, sid string) error {
	s.mu.Lock()
	si, u, err := s.lookupSignIn(sid)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	already := si.resetSent
	si.resetSent = true
	email := u.Email
	s.mu.Unlock()

	if already {
		return nil
	}
	return s.outbox.SendPasswordReset(ctx, email, sid)
}

// UpdateMissingFields stores the fields a verified sign-in was missing and
// issues the session once nothing is missing.
func (s *Service) UpdateMissingFields(_ context.Context, sid string, fields map[string]any) (TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	si, u, err := s.lookupSignIn(sid)
	if err != nil {
		return TokenPair{}, err
	}
	if !si.verified {
		return TokenPair{}, ErrSignInNotVerified
	}

	updates, bad := s.acceptUpdates(fields, s.requiredFields)
	if len(bad) > 0 {
		return TokenPair{}, ErrInvalidRequest.with(map[string]any{"fields": bad})
	}
	for k, v := range updates {
		u.Profile[k] = v
	}
	return s.complete(si, u, "")
}

// acceptUpdates normalizes fields, rejecting names outside allowed and
// values that are not profile values. Empty values are kept and still
// count as missing.
func (s *Service) acceptUpdates(fields map[string]any, allowed []string) (map[string]any, []string) {
	out := make(map[string]any, len(fields))
	var bad []string
	for k, v := range fields {
		nv, ok := normalizeValue(v)
		if !ok || !slices.Contains(allowed, k) {
			bad = append(bad, k)
			continue
		}
		out[k] = nv
	}
	slices.Sort(bad)
	return out, bad
}

func missingFields(u *User, required []string) []string {
	var missing []string
	for _, f := range required {
		if !isPresent(u.Profile[f]) {
			missing = append(missing, f)
		}
	}
	return missing
}

func profileValues(u *User, fields []string) map[string]any {
	out := map[string]any{}
	for _, f := range fields {
		if v, ok := u.Profile[f]; ok {
			out[f] = v
		}
	}
	return out
}

// complete finishes a credential check: either the profile is missing
// fields, or a session is issued. Callers hold s.mu.
func (s *Service) complete(si *signIn, u *User, method string) (TokenPair, error) {
	if method != "" && !slices.Contains(si.amr, method) {
		si.amr = append(si.amr, method)
	}

	if missing := missingFields(u, s.requiredFields); len(missing) > 0 {
		si.verified = true
		return TokenPair{}, ErrMissingFields.with(map[string]any{
			"missing_fields": missing,
			"values":         profileValues(u, missing),
		})
	}

	pair, err := s.issue(si.ID, u, si.amr)
	if err != nil {
		return TokenPair{}, err
	}
	delete(s.signIns, si.ID)
	return pair, nil
}

// issue signs a session token and stores a new refresh token. Callers hold s.mu.
func (s *Service) issue(sid string, u *User, amr []string) (TokenPair, error) {
	now := s.opts.Now()
	claims := jwtx.NewSessionClaims(u.ID, sid, u.Email, amr, s.opts.SessionTTL, s.opts.Issuer, s.opts.Audience, now)
	token, err := s.signer.Sign(claims)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign session token: %w", err)
	}

	raw, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate refresh token: %w", err)
	}
	s.refresh[cryptox.FingerprintToken(raw)] = &refreshToken{
		SID:       sid,
		UserID:    u.ID,
		AMR:       slices.Clone(amr),
		ExpiresAt: now.Add(s.opts.RefreshTTL),
	}
	return TokenPair{JWT: token, RefreshToken: raw}, nil
}

// ============================================================================
// Tokens
// ============================================================================

// Refresh rotates a refresh token. Reusing a rotated token revokes every
// token of the session, except inside the reuse grace window where the
// successor is handed out again.
func (s *Service) Refresh(_ context.Context, sid, raw string) (TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	rt, ok := s.refresh[cryptox.FingerprintToken(raw)]
	if !ok || rt.SID != sid || !now.Before(rt.ExpiresAt) {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	u, ok := s.users[rt.UserID]
	if !ok {
		return TokenPair{}, ErrInvalidRefreshToken
	}

	if rt.Revoked {
		if rt.Successor != "" && now.Sub(rt.RotatedAt) <= s.opts.RefreshReuseGrace {
			claims := jwtx.NewSessionClaims(u.ID, sid, u.Email, rt.AMR, s.opts.SessionTTL, s.opts.Issuer, s.opts.Audience, now)
			token, err := s.signer.Sign(claims)
			if err != nil {
				return TokenPair{}, fmt.Errorf("sign session token: %w", err)
			}
			return TokenPair{JWT: token, RefreshToken: rt.Successor}, nil
		}
		s.revokeSession(sid)
		s.log.Warn("refresh token reuse, session revoked", "sid", sid)
		return TokenPair{}, ErrRefreshTokenRevoked
	}

	pair, err := s.issue(sid, u, rt.AMR)
	if err != nil {
		return TokenPair{}, err
	}
	rt.Revoked = true
	rt.RotatedAt = now
	rt.Successor = pair.RefreshToken
	return pair, nil
}

func (s *Service) revokeSession(sid string) {
	for _, rt := range s.refresh {
		if rt.SID == sid {
			rt.Revoked = true
			rt.Successor = ""
		}
	}
}

// Authenticate resolves a bearer session token to its user.
func (s *Service) Authenticate(token string) (*User, error) {
	claims, err := s.signer.Verify(token, s.opts.Now())
	if err != nil {
		return nil, ErrNotAuthenticated
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[claims.Subject]
	if !ok {
		return nil, ErrNotAuthenticated
	}
	return u, nil
}

// ============================================================================
// OAuth consent
// ============================================================================

func (s *Service) app(clientID string) (*Application, error) {
	a, ok := s.apps[clientID]
	if !ok {
		return nil, ErrApplicationNotFound
	}
	return a, nil
}

// consentStatus computes the consent picture. Callers hold s.mu.
func (s *Service) consentStatus(u *User, a *Application, scopes []string) ConsentStatus {
	if len(scopes) == 0 {
		scopes = a.Scopes
	}
	granted := s.consents[u.ID][a.ClientID]
	has := granted != nil
	for _, sc := range scopes {
		if !slices.Contains(granted, sc) {
			has = false
		}
	}

	missing := missingFields(u, a.RequiredFields)
	return ConsentStatus{
		HasConsent:     has,
		RequiredFields: slices.Clone(a.RequiredFields),
		MissingFields:  missing,
		Application: ApplicationInfo{
			ClientID:    a.ClientID,
			Name:        a.Name,
			Description: a.Description,
			Scopes:      slices.Clone(scopes),
			LogoURL:     a.LogoURL,
		},
		Values: profileValues(u, a.RequiredFields),
	}
}

// CheckConsent reports whether u has consented to clientID.
func (s *Service) CheckConsent(_ context.Context, u *User, clientID string, scopes []string) (ConsentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.app(clientID)
	if err != nil {
		return ConsentStatus{}, err
	}
	return s.consentStatus(u, a, scopes), nil
}

// UpdateConsent applies profile updates limited to the application's
// required fields.
func (s *Service) UpdateConsent(_ context.Context, u *User, clientID string, updates map[string]any) (ConsentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.app(clientID)
	if err != nil {
		return ConsentStatus{}, err
	}
	accepted, bad := s.acceptUpdates(updates, a.RequiredFields)
	if len(bad) > 0 {
		return ConsentStatus{}, ErrInvalidUserUpdates.with(map[string]any{"fields": bad})
	}
	for k, v := range accepted {
		u.Profile[k] = v
	}
	return s.consentStatus(u, a, nil), nil
}

// GrantConsent records consent and issues a one-time login token.
func (s *Service) GrantConsent(_ context.Context, u *User, clientID string, scopes []string, redirectURI string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.app(clientID)
	if err != nil {
		return "", err
	}
	if !a.allowsRedirect(redirectURI) {
		return "", ErrInvalidRedirectURI
	}
	st := s.consentStatus(u, a, scopes)
	if len(st.MissingFields) > 0 {
		return "", ErrMissingFields.with(map[string]any{"missing_fields": st.MissingFields})
	}

	if s.consents[u.ID] == nil {
		s.consents[u.ID] = make(map[string][]string)
	}
	granted := s.consents[u.ID][a.ClientID]
	for _, sc := range st.Application.Scopes {
		if !slices.Contains(granted, sc) {
			granted = append(granted, sc)
		}
	}
	s.consents[u.ID][a.ClientID] = granted

	return s.issueOneTime(u, a, redirectURI)
}

// Connect grants in one step when consent exists and nothing is missing.
// Otherwise it returns the consent status with the blocking error.
func (s *Service) Connect(_ context.Context, u *User, clientID string, scopes []string, redirectURI string) (string, *ConsentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.app(clientID)
	if err != nil {
		return "", nil, err
	}
	if !a.allowsRedirect(redirectURI) {
		return "", nil, ErrInvalidRedirectURI
	}

	st := s.consentStatus(u, a, scopes)
	switch {
	case len(st.MissingFields) > 0:
		return "", &st, ErrMissingFields
	case !st.HasConsent:
		return "", &st, ErrConsentNotGranted
	}

	token, err := s.issueOneTime(u, a, redirectURI)
	return token, nil, err
}

func (s *Service) issueOneTime(u *User, a *Application, redirectURI string) (string, error) {
	raw, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", fmt.Errorf("generate one-time token: %w", err)
	}
	if redirectURI == "" && len(a.RedirectURIs) > 0 {
		redirectURI = a.RedirectURIs[0]
	}
	s.oneTime[cryptox.FingerprintToken(raw)] = &oneTimeToken{
		UserID:      u.ID,
		ClientID:    a.ClientID,
		RedirectURI: redirectURI,
		ExpiresAt:   s.opts.Now().Add(s.opts.OneTimeTTL),
	}
	return raw, nil
}

// RedeemOneTime consumes a one-time token and returns the redirect target,
// carrying a fresh sid/refresh_token hand-off for the relying party.
func (s *Service) RedeemOneTime(_ context.Context, raw, redirectURI string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ott, ok := s.oneTime[cryptox.FingerprintToken(raw)]
	if !ok || ott.Used || !s.opts.Now().Before(ott.ExpiresAt) {
		return "", ErrInvalidToken
	}
	if redirectURI != "" && redirectURI != ott.RedirectURI {
		return "", ErrInvalidRedirectURI
	}
	target, err := url.Parse(ott.RedirectURI)
	if err != nil || ott.RedirectURI == "" {
		return "", ErrInvalidRedirectURI
	}
	u, ok := s.users[ott.UserID]
	if !ok {
		return "", ErrInvalidToken
	}
	ott.Used = true

	sid := idx.Prefixed("sin")
	pair, err := s.issue(sid, u, []string{"otl"})
	if err != nil {
		return "", err
	}

	q := target.Query()
	q.Set("sid", sid)
	q.Set("refresh_token", pair.RefreshToken)
	target.RawQuery = q.Encode()
	return target.String(), nil
}
